package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanStream delivers events into a channel for inspection.
type chanStream struct {
	events chan Event
}

func newChanStream(size int) *chanStream {
	return &chanStream{events: make(chan Event, size)}
}

func (s *chanStream) Send(e Event) error {
	s.events <- e
	return nil
}

// blockingStream never completes a send.
type blockingStream struct {
	started sync.WaitGroup
}

func (s *blockingStream) Send(Event) error {
	s.started.Done()
	select {}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	first := newChanStream(1)
	second := newChanStream(1)
	b.Subscribe(first)
	b.Subscribe(second)
	require.Equal(t, 2, b.SubscriberCount())

	b.Broadcast(Event{Type: EventTrackChanged, TrackID: "t-1"})

	for _, s := range []*chanStream{first, second} {
		select {
		case e := <-s.events:
			assert.Equal(t, EventTrackChanged, e.Type)
			assert.Equal(t, uint64(1), e.SequenceNo)
			assert.False(t, e.At.IsZero())
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	b := NewBroadcaster()
	s := newChanStream(3)
	b.Subscribe(s)

	b.Broadcast(Event{Type: EventStateChanged})
	b.Broadcast(Event{Type: EventQueueChanged})
	b.Broadcast(Event{Type: EventStateChanged})

	assert.Equal(t, uint64(1), (<-s.events).SequenceNo)
	assert.Equal(t, uint64(2), (<-s.events).SequenceNo)
	assert.Equal(t, uint64(3), (<-s.events).SequenceNo)
}

func TestStalledSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster()
	b.sendTimeout = 50 * time.Millisecond

	stalled := &blockingStream{}
	stalled.started.Add(1)
	healthy := newChanStream(1)
	b.Subscribe(stalled)
	b.Subscribe(healthy)

	done := make(chan struct{})
	go func() {
		b.Broadcast(Event{Type: EventError, Message: "stream failed"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a stalled subscriber")
	}
	assert.Len(t, healthy.events, 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	s := newChanStream(2)
	id := b.Subscribe(s)

	b.Broadcast(Event{Type: EventStateChanged})
	b.Unsubscribe(id)
	b.Broadcast(Event{Type: EventStateChanged})

	assert.Len(t, s.events, 1)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventStateChanged, "STATE_CHANGED"},
		{EventTrackChanged, "TRACK_CHANGED"},
		{EventQueueChanged, "QUEUE_CHANGED"},
		{EventPositionChanged, "POSITION_CHANGED"},
		{EventSettingsChanged, "SETTINGS_CHANGED"},
		{EventError, "ERROR"},
		{EventType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.eventType.String())
	}
}
