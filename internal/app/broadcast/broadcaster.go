// Package broadcast fans playback events out to subscribers.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"resono/internal/domain/track"
)

// EventType identifies the kind of playback event being broadcast.
type EventType int

const (
	EventStateChanged EventType = iota
	EventTrackChanged
	EventQueueChanged
	EventPositionChanged
	EventSettingsChanged
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "STATE_CHANGED"
	case EventTrackChanged:
		return "TRACK_CHANGED"
	case EventQueueChanged:
		return "QUEUE_CHANGED"
	case EventPositionChanged:
		return "POSITION_CHANGED"
	case EventSettingsChanged:
		return "SETTINGS_CHANGED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a single playback event delivered to subscribers.
type Event struct {
	Type       EventType
	SequenceNo uint64
	State      string
	TrackID    track.ID
	PositionMs int64
	Message    string
	At         time.Time
}

// Stream receives events for one subscriber.
type Stream interface {
	Send(Event) error
}

// subscription pairs a subscriber id with its stream.
type subscription struct {
	id     string
	stream Stream
}

// Broadcaster manages subscriptions and delivers events to all of them.
type Broadcaster struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex

	sendTimeout time.Duration
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
	}
}

// Subscribe adds a stream and returns its subscription ID.
func (b *Broadcaster) Subscribe(stream Stream) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, subscriptionID)
}

// Broadcast stamps the event with the next sequence number and sends it to
// every subscriber. Each send runs in its own goroutine with a timeout so a
// stalled subscriber cannot block the rest.
func (b *Broadcaster) Broadcast(event Event) {
	b.sequenceNoMu.Lock()
	b.sequenceNo++
	event.SequenceNo = b.sequenceNo
	b.sequenceNoMu.Unlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(event)
			}()

			select {
			case <-done:
				// Send errors are ignored, dead streams unsubscribe themselves
			case <-ctx.Done():
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string]*subscription)
}
