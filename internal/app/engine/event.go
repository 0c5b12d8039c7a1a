package engine

import (
	"resono/internal/app/queue"
	"resono/internal/domain/stream"
)

// FocusEvent is an audio-focus transition reported by the platform.
type FocusEvent int

const (
	FocusGain                 FocusEvent = iota // Full focus regained
	FocusLoss                                   // Focus lost indefinitely
	FocusLossTransient                          // Focus lost briefly, resume when regained
	FocusLossTransientCanDuck                   // Focus lost briefly, ducking allowed
	FocusGainTransient                          // Transient focus regained
)

// String returns the string representation of the focus event.
func (f FocusEvent) String() string {
	switch f {
	case FocusGain:
		return "gain"
	case FocusLoss:
		return "loss"
	case FocusLossTransient:
		return "loss_transient"
	case FocusLossTransientCanDuck:
		return "loss_transient_can_duck"
	case FocusGainTransient:
		return "gain_transient"
	default:
		return "unknown"
	}
}

// eventType discriminates the events fed into the run loop.
type eventType int

const (
	evPlay eventType = iota
	evPause
	evSkip
	evStop
	evSeek
	evLoadQueue
	evPlayerEnded
	evPlayerError
	evResolved
	evRecovered
	evFocus
	evNetworkUp
	evNetworkDown
)

// String returns the string representation of the event type.
func (t eventType) String() string {
	switch t {
	case evPlay:
		return "play"
	case evPause:
		return "pause"
	case evSkip:
		return "skip"
	case evStop:
		return "stop"
	case evSeek:
		return "seek"
	case evLoadQueue:
		return "load_queue"
	case evPlayerEnded:
		return "player_ended"
	case evPlayerError:
		return "player_error"
	case evResolved:
		return "resolved"
	case evRecovered:
		return "recovered"
	case evFocus:
		return "focus"
	case evNetworkUp:
		return "network_up"
	case evNetworkDown:
		return "network_down"
	default:
		return "unknown"
	}
}

// event is one message on the run loop.
type event struct {
	typ eventType

	load       *queue.Load
	index      int
	err        error
	desc       stream.Descriptor
	seq        uint64 // Play sequence the async result belongs to
	positionMs int64
	focus      FocusEvent
}
