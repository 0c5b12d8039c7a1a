// Package engine provides the event-driven playback state machine.
//
// One run loop owns the transport and all queue mutation: commands and
// player/network/focus callbacks are posted as events onto the loop, never
// applied concurrently. Network and disk work runs on goroutines and
// re-enters through the same loop.
package engine

// State represents the core playback state.
type State int

const (
	StateIdle      State = iota // No track loaded
	StateBuffering              // Stream resolution or transport prepare in flight
	StatePlaying                // Track is playing
	StatePaused                 // Track is paused
	StateEnded                  // Queue exhausted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Status is the externally observable machine state, including the
// orthogonal recovery modifiers.
type Status struct {
	State             State
	WaitingForNetwork bool
	RecoveringStream  bool
	TrackID           string
	PositionMs        int64
	Volume            float64
	ConsecutiveErrors int
}
