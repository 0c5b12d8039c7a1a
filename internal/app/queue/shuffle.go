package queue

import (
	"math/rand"

	"resono/internal/domain/track"
)

// ToggleShuffle flips shuffle mode. Enabling shuffles every item except the
// current one, which keeps its position; disabling restores the original
// order with the cursor following the current item.
func (e *Engine) ToggleShuffle() bool {
	e.mu.Lock()

	if e.shuffled {
		e.restoreOrderLocked()
	} else {
		e.baseOrder = append([]track.QueueItem(nil), e.items...)
		e.shuffleLocked()
	}
	on := e.shuffled
	notify := e.notify
	e.mu.Unlock()

	notify()
	return on
}

// Reshuffle re-randomizes the remainder while shuffle is active, keeping
// the anchor. Used when the candidate set changes under an active shuffle.
func (e *Engine) Reshuffle() {
	e.mu.Lock()
	if !e.shuffled {
		e.mu.Unlock()
		return
	}
	e.permuteAroundAnchorLocked()
	notify := e.notify
	e.mu.Unlock()
	notify()
}

// shuffleLocked enables shuffle with the anchor invariant.
func (e *Engine) shuffleLocked() {
	e.shuffled = true
	e.permuteAroundAnchorLocked()
}

// permuteAroundAnchorLocked produces a uniform permutation of everything
// except the item at the cursor, which stays put.
func (e *Engine) permuteAroundAnchorLocked() {
	if len(e.items) < 3 {
		return
	}
	rest := make([]track.QueueItem, 0, len(e.items)-1)
	for i, item := range e.items {
		if i == e.current {
			continue
		}
		rest = append(rest, item)
	}

	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	out := make([]track.QueueItem, 0, len(e.items))
	out = append(out, rest[:e.current]...)
	out = append(out, e.items[e.current])
	out = append(out, rest[e.current:]...)
	e.items = out
}

// restoreOrderLocked disables shuffle and restores the pre-shuffle order.
func (e *Engine) restoreOrderLocked() {
	e.shuffled = false
	if e.baseOrder == nil || len(e.items) == 0 {
		e.baseOrder = nil
		return
	}

	currentID := e.items[e.current].Track.ID
	e.items = e.baseOrder
	e.baseOrder = nil

	// Cursor follows the current track into the restored order
	for i, item := range e.items {
		if item.Track.ID == currentID {
			e.current = i
			break
		}
	}
	if e.current >= len(e.items) {
		e.current = len(e.items) - 1
	}
}
