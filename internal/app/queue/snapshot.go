package queue

import (
	"resono/internal/domain/track"
)

// State is a flat snapshot of the engine, taken for persistence and
// restored once at startup.
type State struct {
	Items    []track.QueueItem
	Current  int
	Shuffled bool
	Repeat   RepeatMode
	HasPages bool
	Automix  []track.QueueItem
}

// State captures the current queue state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]track.QueueItem, len(e.items))
	copy(items, e.items)
	buf := make([]track.QueueItem, len(e.automixBuf))
	copy(buf, e.automixBuf)

	return State{
		Items:    items,
		Current:  e.current,
		Shuffled: e.shuffled,
		Repeat:   e.repeat,
		HasPages: e.hasPages,
		Automix:  buf,
	}
}

// Restore replaces the engine state with a persisted snapshot.
func (e *Engine) Restore(s State) {
	e.mu.Lock()
	e.generation++
	e.items = s.Items
	e.current = clamp(s.Current, 0, max(0, len(s.Items)-1))
	e.shuffled = s.Shuffled
	if s.Shuffled {
		// The pre-shuffle order is not persisted; unshuffling after a
		// restore keeps the restored order
		e.baseOrder = append([]track.QueueItem(nil), s.Items...)
	}
	e.repeat = s.Repeat
	e.hasPages = s.HasPages
	e.automixBuf = s.Automix
	e.pendingAhead = nil
	e.pendingBack = nil
	notify := e.notify
	e.mu.Unlock()
	notify()
}
