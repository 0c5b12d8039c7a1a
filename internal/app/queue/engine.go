// Package queue provides the play-queue engine: windowed loading of large
// queues, shuffle with a stable anchor, and automix continuation.
package queue

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"resono/internal/app/automix"
	"resono/internal/app/filter"
	"resono/internal/app/resolver"
	"resono/internal/domain/track"
)

// RepeatMode controls queue advancement at track end.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota // Advance until the queue ends
	RepeatAll                   // Wrap around at the end
	RepeatOne                   // Replay the current item
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Config holds queue engine configuration.
type Config struct {
	WindowBefore    int           // Items materialized before the start index
	WindowAfter     int           // Items materialized after the start index
	SettleDelay     time.Duration // Delay before the deferred fill runs
	LowWaterPaged   int           // Continuation threshold when the source had pages
	LowWaterNoPages int           // Continuation threshold when it did not
	AutomixEnabled  bool
}

// Load describes a queue to be loaded.
type Load struct {
	Items      []track.QueueItem
	StartIndex int
	HasPages   bool // Source is paginated (affects the low-water mark)
}

// Engine owns the ordered item list and the current cursor.
//
// All mutation happens under one mutex; deferred fills and automix fetches
// run on goroutines and re-validate the generation counter before touching
// the queue.
type Engine struct {
	mu sync.Mutex

	items   []track.QueueItem
	current int

	// Deferred fill state
	generation   uint64
	pendingAhead []track.QueueItem // Remainder after the window, in order
	pendingBack  []track.QueueItem // Remainder before the window, in order

	// Shuffle state
	shuffled  bool
	baseOrder []track.QueueItem // Pre-shuffle order for restore

	repeat   RepeatMode
	hasPages bool

	automixBuf []track.QueueItem

	config   Config
	chain    *filter.Chain
	provider *automix.Provider
	resolver *resolver.Resolver

	// Invoked after any queue mutation, without the lock held
	notify func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a new queue engine.
func NewEngine(cfg Config, chain *filter.Chain, provider *automix.Provider, res *resolver.Resolver) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		items:    make([]track.QueueItem, 0),
		config:   cfg,
		chain:    chain,
		provider: provider,
		resolver: res,
		notify:   func() {},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetNotify registers the callback invoked after queue mutations.
func (e *Engine) SetNotify(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn == nil {
		fn = func() {}
	}
	e.notify = fn
}

// Close cancels outstanding deferred work. Stale fills observe the
// generation bump and discard themselves.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	e.generation++
	e.mu.Unlock()
}

// LoadQueue replaces the queue with the given load. Only a window around
// the start index is materialized immediately; the remainder is inserted
// after a short settle delay so very large queues do not block playback
// start. A later LoadQueue fully supersedes an earlier one's in-flight
// fill.
func (e *Engine) LoadQueue(l Load) {
	items := e.chain.Apply(l.Items)

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.automixBuf = nil
	e.shuffled = false
	e.baseOrder = nil
	e.hasPages = l.HasPages
	e.pendingAhead = nil
	e.pendingBack = nil

	if len(items) == 0 {
		// Loading an empty resolved queue is a no-op, not an error
		e.mu.Unlock()
		zlog.Debug().Msg("queue: load resolved to zero items, keeping current queue")
		return
	}

	start := clamp(l.StartIndex, 0, len(items)-1)
	lo := max(0, start-e.config.WindowBefore)
	hi := min(len(items), start+e.config.WindowAfter)

	e.items = append([]track.QueueItem(nil), items[lo:hi]...)
	e.current = start - lo
	e.pendingBack = append([]track.QueueItem(nil), items[:lo]...)
	e.pendingAhead = append([]track.QueueItem(nil), items[hi:]...)

	deferred := len(e.pendingBack) + len(e.pendingAhead)
	notify := e.notify
	e.mu.Unlock()

	zlog.Info().Msgf("queue: loaded window: total=%d window=%d deferred=%d start=%d",
		len(items), hi-lo, deferred, start)

	if deferred > 0 {
		e.scheduleDeferredFill(gen)
	}

	e.prefetchUpcoming()
	notify()
}

// scheduleDeferredFill inserts the out-of-window remainder after the
// settle delay, unless a newer load has superseded this one.
func (e *Engine) scheduleDeferredFill(gen uint64) {
	go func() {
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(e.config.SettleDelay):
		}

		e.mu.Lock()
		if e.generation != gen {
			// Superseded by a later load; discard
			e.mu.Unlock()
			return
		}

		back, ahead := e.pendingBack, e.pendingAhead
		e.pendingBack, e.pendingAhead = nil, nil

		filled := append([]track.QueueItem(nil), back...)
		filled = append(filled, e.items...)
		filled = append(filled, ahead...)
		e.items = filled
		e.current += len(back)
		if e.shuffled {
			// Shuffle started mid-settle; the pre-shuffle order must grow
			// the same way or restoring would drop the filled items
			base := append([]track.QueueItem(nil), back...)
			base = append(base, e.baseOrder...)
			base = append(base, ahead...)
			e.baseOrder = base
		}
		notify := e.notify
		e.mu.Unlock()

		zlog.Debug().Msgf("queue: deferred fill complete: inserted=%d", len(back)+len(ahead))
		notify()
	}()
}

// AppendNext inserts items immediately after the current one.
func (e *Engine) AppendNext(items []track.QueueItem) {
	items = e.chain.Apply(items)
	if len(items) == 0 {
		return
	}

	e.mu.Lock()
	if len(e.items) == 0 {
		e.items = append(e.items, items...)
		e.current = 0
	} else {
		at := e.current + 1
		rest := append([]track.QueueItem(nil), e.items[at:]...)
		e.items = append(e.items[:at], items...)
		e.items = append(e.items, rest...)
	}
	if e.shuffled {
		e.insertIntoBaseOrderLocked(items)
	}
	notify := e.notify
	e.mu.Unlock()
	notify()
}

// insertIntoBaseOrderLocked mirrors an insert-after-current into the
// pre-shuffle order so the items survive a shuffle restore.
func (e *Engine) insertIntoBaseOrderLocked(items []track.QueueItem) {
	currentID := e.items[e.current].Track.ID
	at := len(e.baseOrder)
	for i, item := range e.baseOrder {
		if item.Track.ID == currentID {
			at = i + 1
			break
		}
	}
	rest := append([]track.QueueItem(nil), e.baseOrder[at:]...)
	e.baseOrder = append(e.baseOrder[:at], items...)
	e.baseOrder = append(e.baseOrder, rest...)
}

// AppendAutomix appends continuation items at the end of the queue.
// Appending never moves the current item, so the shuffle anchor holds.
func (e *Engine) AppendAutomix(items []track.QueueItem) {
	items = e.chain.Apply(items)
	if len(items) == 0 {
		return
	}

	e.mu.Lock()
	e.items = append(e.items, items...)
	if e.shuffled {
		e.baseOrder = append(e.baseOrder, items...)
	}
	notify := e.notify
	e.mu.Unlock()
	notify()
}

// Advance moves the cursor to the next item per the repeat mode and
// returns it. ok is false when the queue is exhausted.
func (e *Engine) Advance() (item track.QueueItem, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.items) == 0 {
		return track.QueueItem{}, false
	}

	switch e.repeat {
	case RepeatOne:
		return e.items[e.current], true
	case RepeatAll:
		e.current = (e.current + 1) % len(e.items)
		return e.items[e.current], true
	default:
		if e.current+1 >= len(e.items) {
			return track.QueueItem{}, false
		}
		e.current++
		return e.items[e.current], true
	}
}

// Seek jumps the cursor to the given index. Seeking to a non-adjacent item
// clears the automix buffer.
func (e *Engine) Seek(index int) (item track.QueueItem, ok bool) {
	e.mu.Lock()

	if len(e.items) == 0 || index < 0 || index >= len(e.items) {
		e.mu.Unlock()
		return track.QueueItem{}, false
	}

	if index < e.current-1 || index > e.current+1 {
		e.automixBuf = nil
	}
	e.current = index
	item = e.items[index]
	notify := e.notify
	e.mu.Unlock()

	e.prefetchUpcoming()
	notify()
	return item, true
}

// Current returns the item under the cursor.
func (e *Engine) Current() (track.QueueItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.items) == 0 {
		return track.QueueItem{}, false
	}
	return e.items[e.current], true
}

// CurrentIndex returns the cursor position.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Items returns a copy of the materialized queue.
func (e *Engine) Items() []track.QueueItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]track.QueueItem, len(e.items))
	copy(out, e.items)
	return out
}

// Len returns the number of materialized items.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// Repeat returns the repeat mode.
func (e *Engine) Repeat() RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

// SetRepeat sets the repeat mode.
func (e *Engine) SetRepeat(m RepeatMode) {
	e.mu.Lock()
	e.repeat = m
	notify := e.notify
	e.mu.Unlock()
	notify()
}

// Shuffled reports whether shuffle is active.
func (e *Engine) Shuffled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shuffled
}

// AutomixBuffer returns a copy of the prefetched continuation buffer.
func (e *Engine) AutomixBuffer() []track.QueueItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]track.QueueItem, len(e.automixBuf))
	copy(out, e.automixBuf)
	return out
}

// prefetchUpcoming warms the stream cache for the item after the cursor.
func (e *Engine) prefetchUpcoming() {
	if e.resolver == nil {
		return
	}
	e.mu.Lock()
	var next *track.QueueItem
	if e.current+1 < len(e.items) {
		item := e.items[e.current+1]
		next = &item
	}
	e.mu.Unlock()

	if next != nil {
		e.resolver.ResolveAsync(e.ctx, next.Track.ID)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
