package queue

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"resono/internal/domain/track"
)

// CheckContinuation runs the automix low-water check for the track that is
// about to end. When the remaining queue falls at or below the low-water
// mark and repeat is off, the prefetched buffer is drained first (minus the
// ending track); only when the buffer is empty is a fresh continuation page
// fetched. A second page is then prefetched in the background for the next
// transition.
//
// A failed continuation fetch is logged and treated as "no automix
// available", never propagated.
func (e *Engine) CheckContinuation(ctx context.Context, ending track.ID) {
	if e.provider == nil || !e.config.AutomixEnabled {
		return
	}

	e.mu.Lock()
	if e.repeat != RepeatOff {
		e.mu.Unlock()
		return
	}

	remaining := len(e.items) - 1 - e.current
	threshold := e.config.LowWaterNoPages
	if e.hasPages {
		threshold = e.config.LowWaterPaged
	}
	if remaining > threshold {
		e.mu.Unlock()
		return
	}

	// Drain the prefetched buffer, filtering the ending track so it is
	// never queued immediately after itself
	buffered := make([]track.QueueItem, 0, len(e.automixBuf))
	for _, item := range e.automixBuf {
		if item.Track.ID != ending {
			buffered = append(buffered, item)
		}
	}
	e.automixBuf = nil
	exclude := e.queuedIDsLocked()
	e.mu.Unlock()

	if len(buffered) > 0 {
		zlog.Debug().Msgf("queue: draining automix buffer: items=%d", len(buffered))
		e.AppendAutomix(buffered)
		e.prefetchBuffer(ending, exclude)
		return
	}

	page, err := e.provider.NextPage(ctx, ending, exclude)
	if err != nil {
		zlog.Warn().Msgf("queue: no automix available: seed=%s error=%v", ending, err)
		return
	}
	if len(page) == 0 {
		zlog.Debug().Msgf("queue: continuation page empty: seed=%s", ending)
		return
	}

	e.AppendAutomix(page)
	e.prefetchBuffer(ending, e.queuedIDs())
}

// prefetchBuffer fetches the next continuation page into the automix
// buffer for the following transition.
func (e *Engine) prefetchBuffer(seed track.ID, exclude map[track.ID]bool) {
	go func() {
		page, err := e.provider.NextPage(e.ctx, seed, exclude)
		if err != nil {
			zlog.Debug().Msgf("queue: automix prefetch failed: seed=%s error=%v", seed, err)
			return
		}

		e.mu.Lock()
		e.automixBuf = page
		e.mu.Unlock()
	}()
}

// queuedIDs returns the set of track IDs currently in the queue.
func (e *Engine) queuedIDs() map[track.ID]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queuedIDsLocked()
}

func (e *Engine) queuedIDsLocked() map[track.ID]bool {
	ids := make(map[track.ID]bool, len(e.items))
	for _, item := range e.items {
		ids[item.Track.ID] = true
	}
	return ids
}
