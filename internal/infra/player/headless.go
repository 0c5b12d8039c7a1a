// Package player provides a headless transport implementation driven by
// wall-clock timers instead of a real audio pipeline.
package player

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Callbacks are invoked by the transport on playback events. Both are
// optional.
type Callbacks struct {
	OnEnded func()
	OnError func(err error)
}

// Headless simulates playback timing: a prepared track "plays" for its
// duration hint and then reports the end. Position is tracked against the
// wall clock so pauses and seeks behave like a real player.
type Headless struct {
	mu sync.Mutex

	callbacks Callbacks
	sessionID int

	url        string
	durationMs int64
	playing    bool
	startedAt  time.Time
	elapsed    time.Duration
	volume     float64

	timerCancel func()
}

// NewHeadless creates a headless transport.
func NewHeadless(callbacks Callbacks) *Headless {
	return &Headless{
		callbacks: callbacks,
		sessionID: 1,
		volume:    1.0,
	}
}

// Prepare implements Transport. Each prepared track gets a fresh audio
// session id, mirroring how real pipelines rebuild per item.
func (h *Headless) Prepare(url string, durationHintMs int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopTimerLocked()
	h.url = url
	h.durationMs = durationHintMs
	h.playing = false
	h.elapsed = 0
	h.sessionID++
	zlog.Debug().Msgf("player: prepared: url=%s duration=%dms", url, durationHintMs)
	return nil
}

// Play implements Transport.
func (h *Headless) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.playing {
		return nil
	}
	h.playing = true
	h.startedAt = toWallTime(time.Now())
	h.startEndTimerLocked()
	return nil
}

// Pause implements Transport.
func (h *Headless) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.playing {
		return nil
	}
	h.elapsed += toWallTime(time.Now()).Sub(h.startedAt)
	h.playing = false
	h.stopTimerLocked()
	return nil
}

// Stop implements Transport.
func (h *Headless) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.playing = false
	h.elapsed = 0
	h.url = ""
	h.stopTimerLocked()
	return nil
}

// SeekTo implements Transport.
func (h *Headless) SeekTo(positionMs int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.elapsed = time.Duration(positionMs) * time.Millisecond
	if h.playing {
		h.startedAt = toWallTime(time.Now())
		h.startEndTimerLocked()
	}
	return nil
}

// SetVolume implements Transport.
func (h *Headless) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
	return nil
}

// Volume returns the current volume.
func (h *Headless) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// PositionMs implements Transport.
func (h *Headless) PositionMs() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	elapsed := h.elapsed
	if h.playing {
		elapsed += toWallTime(time.Now()).Sub(h.startedAt)
	}
	pos := elapsed.Milliseconds()
	if h.durationMs > 0 && pos > h.durationMs {
		pos = h.durationMs
	}
	return pos
}

// AudioSessionID implements Transport.
func (h *Headless) AudioSessionID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// Close stops any running timer.
func (h *Headless) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimerLocked()
}

func (h *Headless) stopTimerLocked() {
	if h.timerCancel != nil {
		h.timerCancel()
		h.timerCancel = nil
	}
}

// startEndTimerLocked schedules the end-of-track callback for the remaining
// duration. Without a duration hint the track never ends on its own.
func (h *Headless) startEndTimerLocked() {
	h.stopTimerLocked()
	if h.durationMs <= 0 {
		return
	}

	remaining := time.Duration(h.durationMs)*time.Millisecond - h.elapsed
	if remaining <= 0 {
		remaining = time.Millisecond
	}

	h.timerCancel = h.startWallClockTimer(remaining, func() {
		h.mu.Lock()
		h.playing = false
		h.elapsed = time.Duration(h.durationMs) * time.Millisecond
		onEnded := h.callbacks.OnEnded
		h.mu.Unlock()

		if onEnded != nil {
			onEnded()
		}
	})
}

// startWallClockTimer triggers the callback after the duration measured on
// the wall clock, so a drifting monotonic clock cannot desync simulated
// playback from real time.
func (h *Headless) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).After(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime strips the monotonic clock reading.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
