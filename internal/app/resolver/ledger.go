package resolver

import (
	"sync"
	"time"

	"resono/internal/domain/track"
)

// ledgerEntry tracks recovery attempts for a single track.
type ledgerEntry struct {
	attempts    int
	lastAttempt time.Time
}

// recoveryLedger bounds stream-refresh retries per track. A permanently
// broken source (geo-blocked, removed) gets at most maxAttempts refreshes
// per rolling window, then the error is terminal for that track.
type recoveryLedger struct {
	mu          sync.Mutex
	entries     map[track.ID]*ledgerEntry
	window      time.Duration
	maxAttempts int
}

func newRecoveryLedger(window time.Duration, maxAttempts int) *recoveryLedger {
	return &recoveryLedger{
		entries:     make(map[track.ID]*ledgerEntry),
		window:      window,
		maxAttempts: maxAttempts,
	}
}

// markAndCheck records a recovery attempt and reports whether it is allowed.
// The attempt count resets to 1 when the window since the last attempt has
// passed; otherwise it increments and the attempt is allowed only while the
// count stays within maxAttempts.
func (l *recoveryLedger) markAndCheck(id track.ID, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || now.Sub(e.lastAttempt) > l.window {
		l.entries[id] = &ledgerEntry{attempts: 1, lastAttempt: now}
		return true
	}

	e.attempts++
	e.lastAttempt = now
	return e.attempts <= l.maxAttempts
}

// clear removes the ledger entry after a successful re-resolution.
func (l *recoveryLedger) clear(id track.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}
