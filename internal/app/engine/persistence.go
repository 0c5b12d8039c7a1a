package engine

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"resono/internal/app/persist"
	"resono/internal/app/queue"
	"resono/internal/infra/blob"
	"resono/internal/infra/settings"
)

// RestoreFromSnapshots loads the persisted queue and player state. Called
// once before Start; playback is never resumed automatically, the restored
// track waits for an explicit Play.
func (m *Machine) RestoreFromSnapshots() {
	if m.store == nil || !m.persistenceEnabled() {
		return
	}

	qs, err := m.store.LoadQueue()
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			zlog.Warn().Msgf("engine: queue snapshot restore failed: %v", err)
		}
		return
	}

	as, err := m.store.LoadAutomix()
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		zlog.Warn().Msgf("engine: automix snapshot restore failed: %v", err)
	}

	m.queue.Restore(queue.State{
		Items:    qs.Items,
		Current:  qs.Current,
		Shuffled: qs.Shuffled,
		Repeat:   queue.RepeatMode(qs.Repeat),
		HasPages: qs.HasPages,
		Automix:  as.Items,
	})

	ps, err := m.store.LoadPlayer()
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			zlog.Warn().Msgf("engine: player snapshot restore failed: %v", err)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue.Current(); ok {
		m.current = item
		m.hasTrack = true
		m.resumePositionMs = ps.PositionMs
	}
	if ps.Volume > 0 {
		m.volume = ps.Volume
	}
	zlog.Info().Msgf("engine: restored queue: items=%d current=%d position=%d",
		len(qs.Items), qs.Current, ps.PositionMs)
}

// saveSnapshot persists the full state in the background. Called by the
// periodic tickers.
func (m *Machine) saveSnapshot() {
	ps, ok := m.prepareSnapshot()
	if !ok {
		return
	}
	go m.writeSnapshot(ps)
}

// snapshotDebouncedLocked persists on a track transition unless a snapshot
// was taken very recently.
func (m *Machine) snapshotDebouncedLocked() {
	if m.store == nil || !m.persistenceEnabled() {
		return
	}
	now := time.Now()
	if now.Sub(m.lastSnapshot) < snapshotDebounce {
		return
	}
	m.lastSnapshot = now
	ps := m.playerSnapshotLocked()
	go m.writeSnapshot(ps)
}

func (m *Machine) prepareSnapshot() (persist.PlayerSnapshot, bool) {
	if m.store == nil || !m.persistenceEnabled() {
		return persist.PlayerSnapshot{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSnapshot = time.Now()
	return m.playerSnapshotLocked(), true
}

func (m *Machine) playerSnapshotLocked() persist.PlayerSnapshot {
	pos := m.resumePositionMs
	if m.state == StatePlaying || m.state == StatePaused {
		pos = m.transport.PositionMs()
	}
	return persist.PlayerSnapshot{
		TrackID:    m.current.Track.ID,
		PositionMs: pos,
		Volume:     m.volume,
		Repeat:     int(m.queue.Repeat()),
		Shuffled:   m.queue.Shuffled(),
		Playing:    m.state == StatePlaying,
	}
}

// writeSnapshot writes all three snapshots. IO failures are logged only,
// never escalated.
func (m *Machine) writeSnapshot(ps persist.PlayerSnapshot) {
	qs := m.queue.State()

	if err := m.store.SaveQueue(persist.QueueSnapshot{
		Items:    qs.Items,
		Current:  qs.Current,
		Shuffled: qs.Shuffled,
		Repeat:   int(qs.Repeat),
		HasPages: qs.HasPages,
	}); err != nil {
		zlog.Warn().Msgf("engine: queue snapshot write failed: %v", err)
	}
	if err := m.store.SaveAutomix(persist.AutomixSnapshot{Items: qs.Automix}); err != nil {
		zlog.Warn().Msgf("engine: automix snapshot write failed: %v", err)
	}
	if err := m.store.SavePlayer(ps); err != nil {
		zlog.Warn().Msgf("engine: player snapshot write failed: %v", err)
	}
}

func (m *Machine) persistenceEnabled() bool {
	if m.settings == nil {
		return true
	}
	return settings.GetBool(m.settings, settings.KeyPersistentQueue, true)
}
