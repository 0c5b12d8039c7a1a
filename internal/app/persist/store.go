package persist

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"resono/internal/infra/blob"
)

// Blob names the store reads and writes.
const (
	queueBlob   = "queue.snapshot"
	automixBlob = "automix.snapshot"
	playerBlob  = "player.snapshot"
)

// Store persists snapshots through a blob backend.
type Store struct {
	blobs blob.Store
}

// NewStore returns a snapshot store over the given blob backend.
func NewStore(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// SaveQueue persists the queue snapshot.
func (s *Store) SaveQueue(snap QueueSnapshot) error {
	if err := s.blobs.Write(queueBlob, EncodeQueue(snap)); err != nil {
		return errors.Wrap(err, "save queue snapshot")
	}
	return nil
}

// LoadQueue reads the queue snapshot. Returns blob.ErrNotFound when no
// snapshot has been written yet.
func (s *Store) LoadQueue() (QueueSnapshot, error) {
	data, err := s.blobs.Read(queueBlob)
	if err != nil {
		return QueueSnapshot{}, errors.Wrap(err, "load queue snapshot")
	}
	return DecodeQueue(data)
}

// SaveAutomix persists the automix buffer snapshot.
func (s *Store) SaveAutomix(snap AutomixSnapshot) error {
	if err := s.blobs.Write(automixBlob, EncodeAutomix(snap)); err != nil {
		return errors.Wrap(err, "save automix snapshot")
	}
	return nil
}

// LoadAutomix reads the automix buffer snapshot.
func (s *Store) LoadAutomix() (AutomixSnapshot, error) {
	data, err := s.blobs.Read(automixBlob)
	if err != nil {
		return AutomixSnapshot{}, errors.Wrap(err, "load automix snapshot")
	}
	return DecodeAutomix(data)
}

// SavePlayer persists the transport state snapshot.
func (s *Store) SavePlayer(snap PlayerSnapshot) error {
	if err := s.blobs.Write(playerBlob, EncodePlayer(snap)); err != nil {
		return errors.Wrap(err, "save player snapshot")
	}
	return nil
}

// LoadPlayer reads the transport state snapshot.
func (s *Store) LoadPlayer() (PlayerSnapshot, error) {
	data, err := s.blobs.Read(playerBlob)
	if err != nil {
		return PlayerSnapshot{}, errors.Wrap(err, "load player snapshot")
	}
	return DecodePlayer(data)
}

// Clear removes all persisted snapshots. Used when the persistent queue
// setting is switched off.
func (s *Store) Clear() {
	for _, name := range []string{queueBlob, automixBlob, playerBlob} {
		if err := s.blobs.Delete(name); err != nil {
			zlog.Warn().Err(err).Str("blob", name).Msg("failed to delete snapshot")
		}
	}
}
