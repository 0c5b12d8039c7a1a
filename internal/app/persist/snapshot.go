// Package persist serializes queue, automix and player snapshots into a
// versioned binary format over durable blob storage.
package persist

import (
	"resono/internal/domain/track"
)

// QueueSnapshot is the flat persisted form of the play queue.
type QueueSnapshot struct {
	Items    []track.QueueItem
	Current  int
	Shuffled bool
	Repeat   int
	HasPages bool
}

// AutomixSnapshot is the persisted automix buffer.
type AutomixSnapshot struct {
	Items []track.QueueItem
}

// PlayerSnapshot is the persisted transport state.
type PlayerSnapshot struct {
	TrackID    track.ID
	PositionMs int64
	Volume     float64
	Repeat     int
	Shuffled   bool
	Playing    bool
}
