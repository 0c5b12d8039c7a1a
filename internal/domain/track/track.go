// Package track provides the Track domain entity.
package track

import "time"

// ID is the opaque catalog identifier for a track.
type ID string

// Track represents a catalog track entity.
// Contains only information retrieved from the external catalog.
type Track struct {
	ID          ID            // Catalog track ID
	Title       string        // Track title
	Artists     []string      // Artist names
	Album       string        // Album name
	AlbumArtURL string        // Album art URL
	Duration    time.Duration // Track duration
	Explicit    bool          // Explicit content flag
	IsVideo     bool          // Track is backed by a video item
}

// Source describes where a queue item came from.
type Source string

const (
	SourceUser    Source = "USER"    // Explicitly queued by the user
	SourcePage    Source = "PAGE"    // Loaded from a queue page (playlist/album)
	SourceAutomix Source = "AUTOMIX" // Radio continuation
)

// QueueItem represents a track in the play queue.
type QueueItem struct {
	Track   Track     // Catalog track info
	Source  Source    // How the item entered the queue
	AddedAt time.Time // Time when added to queue
}

// Metadata is the subset of track info persisted by the metadata store
// collaborator.
type Metadata struct {
	ID          ID
	Title       string
	Artists     []string
	Album       string
	AlbumArtURL string
	Duration    time.Duration
}

// ToMetadata converts a track into its persistable metadata.
func (t *Track) ToMetadata() Metadata {
	return Metadata{
		ID:          t.ID,
		Title:       t.Title,
		Artists:     t.Artists,
		Album:       t.Album,
		AlbumArtURL: t.AlbumArtURL,
		Duration:    t.Duration,
	}
}
