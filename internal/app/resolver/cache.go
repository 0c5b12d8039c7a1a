package resolver

import (
	"sync"
	"time"

	"resono/internal/domain/stream"
	"resono/internal/domain/track"
)

// streamCache maps track IDs to their last resolved descriptor.
// An entry is usable only while now < ExpiresAt; expired entries are never
// returned, only replaced.
type streamCache struct {
	mu      sync.RWMutex
	entries map[track.ID]stream.Descriptor
}

func newStreamCache() *streamCache {
	return &streamCache{entries: make(map[track.ID]stream.Descriptor)}
}

// get returns the cached descriptor if it has not expired.
func (c *streamCache) get(id track.ID, now time.Time) (stream.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.entries[id]
	if !ok || d.Expired(now) {
		return stream.Descriptor{}, false
	}
	return d, true
}

// put stores a descriptor. Last writer wins by expiry timestamp, not call
// order: a resolution that started before an invalidation cannot clobber a
// fresher entry.
func (c *streamCache) put(d stream.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[d.TrackID]; ok && existing.ExpiresAt.After(d.ExpiresAt) {
		return
	}
	c.entries[d.TrackID] = d
}

// invalidate drops the cached entry for a track.
func (c *streamCache) invalidate(id track.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
