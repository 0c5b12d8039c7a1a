package catalog

import (
	"context"
	"sync"

	"resono/internal/domain/stream"
	"resono/internal/domain/track"
)

// MemoryMetadataStore is an in-process metadata store. Records live for the
// process lifetime; the durable snapshots carry everything needed across
// restarts.
type MemoryMetadataStore struct {
	mu      sync.RWMutex
	meta    map[track.ID]track.Metadata
	formats map[track.ID]stream.FormatRecord
}

// NewMemoryMetadataStore creates an empty metadata store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		meta:    make(map[track.ID]track.Metadata),
		formats: make(map[track.ID]stream.FormatRecord),
	}
}

// Get implements resolver.MetadataStore.
func (s *MemoryMetadataStore) Get(_ context.Context, id track.ID) (*track.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.meta[id]
	if !ok {
		return nil, nil
	}
	out := md
	return &out, nil
}

// Upsert implements resolver.MetadataStore.
func (s *MemoryMetadataStore) Upsert(_ context.Context, md track.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[md.ID] = md
	return nil
}

// UpsertFormat implements resolver.MetadataStore.
func (s *MemoryMetadataStore) UpsertFormat(_ context.Context, fr stream.FormatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formats[fr.TrackID] = fr
	return nil
}

// Format returns the stored format record for a track.
func (s *MemoryMetadataStore) Format(id track.ID) (stream.FormatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fr, ok := s.formats[id]
	return fr, ok
}
