// Package blob provides byte-oriented durable storage for named blobs.
package blob

import (
	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when a named blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the persistence abstraction for named byte blobs.
// Implementations can be file-based or remote; callers do not need to know
// which one is in use.
type Store interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Delete(name string) error
}

// MemoryStore is an in-memory implementation of Store, used by tests.
type MemoryStore struct {
	blobs map[string][]byte
}

// NewMemoryStore returns a new empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Read implements Store.Read.
func (s *MemoryStore) Read(name string) ([]byte, error) {
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write implements Store.Write.
func (s *MemoryStore) Write(name string, data []byte) error {
	out := make([]byte, len(data))
	copy(out, data)
	s.blobs[name] = out
	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(name string) error {
	delete(s.blobs, name)
	return nil
}
