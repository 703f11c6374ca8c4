// Package store holds the authoritative-for-now copy of match state. Only
// the commit manager and the reconciler write to it, and both go through
// the single Set assignment point, so the latest write wins by
// construction.
package store

import (
	"sync"
	"time"

	"dominoclient/internal/domain"
)

// Source tags who produced the current snapshot.
type Source string

const (
	// SourceLocal marks an optimistic apply by the commit manager.
	SourceLocal Source = "local"
	// SourceServer marks an adopted authoritative snapshot.
	SourceServer Source = "server"
)

// Store is the local state store. Snapshots are deep-copied on the way in
// and out; callers never share backing arrays with the stored state.
type Store struct {
	mu        sync.RWMutex
	snap      domain.Snapshot
	hasSnap   bool
	version   int64
	source    Source
	updatedAt time.Time
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{now: time.Now}
}

// Set replaces the held snapshot and returns the new version. The version
// increases monotonically on every write regardless of source.
func (s *Store) Set(snap domain.Snapshot, src Source) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	s.hasSnap = true
	s.version++
	s.source = src
	s.updatedAt = s.now()
	return s.version
}

// Snapshot returns a deep copy of the held snapshot. The second result is
// false before the first Set.
func (s *Store) Snapshot() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSnap {
		return domain.Snapshot{}, false
	}
	return s.snap.Clone(), true
}

// Version returns the current write counter.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Source returns who produced the current snapshot.
func (s *Store) Source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// UpdatedAt returns when the current snapshot was written.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
