// Package preview holds locally-addressable preview blobs for accepted files
// so the console can render them before (and while) the remote copy exists.
package preview

import (
	"sync"

	"github.com/chemora/batchup/tool"
)

// Handle is a reference to one acquired preview blob. Handles are exclusively
// owned by the item they were acquired for and released exactly once.
type Handle struct {
	ID string
}

type blob struct {
	name string
	kind string
	data []byte
}

// Store is the per-session preview blob store.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]blob

	acquired int
	released int
}

func NewStore() *Store {
	return &Store{blobs: make(map[string]blob)}
}

// Acquire registers the payload and returns a fresh handle. Calling it twice
// for the same file yields two independent handles; callers must release
// exactly the handles they created.
func (s *Store) Acquire(name, kind string, data []byte) Handle {
	h := Handle{ID: tool.GenerateRandomUUID()}
	s.mu.Lock()
	s.blobs[h.ID] = blob{name: name, kind: kind, data: data}
	s.acquired++
	s.mu.Unlock()
	return h
}

// Release drops the blob. Releasing an already-released handle is a no-op,
// logged at debug level so double-release bugs surface during testing.
func (s *Store) Release(h Handle) {
	if h.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[h.ID]; !ok {
		tool.DefaultLogger.Debugf("preview handle %s released twice", h.ID)
		return
	}
	delete(s.blobs, h.ID)
	s.released++
}

// Get returns the blob payload for serving. The bool is false when the
// handle was never acquired or already released.
func (s *Store) Get(id string) (name, kind string, data []byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return "", "", nil, false
	}
	return b.name, b.kind, b.data, true
}

// Live returns the number of handles acquired but not yet released.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Stats reports lifetime acquire/release counters. Tests use it to assert
// that every acquire is paired with exactly one release by teardown.
func (s *Store) Stats() (acquired, released int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acquired, s.released
}

// ReleaseAll drops every live blob. Called on session teardown.
func (s *Store) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.blobs {
		delete(s.blobs, id)
		s.released++
	}
}
