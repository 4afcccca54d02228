package models

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/chemora/batchup/batch"
)

// DefaultSessionTTL is how long an idle session stays alive before the cache
// evicts it. Touch on every access keeps active sessions around.
var DefaultSessionTTL = 60 * time.Minute

var (
	sessionMu sync.RWMutex
	sessions  = ttlworker.NewCache[string, *batch.Session](DefaultSessionTTL)
	// sessionIDs mirrors the cache keys so the status endpoint can count
	// sessions; the ttl cache has no iteration API.
	sessionIDs = make(map[string]struct{})
)

// SetSessionTTL rebuilds the registry with a new TTL. Call before any
// session is created.
func SetSessionTTL(ttl time.Duration) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	DefaultSessionTTL = ttl
	sessions = ttlworker.NewCache[string, *batch.Session](ttl)
	sessionIDs = make(map[string]struct{})
}

// PutSession registers a new session.
func PutSession(s *batch.Session) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	sessions.Set(s.ID, s)
	sessionIDs[s.ID] = struct{}{}
}

// GetSession looks a session up, refreshing its TTL.
func GetSession(id string) (*batch.Session, bool) {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	s := sessions.Get(id)
	if s == nil {
		return nil, false
	}
	sessions.Set(id, s) // touch
	return s, true
}

// RemoveSession tears a session down and drops it from the registry.
func RemoveSession(id string) bool {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	s := sessions.Get(id)
	if s == nil {
		delete(sessionIDs, id)
		return false
	}
	s.Close()
	sessions.Delete(id)
	delete(sessionIDs, id)
	return true
}

// SessionCount reports roughly how many sessions are registered. Evicted
// entries still counted here disappear on their next lookup.
func SessionCount() int {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return len(sessionIDs)
}
