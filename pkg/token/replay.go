package token

import (
	"sync"
	"time"
)

// ReplayStore is an atomic check-and-insert set of consumed token IDs.
// Seen returns true iff the id was already recorded and is still unexpired;
// otherwise it records the id and returns false.
type ReplayStore interface {
	Seen(tokenID string, expiresAtMillis int64) bool
}

// MemoryReplayStore keeps consumed token IDs in-process. Expired entries are
// purged on every check, so an entry is never evicted inside its TTL.
type MemoryReplayStore struct {
	mu   sync.Mutex
	seen map[string]int64
	now  func() time.Time
}

// NewMemoryReplayStore creates an empty in-memory replay store.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{
		seen: make(map[string]int64),
		now:  time.Now,
	}
}

// Seen implements ReplayStore.
func (s *MemoryReplayStore) Seen(tokenID string, expiresAtMillis int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMillis := s.now().UTC().UnixMilli()
	for id, exp := range s.seen {
		if exp <= nowMillis {
			delete(s.seen, id)
		}
	}

	if _, ok := s.seen[tokenID]; ok {
		return true
	}
	s.seen[tokenID] = expiresAtMillis
	return false
}
