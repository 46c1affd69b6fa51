package proposal

import (
	"context"
	"sync"
	"time"
)

type nonceEntry struct {
	tokenID   string
	expiresAt time.Time
}

// MemoryStore is the in-memory Store used for development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	baselines map[string]string
	proposals map[string]Proposal
	commits   map[string]Commit
	nonces    map[string]nonceEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		baselines: make(map[string]string),
		proposals: make(map[string]Proposal),
		commits:   make(map[string]Commit),
		nonces:    make(map[string]nonceEntry),
	}
}

// BaselinePromptHash implements Store.
func (s *MemoryStore) BaselinePromptHash(ctx context.Context, toolName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baselines[toolName], nil
}

// SetBaselinePromptHash implements Store.
func (s *MemoryStore) SetBaselinePromptHash(ctx context.Context, toolName, promptHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[toolName] = promptHash
	return nil
}

// SaveProposal implements Store.
func (s *MemoryStore) SaveProposal(ctx context.Context, p Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ProposalID] = p
	return nil
}

// GetProposal implements Store.
func (s *MemoryStore) GetProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveCommit implements Store.
func (s *MemoryStore) SaveCommit(ctx context.Context, c Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[c.CommitID] = c
	return nil
}

// Commits returns a copy of all recorded commits, for tests and inspection.
func (s *MemoryStore) Commits() []Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Commit, 0, len(s.commits))
	for _, c := range s.commits {
		out = append(out, c)
	}
	return out
}

// NonceSeen implements Store. Expired nonces are purged before the check so
// the map does not grow unbounded.
func (s *MemoryStore) NonceSeen(ctx context.Context, nonce, tokenID string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for key, entry := range s.nonces {
		if !entry.expiresAt.After(now) {
			delete(s.nonces, key)
		}
	}

	if _, ok := s.nonces[nonce]; ok {
		return true, nil
	}
	s.nonces[nonce] = nonceEntry{tokenID: tokenID, expiresAt: expiresAt}
	return false, nil
}
