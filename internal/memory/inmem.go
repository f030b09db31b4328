package memory

import (
	"context"
	"sync"
)

// InMemoryStore is a Store backed by process memory. Suitable for
// tests and single-instance deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	turns     map[string][]Turn
	summaries map[string]Summary
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:     make(map[string][]Turn),
		summaries: make(map[string]Summary),
	}
}

// AppendTurn implements Store.
func (s *InMemoryStore) AppendTurn(ctx context.Context, conversationID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return nil
}

// RecentTurns implements Store.
func (s *InMemoryStore) RecentTurns(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[conversationID]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	window := all[len(all)-n:]

	out := make([]Turn, len(window))
	copy(out, window)
	return out, nil
}

// AllTurns implements Store.
func (s *InMemoryStore) AllTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[conversationID]
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

// TurnCount implements Store.
func (s *InMemoryStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[conversationID]), nil
}

// Summary implements Store.
func (s *InMemoryStore) Summary(ctx context.Context, conversationID string) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[conversationID], nil
}

// SetSummary implements Store.
func (s *InMemoryStore) SetSummary(ctx context.Context, conversationID string, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[conversationID] = sum
	return nil
}

var _ Store = (*InMemoryStore)(nil)
