package memory

import (
	"context"
	"sync"
)

// IndexStore is an in-memory implementation of recovery.IndexStore.
type IndexStore struct {
	mu       sync.Mutex
	counters map[string]int
	rounds   map[string]int // userKey + "\x00" + roundID -> index
}

func NewIndexStore() *IndexStore {
	return &IndexStore{
		counters: make(map[string]int),
		rounds:   make(map[string]int),
	}
}

func (s *IndexStore) Next(_ context.Context, userKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[userKey]++
	return s.counters[userKey], nil
}

func (s *IndexStore) LookupRound(_ context.Context, userKey, roundID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.rounds[roundKey(userKey, roundID)]
	return idx, ok, nil
}

func (s *IndexStore) RecordRound(_ context.Context, userKey, roundID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[roundKey(userKey, roundID)] = index
	return nil
}

func roundKey(userKey, roundID string) string {
	return userKey + "\x00" + roundID
}
