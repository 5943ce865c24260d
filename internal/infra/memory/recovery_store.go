package memory

import (
	"context"
	"sync"

	"smartmath-client/internal/domain"
)

// RecoveryStore is an in-memory implementation of recovery.Store. State does
// not survive a restart; use the redis store when resumption across restarts
// is required.
type RecoveryStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.RecoverySnapshot
	codes     map[string]string
}

func NewRecoveryStore() *RecoveryStore {
	return &RecoveryStore{
		snapshots: make(map[string]domain.RecoverySnapshot),
		codes:     make(map[string]string),
	}
}

func (s *RecoveryStore) SaveSnapshot(_ context.Context, snap domain.RecoverySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.GameID] = snap
	return nil
}

func (s *RecoveryStore) LoadSnapshot(_ context.Context, gameID string) (domain.RecoverySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[gameID]
	if !ok {
		return domain.RecoverySnapshot{}, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *RecoveryStore) ClearSnapshot(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, gameID)
	return nil
}

func (s *RecoveryStore) SaveJoinedCode(_ context.Context, userKey, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[userKey] = code
	return nil
}

func (s *RecoveryStore) LoadJoinedCode(_ context.Context, userKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codes[userKey], nil
}

func (s *RecoveryStore) ClearJoinedCode(_ context.Context, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, userKey)
	return nil
}
