package game

import (
	"context"
	"sync"

	"smartmath-client/internal/recovery"
)

// RoundIndexAllocator assigns each round a monotonically increasing integer
// scoped to the authenticated user. The in-process map is the fast path that
// keeps repeated queries for the same round_id from incrementing twice; the
// backing IndexStore carries the counter and the round mapping across
// processes. Display/audit only, no bearing on scoring.
type RoundIndexAllocator struct {
	userKey string
	store   recovery.IndexStore

	mu    sync.Mutex
	local map[string]int
}

func NewRoundIndexAllocator(userKey string, store recovery.IndexStore) *RoundIndexAllocator {
	return &RoundIndexAllocator{
		userKey: userKey,
		store:   store,
		local:   make(map[string]int),
	}
}

// Allocate returns the index for roundID, allocating on first sight.
// Re-querying a known roundID always returns the previously allocated index.
func (a *RoundIndexAllocator) Allocate(ctx context.Context, roundID string) (int, error) {
	if roundID == "" || a.userKey == "" {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if idx, ok := a.local[roundID]; ok {
		return idx, nil
	}

	if idx, ok, err := a.store.LookupRound(ctx, a.userKey, roundID); err != nil {
		return 0, err
	} else if ok {
		a.local[roundID] = idx
		return idx, nil
	}

	idx, err := a.store.Next(ctx, a.userKey)
	if err != nil {
		return 0, err
	}
	if err := a.store.RecordRound(ctx, a.userKey, roundID, idx); err != nil {
		return 0, err
	}
	a.local[roundID] = idx
	return idx, nil
}
