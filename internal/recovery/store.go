// Package recovery defines the client-local durable state contracts: round
// snapshots for resuming after a restart, the joined-game code, and the
// per-user round-index counters.
package recovery

import (
	"context"

	"smartmath-client/internal/domain"
)

// Store persists resumption data keyed by game ID. Implementations must
// survive a process restart to be useful; the memory implementation exists
// for tests and for running without any backing store configured.
type Store interface {
	SaveSnapshot(ctx context.Context, snap domain.RecoverySnapshot) error
	LoadSnapshot(ctx context.Context, gameID string) (domain.RecoverySnapshot, error)
	ClearSnapshot(ctx context.Context, gameID string) error

	SaveJoinedCode(ctx context.Context, userKey, code string) error
	LoadJoinedCode(ctx context.Context, userKey string) (string, error)
	ClearJoinedCode(ctx context.Context, userKey string) error
}

// IndexStore maintains the durable per-user round-index counter and the
// round_id -> index mapping. Next must be atomic per user key.
type IndexStore interface {
	Next(ctx context.Context, userKey string) (int, error)
	LookupRound(ctx context.Context, userKey, roundID string) (int, bool, error)
	RecordRound(ctx context.Context, userKey, roundID string, index int) error
}
