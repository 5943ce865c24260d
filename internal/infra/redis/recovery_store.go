package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smartmath-client/internal/domain"
)

// RecoveryStore keeps resumption data in Redis so a client can rejoin an
// in-progress round after a restart. Snapshots and joined codes expire with
// the configured TTL; round-index counters are kept without expiry because
// the index must stay monotonic across sessions.
type RecoveryStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRecoveryStore(client *redis.Client, ttl time.Duration) *RecoveryStore {
	return &RecoveryStore{client: client, ttl: ttl}
}

func (s *RecoveryStore) SaveSnapshot(ctx context.Context, snap domain.RecoverySnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.GameID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RecoveryStore) LoadSnapshot(ctx context.Context, gameID string) (domain.RecoverySnapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(gameID)).Bytes()
	if err == redis.Nil {
		return domain.RecoverySnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.RecoverySnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap domain.RecoverySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.RecoverySnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (s *RecoveryStore) ClearSnapshot(ctx context.Context, gameID string) error {
	return s.client.Del(ctx, snapshotKey(gameID)).Err()
}

func (s *RecoveryStore) SaveJoinedCode(ctx context.Context, userKey, code string) error {
	return s.client.Set(ctx, joinedCodeKey(userKey), code, s.ttl).Err()
}

func (s *RecoveryStore) LoadJoinedCode(ctx context.Context, userKey string) (string, error) {
	code, err := s.client.Get(ctx, joinedCodeKey(userKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load joined code: %w", err)
	}
	return code, nil
}

func (s *RecoveryStore) ClearJoinedCode(ctx context.Context, userKey string) error {
	return s.client.Del(ctx, joinedCodeKey(userKey)).Err()
}

func snapshotKey(gameID string) string {
	return "smartmath:snapshot:" + gameID
}

func joinedCodeKey(userKey string) string {
	return "smartmath:joined:" + userKey
}
