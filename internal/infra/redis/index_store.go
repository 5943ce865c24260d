package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// IndexStore implements recovery.IndexStore on Redis. INCR gives the atomic
// per-user counter; the round mapping lives in a hash per user so re-querying
// a known round_id never increments.
type IndexStore struct {
	client *redis.Client
}

func NewIndexStore(client *redis.Client) *IndexStore {
	return &IndexStore{client: client}
}

func (s *IndexStore) Next(ctx context.Context, userKey string) (int, error) {
	n, err := s.client.Incr(ctx, counterKey(userKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("next round index: %w", err)
	}
	return int(n), nil
}

func (s *IndexStore) LookupRound(ctx context.Context, userKey, roundID string) (int, bool, error) {
	raw, err := s.client.HGet(ctx, mappingKey(userKey), roundID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup round index: %w", err)
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse round index: %w", err)
	}
	return idx, true, nil
}

func (s *IndexStore) RecordRound(ctx context.Context, userKey, roundID string, index int) error {
	if err := s.client.HSet(ctx, mappingKey(userKey), roundID, index).Err(); err != nil {
		return fmt.Errorf("record round index: %w", err)
	}
	return nil
}

func counterKey(userKey string) string {
	return "smartmath:round_counter:" + userKey
}

func mappingKey(userKey string) string {
	return "smartmath:round_index:" + userKey
}
