package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"smartmath-client/internal/domain"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestRecoveryStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	store := NewRecoveryStore(client, time.Minute)

	snap := domain.RecoverySnapshot{
		GameID:  "g1",
		TopicID: "t-add",
		RoundID: "r1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "6 * 7?", Type: domain.QuestionNumeric, Answer: &domain.AnswerKey{CorrectAnswer: "42"}},
		},
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if !mr.Exists("smartmath:snapshot:g1") {
		t.Fatalf("expected snapshot key in redis")
	}

	got, err := store.LoadSnapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if got.RoundID != "r1" || got.Questions[0].Answer.CorrectAnswer != "42" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if err := store.ClearSnapshot(ctx, "g1"); err != nil {
		t.Fatalf("clear snapshot: %v", err)
	}
	if _, err := store.LoadSnapshot(ctx, "g1"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestRecoveryStoreSnapshotExpires(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	store := NewRecoveryStore(client, time.Minute)

	if err := store.SaveSnapshot(ctx, domain.RecoverySnapshot{GameID: "g1", RoundID: "r1"}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.LoadSnapshot(ctx, "g1"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected snapshot to expire, got %v", err)
	}
}

func TestRecoveryStoreJoinedCode(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	store := NewRecoveryStore(client, time.Minute)

	if err := store.SaveJoinedCode(ctx, "u1", "ABCD"); err != nil {
		t.Fatalf("save code: %v", err)
	}
	code, err := store.LoadJoinedCode(ctx, "u1")
	if err != nil || code != "ABCD" {
		t.Fatalf("expected ABCD, got %q err=%v", code, err)
	}
	if err := store.ClearJoinedCode(ctx, "u1"); err != nil {
		t.Fatalf("clear code: %v", err)
	}
	code, err = store.LoadJoinedCode(ctx, "u1")
	if err != nil || code != "" {
		t.Fatalf("expected empty code after clear, got %q err=%v", code, err)
	}
}

func TestIndexStoreCountersAndMapping(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	store := NewIndexStore(client)

	first, err := store.Next(ctx, "u1")
	if err != nil || first != 1 {
		t.Fatalf("expected 1, got %d err=%v", first, err)
	}
	second, err := store.Next(ctx, "u1")
	if err != nil || second != 2 {
		t.Fatalf("expected 2, got %d err=%v", second, err)
	}

	if err := store.RecordRound(ctx, "u1", "r1", first); err != nil {
		t.Fatalf("record: %v", err)
	}
	idx, ok, err := store.LookupRound(ctx, "u1", "r1")
	if err != nil || !ok || idx != 1 {
		t.Fatalf("expected mapping 1, got idx=%d ok=%v err=%v", idx, ok, err)
	}

	// Counters are per user.
	other, err := store.Next(ctx, "u2")
	if err != nil || other != 1 {
		t.Fatalf("expected fresh counter for u2, got %d err=%v", other, err)
	}
}
