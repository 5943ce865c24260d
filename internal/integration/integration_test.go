package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"smartmath-client/internal/archive"
	"smartmath-client/internal/domain"
	"smartmath-client/internal/game"
	pgarchive "smartmath-client/internal/infra/postgres"
	pgmigrations "smartmath-client/internal/infra/postgres/migrations"
	infraredis "smartmath-client/internal/infra/redis"
)

type recordingConn struct {
	events []string
}

func (c *recordingConn) Emit(event string, payload any) error {
	c.events = append(c.events, event)
	return nil
}

func TestRoundLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := infraredis.NewRecoveryStore(redisClient, 5*time.Minute)
	indexes := infraredis.NewIndexStore(redisClient)
	writer := pgarchive.NewRoundArchive(pool)

	conn := &recordingConn{}
	session := game.NewSession(game.SessionConfig{
		GameID:        "game-7",
		UserKey:       "user-42",
		RoundsPerGame: 5,
		Conn:          conn,
		Store:         store,
		Indexes:       game.NewRoundIndexAllocator("user-42", indexes),
		Listener:      archive.NewRecorder("game-7", "user-42", writer),
	})

	round := domain.RoundPayload{
		GameID:  "game-7",
		TopicID: "fractions",
		RoundID: "r-100",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "1/2 + 1/2 = ?", Type: domain.QuestionNumeric, Answer: &domain.AnswerKey{CorrectAnswer: "1"}},
			{ID: "q2", Prompt: "3/4 - 1/4 = ?", Type: domain.QuestionNumeric, Answer: &domain.AnswerKey{CorrectAnswer: "0.5"}},
		},
	}
	if err := session.HandleQuestions(ctx, round); err != nil {
		t.Fatalf("handle questions: %v", err)
	}

	for _, answer := range []string{"1", "0.5"} {
		if correct, err := session.Attempt(answer); err != nil || !correct {
			t.Fatalf("attempt %q: correct=%v err=%v", answer, correct, err)
		}
	}
	if !session.RoundComplete() {
		t.Fatal("expected round to be complete")
	}

	// The finalize aggregate must have landed in the archive.
	rounds, err := writer.RoundsForUser(ctx, "game-7", "user-42")
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("expected 1 archived round, got %d", len(rounds))
	}
	got := rounds[0]
	if got.RoundID != "r-100" || got.RoundIndex != 1 || got.Accuracy != 1.0 || got.XP != 100 {
		t.Fatalf("unexpected archived round %+v", got)
	}

	// A second client process resumes the same round from the redis snapshot
	// and allocates the same per-user index for it.
	session2 := game.NewSession(game.SessionConfig{
		GameID:  "game-7",
		UserKey: "user-42",
		Conn:    &recordingConn{},
		Store:   store,
		Indexes: game.NewRoundIndexAllocator("user-42", indexes),
	})
	if err := session2.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if q, ok := session2.CurrentQuestion(); !ok || q.ID != "q1" {
		t.Fatalf("expected resume to restore q1, got %v ok=%v", q, ok)
	}

	idx, err := game.NewRoundIndexAllocator("user-42", indexes).Allocate(ctx, "r-100")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected round index 1 after resume, got %d", idx)
	}

	// Leaving clears the snapshot; there is nothing left to resume.
	session2.Leave(ctx)
	session3 := game.NewSession(game.SessionConfig{
		GameID:  "game-7",
		UserKey: "user-42",
		Conn:    &recordingConn{},
		Store:   store,
	})
	if err := session3.Resume(ctx); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound after leave, got %v", err)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "smartmath", "POSTGRES_PASSWORD": "smartpass", "POSTGRES_DB": "smartdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://smartmath:smartpass@%s:%s/smartdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
