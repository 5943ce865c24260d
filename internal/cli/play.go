package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"smartmath-client/internal/archive"
	"smartmath-client/internal/auth"
	"smartmath-client/internal/config"
	"smartmath-client/internal/domain"
	"smartmath-client/internal/game"
	"smartmath-client/internal/infra/memory"
	pgarchive "smartmath-client/internal/infra/postgres"
	redisstore "smartmath-client/internal/infra/redis"
	"smartmath-client/internal/protocol"
	"smartmath-client/internal/realtime"
	"smartmath-client/internal/recovery"
	"smartmath-client/internal/stats"
)

// NewPlayCmd builds the student subcommand: join a game by code and answer
// questions from the terminal.
func NewPlayCmd(configPath, wsURL, token *string) *cobra.Command {
	var gameID, code string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a game as a student and play from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, *wsURL, *token, gameID, code)
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&code, "code", "", "game code (defaults to the stored code, then the game id)")
	return cmd
}

func runPlay(ctx context.Context, configPath, wsFlag, token, gameID, code string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	wsAddr := wsFlag
	if wsAddr == "" {
		wsAddr = cfg.Server.WSURL
	}
	if wsAddr == "" {
		return fmt.Errorf("websocket url not configured")
	}
	if gameID == "" {
		return fmt.Errorf("--game is required")
	}

	userKey, err := auth.UserKey(token)
	if err != nil {
		return err
	}

	store, indexStore, cleanup := buildStores(cfg)
	defer cleanup()

	manager := realtime.NewManager(wsAddr, config.Duration(cfg.Server.DialTimeout, 10*time.Second))
	conn, err := manager.Connect(ctx, token)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	listeners := []game.Listener{&playListener{out: os.Stdout}}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		listeners = append(listeners,
			archive.NewRecorder(gameID, userKey, pgarchive.NewRoundArchive(pool)))
	}

	var fetcher game.XPFetcher
	if cfg.Server.APIURL != "" {
		fetcher = stats.NewClient(cfg.Server.APIURL, token, nil)
	}

	session := game.NewSession(game.SessionConfig{
		GameID:        gameID,
		UserKey:       userKey,
		RoundsPerGame: cfg.RoundsPerGame(),
		Conn:          conn,
		Store:         store,
		Indexes:       game.NewRoundIndexAllocator(userKey, indexStore),
		Stats:         fetcher,
		Listener:      fanListener(listeners),
		Delays: game.Delays{
			Advance:   config.Duration(cfg.Game.AdvanceDelay, 1500*time.Millisecond),
			XPRefresh: config.Duration(cfg.Game.XPRefreshDelay, 1200*time.Millisecond),
			BurstTTL:  config.Duration(cfg.Game.BurstTTL, 900*time.Millisecond),
		},
	})
	session.Attach(conn)
	conn.On(protocol.EventJoinedGame, func(json.RawMessage) {
		fmt.Println("join acknowledged, waiting in the lobby")
	})
	conn.On(protocol.EventGameStarted, func(json.RawMessage) {
		fmt.Println("game started!")
	})

	// A stored snapshot means a round was in flight when we last exited;
	// resume it locally instead of waiting for a redelivery.
	if err := session.Resume(ctx); err == nil {
		log.Printf("resumed in-progress round")
	} else if !errors.Is(err, domain.ErrSnapshotNotFound) {
		log.Printf("resume: %v", err)
	}

	if code == "" {
		code, _ = store.LoadJoinedCode(ctx, userKey)
	}
	if code == "" {
		code = gameID
	}
	if err := session.Join(ctx, code); err != nil {
		return err
	}
	fmt.Printf("joined game %s, waiting for questions...\n", code)

	return playLoop(ctx, conn, session)
}

// playLoop reads answers and commands from stdin until the game ends or the
// connection drops.
func playLoop(ctx context.Context, conn *realtime.Conn, session *game.Session) error {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var lastAnswer string
	for {
		select {
		case <-ctx.Done():
			session.Leave(context.Background())
			return ctx.Err()
		case <-conn.Done():
			return domain.ErrConnectivity
		case line, ok := <-lines:
			if !ok {
				session.Leave(context.Background())
				return nil
			}
			if done := handleInput(session, strings.TrimSpace(line), &lastAnswer); done {
				session.Leave(context.Background())
				return nil
			}
			if session.GameOver() {
				fmt.Printf("game over, total xp %d\n", session.XP())
				session.Leave(context.Background())
				return nil
			}
		}
	}
}

func handleInput(session *game.Session, line string, lastAnswer *string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "quit" || line == "exit":
		return true
	case line == "hint":
		q, err := session.OpenHint()
		if err != nil {
			fmt.Printf("hint unavailable: %v\n", err)
			return false
		}
		switch game.NumericHint(q, *lastAnswer) {
		case game.HintTryHigher:
			fmt.Println("hint: try a larger number")
		case game.HintTryLower:
			fmt.Println("hint: try a smaller number")
		default:
			fmt.Println("hint: check your arithmetic and try again")
		}
		return false
	case strings.HasPrefix(line, "feedback "):
		rating := domain.Feedback(strings.TrimPrefix(line, "feedback "))
		if err := session.SubmitFeedback(rating); err != nil {
			if errors.Is(err, domain.ErrGameFinished) {
				return false
			}
			fmt.Printf("feedback: %v\n", err)
		}
		return false
	default:
		*lastAnswer = line
		correct, err := session.Attempt(line)
		if err != nil {
			fmt.Printf("answer: %v\n", err)
			return false
		}
		if !correct {
			fmt.Println("not quite, try again (type 'hint' to open the hint)")
		}
		return false
	}
}

// buildStores selects redis-backed recovery state when configured, falling
// back to process-local stores.
func buildStores(cfg config.Config) (recovery.Store, recovery.IndexStore, func()) {
	if cfg.Redis.Addr == "" {
		return memory.NewRecoveryStore(), memory.NewIndexStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ttl := config.Duration(cfg.Redis.TTL, 10*time.Minute)
	return redisstore.NewRecoveryStore(client, ttl),
		redisstore.NewIndexStore(client),
		func() { client.Close() }
}
