package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smartmath-client/internal/config"
	"smartmath-client/internal/domain"
	"smartmath-client/internal/protocol"
	"smartmath-client/internal/realtime"
	"smartmath-client/internal/roster"
	"smartmath-client/internal/stats"
)

// NewObserveCmd builds the teacher subcommand: watch the live roster and
// adjust student levels.
func NewObserveCmd(configPath, wsURL, token *string) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Watch a game's roster as the teacher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObserve(cmd.Context(), *configPath, *wsURL, *token, gameID)
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	return cmd
}

func runObserve(ctx context.Context, configPath, wsFlag, token, gameID string) error {
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

	manager := realtime.NewManager(wsAddr, config.Duration(cfg.Server.DialTimeout, 10*time.Second))
	conn, err := manager.Connect(ctx, token)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	var fetcher roster.EligibilityFetcher
	if cfg.Server.APIURL != "" {
		fetcher = stats.NewClient(cfg.Server.APIURL, token, nil)
	}

	closed := make(chan struct{})
	view := roster.New(roster.Config{
		GameID:      gameID,
		Conn:        conn,
		Eligibility: fetcher,
		Cooldown:    config.Duration(cfg.Roster.EligibilityCooldown, 15*time.Second),
		OnUpdate:    printRoster,
		OnError: func(err error) {
			fmt.Printf("server error: %v\n", err)
		},
	})
	view.Attach(conn)
	conn.On(protocol.EventGameClosed, func(json.RawMessage) {
		close(closed)
	})
	if err := view.Join(); err != nil {
		return err
	}
	fmt.Printf("observing game %s (commands: up <student>, down <student>, end, quit)\n", gameID)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return domain.ErrConnectivity
		case <-closed:
			fmt.Println("game closed")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleObserveInput(view, strings.TrimSpace(line)); done {
				return nil
			}
		}
	}
}

func handleObserveInput(view *roster.Sync, line string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "quit" || line == "exit":
		// Leaving the observer view closes the game for everyone, like the
		// teacher navigating away.
		if err := view.EndGame(); err != nil {
			fmt.Printf("end game: %v\n", err)
		}
		return true
	case line == "end":
		if err := view.EndGame(); err != nil {
			fmt.Printf("end game: %v\n", err)
			return false
		}
		return true
	case strings.HasPrefix(line, "up ") || strings.HasPrefix(line, "down "):
		direction := domain.OverrideUp
		student := strings.TrimPrefix(line, "up ")
		if strings.HasPrefix(line, "down ") {
			direction = domain.OverrideDown
			student = strings.TrimPrefix(line, "down ")
		}
		if err := view.Override(strings.TrimSpace(student), direction); err != nil {
			fmt.Printf("override: %v\n", err)
		}
		return false
	default:
		fmt.Println("commands: up <student>, down <student>, end, quit")
		return false
	}
}

func printRoster(entries []domain.RosterEntry) {
	fmt.Printf("\n%-4s %-16s %-6s %-6s %s\n", "rank", "student", "level", "xp", "override")
	for _, e := range entries {
		flag := ""
		if e.Eligible {
			flag = "eligible"
		}
		fmt.Printf("%-4d %-16s %-6d %-6d %s\n", e.Rank, e.Username, e.Level, e.XP, flag)
	}
}
