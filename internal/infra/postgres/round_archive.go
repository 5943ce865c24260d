package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"smartmath-client/internal/domain"
)

// RoundArchive persists per-round aggregates to Postgres.
type RoundArchive struct {
	pool *pgxpool.Pool
}

func NewRoundArchive(pool *pgxpool.Pool) *RoundArchive {
	return &RoundArchive{pool: pool}
}

// SaveRound inserts one finished round. Re-inserting the same round for the
// same user overwrites the previous row, so replays after a reconnect do not
// duplicate history.
func (a *RoundArchive) SaveRound(ctx context.Context, gameID, userKey string, res domain.RoundResult) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO round_archive
			(game_id, user_key, round_id, round_index, ended_at, accuracy, avg_time_secs, hints, xp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_key, round_id) DO UPDATE SET
			round_index = EXCLUDED.round_index,
			ended_at = EXCLUDED.ended_at,
			accuracy = EXCLUDED.accuracy,
			avg_time_secs = EXCLUDED.avg_time_secs,
			hints = EXCLUDED.hints,
			xp = EXCLUDED.xp`,
		gameID, userKey, res.RoundID, res.RoundIndex, res.EndTS,
		res.Accuracy, res.AvgTimeSecs, res.Hints, res.XP)
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

// RoundsForUser returns the archived rounds of one user in one game, oldest
// first.
func (a *RoundArchive) RoundsForUser(ctx context.Context, gameID, userKey string) ([]domain.RoundResult, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT round_id, round_index, ended_at, accuracy, avg_time_secs, hints, xp
		FROM round_archive
		WHERE game_id=$1 AND user_key=$2
		ORDER BY round_index`,
		gameID, userKey)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.RoundResult
	for rows.Next() {
		var r domain.RoundResult
		if err := rows.Scan(&r.RoundID, &r.RoundIndex, &r.EndTS, &r.Accuracy, &r.AvgTimeSecs, &r.Hints, &r.XP); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
