// Package archive sinks finished rounds into a durable store for later
// review. It is optional; sessions run the same with or without it.
package archive

import (
	"context"
	"log"
	"time"

	"smartmath-client/internal/domain"
	"smartmath-client/internal/game"
)

// Writer persists one finished round.
type Writer interface {
	SaveRound(ctx context.Context, gameID, userKey string, res domain.RoundResult) error
}

const saveTimeout = 5 * time.Second

// Recorder is a session listener that archives every completed round. Writes
// happen on the callback goroutine with a bounded timeout so a slow database
// cannot stall the play flow for long; failures are logged, not surfaced.
type Recorder struct {
	game.NopListener

	gameID  string
	userKey string
	writer  Writer
}

func NewRecorder(gameID, userKey string, w Writer) *Recorder {
	return &Recorder{gameID: gameID, userKey: userKey, writer: w}
}

func (r *Recorder) RoundCompleted(res domain.RoundResult) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.writer.SaveRound(ctx, r.gameID, r.userKey, res); err != nil {
		log.Printf("archive: save round %s: %v", res.RoundID, err)
	}
}
