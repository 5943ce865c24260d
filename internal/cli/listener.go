package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"smartmath-client/internal/domain"
	"smartmath-client/internal/game"
)

// playListener renders session events for the terminal.
type playListener struct {
	game.NopListener
	out io.Writer
}

func (l *playListener) QuestionShown(q domain.Question, index, total int) {
	fmt.Fprintf(l.out, "\nquestion %d/%d [%s]: %s\n> ", index+1, total, q.Type, q.Prompt)
}

func (l *playListener) XPBurst(b game.Burst) {
	fmt.Fprintf(l.out, "+%d xp\n", b.Amount)
}

func (l *playListener) RoundCompleted(res domain.RoundResult) {
	fmt.Fprintf(l.out, "\nround %d done: accuracy %.0f%%, avg %.1fs, hints %d, xp %d\n",
		res.RoundIndex, res.Accuracy*100, res.AvgTimeSecs, res.Hints, res.XP)
	fmt.Fprintln(l.out, "how was it? type: feedback hard | feedback ok | feedback easy")
}

func (l *playListener) SaveStatus(questionID string, status domain.SaveStatus) {
	if status == domain.SaveError {
		fmt.Fprintln(l.out, "warning: the server could not save your last answer")
	}
}

func (l *playListener) GameOver() {
	fmt.Fprintln(l.out, "\nthat was the last round!")
}

func (l *playListener) GameClosed() {
	fmt.Fprintln(l.out, "\nthe teacher ended the game")
}

func (l *playListener) ErrorSurfaced(err error) {
	fmt.Fprintf(l.out, "server error: %v\n", err)
}

// fanListener forwards every notification to each of its members.
type fanListener []game.Listener

func (f fanListener) QuestionShown(q domain.Question, index, total int) {
	for _, l := range f {
		l.QuestionShown(q, index, total)
	}
}

func (f fanListener) AttemptRejected(q domain.Question) {
	for _, l := range f {
		l.AttemptRejected(q)
	}
}

func (f fanListener) XPBurst(b game.Burst) {
	for _, l := range f {
		l.XPBurst(b)
	}
}

func (f fanListener) XPBurstExpired(id uuid.UUID) {
	for _, l := range f {
		l.XPBurstExpired(id)
	}
}

func (f fanListener) SaveStatus(questionID string, status domain.SaveStatus) {
	for _, l := range f {
		l.SaveStatus(questionID, status)
	}
}

func (f fanListener) RoundCompleted(res domain.RoundResult) {
	for _, l := range f {
		l.RoundCompleted(res)
	}
}

func (f fanListener) GameOver() {
	for _, l := range f {
		l.GameOver()
	}
}

func (f fanListener) GameClosed() {
	for _, l := range f {
		l.GameClosed()
	}
}

func (f fanListener) ErrorSurfaced(err error) {
	for _, l := range f {
		l.ErrorSurfaced(err)
	}
}
