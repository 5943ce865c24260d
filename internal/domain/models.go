package domain

import "time"

// QuestionType distinguishes how an answer is evaluated.
type QuestionType string

const (
	QuestionNumeric QuestionType = "num"
	QuestionChoice  QuestionType = "mcq"
	QuestionWritten QuestionType = "wri"
)

// AnswerKey carries the expected answer when the server includes it in a batch.
type AnswerKey struct {
	CorrectAnswer string `json:"correct_answer"`
}

// Question is one entry of a served batch.
type Question struct {
	ID         string       `json:"question_id"`
	Prompt     string       `json:"question"`
	Difficulty float64      `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Answer     *AnswerKey   `json:"answer,omitempty"`
}

// RoundPayload is one server-issued batch of questions. Two deliveries with
// the same RoundID are the same round; the second one is a replay.
type RoundPayload struct {
	GameID    string     `json:"game_id"`
	TopicID   string     `json:"topic_id"`
	RoundID   string     `json:"round_id"`
	Questions []Question `json:"questions"`
}

// RecoverySnapshot is the durable record that lets a client resume an
// in-progress round after a restart without a server round trip.
type RecoverySnapshot struct {
	GameID    string     `json:"game_id"`
	TopicID   string     `json:"topic_id"`
	RoundID   string     `json:"round_id"`
	Questions []Question `json:"questions"`
}

// RoundResult is the finalize payload sent once per completed round.
type RoundResult struct {
	RoundID     string    `json:"round_id"`
	RoundIndex  int       `json:"round_index"`
	EndTS       time.Time `json:"end_ts"`
	Accuracy    float64   `json:"accuracy"`
	AvgTimeSecs float64   `json:"avg_time_secs"`
	Hints       int       `json:"hints"`
	XP          int       `json:"xp"`
}

// Feedback is the qualitative difficulty rating gating the next batch.
type Feedback string

const (
	FeedbackHarder Feedback = "hard"
	FeedbackOK     Feedback = "ok"
	FeedbackEasier Feedback = "easy"
)

// Valid reports whether the rating is one the server understands.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackHarder, FeedbackOK, FeedbackEasier:
		return true
	}
	return false
}

// OverrideDirection is a teacher-initiated level adjustment.
type OverrideDirection string

const (
	OverrideUp   OverrideDirection = "up"
	OverrideDown OverrideDirection = "down"
)

// RosterEntry is the teacher's live view of one connected student. Local code
// never mutates Level; the server re-broadcasts the roster after an override.
type RosterEntry struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	Level         int    `json:"level"`
	PreviousLevel int    `json:"previous_level"`
	XP            int    `json:"xp"`
	Rank          int    `json:"rank"`
	Eligible      bool   `json:"override_eligible"`
}

// SaveStatus tracks the server acknowledgement of a submitted answer.
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveError  SaveStatus = "error"
)
