// Package protocol defines the wire contract of the live game channel: event
// names and their JSON payloads, wrapped in a type/payload envelope.
package protocol

import (
	"encoding/json"
	"fmt"

	"smartmath-client/internal/domain"
)

// Client -> server events.
const (
	EventJoinGame      = "join_game"
	EventSubmitAnswer  = "submit_answer"
	EventFinishRound   = "finish_round"
	EventFetchNewBatch = "fetch_new_batch"
	EventTeacherJoin   = "teacher_join"
	EventEndGame       = "end_game"
	EventOverride      = "override"
)

// Server -> client events.
const (
	EventJoinedGame       = "joined_game"
	EventUpdatePlayers    = "update_players"
	EventReceiveQuestions = "receive_questions"
	EventGameStarted      = "game_started"
	EventGameClosed       = "game_closed"
	EventFinishRoundError = "finish_round_error"
	EventAnswerSaved      = "answer_saved"
	EventAnswerError      = "answer_error"
	EventError            = "error"
)

// Envelope frames every message on the channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds an envelope around a payload.
func Encode(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Type: event, Payload: raw}, nil
}

// JoinGame asks the server to add the student to a lobby by game code.
type JoinGame struct {
	Code string `json:"code"`
}

// SubmitAnswer records one finalized question.
type SubmitAnswer struct {
	RoundID       string `json:"round_id"`
	QuestionID    string `json:"question_id"`
	IsCorrect     bool   `json:"is_correct"`
	TimeSpentSecs int    `json:"time_spent_secs"`
	HintsUsed     int    `json:"hints_used"`
	NumAttempts   int    `json:"num_attempts"`
}

// FetchNewBatch requests the next batch for a topic, carrying the student's
// difficulty rating for the round just finished.
type FetchNewBatch struct {
	RoomID   string          `json:"room_id"`
	TopicID  string          `json:"topic_id"`
	Feedback domain.Feedback `json:"feedback"`
}

// TeacherJoin subscribes a teacher to a game's roster updates.
type TeacherJoin struct {
	GameID string `json:"game_id"`
	Mode   string `json:"mode"`
}

// EndGame closes the session for every connected player.
type EndGame struct {
	GameID string `json:"game_id"`
}

// Override requests a manual level adjustment for a student.
type Override struct {
	StudentUsername string                   `json:"student_username"`
	Action          domain.OverrideDirection `json:"action"`
}

// UpdatePlayers is the roster broadcast. Players carries bare usernames for
// older servers; PlayersDetailed is the ranked view when available.
type UpdatePlayers struct {
	Players         []string             `json:"players"`
	PlayersDetailed []domain.RosterEntry `json:"players_detailed"`
}

// AnswerAck acknowledges a persisted submission.
type AnswerAck struct {
	QuestionID string `json:"question_id"`
}

// ErrorMessage is the generic server error payload.
type ErrorMessage struct {
	Message string `json:"message"`
}
