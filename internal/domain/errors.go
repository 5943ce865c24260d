package domain

import "errors"

var (
	// ErrConnectivity is returned when the transport could not be established
	// within the dial timeout. Retrying is the caller's decision.
	ErrConnectivity = errors.New("could not reach game server")
	// ErrNotConnected is returned when an emit is attempted without a live connection.
	ErrNotConnected = errors.New("not connected to game server")
	// ErrStaleRound marks a redelivered round_id; callers drop it silently.
	ErrStaleRound = errors.New("stale round delivery")
	// ErrMissingRoundID is returned when a batch arrives without a round_id,
	// which blocks submission for that round.
	ErrMissingRoundID = errors.New("round_id missing from batch")
	// ErrNoActiveRound is returned for attempts made before a round was adopted.
	ErrNoActiveRound = errors.New("no active round")
	// ErrAlreadySubmitted is returned for attempts on a finalized question.
	ErrAlreadySubmitted = errors.New("question already submitted")
	// ErrHintUnavailable is returned when hint gating conditions are not met.
	ErrHintUnavailable = errors.New("hint not available")
	// ErrRoundInProgress is returned when feedback is submitted before the
	// round's last question was finalized.
	ErrRoundInProgress = errors.New("round still in progress")
	// ErrGameFinished is returned when the final scheduled round is done and
	// no further batch may be requested.
	ErrGameFinished = errors.New("game finished")
	// ErrNotEligible is returned for overrides on students without a pending
	// recommendation.
	ErrNotEligible = errors.New("student not eligible for override")
	// ErrOverridePending is returned while an override for the same student is
	// still in flight.
	ErrOverridePending = errors.New("override already in flight")
	// ErrSnapshotNotFound indicates no recovery snapshot exists for the game.
	ErrSnapshotNotFound = errors.New("recovery snapshot not found")
)

// ProtocolError wraps an error event emitted by the server. It is surfaced to
// the user and never corrupts local ledger state.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return "server error"
	}
	return e.Message
}
