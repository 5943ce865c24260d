package game

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartmath-client/internal/domain"
	"smartmath-client/internal/protocol"
	"smartmath-client/internal/realtime"
	"smartmath-client/internal/recovery"
)

// Emitter is the outbound half of the event channel the session needs.
type Emitter interface {
	Emit(event string, payload any) error
}

// XPFetcher reads the authoritative cumulative XP total. The client-side
// increments are an optimistic preview; the server stays the source of truth.
type XPFetcher interface {
	MyXP(ctx context.Context) (int, error)
}

// Listener receives UI-facing notifications. All callbacks run on the
// session's calling goroutine or its timers; implementations must be quick.
type Listener interface {
	QuestionShown(q domain.Question, index, total int)
	AttemptRejected(q domain.Question)
	XPBurst(b Burst)
	XPBurstExpired(id uuid.UUID)
	SaveStatus(questionID string, status domain.SaveStatus)
	RoundCompleted(result domain.RoundResult)
	GameOver()
	GameClosed()
	ErrorSurfaced(err error)
}

// NopListener implements Listener with no-ops; embed it to pick the callbacks
// you care about.
type NopListener struct{}

func (NopListener) QuestionShown(domain.Question, int, int) {}
func (NopListener) AttemptRejected(domain.Question)         {}
func (NopListener) XPBurst(Burst)                           {}
func (NopListener) XPBurstExpired(uuid.UUID)                {}
func (NopListener) SaveStatus(string, domain.SaveStatus)    {}
func (NopListener) RoundCompleted(domain.RoundResult)       {}
func (NopListener) GameOver()                               {}
func (NopListener) GameClosed()                             {}
func (NopListener) ErrorSurfaced(error)                     {}

// Delays are the fixed cosmetic intervals of the play flow. A non-positive
// delay runs the step synchronously, which tests rely on.
type Delays struct {
	Advance   time.Duration // wrong/right feedback dwell before the next question
	XPRefresh time.Duration // wait before re-fetching authoritative XP
	BurstTTL  time.Duration // reward burst display time
}

// SessionConfig wires a student session.
type SessionConfig struct {
	GameID        string
	UserKey       string
	RoundsPerGame int
	Conn          Emitter
	Store         recovery.Store
	Indexes       *RoundIndexAllocator
	Stats         XPFetcher // optional
	Listener      Listener  // optional
	Delays        Delays
	Clock         func() time.Time // optional, defaults to time.Now
}

type attemptState struct {
	attempts  int
	hints     int
	submitted bool
	lastWrong bool
	startedAt time.Time
}

// Session drives the question-answer-feedback-round lifecycle for one student
// in one game. All transitions run to completion under the session lock, which
// is what keeps the dedup and idempotency guards sufficient.
type Session struct {
	gameID        string
	userKey       string
	roundsPerGame int
	conn          Emitter
	store         recovery.Store
	indexes       *RoundIndexAllocator
	stats         XPFetcher
	listener      Listener
	delays        Delays
	now           func() time.Time

	mu          sync.Mutex
	payload     *domain.RoundPayload
	lastRoundID string
	finished    map[string]bool
	batch       int
	cursor      int
	attempt     attemptState
	ledger      Ledger
	roundXP     RoundXP
	xpTotal     int
	saveStatus  map[string]domain.SaveStatus
	bursts      map[uuid.UUID]int
	closed      bool
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Listener == nil {
		cfg.Listener = NopListener{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RoundsPerGame <= 0 {
		cfg.RoundsPerGame = 5
	}
	return &Session{
		gameID:        cfg.GameID,
		userKey:       cfg.UserKey,
		roundsPerGame: cfg.RoundsPerGame,
		conn:          cfg.Conn,
		store:         cfg.Store,
		indexes:       cfg.Indexes,
		stats:         cfg.Stats,
		listener:      cfg.Listener,
		delays:        cfg.Delays,
		now:           cfg.Clock,
		finished:      make(map[string]bool),
		saveStatus:    make(map[string]domain.SaveStatus),
		bursts:        make(map[uuid.UUID]int),
	}
}

// Attach registers the session's inbound event handlers on the connection.
func (s *Session) Attach(conn *realtime.Conn) {
	conn.On(protocol.EventReceiveQuestions, func(raw json.RawMessage) {
		var payload domain.RoundPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			log.Printf("receive_questions: bad payload: %v", err)
			return
		}
		if err := s.HandleQuestions(context.Background(), payload); err != nil && !errors.Is(err, domain.ErrStaleRound) {
			s.listener.ErrorSurfaced(err)
		}
	})
	conn.On(protocol.EventGameClosed, func(json.RawMessage) {
		s.HandleGameClosed(context.Background())
	})
	conn.On(protocol.EventFinishRoundError, func(raw json.RawMessage) {
		var msg protocol.ErrorMessage
		_ = json.Unmarshal(raw, &msg)
		s.listener.ErrorSurfaced(&domain.ProtocolError{Message: msg.Message})
	})
	conn.On(protocol.EventAnswerSaved, func(raw json.RawMessage) {
		var ack protocol.AnswerAck
		_ = json.Unmarshal(raw, &ack)
		s.HandleAnswerSaved(ack.QuestionID)
	})
	conn.On(protocol.EventAnswerError, func(json.RawMessage) {
		s.HandleAnswerError()
	})
	conn.On(protocol.EventError, func(raw json.RawMessage) {
		var msg protocol.ErrorMessage
		_ = json.Unmarshal(raw, &msg)
		s.listener.ErrorSurfaced(&domain.ProtocolError{Message: msg.Message})
	})
}

// Join asks the server to add this student to the lobby and persists the game
// code for the dashboard rejoin path.
func (s *Session) Join(ctx context.Context, code string) error {
	if err := s.conn.Emit(protocol.EventJoinGame, protocol.JoinGame{Code: code}); err != nil {
		return err
	}
	if err := s.store.SaveJoinedCode(ctx, s.userKey, code); err != nil {
		log.Printf("save joined code: %v", err)
	}
	return nil
}

// Resume restores an in-progress round from the recovery store without a
// server round trip. Returns ErrSnapshotNotFound when there is nothing to
// resume.
func (s *Session) Resume(ctx context.Context) error {
	snap, err := s.store.LoadSnapshot(ctx, s.gameID)
	if err != nil {
		return err
	}
	return s.HandleQuestions(ctx, domain.RoundPayload{
		GameID:    snap.GameID,
		TopicID:   snap.TopicID,
		RoundID:   snap.RoundID,
		Questions: snap.Questions,
	})
}

// HandleQuestions adopts a batch-delivery event. A redelivery of the
// last-adopted round_id is a replay: no state changes, ErrStaleRound returned
// so callers can drop it silently.
func (s *Session) HandleQuestions(ctx context.Context, payload domain.RoundPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if payload.GameID != "" && payload.GameID != s.gameID {
		return nil
	}
	if payload.RoundID != "" && payload.RoundID == s.lastRoundID {
		return domain.ErrStaleRound
	}

	s.lastRoundID = payload.RoundID
	if err := s.store.SaveSnapshot(ctx, domain.RecoverySnapshot{
		GameID:    s.gameID,
		TopicID:   payload.TopicID,
		RoundID:   payload.RoundID,
		Questions: payload.Questions,
	}); err != nil {
		log.Printf("save snapshot: %v", err)
	}

	s.payload = &payload
	s.cursor = 0
	s.ledger.Reset(len(payload.Questions))
	s.roundXP = RoundXP{}
	s.attempt = attemptState{startedAt: s.now()}
	s.batch++

	if payload.RoundID != "" && s.indexes != nil {
		if _, err := s.indexes.Allocate(ctx, payload.RoundID); err != nil {
			log.Printf("allocate round index: %v", err)
		}
	}

	if len(payload.Questions) > 0 {
		s.listener.QuestionShown(payload.Questions[0], 0, len(payload.Questions))
	} else if payload.RoundID != "" {
		// An empty batch is complete on arrival.
		s.finishRoundLocked()
	}
	return nil
}

// Attempt evaluates the answer for the active question. A wrong attempt
// increments the counter and surfaces a transient rejection; a correct one
// finalizes the question exactly once.
func (s *Session) Attempt(answer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.activeQuestionLocked()
	if !ok {
		return false, domain.ErrNoActiveRound
	}
	if s.attempt.submitted {
		return false, domain.ErrAlreadySubmitted
	}

	s.attempt.attempts++
	if !evaluate(q, answer) {
		s.attempt.lastWrong = true
		s.listener.AttemptRejected(q)
		return false, nil
	}
	s.attempt.lastWrong = false
	if err := s.finalizeLocked(q); err != nil {
		return true, err
	}
	return true, nil
}

// OpenHint opens the hint panel for the active question. Hints require at
// least one wrong attempt, no submission yet, and a numeric question; opening
// counts toward total_hints but is not an attempt.
func (s *Session) OpenHint() (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.activeQuestionLocked()
	if !ok {
		return domain.Question{}, domain.ErrNoActiveRound
	}
	if q.Type != domain.QuestionNumeric || s.attempt.submitted || s.attempt.attempts < 1 || !s.attempt.lastWrong {
		return domain.Question{}, domain.ErrHintUnavailable
	}
	s.attempt.hints++
	return q, nil
}

// SubmitFeedback sends the difficulty rating for the completed round and
// requests the next batch of the same topic. The final scheduled round takes
// no feedback; the game is over.
func (s *Session) SubmitFeedback(rating domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !rating.Valid() {
		return errors.New("invalid feedback rating")
	}
	if s.payload == nil || !s.roundCompleteLocked() {
		return domain.ErrRoundInProgress
	}
	if s.batch >= s.roundsPerGame {
		return domain.ErrGameFinished
	}
	return s.conn.Emit(protocol.EventFetchNewBatch, protocol.FetchNewBatch{
		RoomID:   s.gameID,
		TopicID:  s.payload.TopicID,
		Feedback: rating,
	})
}

// HandleGameClosed performs the forced terminal transition: recovery state is
// cleared and the listener is told to navigate away.
func (s *Session) HandleGameClosed(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.clearLocalState(ctx)
	s.listener.GameClosed()
}

// Leave clears recovery state for an explicit exit. The caller disconnects
// the shared connection afterwards, which is the server-visible leave.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.clearLocalState(ctx)
}

func (s *Session) clearLocalState(ctx context.Context) {
	if err := s.store.ClearSnapshot(ctx, s.gameID); err != nil {
		log.Printf("clear snapshot: %v", err)
	}
	if err := s.store.ClearJoinedCode(ctx, s.userKey); err != nil {
		log.Printf("clear joined code: %v", err)
	}
}

func (s *Session) HandleAnswerSaved(questionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questionID == "" {
		return
	}
	s.saveStatus[questionID] = domain.SaveSaved
	s.listener.SaveStatus(questionID, domain.SaveSaved)
}

func (s *Session) HandleAnswerError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.lastSubmittedQuestionLocked()
	if !ok {
		return
	}
	s.saveStatus[q.ID] = domain.SaveError
	s.listener.SaveStatus(q.ID, domain.SaveError)
}

// --- accessors ---

// CurrentQuestion returns the active question, if any.
func (s *Session) CurrentQuestion() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeQuestionLocked()
}

// Ledger returns a copy of the current round aggregates.
func (s *Session) Ledger() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// XP returns the client-side XP preview (server total plus optimistic deltas).
func (s *Session) XP() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xpTotal
}

// RoundXP returns the round-scoped reward state.
func (s *Session) RoundXP() RoundXP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundXP
}

// BatchNumber returns 1-based count of adopted rounds, 0 before the first.
func (s *Session) BatchNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

// RoundComplete reports whether the cursor has advanced past the last question.
func (s *Session) RoundComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload != nil && s.roundCompleteLocked()
}

// GameOver reports whether the final scheduled round has completed.
func (s *Session) GameOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload != nil && s.roundCompleteLocked() && s.batch >= s.roundsPerGame
}

// Attempts returns the attempt counter for the active question.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.attempts
}

// SetXP seeds the XP preview, typically from the stats endpoint on entry.
func (s *Session) SetXP(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xpTotal = total
}

// --- internals, all called with s.mu held ---

func (s *Session) activeQuestionLocked() (domain.Question, bool) {
	if s.payload == nil || s.closed || s.cursor >= len(s.payload.Questions) {
		return domain.Question{}, false
	}
	return s.payload.Questions[s.cursor], true
}

func (s *Session) lastSubmittedQuestionLocked() (domain.Question, bool) {
	if s.payload == nil {
		return domain.Question{}, false
	}
	idx := s.cursor
	if s.attempt.submitted && idx < len(s.payload.Questions) {
		return s.payload.Questions[idx], true
	}
	if idx-1 >= 0 && idx-1 < len(s.payload.Questions) {
		return s.payload.Questions[idx-1], true
	}
	return domain.Question{}, false
}

func (s *Session) roundCompleteLocked() bool {
	return s.payload != nil && s.cursor >= len(s.payload.Questions)
}

// finalizeLocked runs the at-most-once submission for a correctly answered
// question: elapsed time, XP award, submit event, ledger update, advance.
func (s *Session) finalizeLocked(q domain.Question) error {
	roundID := s.payload.RoundID
	if roundID == "" {
		return domain.ErrMissingRoundID
	}

	elapsed := s.now().Sub(s.attempt.startedAt)
	timeSpent := int(math.Round(elapsed.Seconds()))
	if timeSpent < 0 {
		timeSpent = 0
	}
	attempts := s.attempt.attempts
	if attempts < 1 {
		attempts = 1
	}
	hints := s.attempt.hints

	s.saveStatus[q.ID] = domain.SaveSaving
	s.listener.SaveStatus(q.ID, domain.SaveSaving)
	if err := s.conn.Emit(protocol.EventSubmitAnswer, protocol.SubmitAnswer{
		RoundID:       roundID,
		QuestionID:    q.ID,
		IsCorrect:     true,
		TimeSpentSecs: timeSpent,
		HintsUsed:     hints,
		NumAttempts:   attempts,
	}); err != nil {
		return err
	}

	// XP moves only after the submission is queued; a failed emit leaves the
	// question unsubmitted and a later retry is no longer first-try.
	if attempts == 1 {
		next, delta := s.roundXP.Award(s.ledger.TotalQuestions)
		s.roundXP = next
		if delta > 0 {
			s.xpTotal += delta
			s.pushBurstLocked(delta)
		}
	}

	s.ledger.Record(true, timeSpent, hints)
	s.attempt.submitted = true

	s.scheduleLocked(s.delays.Advance, roundID, s.cursor, func() {
		s.advanceLocked()
	})
	return nil
}

func (s *Session) advanceLocked() {
	s.cursor++
	s.attempt = attemptState{startedAt: s.now()}
	if s.payload == nil {
		return
	}
	if s.cursor < len(s.payload.Questions) {
		s.listener.QuestionShown(s.payload.Questions[s.cursor], s.cursor, len(s.payload.Questions))
		return
	}
	s.finishRoundLocked()
}

// finishRoundLocked emits the finalize handshake exactly once per round_id.
func (s *Session) finishRoundLocked() {
	roundID := s.payload.RoundID
	if roundID == "" || s.finished[roundID] {
		return
	}
	s.finished[roundID] = true

	roundIndex := 0
	if s.indexes != nil {
		idx, err := s.indexes.Allocate(context.Background(), roundID)
		if err != nil {
			log.Printf("round index: %v", err)
		} else {
			roundIndex = idx
		}
	}

	result := domain.RoundResult{
		RoundID:     roundID,
		RoundIndex:  roundIndex,
		EndTS:       s.now().UTC(),
		Accuracy:    s.ledger.Accuracy(),
		AvgTimeSecs: s.ledger.AvgTimeSecs(),
		Hints:       s.ledger.TotalHints,
		XP:          s.xpTotal,
	}
	if err := s.conn.Emit(protocol.EventFinishRound, result); err != nil {
		s.listener.ErrorSurfaced(err)
	}
	s.listener.RoundCompleted(result)

	if s.batch >= s.roundsPerGame {
		s.listener.GameOver()
	}

	if s.stats != nil {
		s.scheduleLocked(s.delays.XPRefresh, roundID, s.cursor, func() {
			s.refreshXPLocked()
		})
	}
}

func (s *Session) refreshXPLocked() {
	// The fetch itself must not run under the lock.
	stats := s.stats
	s.mu.Unlock()
	total, err := stats.MyXP(context.Background())
	s.mu.Lock()
	if err != nil {
		log.Printf("refresh xp: %v", err)
		return
	}
	s.xpTotal = total
}

func (s *Session) pushBurstLocked(amount int) {
	id := uuid.New()
	s.bursts[id] = amount
	s.listener.XPBurst(Burst{ID: id, Amount: amount})

	if s.delays.BurstTTL <= 0 {
		delete(s.bursts, id)
		s.listener.XPBurstExpired(id)
		return
	}
	time.AfterFunc(s.delays.BurstTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.bursts[id]; !ok {
			return
		}
		delete(s.bursts, id)
		s.listener.XPBurstExpired(id)
	})
}

// scheduleLocked runs fn after delay, but only if the round and cursor are
// still the ones captured; an adopted batch in between makes the timer a
// no-op rather than corrupting the new round. Non-positive delays run inline.
func (s *Session) scheduleLocked(delay time.Duration, roundID string, cursor int, fn func()) {
	if delay <= 0 {
		fn()
		return
	}
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.payload == nil || s.payload.RoundID != roundID || s.cursor != cursor {
			return
		}
		fn()
	})
}

// evaluate applies the correctness rule: exact numeric equality for numeric
// questions, trimmed case-insensitive equality otherwise. Questions without
// an answer key can never be judged correct client-side.
func evaluate(q domain.Question, answer string) bool {
	if q.Answer == nil {
		return false
	}
	expected := strings.TrimSpace(q.Answer.CorrectAnswer)
	given := strings.TrimSpace(answer)
	if q.Type == domain.QuestionNumeric {
		want, err1 := strconv.ParseFloat(expected, 64)
		got, err2 := strconv.ParseFloat(given, 64)
		return err1 == nil && err2 == nil && want == got
	}
	return strings.EqualFold(given, expected)
}

// HintDirection tells a student whether their numeric guess is above or below
// the expected answer. Presentation helper; gating lives in OpenHint.
type HintDirection int

const (
	HintUnknown HintDirection = iota
	HintTryLower
	HintTryHigher
	HintExact
)

func NumericHint(q domain.Question, entered string) HintDirection {
	if q.Type != domain.QuestionNumeric || q.Answer == nil {
		return HintUnknown
	}
	want, err1 := strconv.ParseFloat(strings.TrimSpace(q.Answer.CorrectAnswer), 64)
	got, err2 := strconv.ParseFloat(strings.TrimSpace(entered), 64)
	if err1 != nil || err2 != nil {
		return HintUnknown
	}
	switch {
	case got > want:
		return HintTryLower
	case got < want:
		return HintTryHigher
	default:
		return HintExact
	}
}
