// Package roster keeps a teacher's live, ranked view of connected players in
// sync with roster broadcasts, and gates manual level overrides on
// server-signaled eligibility.
package roster

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"smartmath-client/internal/domain"
	"smartmath-client/internal/protocol"
	"smartmath-client/internal/realtime"
)

// Emitter is the outbound half of the event channel the sync needs.
type Emitter interface {
	Emit(event string, payload any) error
}

// EligibilityFetcher polls the recommendation endpoint for the set of
// students a teacher may currently override.
type EligibilityFetcher interface {
	OverrideEligible(ctx context.Context) (map[string]bool, error)
}

// Config wires a teacher-side roster sync.
type Config struct {
	GameID      string
	Conn        Emitter
	Eligibility EligibilityFetcher // optional; when set it is the source of truth
	Cooldown    time.Duration      // min interval between eligibility fetches
	Clock       func() time.Time   // optional, defaults to time.Now
	OnUpdate    func([]domain.RosterEntry)
	OnError     func(error)
}

// Sync is the teacher-observer state: the latest roster broadcast, polled
// eligibility, and in-flight override bookkeeping.
type Sync struct {
	gameID   string
	conn     Emitter
	fetcher  EligibilityFetcher
	cooldown time.Duration
	now      func() time.Time
	onUpdate func([]domain.RosterEntry)
	onError  func(error)

	mu         sync.Mutex
	roster     []domain.RosterEntry
	eligible   map[string]bool
	inflight   map[string]bool
	lastFetch  time.Time
	fetchTimer *time.Timer
	closed     bool
}

func New(cfg Config) *Sync {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.OnUpdate == nil {
		cfg.OnUpdate = func([]domain.RosterEntry) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &Sync{
		gameID:   cfg.GameID,
		conn:     cfg.Conn,
		fetcher:  cfg.Eligibility,
		cooldown: cfg.Cooldown,
		now:      cfg.Clock,
		onUpdate: cfg.OnUpdate,
		onError:  cfg.OnError,
		eligible: make(map[string]bool),
		inflight: make(map[string]bool),
	}
}

// Attach registers the sync's inbound event handlers on the connection.
func (s *Sync) Attach(conn *realtime.Conn) {
	conn.On(protocol.EventUpdatePlayers, func(raw json.RawMessage) {
		var payload protocol.UpdatePlayers
		if err := json.Unmarshal(raw, &payload); err != nil {
			log.Printf("update_players: bad payload: %v", err)
			return
		}
		s.HandlePlayers(payload)
	})
	conn.On(protocol.EventGameClosed, func(json.RawMessage) {
		s.HandleGameClosed()
	})
	conn.On(protocol.EventError, func(raw json.RawMessage) {
		var msg protocol.ErrorMessage
		_ = json.Unmarshal(raw, &msg)
		s.HandleError(&domain.ProtocolError{Message: msg.Message})
	})
}

// Join subscribes this client as the game's teacher-observer.
func (s *Sync) Join() error {
	return s.conn.Emit(protocol.EventTeacherJoin, protocol.TeacherJoin{
		GameID: s.gameID,
		Mode:   "game",
	})
}

// HandlePlayers applies a roster broadcast. Detailed entries win over the
// bare username list; both are kept server-authoritative. In-flight override
// markers are cleared because the broadcast already reflects the new levels.
func (s *Sync) HandlePlayers(payload protocol.UpdatePlayers) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	entries := payload.PlayersDetailed
	if len(entries) == 0 {
		entries = make([]domain.RosterEntry, 0, len(payload.Players))
		for _, name := range payload.Players {
			entries = append(entries, domain.RosterEntry{UserID: name, Username: name})
		}
	}
	sortRoster(entries)
	s.roster = entries
	s.inflight = make(map[string]bool)

	fetchNow := s.shouldFetchLocked()
	snapshot := snapshotRoster(entries)
	s.mu.Unlock()

	if fetchNow {
		go s.fetchEligibility()
	}
	s.onUpdate(snapshot)
}

// shouldFetchLocked rate-limits eligibility polling: at most one fetch per
// cooldown window, with bursts of roster updates coalesced into a single
// trailing-edge fetch.
func (s *Sync) shouldFetchLocked() bool {
	if s.fetcher == nil {
		return false
	}
	now := s.now()
	if now.Sub(s.lastFetch) >= s.cooldown {
		s.lastFetch = now
		return true
	}
	if s.fetchTimer == nil {
		wait := s.lastFetch.Add(s.cooldown).Sub(now)
		s.fetchTimer = time.AfterFunc(wait, func() {
			s.mu.Lock()
			s.fetchTimer = nil
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.lastFetch = s.now()
			s.mu.Unlock()
			s.fetchEligibility()
		})
	}
	return false
}

func (s *Sync) fetchEligibility() {
	eligible, err := s.fetcher.OverrideEligible(context.Background())
	if err != nil {
		log.Printf("override eligibility: %v", err)
		return
	}
	s.mu.Lock()
	s.eligible = eligible
	snapshot := snapshotRoster(s.roster)
	s.mu.Unlock()
	s.onUpdate(snapshot)
}

// Roster returns the current ranked view.
func (s *Sync) Roster() []domain.RosterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotRoster(s.roster)
}

// Eligible reports whether a student may currently be overridden. When a
// fetcher is configured the polled set is the source of truth; otherwise the
// inline roster flag is used.
func (s *Sync) Eligible(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eligibleLocked(username)
}

func (s *Sync) eligibleLocked(username string) bool {
	if s.fetcher != nil {
		return s.eligible[username]
	}
	for _, entry := range s.roster {
		if entry.Username == username {
			return entry.Eligible
		}
	}
	return false
}

// Override requests a manual level adjustment. The local roster is never
// mutated optimistically; the next broadcast carries the server's view.
// While a request is in flight further overrides for the same student are
// rejected, which is the optimistic-disable contract for the UI.
func (s *Sync) Override(username string, direction domain.OverrideDirection) error {
	s.mu.Lock()
	if !s.eligibleLocked(username) {
		s.mu.Unlock()
		return domain.ErrNotEligible
	}
	if s.inflight[username] {
		s.mu.Unlock()
		return domain.ErrOverridePending
	}
	s.inflight[username] = true
	s.mu.Unlock()

	err := s.conn.Emit(protocol.EventOverride, protocol.Override{
		StudentUsername: username,
		Action:          direction,
	})
	if err != nil {
		s.mu.Lock()
		delete(s.inflight, username)
		s.mu.Unlock()
	}
	return err
}

// Pending reports whether an override for the student is awaiting the next
// roster broadcast.
func (s *Sync) Pending(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[username]
}

// HandleError surfaces a server error and releases in-flight override
// markers so the controls re-enable without a roster change.
func (s *Sync) HandleError(err error) {
	s.mu.Lock()
	s.inflight = make(map[string]bool)
	s.mu.Unlock()
	s.onError(err)
}

// HandleGameClosed stops eligibility polling and freezes the sync.
func (s *Sync) HandleGameClosed() {
	s.mu.Lock()
	s.closed = true
	if s.fetchTimer != nil {
		s.fetchTimer.Stop()
		s.fetchTimer = nil
	}
	s.mu.Unlock()
}

// EndGame asks the server to close the session for every connected player.
func (s *Sync) EndGame() error {
	return s.conn.Emit(protocol.EventEndGame, protocol.EndGame{GameID: s.gameID})
}

func sortRoster(entries []domain.RosterEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].Rank, entries[j].Rank
		if ri > 0 && rj > 0 && ri != rj {
			return ri < rj
		}
		if (ri > 0) != (rj > 0) {
			return ri > 0
		}
		return entries[i].Username < entries[j].Username
	})
}

func snapshotRoster(entries []domain.RosterEntry) []domain.RosterEntry {
	out := make([]domain.RosterEntry, len(entries))
	copy(out, entries)
	return out
}
