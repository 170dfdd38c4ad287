package session

import (
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Transport is what the store needs from the relay connection: fire and
// forget emits and per-event subscriptions. Delivery assurance lives
// entirely on the relay side; Emit never blocks on a round trip.
type Transport interface {
	Emit(event string, payload interface{}) error
	Subscribe(event string, handler func(data json.RawMessage))
	Connected() bool
}

// HostHints resolves the locally persisted per-room host marker. It is
// a UX default read once at join time, not an authoritative role; an
// implementation returning "" for every room is valid.
type HostHints interface {
	HostFor(groupID string) string
}

// Store is the authoritative client-local view of one interview
// session. All mutation goes through its methods or through the event
// router's subscriptions; readers take value snapshots via Snapshot.
type Store struct {
	transport Transport
	hints     HostHints
	countdown *Countdown

	mu         sync.Mutex
	state      State
	subscribed bool
}

// NewStore creates a session store bound to the given transport. The
// clock drives the countdown scheduler; hints may be nil.
func NewStore(transport Transport, clock clockwork.Clock, hints HostHints) *Store {
	return &Store{
		transport: transport,
		hints:     hints,
		countdown: NewCountdown(clock),
		state:     NewState(),
	}
}

// Snapshot returns a value copy of the current state. Safe to call from
// any goroutine at any time.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// JoinSession records identity, derives the local host flag from the
// persisted per-room marker, emits the join request, and attaches the
// event router's subscriptions. Membership is updated asynchronously by
// roster events, never here.
func (s *Store) JoinSession(groupID, userID, username string) {
	s.mu.Lock()
	s.state.GroupID = groupID
	s.state.UserID = userID
	s.state.Username = username
	s.state.IsHost = s.hints != nil && s.hints.HostFor(groupID) == userID
	isHost := s.state.IsHost
	s.mu.Unlock()

	s.emit(EventJoinInterview, JoinInterviewPayload{
		GroupID:  groupID,
		UserID:   userID,
		Username: username,
	})
	s.attachListeners()

	// The transport may have connected before the router subscribed to
	// lifecycle events; seed the flag from its current state.
	s.mu.Lock()
	s.state.Connected = s.transport.Connected()
	s.mu.Unlock()

	log.Info().
		Str("group_id", groupID).
		Str("user_id", userID).
		Bool("is_host", isHost).
		Msg("joined interview session")
}

// StartSession requests the relay to start the interview with the given
// question sequence. No-op without an active room. The local state does
// not flip to in-progress here; that happens only when question-started
// comes back, so a client can never diverge from the agreed session.
func (s *Store) StartSession(questions []Question) {
	s.mu.Lock()
	groupID := s.state.GroupID
	s.mu.Unlock()
	if groupID == "" {
		return
	}

	s.emit(EventStartInterview, StartInterviewPayload{
		GroupID:   groupID,
		Questions: questions,
	})
}

// SubmitAnswer emits a submission for the current question and marks
// the local participant submitted immediately, without waiting for an
// acknowledgment. No-op without an active room and identity. A repeat
// call still emits; the relay's submission set absorbs the duplicate.
func (s *Store) SubmitAnswer(answer string) {
	s.mu.Lock()
	if s.state.GroupID == "" || s.state.UserID == "" {
		s.mu.Unlock()
		return
	}
	payload := SubmitAnswerPayload{
		GroupID:       s.state.GroupID,
		UserID:        s.state.UserID,
		QuestionIndex: s.state.CurrentQuestionIndex,
		Answer:        answer,
	}
	s.state.IsSubmitted = true
	s.mu.Unlock()

	s.emit(EventSubmitAnswer, payload)
}

// UpdateScore relays a peer's score contribution. No-op without an
// active room; the value is not interpreted locally.
func (s *Store) UpdateScore(userID string, score float64, name string) {
	s.mu.Lock()
	groupID := s.state.GroupID
	s.mu.Unlock()
	if groupID == "" {
		return
	}

	s.emit(EventUpdateScore, UpdateScorePayload{
		GroupID: groupID,
		UserID:  userID,
		Score:   score,
		Name:    name,
	})
}

// SetLocalAnswer overwrites the local answer draft. Pure local
// mutation, no network effect.
func (s *Store) SetLocalAnswer(text string) {
	s.mu.Lock()
	s.state.CurrentAnswer = text
	s.mu.Unlock()
}

// AdvanceQuestion requests the next question. Only the host may ask;
// the relay remains the sole arbiter of actually advancing.
func (s *Store) AdvanceQuestion() {
	s.mu.Lock()
	groupID := s.state.GroupID
	isHost := s.state.IsHost
	s.mu.Unlock()
	if groupID == "" || !isHost {
		return
	}

	s.emit(EventNextQuestion, NextQuestionPayload{GroupID: groupID})
}

// ResetState clears question progress, the submission set, and the
// draft, and cancels any live countdown. Identity and room membership
// are kept; used when leaving or restarting a session.
func (s *Store) ResetState() {
	s.countdown.Cancel()

	s.mu.Lock()
	s.state.Questions = nil
	s.state.CurrentQuestionIndex = 0
	s.state.TotalQuestions = 0
	s.state.TimeRemaining = 0
	s.state.InProgress = false
	s.state.IsSubmitted = false
	s.state.SubmittedUsers = make(map[string]struct{})
	s.state.CurrentAnswer = ""
	s.state.Results = nil
	s.mu.Unlock()
}

// emit sends a fire-and-forget event; delivery failures are logged and
// dropped, never retried here.
func (s *Store) emit(event EventType, payload interface{}) {
	if err := s.transport.Emit(string(event), payload); err != nil {
		log.Warn().Err(err).Str("event", string(event)).Msg("emit dropped")
	}
}
