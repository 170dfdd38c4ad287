package session

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// attachListeners binds inbound relay events to state transitions.
// Subscriptions are attached exactly once per store, tracked by an
// explicit flag, so re-joining cannot double-handle the same event.
func (s *Store) attachListeners() {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = true
	s.mu.Unlock()

	// Plain transitions: apply and done. Handlers run serially on the
	// transport's read loop, in receipt order.
	for _, event := range []EventType{
		EventConnect,
		EventDisconnect,
		EventUserJoined,
		EventUserLeft,
		EventRoomUsers,
		EventUserSubmitted,
		EventInterviewEnded,
	} {
		event := event
		s.transport.Subscribe(string(event), func(data json.RawMessage) {
			s.apply(event, data)
		})
	}

	s.transport.Subscribe(string(EventQuestionStarted), s.onQuestionStarted)
	s.transport.Subscribe(string(EventTimeUp), s.onTimeUp)
}

// apply runs the pure transition function under the store lock.
func (s *Store) apply(event EventType, data json.RawMessage) {
	s.mu.Lock()
	s.state = Apply(s.state, event, data)
	s.mu.Unlock()

	log.Debug().Str("event", string(event)).Msg("session event applied")
}

// onQuestionStarted applies the transition (which resets the
// submission set, the draft, and the submitted flag) and restarts the
// countdown for the new time limit. The epoch captured here guards the
// countdown callbacks: once a later question starts, ticks from this
// one are ignored.
func (s *Store) onQuestionStarted(data json.RawMessage) {
	parsed, err := ParsePayload(EventQuestionStarted, data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed question-started payload")
		return
	}
	payload := parsed.(QuestionStartedPayload)

	s.mu.Lock()
	s.state = Apply(s.state, EventQuestionStarted, data)
	epoch := s.state.Epoch
	s.mu.Unlock()

	log.Info().
		Int("question_index", payload.QuestionIndex).
		Int("time_limit", payload.TimeLimit).
		Int("total_questions", payload.TotalQuestions).
		Msg("question started")

	s.countdown.Start(payload.TimeLimit,
		func(remaining int) { s.onTick(epoch, remaining) },
		func() { s.autosubmit(epoch) },
	)
}

// onTimeUp handles the relay's authoritative expiry: if the local
// participant has not submitted yet, submit the current draft.
func (s *Store) onTimeUp(json.RawMessage) {
	s.mu.Lock()
	epoch := s.state.Epoch
	s.mu.Unlock()
	s.autosubmit(epoch)
}

// onTick records the countdown's remaining seconds for display.
func (s *Store) onTick(epoch, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Epoch != epoch || !s.state.InProgress {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	s.state.TimeRemaining = remaining
}

// autosubmit submits the current draft on expiry. The IsSubmitted
// guard makes it idempotent: whichever of the local zero-crossing and
// the relay's time-up arrives first wins, and exactly one submit-answer
// emission happens per question.
func (s *Store) autosubmit(epoch int) {
	s.mu.Lock()
	if s.state.Epoch != epoch || !s.state.InProgress || s.state.IsSubmitted {
		s.mu.Unlock()
		return
	}
	if s.state.GroupID == "" || s.state.UserID == "" {
		s.mu.Unlock()
		return
	}
	payload := SubmitAnswerPayload{
		GroupID:       s.state.GroupID,
		UserID:        s.state.UserID,
		QuestionIndex: s.state.CurrentQuestionIndex,
		Answer:        s.state.CurrentAnswer,
	}
	s.state.IsSubmitted = true
	s.mu.Unlock()

	log.Info().Int("question_index", payload.QuestionIndex).Msg("time expired, autosubmitting draft")
	s.emit(EventSubmitAnswer, payload)
}
