package session

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// State is the client-local view of one interview session. It has
// value semantics: Apply returns a new State and never mutates its
// receiver, so readers can hold a snapshot while the router keeps
// processing events.
type State struct {
	Connected bool

	GroupID  string
	UserID   string
	Username string
	IsHost   bool

	Questions            []Question
	CurrentQuestionIndex int
	TotalQuestions       int
	TimeRemaining        int
	InProgress           bool
	IsSubmitted          bool

	UsersInRoom    []User
	SubmittedUsers map[string]struct{}
	CurrentAnswer  string

	// Results holds the raw interview-ended payload, if received.
	Results json.RawMessage

	// Epoch increments on every question-started event and is used to
	// discard countdown callbacks belonging to a superseded question.
	Epoch int
}

// NewState returns an empty, disconnected session state.
func NewState() State {
	return State{
		SubmittedUsers: make(map[string]struct{}),
	}
}

// HasSubmitted reports whether the given user is in the submission set
// for the current question.
func (s State) HasSubmitted(userID string) bool {
	_, ok := s.SubmittedUsers[userID]
	return ok
}

// clone deep-copies the slice and map fields so the returned State can
// be mutated or read independently of the original.
func (s State) clone() State {
	out := s
	if s.Questions != nil {
		out.Questions = make([]Question, len(s.Questions))
		copy(out.Questions, s.Questions)
	}
	if s.UsersInRoom != nil {
		out.UsersInRoom = make([]User, len(s.UsersInRoom))
		copy(out.UsersInRoom, s.UsersInRoom)
	}
	out.SubmittedUsers = make(map[string]struct{}, len(s.SubmittedUsers))
	for id := range s.SubmittedUsers {
		out.SubmittedUsers[id] = struct{}{}
	}
	return out
}

// Apply is the router's transition function: given a state and an
// inbound relay event it returns the next state. Unknown events and
// malformed payloads leave the state unchanged; stale events for a
// question that has already been superseded are absorbed by the
// preconditions below rather than corrupting current fields.
func Apply(s State, event EventType, data json.RawMessage) State {
	payload, err := ParsePayload(event, data)
	if err != nil {
		log.Warn().Err(err).Str("event", string(event)).Msg("dropping malformed payload")
		return s
	}

	next := s.clone()

	switch event {
	case EventConnect:
		next.Connected = true

	case EventDisconnect:
		next.Connected = false

	case EventUserJoined:
		next.UsersInRoom = append(next.UsersInRoom, payload.(User))

	case EventUserLeft:
		p := payload.(UserLeftPayload)
		kept := next.UsersInRoom[:0]
		for _, u := range next.UsersInRoom {
			if u.SocketID != p.SocketID {
				kept = append(kept, u)
			}
		}
		next.UsersInRoom = kept

	case EventRoomUsers:
		// Authoritative snapshot: replace the roster wholesale.
		next.UsersInRoom = payload.([]User)

	case EventQuestionStarted:
		p := payload.(QuestionStartedPayload)
		next.CurrentQuestionIndex = p.QuestionIndex
		next.TotalQuestions = p.TotalQuestions
		next.TimeRemaining = p.TimeLimit
		next.InProgress = true
		next.IsSubmitted = false
		next.SubmittedUsers = make(map[string]struct{})
		next.CurrentAnswer = ""
		next.Epoch++

	case EventUserSubmitted:
		if !next.InProgress {
			// Late submission echo for a question that is no longer
			// current; the next question-started already cleared the set.
			return s
		}
		next.SubmittedUsers[payload.(UserSubmittedPayload).UserID] = struct{}{}

	case EventInterviewEnded:
		next.InProgress = false
		if len(data) > 0 {
			next.Results = append(json.RawMessage(nil), data...)
		}
	}

	return next
}
