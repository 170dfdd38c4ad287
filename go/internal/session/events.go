package session

import (
	"encoding/json"
)

// EventType represents the type of interview relay event
type EventType string

// Inbound events (relay server -> client)
const (
	EventConnect         EventType = "connect"
	EventDisconnect      EventType = "disconnect"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventRoomUsers       EventType = "room-users"
	EventQuestionStarted EventType = "question-started"
	EventTimeUp          EventType = "time-up"
	EventUserSubmitted   EventType = "user-submitted"
	EventInterviewEnded  EventType = "interview-ended"
)

// Outbound events (client -> relay server)
const (
	EventJoinInterview  EventType = "join-interview"
	EventStartInterview EventType = "start-interview"
	EventSubmitAnswer   EventType = "submit-answer"
	EventUpdateScore    EventType = "update-score"
	EventNextQuestion   EventType = "next-question"
)

// User identifies a participant in a room. SocketID is the
// transport-session identifier and changes across reconnects; UserID
// is stable.
type User struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	SocketID string `json:"socketId"`
}

// Question is immutable once received from the relay.
type Question struct {
	Text           string   `json:"text"`
	CorrectAnswer  string   `json:"correctAnswer"`
	TimeLimit      int      `json:"timeLimit"`
	Difficulty     int      `json:"difficulty"`
	Skills         []string `json:"skills"`
	CommonMistakes []string `json:"commonMistakes,omitempty"`
	MaxScore       int      `json:"maxScore"`
}

// JoinInterviewPayload is the payload for a join-interview emission
type JoinInterviewPayload struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// StartInterviewPayload is the payload for a start-interview emission
type StartInterviewPayload struct {
	GroupID   string     `json:"groupId"`
	Questions []Question `json:"questions"`
}

// SubmitAnswerPayload is the payload for a submit-answer emission
type SubmitAnswerPayload struct {
	GroupID       string `json:"groupId"`
	UserID        string `json:"userId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

// UpdateScorePayload is the payload for an update-score emission
type UpdateScorePayload struct {
	GroupID string  `json:"groupId"`
	UserID  string  `json:"userId"`
	Score   float64 `json:"score"`
	Name    string  `json:"name"`
}

// NextQuestionPayload is the payload for a next-question emission
type NextQuestionPayload struct {
	GroupID string `json:"groupId"`
}

// UserLeftPayload is the payload for a user-left event
type UserLeftPayload struct {
	SocketID string `json:"socketId"`
}

// QuestionStartedPayload is the payload for a question-started event
type QuestionStartedPayload struct {
	QuestionIndex  int `json:"questionIndex"`
	TimeLimit      int `json:"timeLimit"`
	TotalQuestions int `json:"totalQuestions"`
}

// UserSubmittedPayload is the payload for a user-submitted event
type UserSubmittedPayload struct {
	UserID string `json:"userId"`
}

// ParsePayload parses inbound event data into the appropriate payload struct
func ParsePayload(event EventType, data json.RawMessage) (interface{}, error) {
	switch event {
	case EventUserJoined:
		var payload User
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventUserLeft:
		var payload UserLeftPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventRoomUsers:
		var payload []User
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventQuestionStarted:
		var payload QuestionStartedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventUserSubmitted:
		var payload UserSubmittedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // No structured payload for this event type
	}
}
