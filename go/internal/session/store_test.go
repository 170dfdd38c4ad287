package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// fakeTransport records emissions and lets tests deliver inbound events
// synchronously, the way the relay handle's read loop would.
type fakeTransport struct {
	mu       sync.Mutex
	emitted  []emitted
	handlers map[string][]func(json.RawMessage)
}

type emitted struct {
	event string
	data  json.RawMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.emitted = append(f.emitted, emitted{event: event, data: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Subscribe(event string, handler func(json.RawMessage)) {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], handler)
	f.mu.Unlock()
}

func (f *fakeTransport) Connected() bool { return true }

// deliver marshals payload and invokes the subscribed handlers inline.
func (f *fakeTransport) deliver(t *testing.T, event EventType, payload interface{}) {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal %s: %v", event, err)
		}
	}
	f.mu.Lock()
	handlers := append(([]func(json.RawMessage))(nil), f.handlers[string(event)]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeTransport) emissions(event EventType) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, e := range f.emitted {
		if e.event == string(event) {
			out = append(out, e.data)
		}
	}
	return out
}

func (f *fakeTransport) handlerCount(event EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[string(event)])
}

type staticHints map[string]string

func (h staticHints) HostFor(groupID string) string { return h[groupID] }

// waitFor polls until cond holds or the deadline passes; countdown
// ticks land asynchronously on the store, so state assertions after a
// clock advance go through here.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func newTestStore(hints HostHints) (*Store, *fakeTransport, *clockwork.FakeClock) {
	transport := newFakeTransport()
	clock := clockwork.NewFakeClock()
	return NewStore(transport, clock, hints), transport, clock
}

func TestJoinSessionEmitsAndRecordsIdentity(t *testing.T) {
	store, transport, _ := newTestStore(staticHints{"R1": "alice"})

	store.JoinSession("R1", "alice", "Alice")

	joins := transport.emissions(EventJoinInterview)
	if len(joins) != 1 {
		t.Fatalf("join-interview emissions = %d, want 1", len(joins))
	}
	var payload JoinInterviewPayload
	if err := json.Unmarshal(joins[0], &payload); err != nil {
		t.Fatalf("unmarshal join payload: %v", err)
	}
	if payload.GroupID != "R1" || payload.UserID != "alice" || payload.Username != "Alice" {
		t.Fatalf("join payload = %+v", payload)
	}

	snap := store.Snapshot()
	if snap.GroupID != "R1" || snap.UserID != "alice" || snap.Username != "Alice" {
		t.Fatalf("identity not recorded: %+v", snap)
	}
	if !snap.IsHost {
		t.Fatalf("expected host flag from hint")
	}
}

func TestJoinSessionHostFlagFalseWithoutHint(t *testing.T) {
	store, _, _ := newTestStore(staticHints{"R1": "bob"})
	store.JoinSession("R1", "alice", "Alice")
	if store.Snapshot().IsHost {
		t.Fatalf("alice must not be host, hint names bob")
	}
}

func TestListenersAttachedOnce(t *testing.T) {
	store, transport, _ := newTestStore(nil)

	store.JoinSession("R1", "alice", "Alice")
	store.JoinSession("R1", "alice", "Alice")

	if n := transport.handlerCount(EventUserJoined); n != 1 {
		t.Fatalf("user-joined handlers = %d, want 1 (idempotent subscription)", n)
	}

	transport.deliver(t, EventUserJoined, User{UserID: "bob", Username: "Bob", SocketID: "s2"})
	if got := len(store.Snapshot().UsersInRoom); got != 1 {
		t.Fatalf("roster size = %d, want 1 (event handled once)", got)
	}
}

func TestStartSessionRequiresRoom(t *testing.T) {
	store, transport, _ := newTestStore(nil)

	store.StartSession([]Question{{Text: "Q", TimeLimit: 30}})
	if n := len(transport.emissions(EventStartInterview)); n != 0 {
		t.Fatalf("start-interview emitted with no room")
	}

	store.JoinSession("R1", "alice", "Alice")
	store.StartSession([]Question{{Text: "Q", TimeLimit: 30}})
	starts := transport.emissions(EventStartInterview)
	if len(starts) != 1 {
		t.Fatalf("start-interview emissions = %d, want 1", len(starts))
	}

	// The start request must not flip local progress; only a
	// question-started event from the relay does that.
	if store.Snapshot().InProgress {
		t.Fatalf("StartSession flipped InProgress locally")
	}
}

func TestSubmitAnswerRequiresIdentity(t *testing.T) {
	store, transport, _ := newTestStore(nil)

	store.SubmitAnswer("orphan")
	if n := len(transport.emissions(EventSubmitAnswer)); n != 0 {
		t.Fatalf("submit-answer emitted with no identity")
	}
	if store.Snapshot().IsSubmitted {
		t.Fatalf("IsSubmitted set by a no-op call")
	}
}

func TestSubmitAnswerEmitsAndSetsFlag(t *testing.T) {
	store, transport, _ := newTestStore(nil)
	store.JoinSession("R1", "alice", "Alice")
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 3, TimeLimit: 30, TotalQuestions: 5})

	store.SubmitAnswer("my answer")

	subs := transport.emissions(EventSubmitAnswer)
	if len(subs) != 1 {
		t.Fatalf("submit-answer emissions = %d, want 1", len(subs))
	}
	var payload SubmitAnswerPayload
	if err := json.Unmarshal(subs[0], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.GroupID != "R1" || payload.UserID != "alice" || payload.QuestionIndex != 3 || payload.Answer != "my answer" {
		t.Fatalf("submit payload = %+v", payload)
	}
	if !store.Snapshot().IsSubmitted {
		t.Fatalf("IsSubmitted not set optimistically")
	}

	// No hard guard at this layer: a second manual call still emits.
	store.SubmitAnswer("again")
	if n := len(transport.emissions(EventSubmitAnswer)); n != 2 {
		t.Fatalf("second manual submit suppressed, emissions = %d", n)
	}
}

func TestAdvanceQuestionHostGating(t *testing.T) {
	cases := []struct {
		name      string
		hints     staticHints
		wantEmits int
	}{
		{name: "non-host produces no emission", hints: staticHints{}, wantEmits: 0},
		{name: "host emits next-question", hints: staticHints{"R1": "alice"}, wantEmits: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, transport, _ := newTestStore(tc.hints)
			store.JoinSession("R1", "alice", "Alice")
			store.AdvanceQuestion()
			if n := len(transport.emissions(EventNextQuestion)); n != tc.wantEmits {
				t.Fatalf("next-question emissions = %d, want %d", n, tc.wantEmits)
			}
		})
	}
}

func TestUpdateScoreRelaysOnlyWithRoom(t *testing.T) {
	store, transport, _ := newTestStore(nil)

	store.UpdateScore("bob", 7, "Bob")
	if n := len(transport.emissions(EventUpdateScore)); n != 0 {
		t.Fatalf("update-score emitted with no room")
	}

	store.JoinSession("R1", "alice", "Alice")
	store.UpdateScore("bob", 7, "Bob")
	scores := transport.emissions(EventUpdateScore)
	if len(scores) != 1 {
		t.Fatalf("update-score emissions = %d, want 1", len(scores))
	}
	var payload UpdateScorePayload
	if err := json.Unmarshal(scores[0], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.UserID != "bob" || payload.Score != 7 || payload.Name != "Bob" {
		t.Fatalf("score payload = %+v", payload)
	}
}

func TestAutosubmitLaw(t *testing.T) {
	t.Run("time-up while not submitted emits exactly once with the draft", func(t *testing.T) {
		store, transport, _ := newTestStore(nil)
		store.JoinSession("R1", "alice", "Alice")
		transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 0, TimeLimit: 30, TotalQuestions: 5})
		store.SetLocalAnswer("draft so far")

		transport.deliver(t, EventTimeUp, nil)

		subs := transport.emissions(EventSubmitAnswer)
		if len(subs) != 1 {
			t.Fatalf("submit-answer emissions = %d, want 1", len(subs))
		}
		var payload SubmitAnswerPayload
		if err := json.Unmarshal(subs[0], &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if payload.Answer != "draft so far" || payload.QuestionIndex != 0 {
			t.Fatalf("autosubmit payload = %+v", payload)
		}
		if !store.Snapshot().IsSubmitted {
			t.Fatalf("IsSubmitted not set by autosubmit")
		}

		// A repeated time-up must not emit again.
		transport.deliver(t, EventTimeUp, nil)
		if n := len(transport.emissions(EventSubmitAnswer)); n != 1 {
			t.Fatalf("repeat time-up emitted, emissions = %d", n)
		}
	})

	t.Run("time-up after manual submit emits nothing further", func(t *testing.T) {
		store, transport, _ := newTestStore(nil)
		store.JoinSession("R1", "alice", "Alice")
		transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 0, TimeLimit: 30, TotalQuestions: 5})

		store.SubmitAnswer("manual")
		transport.deliver(t, EventTimeUp, nil)

		if n := len(transport.emissions(EventSubmitAnswer)); n != 1 {
			t.Fatalf("submit-answer emissions = %d, want 1", n)
		}
	})

	t.Run("time-up outside an active question is ignored", func(t *testing.T) {
		store, transport, _ := newTestStore(nil)
		store.JoinSession("R1", "alice", "Alice")

		transport.deliver(t, EventTimeUp, nil)
		if n := len(transport.emissions(EventSubmitAnswer)); n != 0 {
			t.Fatalf("time-up before any question emitted a submission")
		}
	})
}

func TestJoinScenarioWithCountdown(t *testing.T) {
	store, transport, clock := newTestStore(nil)

	store.JoinSession("R1", "alice", "Alice")
	transport.deliver(t, EventRoomUsers, []User{
		{UserID: "alice", Username: "Alice", SocketID: "s1"},
		{UserID: "bob", Username: "Bob", SocketID: "s2"},
	})
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 0, TimeLimit: 30, TotalQuestions: 5})

	snap := store.Snapshot()
	if !snap.InProgress || snap.TimeRemaining != 30 || snap.IsSubmitted {
		t.Fatalf("after question-started: inProgress=%v timeRemaining=%d isSubmitted=%v",
			snap.InProgress, snap.TimeRemaining, snap.IsSubmitted)
	}
	if len(snap.UsersInRoom) != 2 {
		t.Fatalf("roster size = %d, want 2", len(snap.UsersInRoom))
	}

	for want := 29; want >= 0; want-- {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		want := want
		waitFor(t, func() bool { return store.Snapshot().TimeRemaining == want })
	}

	// Zero reached: no further decrement however much time passes.
	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := store.Snapshot().TimeRemaining; got != 0 {
		t.Fatalf("TimeRemaining after zero = %d, want 0", got)
	}
}

func TestTimeUpMidCountdownScenario(t *testing.T) {
	store, transport, clock := newTestStore(nil)

	store.JoinSession("R1", "alice", "Alice")
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 0, TimeLimit: 30, TotalQuestions: 5})
	store.SetLocalAnswer("partial thoughts")

	for want := 29; want >= 12; want-- {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		want := want
		waitFor(t, func() bool { return store.Snapshot().TimeRemaining == want })
	}

	transport.deliver(t, EventTimeUp, nil)

	subs := transport.emissions(EventSubmitAnswer)
	if len(subs) != 1 {
		t.Fatalf("submit-answer emissions = %d, want 1", len(subs))
	}
	var payload SubmitAnswerPayload
	if err := json.Unmarshal(subs[0], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Answer != "partial thoughts" || payload.QuestionIndex != 0 {
		t.Fatalf("autosubmit payload = %+v", payload)
	}
	if !store.Snapshot().IsSubmitted {
		t.Fatalf("IsSubmitted not set")
	}
}

func TestStaleCountdownIgnoredAfterNextQuestion(t *testing.T) {
	store, transport, clock := newTestStore(nil)

	store.JoinSession("R1", "alice", "Alice")
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 0, TimeLimit: 10, TotalQuestions: 2})
	clock.BlockUntil(1)

	// The next question supersedes the first before any tick lands.
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 1, TimeLimit: 60, TotalQuestions: 2})

	time.Sleep(50 * time.Millisecond)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitFor(t, func() bool { return store.Snapshot().TimeRemaining == 59 })

	snap := store.Snapshot()
	if snap.CurrentQuestionIndex != 1 || snap.TimeRemaining != 59 {
		t.Fatalf("stale countdown corrupted state: %+v", snap)
	}
}

func TestInterviewEndedKeepsEverythingElse(t *testing.T) {
	store, transport, _ := newTestStore(nil)
	store.JoinSession("R1", "alice", "Alice")
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 2, TimeLimit: 30, TotalQuestions: 5})
	store.SetLocalAnswer("keep me")

	transport.deliver(t, EventInterviewEnded, map[string]interface{}{"results": map[string]int{"alice": 9}})

	snap := store.Snapshot()
	if snap.InProgress {
		t.Fatalf("InProgress still set")
	}
	if snap.CurrentQuestionIndex != 2 || snap.CurrentAnswer != "keep me" ||
		snap.TimeRemaining != 30 || snap.TotalQuestions != 5 {
		t.Fatalf("interview-ended reset more than InProgress: %+v", snap)
	}
	if len(snap.Results) == 0 {
		t.Fatalf("results not retained")
	}
}

func TestResetStateKeepsIdentityAndRoster(t *testing.T) {
	store, transport, clock := newTestStore(staticHints{"R1": "alice"})
	store.JoinSession("R1", "alice", "Alice")
	transport.deliver(t, EventRoomUsers, []User{{UserID: "alice", Username: "Alice", SocketID: "s1"}})
	transport.deliver(t, EventQuestionStarted, QuestionStartedPayload{QuestionIndex: 1, TimeLimit: 30, TotalQuestions: 5})
	transport.deliver(t, EventUserSubmitted, UserSubmittedPayload{UserID: "bob"})
	store.SetLocalAnswer("scrap this")

	store.ResetState()

	snap := store.Snapshot()
	if snap.GroupID != "R1" || snap.UserID != "alice" || !snap.IsHost {
		t.Fatalf("identity cleared by reset: %+v", snap)
	}
	if len(snap.UsersInRoom) != 1 {
		t.Fatalf("room membership cleared by reset")
	}
	if snap.InProgress || snap.IsSubmitted || snap.TimeRemaining != 0 ||
		snap.CurrentQuestionIndex != 0 || snap.TotalQuestions != 0 ||
		snap.CurrentAnswer != "" || len(snap.SubmittedUsers) != 0 {
		t.Fatalf("per-session state not cleared: %+v", snap)
	}

	// The countdown must be dead after reset; time passing changes nothing.
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := store.Snapshot().TimeRemaining; got != 0 {
		t.Fatalf("countdown survived reset, TimeRemaining = %d", got)
	}
}
