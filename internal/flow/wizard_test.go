package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/BTreeMap/RobotChat/internal/store"
	"github.com/BTreeMap/RobotChat/internal/submission"
	"github.com/BTreeMap/RobotChat/internal/testutil"
)

func newTestWizard(t *testing.T, sink SubmissionSink, opts ...WizardOption) (*Wizard, *MemorySessionStore) {
	t.Helper()
	sessions := NewMemorySessionStore()
	opts = append([]WizardOption{WithIDGenerator(func() string { return "generated-id" })}, opts...)
	w, err := NewWizard(DefaultFields(), sessions, sink, opts...)
	if err != nil {
		t.Fatalf("NewWizard failed: %v", err)
	}
	return w, sessions
}

func handle(t *testing.T, w *Wizard, req Request) models.ContactReply {
	t.Helper()
	reply, err := w.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	return reply
}

func assertStep(t *testing.T, reply models.ContactReply, field string, current int) {
	t.Helper()
	if reply.Field != field {
		t.Errorf("expected field %q, got %q", field, reply.Field)
	}
	if reply.Progress == nil || reply.Progress.Current != current || reply.Progress.Total != 3 {
		t.Errorf("expected progress {%d,3}, got %+v", current, reply.Progress)
	}
}

func TestWizard_FullWalkStoresExactlyOneRecord(t *testing.T) {
	st := store.NewInMemoryStore()
	sink := submission.NewSink(submission.WithStore(st))
	w, sessions := newTestWizard(t, sink)

	r := handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset, Message: "ignored", ClientIP: "203.0.113.9"})
	assertStep(t, r, "name", 1)
	if r.SessionID == nil || *r.SessionID != "s1" {
		t.Errorf("expected session id s1, got %v", r.SessionID)
	}
	if r.Reply != DefaultWelcome+" What should I call you?" {
		t.Errorf("expected static greeting, got %q", r.Reply)
	}

	r = handle(t, w, Request{SessionID: "s1", Message: "Alice"})
	assertStep(t, r, "phone", 2)
	if r.Reply != "Please leave your phone number so we can contact you." {
		t.Errorf("expected static phone prompt, got %q", r.Reply)
	}

	r = handle(t, w, Request{SessionID: "s1", Message: "abc"})
	assertStep(t, r, "phone", 2)
	if !r.Error {
		t.Error("expected error for invalid phone")
	}
	if !strings.HasPrefix(r.Reply, "Please enter a valid phone number ") {
		t.Errorf("expected validation reason first, got %q", r.Reply)
	}

	r = handle(t, w, Request{SessionID: "s1", Message: "+1 555 123 4567"})
	assertStep(t, r, "email", 3)
	if r.Error {
		t.Error("unexpected error flag")
	}

	r = handle(t, w, Request{SessionID: "s1", Message: "alice@example.com"})
	if !r.Finished || r.SessionID != nil {
		t.Fatalf("expected finished with null session id, got %+v", r)
	}
	if r.Reply != DefaultThankYou {
		t.Errorf("expected static thank-you, got %q", r.Reply)
	}
	if sessions.Len() != 0 {
		t.Errorf("expected session to be deleted, %d left", sessions.Len())
	}

	records := testutil.AssertSubmissionCount(t, st, 1, "after completion")
	want := map[string]string{"name": "Alice", "phone": "+1 555 123 4567", "email": "alice@example.com"}
	for k, v := range want {
		if records[0].Data[k] != v {
			t.Errorf("record %s: expected %q, got %q", k, v, records[0].Data[k])
		}
	}
	if records[0].ClientIP != "203.0.113.9" {
		t.Errorf("expected client ip from the first request, got %q", records[0].ClientIP)
	}
}

func TestWizard_MissingSessionIDStartsFreshSession(t *testing.T) {
	w, sessions := newTestWizard(t, &testutil.RecordingSink{})

	r := handle(t, w, Request{Message: "Alice"})
	if r.SessionID == nil || *r.SessionID != "generated-id" {
		t.Fatalf("expected generated session id, got %v", r.SessionID)
	}
	assertStep(t, r, "name", 1)
	sess, ok := sessions.Get("generated-id")
	if !ok {
		t.Fatal("expected session to be stored")
	}
	if len(sess.CollectedData) != 0 {
		t.Errorf("message must not be consumed when starting, got %v", sess.CollectedData)
	}
}

func TestWizard_UnknownSessionStartsFresh(t *testing.T) {
	w, _ := newTestWizard(t, &testutil.RecordingSink{})
	r := handle(t, w, Request{SessionID: "expired", Message: "+1 555 123 4567"})
	assertStep(t, r, "name", 1)
	if r.Error {
		t.Error("starting a session is not an error")
	}
}

func TestWizard_BlankMessageIsInvalidInput(t *testing.T) {
	w, sessions := newTestWizard(t, &testutil.RecordingSink{})
	handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})

	r := handle(t, w, Request{SessionID: "s1", Message: "   "})
	assertStep(t, r, "name", 1)
	if !r.Error || r.Reply != DefaultInvalidInput+" What should I call you?" {
		t.Errorf("unexpected reply %+v", r)
	}
	sess, _ := sessions.Get("s1")
	if sess.Step != 0 || len(sess.CollectedData) != 0 {
		t.Errorf("session must not change, got %+v", sess)
	}
}

func TestWizard_ValidationFailureDoesNotMutate(t *testing.T) {
	w, sessions := newTestWizard(t, &testutil.RecordingSink{})
	handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})
	before, _ := sessions.Get("s1")

	r := handle(t, w, Request{SessionID: "s1", Message: "A"})
	if !r.Error || r.Field != "name" {
		t.Errorf("expected name validation error, got %+v", r)
	}
	after, _ := sessions.Get("s1")
	if after.Step != before.Step || len(after.CollectedData) != 0 || len(after.History) != len(before.History) {
		t.Errorf("session mutated by failed validation: before %+v after %+v", before, after)
	}
}

func TestWizard_ResetDiscardsProgress(t *testing.T) {
	w, sessions := newTestWizard(t, &testutil.RecordingSink{})
	handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})
	handle(t, w, Request{SessionID: "s1", Message: "Alice"})

	r := handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset, Message: "Bob"})
	assertStep(t, r, "name", 1)
	sess, _ := sessions.Get("s1")
	if sess.Step != 0 || len(sess.CollectedData) != 0 {
		t.Errorf("expected fresh session, got %+v", sess)
	}
}

func TestWizard_SaveFailureKeepsSessionForRetry(t *testing.T) {
	sink := &testutil.RecordingSink{Result: &submission.Result{Saved: false, EmailSent: true}}
	w, sessions := newTestWizard(t, sink)

	handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})
	handle(t, w, Request{SessionID: "s1", Message: "Alice"})
	handle(t, w, Request{SessionID: "s1", Message: "13800138000"})
	r := handle(t, w, Request{SessionID: "s1", Message: "alice@example.com"})

	if !r.Error || r.Finished || r.Reply != DefaultErrorMessage {
		t.Fatalf("expected error reply, got %+v", r)
	}
	assertStep(t, r, "email", 3)
	if _, ok := sessions.Get("s1"); !ok {
		t.Fatal("expected session to be kept after failed save")
	}

	sink.Result = nil
	r = handle(t, w, Request{SessionID: "s1", Message: "alice@example.com"})
	if !r.Finished {
		t.Fatalf("expected retry to finish, got %+v", r)
	}
	if sink.Count() != 2 {
		t.Errorf("expected two submission attempts, got %d", sink.Count())
	}
}

func TestWizard_EmailFailureStillFinishes(t *testing.T) {
	sink := &testutil.RecordingSink{Result: &submission.Result{Saved: true, EmailSent: false}}
	w, sessions := newTestWizard(t, sink)

	handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})
	handle(t, w, Request{SessionID: "s1", Message: "Alice"})
	handle(t, w, Request{SessionID: "s1", Message: "13800138000"})
	r := handle(t, w, Request{SessionID: "s1", Message: "alice@example.com"})

	if !r.Finished || r.Error {
		t.Fatalf("expected finished despite email failure, got %+v", r)
	}
	if sessions.Len() != 0 {
		t.Error("expected session to be deleted")
	}
}

func TestWizard_AIPhrasing(t *testing.T) {
	sender := &testutil.ScriptedSender{Replies: []string{"Hi there! What's your name?", "Nice to meet you, Alice! Your phone?"}}
	w, sessions := newTestWizard(t, &testutil.RecordingSink{}, WithSender(sender))

	r := handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})
	if r.Reply != "Hi there! What's your name?" {
		t.Errorf("expected AI greeting, got %q", r.Reply)
	}
	first := sender.Calls[0]
	if first[0].Role != models.RoleSystem || first[0].Content != DefaultSystemPrompt {
		t.Errorf("expected system prompt first, got %+v", first[0])
	}
	if last := first[len(first)-1]; last.Content != "Start a friendly conversation and ask for the user's name." {
		t.Errorf("unexpected greeting instruction %q", last.Content)
	}

	r = handle(t, w, Request{SessionID: "s1", Message: "Alice"})
	if r.Reply != "Nice to meet you, Alice! Your phone?" {
		t.Errorf("expected AI question, got %q", r.Reply)
	}
	second := sender.Calls[1]
	wantInstr := "The user just provided their Name: Alice. Now ask in a friendly way for their Phone."
	if last := second[len(second)-1]; last.Content != wantInstr {
		t.Errorf("expected instruction %q, got %q", wantInstr, last.Content)
	}

	sess, _ := sessions.Get("s1")
	if len(sess.History) != 3 {
		t.Fatalf("expected greeting, answer and question in history, got %+v", sess.History)
	}
	if sess.History[2].Content != "Nice to meet you, Alice! Your phone?" {
		t.Errorf("expected AI question appended as assistant turn, got %+v", sess.History[2])
	}
}

func TestWizard_PhrasingCallBudget(t *testing.T) {
	tests := []struct {
		name string
		opts []WizardOption
		want genai.CallOptions
	}{
		{"defaults", nil, genai.CallOptions{MaxTokens: DefaultPhraseMaxTokens, Retries: DefaultPhraseRetries}},
		{"configured model keeps single attempt", []WizardOption{WithCallOptions(genai.CallOptions{Model: "m"})},
			genai.CallOptions{Model: "m", MaxTokens: DefaultPhraseMaxTokens, Retries: DefaultPhraseRetries}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &testutil.ScriptedSender{Fallback: "Hello!"}
			w, _ := newTestWizard(t, &testutil.RecordingSink{}, append(tt.opts, WithSender(sender))...)
			handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})

			if len(sender.Options) != 1 {
				t.Fatalf("expected one phrasing call, got %d", len(sender.Options))
			}
			got := sender.Options[0]
			if got.Model != tt.want.Model || got.MaxTokens != tt.want.MaxTokens || got.Retries != tt.want.Retries {
				t.Errorf("call options = %+v, want %+v", got, tt.want)
			}
		})
	}
	if DefaultPhraseRetries >= genai.DefaultRetries {
		t.Errorf("phrasing should make fewer attempts than the chat default")
	}
}

func TestWizard_AIFailureFallsBackToStaticText(t *testing.T) {
	sender := &testutil.ScriptedSender{Err: errors.New("provider down")}
	w, _ := newTestWizard(t, &testutil.RecordingSink{}, WithSender(sender))

	r := handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})
	if r.Reply != w.StaticGreeting() {
		t.Errorf("expected static greeting, got %q", r.Reply)
	}
	r = handle(t, w, Request{SessionID: "s1", Message: "Alice"})
	if r.Reply != DefaultFields()[1].Prompt {
		t.Errorf("expected static prompt, got %q", r.Reply)
	}
}

func TestWizard_ConcurrentTurnsOnSameSession(t *testing.T) {
	w, sessions := newTestWizard(t, &testutil.RecordingSink{})
	handle(t, w, Request{SessionID: "s1", Action: models.ContactActionReset})

	const n = 10
	replies := make(chan models.ContactReply, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := w.Handle(context.Background(), Request{SessionID: "s1", Message: "Alice"})
			if err != nil {
				t.Errorf("Handle failed: %v", err)
				return
			}
			replies <- r
		}()
	}
	wg.Wait()
	close(replies)

	accepted := 0
	for r := range replies {
		if !r.Error {
			accepted++
		}
		if r.Field != "phone" {
			t.Errorf("expected every reply to be about phone, got %q", r.Field)
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly one turn to consume the name, got %d", accepted)
	}
	sess, _ := sessions.Get("s1")
	if sess.Step != 1 || sess.CollectedData["name"] != "Alice" {
		t.Errorf("unexpected final session %+v", sess)
	}
}

func TestWizard_HandleCancelledWhileWaiting(t *testing.T) {
	sessions := NewMemorySessionStore()
	w, err := NewWizard(DefaultFields(), sessions, &testutil.RecordingSink{})
	if err != nil {
		t.Fatalf("NewWizard failed: %v", err)
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	go sessions.Transact(context.Background(), "s1", func(sess *models.WizardSession) (*models.WizardSession, error) {
		close(entered)
		<-release
		return sess, nil
	})
	<-entered
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.Handle(ctx, Request{SessionID: "s1", Message: "Alice"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWizard_ContactConfig(t *testing.T) {
	w, _ := newTestWizard(t, &testutil.RecordingSink{}, WithMessages(Messages{Welcome: "Hey!"}))
	cfg := w.ContactConfig()
	if len(cfg.Slots) != 3 || cfg.Slots[1].Key != "phone" || cfg.Slots[1].Label != "Phone" {
		t.Errorf("unexpected slots %+v", cfg.Slots)
	}
	if cfg.Greeting != "Hey! What should I call you?" {
		t.Errorf("unexpected greeting %q", cfg.Greeting)
	}
	if cfg.CompletionMessage != DefaultThankYou {
		t.Errorf("expected default thank-you, got %q", cfg.CompletionMessage)
	}
}

func TestNewWizard_RejectsEmptyFields(t *testing.T) {
	if _, err := NewWizard(nil, NewMemorySessionStore(), &testutil.RecordingSink{}); !errors.Is(err, ErrNoFields) {
		t.Errorf("expected ErrNoFields, got %v", err)
	}
}
