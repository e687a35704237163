package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/RobotChat/internal/models"
)

var testFields = []Field{
	{Name: "name", Label: "Name"},
	{Name: "phone", Label: "Phone"},
	{Name: "email", Label: "Email"},
}

func testRecord() models.SubmissionRecord {
	return models.SubmissionRecord{
		Timestamp: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Data:      map[string]string{"name": "<Alice>", "email": "alice@example.com", "company": "Acme"},
		ClientIP:  "198.51.100.4",
	}
}

func TestRows_OrderAndMissingValues(t *testing.T) {
	rows := Rows(testFields, testRecord())
	want := []Row{
		{Label: "Name", Value: "<Alice>"},
		{Label: "Phone", Value: NotProvided},
		{Label: "Email", Value: "alice@example.com"},
		{Label: "company", Value: "Acme"},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(rows), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], rows[i])
		}
	}
}

func TestRenderHTML_EscapesValues(t *testing.T) {
	body, err := RenderHTML(testFields, testRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(body, "<Alice>") {
		t.Error("expected user values to be escaped")
	}
	for _, want := range []string{"&lt;Alice&gt;", "(not provided)", "Submitted at", "2026-01-02 15:04:05 UTC", "198.51.100.4"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
}

func TestRenderText(t *testing.T) {
	text := RenderText(testFields, testRecord())
	if !strings.HasPrefix(text, "Name: <Alice>\nPhone: (not provided)\nEmail: alice@example.com\n") {
		t.Errorf("unexpected text body:\n%s", text)
	}
}

func TestNewMailer_RequiresCredentials(t *testing.T) {
	if _, err := NewMailer(testFields, WithRecipient("ops@example.com")); !errors.Is(err, ErrMailNotConfigured) {
		t.Errorf("expected ErrMailNotConfigured, got %v", err)
	}
	if _, err := NewMailer(testFields, WithSMTPAuth("bot@example.com", "secret")); !errors.Is(err, ErrMailNotConfigured) {
		t.Errorf("expected ErrMailNotConfigured without recipient, got %v", err)
	}
}

func TestMailer_Notify(t *testing.T) {
	m, err := NewMailer(testFields,
		WithSMTPAuth("bot@example.com", "secret"),
		WithRecipient("ops@example.com"),
		WithSubject("New lead"),
	)
	if err != nil {
		t.Fatalf("NewMailer failed: %v", err)
	}
	var sent []*mail.Msg
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		sent = append(sent, msg)
		return nil
	}

	if err := m.Notify(context.Background(), testRecord()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if subj := sent[0].GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != "New lead" {
		t.Errorf("unexpected subject %v", subj)
	}
	to := sent[0].GetAddrHeaderString(mail.HeaderTo)
	if len(to) != 1 || !strings.Contains(to[0], "ops@example.com") {
		t.Errorf("unexpected recipients %v", to)
	}
	from := sent[0].GetAddrHeaderString(mail.HeaderFrom)
	if len(from) != 1 || !strings.Contains(from[0], "bot@example.com") {
		t.Errorf("expected sender to default to the username, got %v", from)
	}
}

func TestMailer_NotifyPropagatesFailure(t *testing.T) {
	m, err := NewMailer(testFields, WithSMTPAuth("bot@example.com", "secret"), WithRecipient("ops@example.com"))
	if err != nil {
		t.Fatalf("NewMailer failed: %v", err)
	}
	boom := errors.New("connection refused")
	m.send = func(ctx context.Context, msg *mail.Msg) error { return boom }

	if err := m.Notify(context.Background(), testRecord()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}

type fakeMessageCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &twilioApi.ApiV2010Message{}, nil
}

func TestSMSNotifier_Notify(t *testing.T) {
	api := &fakeMessageCreator{}
	n := newSMSNotifier(api, "+15550000000", "+15551111111", testFields)

	if err := n.Notify(context.Background(), testRecord()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "+15551111111" || *p.From != "+15550000000" {
		t.Errorf("unexpected to/from %q/%q", *p.To, *p.From)
	}
	if !strings.HasPrefix(*p.Body, "New contact: Name: <Alice>, Phone: (not provided)") {
		t.Errorf("unexpected body %q", *p.Body)
	}
}

func TestSMSNotifier_NotifyError(t *testing.T) {
	api := &fakeMessageCreator{err: errors.New("twilio down")}
	n := newSMSNotifier(api, "+15550000000", "+15551111111", testFields)
	if err := n.Notify(context.Background(), testRecord()); err == nil {
		t.Error("expected error")
	}
}

func TestSummary_Truncates(t *testing.T) {
	rec := models.SubmissionRecord{Data: map[string]string{"name": strings.Repeat("x", 1000)}}
	s := Summary(testFields, rec)
	if n := len([]rune(s)); n != maxSMSLength {
		t.Errorf("expected %d runes, got %d", maxSMSLength, n)
	}
	if !strings.HasSuffix(s, "...") {
		t.Error("expected ellipsis")
	}
}

func TestNewSMSNotifier_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	if _, err := NewSMSNotifier(testFields); err == nil {
		t.Error("expected error without credentials")
	}
}
