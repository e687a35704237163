// Package flow implements the contact-form wizard: an ordered list of fields collected
// one user reply at a time, with AI-phrased prompts and static fallbacks.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/BTreeMap/RobotChat/internal/submission"
	"github.com/google/uuid"
)

// Default bot texts
const (
	DefaultSystemPrompt = "You are a professional customer service bot. Your task is to collect necessary information " +
		"through friendly conversation. Ask only one question at a time, be friendly and professional."
	DefaultWelcome      = "Hello! I am your intelligent assistant. To better serve you, I need to collect some basic information."
	DefaultThankYou     = "Thank you for your cooperation! Your information has been successfully submitted."
	DefaultErrorMessage = "Sorry, we encountered a technical issue. Please try again later."
	DefaultInvalidInput = "Invalid input format. Please try again."

	// DefaultPhraseMaxTokens bounds AI-phrased prompts, which are one or two sentences.
	DefaultPhraseMaxTokens = 150
	// DefaultPhraseRetries is one attempt, below the usual retry budget of genai.DefaultRetries.
	// Three attempts of up to 60s each (genai.DefaultRequestTimeout) would outlast the 90s
	// HTTP handler timeout, so a failed phrasing call falls back to the static text instead.
	DefaultPhraseRetries = 1
)

const thankYouInstruction = "The user has provided all information. Thank them warmly."

// Messages holds the static texts the wizard falls back to.
type Messages struct {
	Welcome      string
	ThankYou     string
	Error        string
	InvalidInput string
}

// DefaultMessages returns the built-in bot texts.
func DefaultMessages() Messages {
	return Messages{
		Welcome:      DefaultWelcome,
		ThankYou:     DefaultThankYou,
		Error:        DefaultErrorMessage,
		InvalidInput: DefaultInvalidInput,
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Welcome == "" {
		m.Welcome = d.Welcome
	}
	if m.ThankYou == "" {
		m.ThankYou = d.ThankYou
	}
	if m.Error == "" {
		m.Error = d.Error
	}
	if m.InvalidInput == "" {
		m.InvalidInput = d.InvalidInput
	}
	return m
}

// SubmissionSink receives the collected data of a completed wizard.
type SubmissionSink interface {
	Submit(ctx context.Context, data map[string]string, clientIP string) submission.Result
}

// Request is one user turn addressed to the wizard.
type Request struct {
	SessionID string
	Action    models.ContactAction
	Message   string
	ClientIP  string
}

// Wizard drives contact-form sessions through the configured fields.
type Wizard struct {
	fields       []FieldSpec
	messages     Messages
	sessions     SessionStore
	sink         SubmissionSink
	sender       genai.MessageSender
	systemPrompt string
	callOpts     genai.CallOptions
	newID        func() string
	now          func() time.Time
}

// WizardOption configures a Wizard.
type WizardOption func(*Wizard)

// WithSender enables AI phrasing through the given sender. Without one the wizard
// always uses the static texts.
func WithSender(s genai.MessageSender) WizardOption {
	return func(w *Wizard) { w.sender = s }
}

// WithMessages overrides the static bot texts. Empty entries keep their defaults.
func WithMessages(m Messages) WizardOption {
	return func(w *Wizard) { w.messages = m.withDefaults() }
}

// WithSystemPrompt overrides the instruction given to the model for every phrasing call.
func WithSystemPrompt(p string) WizardOption {
	return func(w *Wizard) {
		if strings.TrimSpace(p) != "" {
			w.systemPrompt = p
		}
	}
}

// WithCallOptions overrides the model parameters of phrasing calls.
func WithCallOptions(o genai.CallOptions) WizardOption {
	return func(w *Wizard) {
		if o.MaxTokens <= 0 {
			o.MaxTokens = DefaultPhraseMaxTokens
		}
		if o.Retries <= 0 {
			o.Retries = DefaultPhraseRetries
		}
		w.callOpts = o
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) WizardOption {
	return func(w *Wizard) { w.now = now }
}

// WithIDGenerator overrides how new session ids are created.
func WithIDGenerator(gen func() string) WizardOption {
	return func(w *Wizard) { w.newID = gen }
}

// NewWizard creates a Wizard over fields. The field list must be non-empty with unique names.
func NewWizard(fields []FieldSpec, sessions SessionStore, sink SubmissionSink, opts ...WizardOption) (*Wizard, error) {
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if sink == nil {
		return nil, errors.New("submission sink is required")
	}
	w := &Wizard{
		fields:       append([]FieldSpec(nil), fields...),
		messages:     DefaultMessages(),
		sessions:     sessions,
		sink:         sink,
		systemPrompt: DefaultSystemPrompt,
		callOpts:     genai.CallOptions{MaxTokens: DefaultPhraseMaxTokens, Retries: DefaultPhraseRetries},
		newID:        uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Fields returns a copy of the configured fields.
func (w *Wizard) Fields() []FieldSpec {
	return append([]FieldSpec(nil), w.fields...)
}

// StaticGreeting is the greeting used when the model cannot be reached.
func (w *Wizard) StaticGreeting() string {
	return w.messages.Welcome + " " + w.fields[0].Prompt
}

// ContactConfig describes the form for the chat widget.
func (w *Wizard) ContactConfig() models.ContactConfigResponse {
	slots := make([]models.ContactSlot, 0, len(w.fields))
	for _, f := range w.fields {
		slots = append(slots, models.ContactSlot{Key: f.Name, Label: f.Label, Prompt: f.Prompt})
	}
	return models.ContactConfigResponse{
		Slots:             slots,
		Greeting:          w.StaticGreeting(),
		CompletionMessage: w.messages.ThankYou,
	}
}

// Handle processes one user turn. A missing session id starts a new session under a
// fresh id. Transitions on the same session id are serialized by the session store.
// The returned error is non-nil only when the turn could not run at all, e.g. the
// context was cancelled while waiting for a concurrent turn on the same session.
func (w *Wizard) Handle(ctx context.Context, req Request) (models.ContactReply, error) {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = w.newID()
	}

	var reply models.ContactReply
	err := w.sessions.Transact(ctx, id, func(sess *models.WizardSession) (*models.WizardSession, error) {
		if req.Action == models.ContactActionReset || sess == nil || sess.Step < 0 || sess.Step >= len(w.fields) {
			var next *models.WizardSession
			next, reply = w.start(ctx, id, req.ClientIP)
			return next, nil
		}
		var next *models.WizardSession
		next, reply = w.advance(ctx, sess, req.Message)
		return next, nil
	})
	if err != nil {
		slog.Error("Wizard.Handle: transition failed", "sessionID", id, "error", err)
		return models.ContactReply{}, fmt.Errorf("contact session %s: %w", id, err)
	}
	return reply, nil
}

// start creates a fresh session positioned at the first field. The user message is not consumed.
func (w *Wizard) start(ctx context.Context, id, clientIP string) (*models.WizardSession, models.ContactReply) {
	slog.Debug("Wizard.start: new session", "sessionID", id)
	sess := models.NewWizardSession(id, clientIP, w.now())
	first := w.fields[0]

	instruction := fmt.Sprintf("Start a friendly conversation and ask for the user's %s.", strings.ToLower(first.Label))
	text := w.phrase(ctx, sess.History, instruction, w.StaticGreeting())
	sess.History = append(sess.History, models.AssistantMessage(text))

	return sess, models.ContactReply{
		Reply:     text,
		SessionID: stringPtr(sess.ID),
		Field:     first.Name,
		Progress:  w.progress(0),
	}
}

// advance consumes message for the current field.
func (w *Wizard) advance(ctx context.Context, sess *models.WizardSession, message string) (*models.WizardSession, models.ContactReply) {
	field := w.fields[sess.Step]
	value := strings.TrimSpace(message)
	sess.UpdatedAt = w.now()

	if value == "" {
		return sess, w.reprompt(sess, field, w.messages.InvalidInput)
	}
	if err := field.Validate(value); err != nil {
		reason := w.messages.InvalidInput
		var verr *ValidationError
		if errors.As(err, &verr) && verr.Reason != "" {
			reason = verr.Reason
		}
		slog.Debug("Wizard.advance: validation failed", "sessionID", sess.ID, "field", field.Name, "reason", reason)
		return sess, w.reprompt(sess, field, reason)
	}

	sess.CollectedData[field.Name] = value
	sess.History = append(sess.History, models.UserMessage(value))

	if sess.Step == len(w.fields)-1 {
		return w.complete(ctx, sess, field)
	}

	sess.Step++
	next := w.fields[sess.Step]
	instruction := fmt.Sprintf("The user just provided their %s: %s. Now ask in a friendly way for their %s.", field.Label, value, next.Label)
	text := w.phrase(ctx, sess.History, instruction, next.Prompt)
	sess.History = append(sess.History, models.AssistantMessage(text))

	slog.Debug("Wizard.advance: moved to next field", "sessionID", sess.ID, "step", sess.Step, "field", next.Name)
	return sess, models.ContactReply{
		Reply:     text,
		SessionID: stringPtr(sess.ID),
		Field:     next.Name,
		Progress:  w.progress(sess.Step),
	}
}

// complete hands the collected data to the sink. A saved submission ends the session even
// when the notification failed. An unsaved one keeps the session at the last field.
func (w *Wizard) complete(ctx context.Context, sess *models.WizardSession, field FieldSpec) (*models.WizardSession, models.ContactReply) {
	result := w.sink.Submit(ctx, sess.CollectedData, sess.ClientIP)
	if !result.Saved {
		slog.Error("Wizard.complete: submission not saved, keeping session", "sessionID", sess.ID, "emailSent", result.EmailSent)
		return sess, models.ContactReply{
			Reply:     w.messages.Error,
			SessionID: stringPtr(sess.ID),
			Field:     field.Name,
			Progress:  w.progress(sess.Step),
			Error:     true,
		}
	}
	if !result.EmailSent {
		slog.Warn("Wizard.complete: submission saved without email notification", "sessionID", sess.ID)
	}

	text := w.phrase(ctx, sess.History, thankYouInstruction, w.messages.ThankYou)
	slog.Info("Wizard.complete: contact form finished", "sessionID", sess.ID, "file", result.File, "emailSent", result.EmailSent)
	return nil, models.ContactReply{Reply: text, SessionID: nil, Finished: true}
}

func (w *Wizard) reprompt(sess *models.WizardSession, field FieldSpec, reason string) models.ContactReply {
	return models.ContactReply{
		Reply:     reason + " " + field.Prompt,
		SessionID: stringPtr(sess.ID),
		Field:     field.Name,
		Progress:  w.progress(sess.Step),
		Error:     true,
	}
}

func (w *Wizard) progress(step int) *models.Progress {
	return &models.Progress{Current: step + 1, Total: len(w.fields)}
}

// phrase asks the model for the next bot line given the conversation so far.
// Any failure, or an empty answer, yields fallback.
func (w *Wizard) phrase(ctx context.Context, history []models.Message, instruction, fallback string) string {
	if w.sender == nil {
		return fallback
	}
	s := genai.NewSession(w.sender)
	s.AddSystemMessage(w.systemPrompt)
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			s.AddUserMessage(m.Content)
		case models.RoleAssistant:
			s.AddAssistantMessage(m.Content)
		}
	}
	text, err := s.SendMessage(ctx, instruction, w.callOpts)
	if err != nil {
		slog.Warn("Wizard.phrase: model unavailable, using static text", "error", err)
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}
	return text
}

func stringPtr(s string) *string { return &s }
