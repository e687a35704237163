// Package submission persists completed contact forms and notifies the operator.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/BTreeMap/RobotChat/internal/notify"
	"github.com/BTreeMap/RobotChat/internal/store"
)

// Stage names the side effect that failed.
type Stage string

const (
	StageFile  Stage = "file"
	StageEmail Stage = "email"
	StageSMS   Stage = "sms"
)

// PersistenceError reports a failed submission side effect.
type PersistenceError struct {
	Stage Stage
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("submission %s stage failed: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Result reports which side effects succeeded. Saved and EmailSent are independent.
type Result struct {
	Saved     bool
	EmailSent bool
	SMSSent   bool
	File      string // identifier returned by the store
	Errors    []error
}

// Err joins the stage errors, or returns nil when every attempted stage succeeded.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Message is the operator-facing summary of the outcome.
func (r Result) Message() string {
	switch {
	case r.Saved && r.EmailSent:
		return "Information saved and email sent successfully"
	case r.Saved:
		return "Information saved successfully, but email sending failed"
	case r.EmailSent:
		return "Email sent successfully, but saving to file failed"
	default:
		return "Failed to save information and send email"
	}
}

// Sink stores each submission and notifies the operator. Any stage may be disabled
// by leaving its collaborator nil, in which case it is reported as not done.
type Sink struct {
	store  store.SubmissionStore
	mailer notify.Notifier
	sms    notify.Notifier
	now    func() time.Time
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithStore sets the durable store.
func WithStore(st store.SubmissionStore) SinkOption {
	return func(s *Sink) { s.store = st }
}

// WithMailer sets the e-mail notifier.
func WithMailer(n notify.Notifier) SinkOption {
	return func(s *Sink) { s.mailer = n }
}

// WithSMS sets the optional SMS notifier.
func WithSMS(n notify.Notifier) SinkOption {
	return func(s *Sink) { s.sms = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) { s.now = now }
}

// NewSink creates a Sink.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores data and attempts every notification regardless of the store outcome.
// No stage failure is fatal; the Result tells which ones succeeded.
func (s *Sink) Submit(ctx context.Context, data map[string]string, clientIP string) Result {
	rec := models.SubmissionRecord{
		Timestamp: s.now(),
		Data:      models.SanitizeCollectedData(data),
		ClientIP:  clientIP,
	}
	var res Result

	if s.store != nil {
		id, err := s.store.Save(ctx, rec)
		if err != nil {
			slog.Error("Sink.Submit: save failed", "error", err)
			res.Errors = append(res.Errors, &PersistenceError{Stage: StageFile, Err: err})
		} else {
			res.Saved = true
			res.File = id
		}
	}

	if s.mailer != nil {
		if err := s.mailer.Notify(ctx, rec); err != nil {
			slog.Error("Sink.Submit: email failed", "error", err)
			res.Errors = append(res.Errors, &PersistenceError{Stage: StageEmail, Err: err})
		} else {
			res.EmailSent = true
		}
	}

	if s.sms != nil {
		if err := s.sms.Notify(ctx, rec); err != nil {
			slog.Warn("Sink.Submit: sms failed", "error", err)
			res.Errors = append(res.Errors, &PersistenceError{Stage: StageSMS, Err: err})
		} else {
			res.SMSSent = true
		}
	}

	slog.Info("Sink.Submit: submission processed", "saved", res.Saved, "emailSent", res.EmailSent, "smsSent", res.SMSSent, "file", res.File)
	return res
}
