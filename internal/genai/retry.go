package genai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// Retry policy constants
const (
	// DefaultRetries is the total number of attempts per Send.
	DefaultRetries = 3
	// DefaultRetryDelay is the base of the exponential backoff.
	DefaultRetryDelay = 1000 * time.Millisecond
)

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sender wraps a Completer with bounded retries and exponential backoff.
type Sender struct {
	completer    Completer
	baseDelay    time.Duration
	contextLimit int
	sleep        sleepFunc
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithBaseDelay overrides the backoff base delay.
func WithBaseDelay(d time.Duration) SenderOption {
	return func(s *Sender) { s.baseDelay = d }
}

// WithContextLimit overrides how many non-system messages are kept per call.
func WithContextLimit(n int) SenderOption {
	return func(s *Sender) { s.contextLimit = n }
}

// NewSender creates a Sender over the given Completer.
func NewSender(c Completer, opts ...SenderOption) *Sender {
	s := &Sender{
		completer:    c,
		baseDelay:    DefaultRetryDelay,
		contextLimit: DefaultContextLimit,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers the conversation and returns the assistant reply text.
//
// The language directive is ensured and the history trimmed before the first attempt.
// 429 and 5xx responses, timeouts and transport failures are retried up to opts.Retries
// attempts in total; any other HTTP status fails after one attempt. The wait after attempt
// i is baseDelay*2^i, except that a 429 carrying a Retry-After hint waits for the hint.
func (s *Sender) Send(ctx context.Context, messages []models.Message, opts CallOptions) (string, error) {
	if len(messages) == 0 {
		return "", models.ErrEmptyMessages
	}
	opts = opts.withDefaults()
	prepared := Trim(EnsureLanguageDirective(messages), s.contextLimit)

	var lastErr error
	for attempt := 0; attempt < opts.Retries; attempt++ {
		resp, err := s.completer.Complete(ctx, prepared, opts)
		if err == nil {
			if attempt > 0 {
				slog.Info("Sender.Send: succeeded after retry", "attempt", attempt+1)
			}
			return resp.Content, nil
		}
		lastErr = err

		apiErr, ok := AsAPIError(err)
		if !ok || !apiErr.Retryable() {
			slog.Warn("Sender.Send: non-retryable failure", "attempt", attempt+1, "error", err)
			return "", err
		}
		slog.Warn("Sender.Send: attempt failed", "attempt", attempt+1, "of", opts.Retries, "kind", apiErr.Kind, "status", apiErr.Status, "error", err)

		if attempt == opts.Retries-1 {
			break
		}
		wait := s.baseDelay << attempt
		if apiErr.Kind == KindHTTP && apiErr.Status == 429 && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		slog.Debug("Sender.Send: waiting before retry", "wait", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return "", errors.Join(err, lastErr)
		}
	}
	return "", &RetryError{Attempts: opts.Retries, Last: lastErr}
}
