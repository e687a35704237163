package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// ErrorKind classifies a failed chat-completion call.
type ErrorKind string

const (
	// KindTimeout means the call exceeded its wall-clock timeout.
	KindTimeout ErrorKind = "timeout"
	// KindUnreachable means the provider could not be reached (DNS, refused connection, ...).
	KindUnreachable ErrorKind = "unreachable"
	// KindHTTP means the provider answered with a non-2xx status.
	KindHTTP ErrorKind = "http"
	// KindMalformed means the provider answered 2xx without a usable first choice.
	KindMalformed ErrorKind = "malformed_response"
	// KindCanceled means the caller cancelled the context.
	KindCanceled ErrorKind = "canceled"
)

// APIError is the structured failure of a single chat-completion call.
type APIError struct {
	Kind          ErrorKind
	Status        int           // HTTP status, KindHTTP only
	Message       string        // provider message when present
	RetryAfter    time.Duration // parsed Retry-After hint, zero when absent
	RetryAfterRaw string        // Retry-After header as received
	Err           error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("chat completion API error: %d %s", e.Status, e.Message)
	case KindTimeout:
		return "chat completion request timed out"
	case KindUnreachable:
		return fmt.Sprintf("chat completion API unreachable: %v", e.Err)
	case KindCanceled:
		return "chat completion request canceled"
	default:
		return fmt.Sprintf("chat completion %s: %s", e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether re-attempting the same call is considered safe.
// 429 and 5xx are retryable, every other HTTP status is not.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindHTTP:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	case KindTimeout, KindUnreachable, KindMalformed:
		return true
	default:
		return false
	}
}

// RetryError is returned once the retry budget is exhausted.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("chat completion failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// AsAPIError extracts the underlying *APIError from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// classify maps an SDK error onto the error taxonomy.
func classify(callCtx context.Context, err error) *APIError {
	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		apiErr := &APIError{Kind: KindHTTP, Status: sdkErr.StatusCode, Message: providerMessage(sdkErr), Err: err}
		if sdkErr.Response != nil {
			apiErr.RetryAfterRaw = sdkErr.Response.Header.Get("Retry-After")
			apiErr.RetryAfter = parseRetryAfter(apiErr.RetryAfterRaw, time.Now())
		}
		return apiErr
	}
	if isDecodeError(err) {
		return &APIError{Kind: KindMalformed, Message: "unparseable API response", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{Kind: KindCanceled, Err: err}
	}
	return &APIError{Kind: KindUnreachable, Err: err}
}

// nonJSONBodyMarker is part of the SDK error for a 2xx body served with a non-JSON content type.
const nonJSONBodyMarker = "for responses with content-type"

// isDecodeError reports whether err means a 2xx body could not be decoded.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return true
	}
	return strings.Contains(err.Error(), nonJSONBodyMarker)
}

// providerMessage extracts the message of a {"error":{"message":...}} body.
func providerMessage(sdkErr *openai.Error) string {
	if sdkErr.Message != "" {
		return sdkErr.Message
	}
	raw := sdkErr.RawJSON()
	if raw != "" {
		var body struct {
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal([]byte(raw), &body) == nil && len(body.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if json.Unmarshal(body.Error, &flat) == nil && flat != "" {
				return flat
			}
		}
	}
	return http.StatusText(sdkErr.StatusCode)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
