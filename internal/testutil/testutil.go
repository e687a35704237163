// Package testutil provides common test utilities and fakes for RobotChat tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/BTreeMap/RobotChat/internal/store"
	"github.com/BTreeMap/RobotChat/internal/submission"
)

// ScriptedSender is a genai.MessageSender that returns scripted replies in order.
// Once the script is exhausted it keeps returning Fallback, or Err when set.
type ScriptedSender struct {
	mu       sync.Mutex
	Replies  []string
	Fallback string
	Err      error
	Calls    [][]models.Message
	Options  []genai.CallOptions
}

// Send records the call and returns the next scripted reply.
func (s *ScriptedSender) Send(ctx context.Context, messages []models.Message, opts genai.CallOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, append([]models.Message(nil), messages...))
	s.Options = append(s.Options, opts)
	if len(s.Replies) > 0 {
		r := s.Replies[0]
		s.Replies = s.Replies[1:]
		return r, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Fallback, nil
}

// CallCount returns the number of Send calls so far.
func (s *ScriptedSender) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// StubCompleter is a genai.Completer returning a fixed completion or error.
type StubCompleter struct {
	mu         sync.Mutex
	Completion *genai.Completion
	Err        error
	Calls      [][]models.Message
	Options    []genai.CallOptions
}

// Complete records the call and returns the configured outcome.
func (c *StubCompleter) Complete(ctx context.Context, messages []models.Message, opts genai.CallOptions) (*genai.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, append([]models.Message(nil), messages...))
	c.Options = append(c.Options, opts)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Completion, nil
}

// RecordingSink records submissions and reports the configured outcome.
// A nil Result reports everything saved and sent.
type RecordingSink struct {
	mu          sync.Mutex
	Result      *submission.Result
	Submissions []map[string]string
	ClientIPs   []string
}

// Submit records data and returns the configured Result.
func (s *RecordingSink) Submit(ctx context.Context, data map[string]string, clientIP string) submission.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.Submissions = append(s.Submissions, cp)
	s.ClientIPs = append(s.ClientIPs, clientIP)
	if s.Result != nil {
		return *s.Result
	}
	return submission.Result{Saved: true, EmailSent: true, File: "contact-test.json"}
}

// Count returns the number of recorded submissions.
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Submissions)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// AssertSubmissionCount validates the number of records in st.
func AssertSubmissionCount(t *testing.T, st store.SubmissionStore, expected int, context string) []models.SubmissionRecord {
	t.Helper()
	records, err := st.List(t.Context())
	if err != nil {
		t.Fatalf("%s: failed to list submissions: %v", context, err)
	}
	if len(records) != expected {
		t.Errorf("%s: expected %d submissions, got %d", context, expected, len(records))
	}
	return records
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
