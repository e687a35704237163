package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/RobotChat/internal/flow"
	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/testutil"
)

// newTestServer wires a Server with a static-text wizard and a recording sink.
func newTestServer(t *testing.T, completer genai.Completer, opts ...Option) (*Server, *testutil.RecordingSink) {
	t.Helper()
	sink := &testutil.RecordingSink{}
	wizard, err := flow.NewWizard(flow.DefaultFields(), flow.NewMemorySessionStore(), sink,
		flow.WithIDGenerator(func() string { return "sess-1" }))
	if err != nil {
		t.Fatalf("failed to create wizard: %v", err)
	}
	srv, err := NewServer(completer, wizard, sink, opts...)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, sink
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	sink := &testutil.RecordingSink{}
	if _, err := NewServer(nil, nil, sink); err == nil {
		t.Error("expected error without wizard")
	}
	wizard, err := flow.NewWizard(flow.DefaultFields(), flow.NewMemorySessionStore(), sink)
	if err != nil {
		t.Fatalf("failed to create wizard: %v", err)
	}
	if _, err := NewServer(nil, wizard, nil); err == nil {
		t.Error("expected error without sink")
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/api/health", "/api/health.php"} {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, path)
		var body map[string]bool
		testutil.MustUnmarshalJSON(t, rec.Body.Bytes(), &body)
		if !body["ok"] {
			t.Errorf("%s: expected ok=true, got %s", path, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
			t.Errorf("%s: unexpected content type %q", path, ct)
		}
	}
}

func TestRouting_UnknownAndWrongMethod(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rec.Code, "unknown route")

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/contact-bot", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rec.Code, "GET on POST route")
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/contact-bot", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", SessionHeader)
	rec := serve(srv, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	srv, _ := newTestServer(t, nil, WithCORSOrigins([]string{"https://shop.example.com"}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := serve(srv, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for foreign origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec = serve(srv, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Errorf("expected allowed origin to be echoed, got %q", got)
	}
}

func TestWriteJSONResponse_MarshalFailureFallsBack(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONResponse(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rec.Code, "unmarshalable response")
	if !bytes.Equal(rec.Body.Bytes(), fallbackErrorResponse) {
		t.Errorf("expected fallback body, got %s", rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("fallback body is not an error object: %s", rec.Body.String())
	}
}
