// Package api provides the HTTP surface of RobotChat.
//
// It exposes the chat proxy used by the website widget, the contact-form wizard and the
// direct contact submission endpoint. Every route is also reachable under a ".php" alias
// so that existing front-end builds keep working unchanged.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BTreeMap/RobotChat/internal/flow"
	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/BTreeMap/RobotChat/internal/submission"
)

// Server defaults
const (
	DefaultAddr            = ":3001"
	DefaultRequestTimeout  = 90 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	// SessionHeader carries the contact-bot session identifier in both directions.
	SessionHeader = "X-Session-Id"
	// maxBodyBytes bounds every JSON request body.
	maxBodyBytes = 1 << 20
)

// ContactWizard is the contact-form conversation behind POST /api/contact-bot.
type ContactWizard interface {
	Handle(ctx context.Context, req flow.Request) (models.ContactReply, error)
	ContactConfig() models.ContactConfigResponse
}

// Submitter persists a completed contact form.
type Submitter interface {
	Submit(ctx context.Context, data map[string]string, clientIP string) submission.Result
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	ContextLimit   int
	ChatOptions    genai.CallOptions
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(o *Opts) { o.CORSOrigins = origins }
}

// WithRequestTimeout overrides the per-request handler timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) { o.RequestTimeout = d }
}

// WithContextLimit sets how many non-system messages the chat proxy forwards.
func WithContextLimit(n int) Option {
	return func(o *Opts) { o.ContextLimit = n }
}

// WithChatDefaults sets the model parameters used when a chat request omits them.
func WithChatDefaults(opts genai.CallOptions) Option {
	return func(o *Opts) { o.ChatOptions = opts }
}

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	completer genai.Completer
	wizard    ContactWizard
	sink      Submitter
	opts      Opts
	router    chi.Router
}

// NewServer builds the router. completer may be nil, in which case the chat proxy answers 503.
func NewServer(completer genai.Completer, wizard ContactWizard, sink Submitter, opts ...Option) (*Server, error) {
	if wizard == nil {
		return nil, fmt.Errorf("contact wizard is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("submission sink is required")
	}
	cfg := Opts{
		Addr:           DefaultAddr,
		CORSOrigins:    []string{"*"},
		RequestTimeout: DefaultRequestTimeout,
		ContextLimit:   genai.DefaultContextLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{completer: completer, wizard: wizard, sink: sink, opts: cfg}
	s.router = s.routes()
	slog.Debug("Server: router configured", "addr", cfg.Addr, "cors_origins", cfg.CORSOrigins, "chat_enabled", completer != nil)
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", SessionHeader},
		ExposedHeaders: []string{SessionHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.healthHandler)
		r.Post("/chat", s.chatHandler)
		r.Get("/contact-config", s.contactConfigHandler)
		r.Post("/contact-submit", s.contactSubmitHandler)
		r.Post("/contact-bot", s.contactBotHandler)
	})
	return r
}

// Handler returns the root handler including the ".php" alias rewrite.
func (s *Server) Handler() http.Handler {
	return phpAlias(s.router)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("Server.Run: stopped")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
