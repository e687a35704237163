// Package genai provides chat-completion access for RobotChat.
//
// Client performs exactly one call against an OpenAI-compatible endpoint. Sender wraps a
// Client with the retry policy, the language directive and context trimming. Session keeps
// an ordered message log on top of a Sender.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default configuration constants
const (
	// DefaultBaseURL is the DeepSeek OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.deepseek.com/v1/"
	// DefaultModel is used when a call does not name a model.
	DefaultModel = "deepseek-chat"
	// DefaultTemperature is used when a call does not set a temperature.
	DefaultTemperature = 0.7
	// DefaultMaxTokens is used when a call does not set a token limit.
	DefaultMaxTokens = 2000
	// DefaultRequestTimeout bounds a single chat-completion call.
	DefaultRequestTimeout = 60 * time.Second
)

// ErrNoChoicesReturned is wrapped by malformed-response errors.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ErrNoMessageContent is wrapped when the first choice carries no message content.
var ErrNoMessageContent = errors.New("first choice has no message content")

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// CallOptions configures one chat-completion request. Zero values take the defaults.
type CallOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int64
	Retries     int // total attempts, used by Sender only
}

// Float returns a pointer to v, for CallOptions.Temperature.
func Float(v float64) *float64 { return &v }

func (o CallOptions) withDefaults() CallOptions {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Temperature == nil {
		o.Temperature = Float(DefaultTemperature)
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	return o
}

// Completion is a successful chat-completion result.
type Completion struct {
	Content string
	RawJSON string // provider response body, relayed verbatim by the chat proxy
}

// Completer performs a single chat-completion call.
type Completer interface {
	Complete(ctx context.Context, messages []models.Message, opts CallOptions) (*Completion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	DebugDir string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the bearer token sent to the provider.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model used when a call does not name one.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call wall-clock timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebugDir enables writing every request/response pair as JSON under dir.
func WithDebugDir(dir string) Option {
	return func(o *Opts) { o.DebugDir = dir }
}

// Client wraps the OpenAI chat-completion service.
type Client struct {
	chat     chatService
	model    string
	timeout  time.Duration
	debugDir string
}

// NewClient initializes a new GenAI client. The API key falls back to the LLM_API_KEY,
// DEEPSEEK_API_KEY and OPENAI_API_KEY environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = firstEnv("LLM_API_KEY", "DEEPSEEK_API_KEY", "OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI API key not set")
		return nil, fmt.Errorf("API key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	slog.Debug("GenAI client config loaded", "base_url", cfg.BaseURL, "model", cfg.Model, "timeout", cfg.Timeout, "debug", cfg.DebugDir != "")

	// The SDK must not retry on its own: Sender owns the retry budget.
	cli := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	)
	return &Client{
		chat:     &cli.Chat.Completions,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		debugDir: cfg.DebugDir,
	}, nil
}

// Complete sends messages to the provider and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []models.Message, opts CallOptions) (*Completion, error) {
	if len(messages) == 0 {
		return nil, models.ErrEmptyMessages
	}
	if opts.Model == "" {
		opts.Model = c.model
	}
	opts = opts.withDefaults()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(opts.Model),
		Messages:    toParams(messages),
		Temperature: openai.Float(*opts.Temperature),
		MaxTokens:   openai.Int(opts.MaxTokens),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.chat.New(callCtx, params)
	if err != nil {
		apiErr := classify(callCtx, err)
		slog.Warn("GenAI.Complete: request failed", "kind", apiErr.Kind, "status", apiErr.Status, "elapsed", time.Since(start), "error", err)
		c.writeDebug(messages, opts, "", apiErr)
		return nil, apiErr
	}
	if resp == nil || len(resp.Choices) == 0 {
		apiErr := &APIError{Kind: KindMalformed, Message: "invalid API response format", Err: ErrNoChoicesReturned}
		c.writeDebug(messages, opts, "", apiErr)
		return nil, apiErr
	}
	if !resp.Choices[0].Message.JSON.Content.Valid() {
		apiErr := &APIError{Kind: KindMalformed, Message: "first choice has no message content", Err: ErrNoMessageContent}
		c.writeDebug(messages, opts, "", apiErr)
		return nil, apiErr
	}

	out := &Completion{Content: resp.Choices[0].Message.Content, RawJSON: resp.RawJSON()}
	slog.Debug("GenAI.Complete: response received", "model", opts.Model, "messages", len(messages), "elapsed", time.Since(start))
	c.writeDebug(messages, opts, out.Content, nil)
	return out, nil
}

func toParams(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// debugRecord is written to the debug directory for every call.
type debugRecord struct {
	Time     time.Time        `json:"time"`
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Reply    string           `json:"reply,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func (c *Client) writeDebug(messages []models.Message, opts CallOptions, reply string, callErr error) {
	if c.debugDir == "" {
		return
	}
	rec := debugRecord{Time: time.Now().UTC(), Model: opts.Model, Messages: messages, Reply: reply}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		slog.Warn("GenAI.writeDebug: marshal failed", "error", err)
		return
	}
	if err := os.MkdirAll(c.debugDir, 0755); err != nil {
		slog.Warn("GenAI.writeDebug: failed to create debug dir", "dir", c.debugDir, "error", err)
		return
	}
	name := fmt.Sprintf("genai_%s.json", rec.Time.Format("20060102T150405.000000000"))
	if err := os.WriteFile(filepath.Join(c.debugDir, name), data, 0644); err != nil {
		slog.Warn("GenAI.writeDebug: write failed", "error", err)
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
