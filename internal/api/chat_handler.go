package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/models"
)

// chatHandler relays a conversation to the provider in a single call. The client owns retries.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if s.completer == nil {
		slog.Warn("Server.chatHandler: chat completer not configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Chat API is not configured"))
		return
	}

	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err, "messages", len(req.Messages))
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	opts := s.opts.ChatOptions
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.Temperature != nil {
		opts.Temperature = req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	messages := genai.Trim(req.Messages, s.opts.ContextLimit)
	if len(messages) < len(req.Messages) {
		slog.Debug("Server.chatHandler: trimmed conversation", "from", len(req.Messages), "to", len(messages))
	}

	start := time.Now()
	resp, err := s.completer.Complete(r.Context(), messages, opts)
	if err != nil {
		status, body := chatErrorResponse(err)
		slog.Warn("Server.chatHandler: chat completion failed", "status", status, "elapsed", time.Since(start), "error", err)
		writeJSONResponse(w, status, body)
		return
	}

	slog.Info("Server.chatHandler: chat completion relayed", "messages", len(messages), "elapsed", time.Since(start))
	if resp.RawJSON != "" {
		writeRawJSON(w, http.StatusOK, []byte(resp.RawJSON))
		return
	}
	writeJSONResponse(w, http.StatusOK, syntheticCompletion(resp.Content))
}

// chatErrorResponse maps a transport failure onto the proxy's status code and error body.
func chatErrorResponse(err error) (int, models.ChatError) {
	apiErr, ok := genai.AsAPIError(err)
	if !ok {
		if errors.Is(err, models.ErrEmptyMessages) {
			return http.StatusBadRequest, models.ChatError{Error: err.Error()}
		}
		return http.StatusBadGateway, models.ChatError{Error: "Failed to reach chat API"}
	}
	switch apiErr.Kind {
	case genai.KindHTTP:
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		body := models.ChatError{Error: apiErr.Message, Status: apiErr.Status}
		if body.Error == "" {
			body.Error = fmt.Sprintf("Chat API error: %d", apiErr.Status)
		}
		if apiErr.RetryAfterRaw != "" {
			ra := apiErr.RetryAfterRaw
			body.RetryAfter = &ra
		}
		return status, body
	case genai.KindTimeout:
		return http.StatusGatewayTimeout, models.ChatError{Error: "Chat API request timed out"}
	case genai.KindMalformed:
		return http.StatusBadGateway, models.ChatError{Error: "Invalid response from chat API"}
	default:
		return http.StatusBadGateway, models.ChatError{Error: "Failed to reach chat API"}
	}
}

// syntheticCompletion mirrors the provider's response shape when no raw body is available.
func syntheticCompletion(content string) map[string]any {
	return map[string]any{
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       models.AssistantMessage(content),
		}},
	}
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
