// Package models defines the core data structures for RobotChat.
//
// It includes chat messages, contact-form wizard sessions, submission records and the
// request/response shapes of the HTTP API, which are shared across modules.
package models

import (
	"errors"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem carries instructions for the model.
	RoleSystem Role = "system"
	// RoleUser is a message written by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model or the bot.
	RoleAssistant Role = "assistant"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxMessageContentLength defines the maximum allowed length for a single message
	MaxMessageContentLength = 32768
	// MaxChatMessages defines the maximum number of messages accepted by the chat proxy
	MaxChatMessages = 500
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessages         = errors.New("messages array is required")
	ErrTooManyMessages       = errors.New("too many messages")
	ErrInvalidRole           = errors.New("invalid message role")
	ErrMessageTooLong        = errors.New("message content exceeds maximum length")
	ErrMissingCollectedData  = errors.New("collectedData object is required")
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidContactAction  = errors.New("invalid contact action")
	ErrEmptySubmissionRecord = errors.New("submission record has no data")
)

// Message is a single chat turn as sent to the chat-completion API.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user-role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// HistoryTurn is a conversation turn as the chat widget stores it.
type HistoryTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// ChatRequest is the payload of POST /api/chat.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int64    `json:"maxTokens,omitempty"`
}

// Validate performs validation on a ChatRequest.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	if len(r.Messages) > MaxChatMessages {
		return ErrTooManyMessages
	}
	for _, m := range r.Messages {
		if !IsValidRole(m.Role) {
			return ErrInvalidRole
		}
		if len(m.Content) > MaxMessageContentLength {
			return ErrMessageTooLong
		}
	}
	return nil
}

// ChatError is the error body returned by POST /api/chat.
type ChatError struct {
	Error      string  `json:"error"`
	Status     int     `json:"status,omitempty"`
	RetryAfter *string `json:"retryAfter"`
}

// ContactAction is the optional action of a contact-bot request.
type ContactAction string

const (
	// ContactActionNone continues the current conversation.
	ContactActionNone ContactAction = ""
	// ContactActionReset starts a fresh conversation.
	ContactActionReset ContactAction = "reset"
)

// ContactBotRequest is the payload of POST /api/contact-bot.
type ContactBotRequest struct {
	Message string        `json:"message"`
	Action  ContactAction `json:"action,omitempty"`
}

// Validate performs validation on a ContactBotRequest.
func (r *ContactBotRequest) Validate() error {
	switch r.Action {
	case ContactActionNone, ContactActionReset:
	default:
		return ErrInvalidContactAction
	}
	if len(r.Message) > MaxMessageContentLength {
		return ErrMessageTooLong
	}
	return nil
}

// Progress reports how far a wizard conversation has advanced.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ContactReply is the response of the contact-form wizard for one user turn.
// SessionID is serialized as null once the conversation has finished.
type ContactReply struct {
	Reply     string    `json:"reply"`
	SessionID *string   `json:"sessionId"`
	Field     string    `json:"field,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
	Finished  bool      `json:"finished,omitempty"`
	Error     bool      `json:"error,omitempty"`
}

// ContactSubmitRequest is the payload of POST /api/contact-submit.
type ContactSubmitRequest struct {
	CollectedData map[string]string `json:"collectedData"`
}

// Validate performs validation on a ContactSubmitRequest.
func (r *ContactSubmitRequest) Validate() error {
	if r.CollectedData == nil {
		return ErrMissingCollectedData
	}
	return nil
}

// ContactSubmitResponse is the response of POST /api/contact-submit.
type ContactSubmitResponse struct {
	Success   bool   `json:"success"`
	Saved     bool   `json:"saved"`
	EmailSent bool   `json:"emailSent"`
	Message   string `json:"message"`
}

// ContactSlot describes one collected field for the chat widget.
type ContactSlot struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// ContactConfigResponse is the response of GET /api/contact-config.
type ContactConfigResponse struct {
	Slots             []ContactSlot `json:"slots"`
	Greeting          string        `json:"greeting"`
	CompletionMessage string        `json:"completionMessage"`
}

// ErrorResponse is the generic error body returned by API handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error creates an error API response with a message.
func Error(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

// SanitizeCollectedData trims surrounding whitespace from keys and values and drops empty keys.
func SanitizeCollectedData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
