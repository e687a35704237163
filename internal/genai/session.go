package genai

import (
	"context"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// MessageSender is the capability a Session needs: send a conversation, get the reply text.
type MessageSender interface {
	Send(ctx context.Context, messages []models.Message, opts CallOptions) (string, error)
}

// Session is an ordered chat log with append, restore and rollback semantics.
// A Session is not safe for concurrent use.
type Session struct {
	sender   MessageSender
	messages []models.Message
}

// NewSession creates an empty session.
func NewSession(sender MessageSender) *Session {
	return &Session{sender: sender}
}

// RestoreFromHistory replaces the whole log with the given UI turns. Only user and
// assistant roles can be reconstructed; anything that is not "user" becomes assistant.
func (s *Session) RestoreFromHistory(turns []models.HistoryTurn) {
	s.messages = make([]models.Message, 0, len(turns))
	for _, t := range turns {
		role := models.RoleAssistant
		if t.Role == string(models.RoleUser) {
			role = models.RoleUser
		}
		s.messages = append(s.messages, models.Message{Role: role, Content: t.Message})
	}
}

// AddUserMessage appends a user message.
func (s *Session) AddUserMessage(content string) {
	s.messages = append(s.messages, models.UserMessage(content))
}

// AddAssistantMessage appends an assistant message.
func (s *Session) AddAssistantMessage(content string) {
	s.messages = append(s.messages, models.AssistantMessage(content))
}

// AddSystemMessage appends a system message.
func (s *Session) AddSystemMessage(content string) {
	s.messages = append(s.messages, models.SystemMessage(content))
}

// SendMessage appends the user message and sends the whole log. On success the reply is
// appended and returned; on failure the user message is removed again.
func (s *Session) SendMessage(ctx context.Context, text string, opts CallOptions) (string, error) {
	s.AddUserMessage(text)
	reply, err := s.sender.Send(ctx, s.History(), opts)
	if err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return "", err
	}
	s.AddAssistantMessage(reply)
	return reply, nil
}

// History returns a copy of the log.
func (s *Session) History() []models.Message {
	return append([]models.Message(nil), s.messages...)
}

// Len returns the number of messages in the log.
func (s *Session) Len() int { return len(s.messages) }

// LastMessage returns the most recent message, if any.
func (s *Session) LastMessage() (models.Message, bool) {
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Clear empties the log.
func (s *Session) Clear() {
	s.messages = nil
}
