package genai

import (
	"strings"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// DefaultContextLimit is the number of non-system messages kept when trimming.
const DefaultContextLimit = 40

// languageMarker identifies a system message that already carries the language directive.
const languageMarker = "same language"

// LanguageDirective asks the model to answer in the language of the user.
const LanguageDirective = "Always respond in the same language as the user's message. " +
	"If the user writes in Chinese, respond in Chinese. If the user writes in English, respond in English. " +
	"Follow this rule strictly for every reply."

// Trim bounds the history sent to the model. Sequences of at most limit messages are
// returned unchanged. Longer sequences keep every system message in order, followed by
// the last limit non-system messages in order. The input is never modified.
func Trim(messages []models.Message, limit int) []models.Message {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	if len(messages) <= limit {
		return messages
	}
	var system, rest []models.Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if len(rest) > limit {
		rest = rest[len(rest)-limit:]
	}
	out := make([]models.Message, 0, len(system)+len(rest))
	out = append(out, system...)
	return append(out, rest...)
}

// HasLanguageDirective reports whether a system message already contains the directive marker.
func HasLanguageDirective(messages []models.Message) bool {
	for _, m := range messages {
		if m.Role == models.RoleSystem && strings.Contains(m.Content, languageMarker) {
			return true
		}
	}
	return false
}

// EnsureLanguageDirective returns messages with the language directive at the front,
// unless one is already present. Applying it repeatedly yields exactly one directive.
func EnsureLanguageDirective(messages []models.Message) []models.Message {
	if HasLanguageDirective(messages) {
		return messages
	}
	out := make([]models.Message, 0, len(messages)+1)
	out = append(out, models.SystemMessage(LanguageDirective))
	return append(out, messages...)
}
