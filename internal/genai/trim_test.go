package genai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/RobotChat/internal/models"
)

func conversation(n int) []models.Message {
	msgs := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			msgs = append(msgs, models.UserMessage(fmt.Sprintf("u%d", i)))
		} else {
			msgs = append(msgs, models.AssistantMessage(fmt.Sprintf("a%d", i)))
		}
	}
	return msgs
}

func TestTrim_ShortSequenceIsIdentity(t *testing.T) {
	for _, n := range []int{0, 1, 39, 40} {
		msgs := conversation(n)
		out := Trim(msgs, 40)
		if len(out) != n {
			t.Fatalf("n=%d: expected %d messages, got %d", n, n, len(out))
		}
		for i := range msgs {
			if out[i] != msgs[i] {
				t.Errorf("n=%d: message %d changed", n, i)
			}
		}
	}
}

func TestTrim_KeepsSystemMessagesAndTail(t *testing.T) {
	msgs := []models.Message{models.SystemMessage("s1")}
	msgs = append(msgs, conversation(30)...)
	msgs = append(msgs, models.SystemMessage("s2"))
	msgs = append(msgs, conversation(30)...)

	out := Trim(msgs, 40)
	if len(out) != 42 {
		t.Fatalf("expected 2 system + 40 others, got %d", len(out))
	}
	if out[0].Content != "s1" || out[1].Content != "s2" {
		t.Errorf("expected system messages first in order, got %q %q", out[0].Content, out[1].Content)
	}
	var nonSystem []models.Message
	for _, m := range msgs {
		if m.Role != models.RoleSystem {
			nonSystem = append(nonSystem, m)
		}
	}
	tail := nonSystem[len(nonSystem)-40:]
	for i, m := range out[2:] {
		if m != tail[i] {
			t.Errorf("position %d: expected %+v, got %+v", i, tail[i], m)
		}
	}
}

func TestTrim_SystemMessagesMayExceedLimit(t *testing.T) {
	var msgs []models.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, models.SystemMessage(fmt.Sprintf("s%d", i)))
	}
	msgs = append(msgs, conversation(10)...)

	out := Trim(msgs, 3)
	if len(out) != 8 {
		t.Fatalf("expected 5 system + 3 others, got %d", len(out))
	}
	if out[5].Content != "a7" || out[7].Content != "a9" {
		t.Errorf("unexpected tail %+v", out[5:])
	}
}

func TestEnsureLanguageDirective_Idempotent(t *testing.T) {
	msgs := []models.Message{models.SystemMessage("be nice"), models.UserMessage("hi")}
	once := EnsureLanguageDirective(msgs)
	twice := EnsureLanguageDirective(once)

	count := 0
	for _, m := range twice {
		if m.Role == models.RoleSystem && strings.Contains(m.Content, languageMarker) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one directive, got %d", count)
	}
	if twice[0].Content != LanguageDirective {
		t.Errorf("expected directive at the front, got %q", twice[0].Content)
	}
}

func TestEnsureLanguageDirective_RespectsExistingMarker(t *testing.T) {
	msgs := []models.Message{models.UserMessage("hi"), models.SystemMessage("Reply in the same language please")}
	out := EnsureLanguageDirective(msgs)
	if len(out) != 2 {
		t.Errorf("expected no injection, got %d messages", len(out))
	}
}
