package flow

import (
	"errors"
	"testing"
)

func TestDefaultFieldValidators(t *testing.T) {
	fields := DefaultFields()
	byName := map[string]FieldSpec{}
	for _, f := range fields {
		byName[f.Name] = f
	}

	tests := []struct {
		field string
		value string
		ok    bool
	}{
		{"name", "Al", true},
		{"name", "A", false},
		{"name", "李雷", true},
		{"phone", "+1 555-123-4567", true},
		{"phone", "13800138000", true},
		{"phone", "abc", false},
		{"phone", "12345", false},
		{"phone", "1234567890123456", false},
		{"email", "alice@example.com", true},
		{"email", "alice@example", false},
		{"email", "alice example@x.com", false},
		{"email", "@example.com", false},
	}
	for _, tt := range tests {
		err := byName[tt.field].Validate(tt.value)
		if tt.ok && err != nil {
			t.Errorf("%s %q: unexpected error %v", tt.field, tt.value, err)
		}
		if !tt.ok {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("%s %q: expected ValidationError, got %v", tt.field, tt.value, err)
				continue
			}
			if verr.Field != tt.field || verr.Reason == "" {
				t.Errorf("%s %q: unexpected error %+v", tt.field, tt.value, verr)
			}
		}
	}
}

func TestFieldSpec_NilValidatorAcceptsAnything(t *testing.T) {
	f := FieldSpec{Name: "note", Prompt: "Anything else?"}
	if err := f.Validate(""); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := NoValidation.Validate("note", "x"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateFields(t *testing.T) {
	if err := ValidateFields(nil); !errors.Is(err, ErrNoFields) {
		t.Errorf("expected ErrNoFields, got %v", err)
	}
	if err := ValidateFields(DefaultFields()); err != nil {
		t.Errorf("expected defaults to be valid, got %v", err)
	}
	dup := []FieldSpec{{Name: "a", Prompt: "p"}, {Name: "a", Prompt: "q"}}
	if err := ValidateFields(dup); err == nil {
		t.Error("expected duplicate name error")
	}
	if err := ValidateFields([]FieldSpec{{Name: "a"}}); err == nil {
		t.Error("expected missing prompt error")
	}
}
