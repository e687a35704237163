package flow

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrNoFields is returned when a wizard is configured without any field.
var ErrNoFields = errors.New("at least one contact field is required")

// ValidationError reports why a value was rejected for a field.
// Reason is human readable and is shown to the end user as-is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validator checks one user-supplied value. A nil return accepts the value.
type Validator interface {
	Validate(field, value string) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(field, value string) error

// Validate calls f(field, value).
func (f ValidatorFunc) Validate(field, value string) error { return f(field, value) }

// NoValidation accepts any value.
var NoValidation Validator = ValidatorFunc(func(string, string) error { return nil })

// MinLength rejects values shorter than n characters.
func MinLength(n int, reason string) Validator {
	return ValidatorFunc(func(field, value string) error {
		if utf8.RuneCountInString(value) < n {
			return &ValidationError{Field: field, Reason: reason}
		}
		return nil
	})
}

// Pattern rejects values that do not match re.
func Pattern(re *regexp.Regexp, reason string) Validator {
	return ValidatorFunc(func(field, value string) error {
		if !re.MatchString(value) {
			return &ValidationError{Field: field, Reason: reason}
		}
		return nil
	})
}

var (
	phonePattern = regexp.MustCompile(`^[0-9+\-\s]{10,15}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Phone accepts 10 to 15 digits, spaces, plus signs and dashes.
func Phone(reason string) Validator { return Pattern(phonePattern, reason) }

// Email accepts a minimal local@domain.tld address.
func Email(reason string) Validator { return Pattern(emailPattern, reason) }

// FieldSpec describes one field the wizard collects, in collection order.
type FieldSpec struct {
	Name      string
	Label     string
	Prompt    string
	Validator Validator
}

// Validate runs the field's validator, if any.
func (f FieldSpec) Validate(value string) error {
	if f.Validator == nil {
		return nil
	}
	return f.Validator.Validate(f.Name, value)
}

// DefaultFields returns the built-in name, phone and email fields.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{
			Name:      "name",
			Label:     "Name",
			Prompt:    "What should I call you?",
			Validator: MinLength(2, "Name must be at least 2 characters"),
		},
		{
			Name:      "phone",
			Label:     "Phone",
			Prompt:    "Please leave your phone number so we can contact you.",
			Validator: Phone("Please enter a valid phone number"),
		},
		{
			Name:      "email",
			Label:     "Email",
			Prompt:    "Finally, please provide your email address.",
			Validator: Email("Please enter a valid email address"),
		},
	}
}

// ValidateFields checks that the list is usable by a Wizard.
func ValidateFields(fields []FieldSpec) error {
	if len(fields) == 0 {
		return ErrNoFields
	}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("field %d: duplicate name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(f.Prompt) == "" {
			return fmt.Errorf("field %q: prompt is required", name)
		}
	}
	return nil
}
