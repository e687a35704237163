// Package config reads the contact-form configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/RobotChat/internal/flow"
	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/notify"
)

// Validator kinds accepted in the validate block of a field.
const (
	KindNone      = "none"
	KindMinLength = "min_length"
	KindPattern   = "pattern"
	KindPhone     = "phone"
	KindEmail     = "email"
)

// Config is the top-level structure of the contact configuration file.
type Config struct {
	Fields         []FieldConfig `yaml:"fields"`
	BotMessages    BotMessages   `yaml:"bot_messages"`
	Bot            BotConfig     `yaml:"bot"`
	RecipientEmail string        `yaml:"recipient_email"`
	EmailSubject   string        `yaml:"email_subject"`
	SMTP           SMTPConfig    `yaml:"smtp"`
	Storage        StorageConfig `yaml:"storage"`
}

// FieldConfig describes one collected field.
type FieldConfig struct {
	Name     string          `yaml:"name"`
	Label    string          `yaml:"label"`
	Prompt   string          `yaml:"prompt"`
	Validate *ValidateConfig `yaml:"validate,omitempty"`
}

// ValidateConfig selects and parameterizes a field validator.
type ValidateConfig struct {
	Kind    string `yaml:"kind"`    // none | min_length | pattern | phone | email
	Min     int    `yaml:"min"`     // min_length only
	Pattern string `yaml:"pattern"` // pattern only
	Message string `yaml:"message"` // shown to the user on rejection
}

// BotMessages are the static texts of the wizard.
type BotMessages struct {
	Welcome      string `yaml:"welcome"`
	ThankYou     string `yaml:"thank_you"`
	Error        string `yaml:"error"`
	InvalidInput string `yaml:"invalid_input"`
}

// BotConfig controls AI phrasing of wizard prompts.
type BotConfig struct {
	SystemPrompt string   `yaml:"system_prompt"`
	Retries      int      `yaml:"retries"`
	MaxTokens    int64    `yaml:"max_tokens"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	Model        string   `yaml:"model"`
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Secure bool   `yaml:"secure"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
	From   string `yaml:"from"`
}

// StorageConfig toggles the submission side effects.
type StorageConfig struct {
	SaveToFile bool   `yaml:"save_to_file"`
	SendEmail  bool   `yaml:"send_email"`
	Dir        string `yaml:"dir"`
}

// DefaultConfig returns the built-in contact configuration.
func DefaultConfig() *Config {
	fields := flow.DefaultFields()
	messages := flow.DefaultMessages()
	return &Config{
		Fields: []FieldConfig{
			{Name: fields[0].Name, Label: fields[0].Label, Prompt: fields[0].Prompt,
				Validate: &ValidateConfig{Kind: KindMinLength, Min: 2, Message: "Name must be at least 2 characters"}},
			{Name: fields[1].Name, Label: fields[1].Label, Prompt: fields[1].Prompt,
				Validate: &ValidateConfig{Kind: KindPhone, Message: "Please enter a valid phone number"}},
			{Name: fields[2].Name, Label: fields[2].Label, Prompt: fields[2].Prompt,
				Validate: &ValidateConfig{Kind: KindEmail, Message: "Please enter a valid email address"}},
		},
		BotMessages: BotMessages{
			Welcome:      messages.Welcome,
			ThankYou:     messages.ThankYou,
			Error:        messages.Error,
			InvalidInput: messages.InvalidInput,
		},
		Bot: BotConfig{
			SystemPrompt: flow.DefaultSystemPrompt,
			Retries:      flow.DefaultPhraseRetries,
			MaxTokens:    flow.DefaultPhraseMaxTokens,
		},
		EmailSubject: notify.DefaultSubject,
		SMTP: SMTPConfig{
			Host:   notify.DefaultSMTPHost,
			Port:   notify.DefaultSMTPPort,
			Secure: true,
		},
		Storage: StorageConfig{
			SaveToFile: true,
			SendEmail:  true,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		slog.Debug("config.Load: no contact config path, using defaults")
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config.Load: contact config not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading contact config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing contact config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid contact config %s: %w", path, err)
	}
	slog.Debug("config.Load: contact config loaded", "path", path, "fields", len(cfg.Fields))
	return cfg, nil
}

// Validate checks the field list and validator settings.
func (c *Config) Validate() error {
	_, err := c.FieldSpecs()
	return err
}

// FieldSpecs builds the wizard fields.
func (c *Config) FieldSpecs() ([]flow.FieldSpec, error) {
	specs := make([]flow.FieldSpec, 0, len(c.Fields))
	for i, f := range c.Fields {
		v, err := f.validator()
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, f.Name, err)
		}
		specs = append(specs, flow.FieldSpec{
			Name:      f.key(),
			Label:     f.displayLabel(),
			Prompt:    f.Prompt,
			Validator: v,
		})
	}
	if err := flow.ValidateFields(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// key is the collected-data key of the field.
func (f FieldConfig) key() string { return strings.TrimSpace(f.Name) }

func (f FieldConfig) displayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return f.key()
}

func (f FieldConfig) validator() (flow.Validator, error) {
	if f.Validate == nil {
		return flow.NoValidation, nil
	}
	msg := f.Validate.Message
	if msg == "" {
		msg = fmt.Sprintf("Please enter a valid %s", strings.ToLower(f.displayLabel()))
	}
	switch strings.ToLower(f.Validate.Kind) {
	case "", KindNone:
		return flow.NoValidation, nil
	case KindMinLength:
		if f.Validate.Min <= 0 {
			return nil, fmt.Errorf("min_length requires a positive min")
		}
		return flow.MinLength(f.Validate.Min, msg), nil
	case KindPattern:
		re, err := regexp.Compile(f.Validate.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return flow.Pattern(re, msg), nil
	case KindPhone:
		return flow.Phone(msg), nil
	case KindEmail:
		return flow.Email(msg), nil
	default:
		return nil, fmt.Errorf("unknown validator kind %q", f.Validate.Kind)
	}
}

// Messages returns the wizard's static texts.
func (c *Config) Messages() flow.Messages {
	return flow.Messages{
		Welcome:      c.BotMessages.Welcome,
		ThankYou:     c.BotMessages.ThankYou,
		Error:        c.BotMessages.Error,
		InvalidInput: c.BotMessages.InvalidInput,
	}
}

// CallOptions returns the model parameters for wizard phrasing.
func (c *Config) CallOptions() genai.CallOptions {
	return genai.CallOptions{
		Model:       c.Bot.Model,
		Temperature: c.Bot.Temperature,
		MaxTokens:   c.Bot.MaxTokens,
		Retries:     c.Bot.Retries,
	}
}

// NotifyFields returns the field labels used in notifications.
func (c *Config) NotifyFields() []notify.Field {
	out := make([]notify.Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, notify.Field{Name: f.key(), Label: f.displayLabel()})
	}
	return out
}
