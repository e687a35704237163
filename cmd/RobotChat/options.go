package main

import (
	"errors"
	"log/slog"

	"github.com/BTreeMap/RobotChat/internal/api"
	"github.com/BTreeMap/RobotChat/internal/config"
	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/notify"
	"github.com/BTreeMap/RobotChat/internal/store"
)

// buildStoreOptions constructs submission store options. Disabling save_to_file without
// an explicit DSN keeps submissions in memory only.
func buildStoreOptions(c Config, contact *config.Config) []store.Option {
	dsn := c.SubmissionsDSN
	if dsn == "" && !contact.Storage.SaveToFile {
		slog.Warn("save_to_file is disabled, submissions are kept in memory only")
		dsn = store.BackendMemory
	}
	opts := []store.Option{
		store.WithDSN(dsn),
		store.WithDir(submissionsDir(c, contact.Storage.Dir)),
	}
	if store.DetectDSNType(dsn) == store.BackendS3 {
		opts = append(opts, store.WithAWS(c.AWSRegion, c.AWSAccessKey, c.AWSSecretKey))
	}
	slog.Debug("store options built", "backend", store.DetectDSNType(dsn), "dir", submissionsDir(c, contact.Storage.Dir))
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(c Config) []genai.Option {
	var opts []genai.Option
	if c.LLMAPIKey != "" {
		opts = append(opts, genai.WithAPIKey(c.LLMAPIKey))
	}
	if c.LLMBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(c.LLMBaseURL))
	}
	if c.LLMModel != "" {
		opts = append(opts, genai.WithModel(c.LLMModel))
	}
	if c.LLMDebugDir != "" {
		opts = append(opts, genai.WithDebugDir(c.LLMDebugDir))
	}
	return opts
}

// buildMailer returns the submission mailer, or nil when e-mail is disabled or SMTP
// credentials are missing. Credentials in the contact config win over the environment.
func buildMailer(c Config, contact *config.Config, fields []notify.Field) (*notify.Mailer, error) {
	if !contact.Storage.SendEmail {
		slog.Info("send_email is disabled, submissions are not e-mailed")
		return nil, nil
	}
	user, pass := contact.SMTP.User, contact.SMTP.Pass
	if user == "" {
		user = c.SMTPUser
	}
	if pass == "" {
		pass = c.SMTPPass
	}
	mailer, err := notify.NewMailer(fields,
		notify.WithSMTPServer(contact.SMTP.Host, contact.SMTP.Port, contact.SMTP.Secure),
		notify.WithSMTPAuth(user, pass),
		notify.WithFrom(contact.SMTP.From),
		notify.WithRecipient(contact.RecipientEmail),
		notify.WithSubject(contact.EmailSubject),
	)
	if errors.Is(err, notify.ErrMailNotConfigured) {
		slog.Warn("SMTP credentials or recipient not configured, submissions are saved only")
		return nil, nil
	}
	return mailer, err
}

// buildSMSNotifier returns the operator SMS notifier, or nil when Twilio is not configured.
func buildSMSNotifier(fields []notify.Field) *notify.SMSNotifier {
	n, err := notify.NewSMSNotifier(fields)
	if err != nil {
		slog.Debug("SMS notifications disabled", "reason", err)
		return nil
	}
	return n
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(c Config) []api.Option {
	var opts []api.Option
	if c.APIAddr != "" {
		opts = append(opts, api.WithAddr(c.APIAddr))
	}
	if len(c.CORSOrigins) > 0 {
		opts = append(opts, api.WithCORSOrigins(c.CORSOrigins))
	}
	if c.LLMModel != "" {
		opts = append(opts, api.WithChatDefaults(genai.CallOptions{Model: c.LLMModel}))
	}
	return opts
}
