package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// SMTP defaults
const (
	DefaultSMTPHost    = "smtp.qq.com"
	DefaultSMTPPort    = 465
	DefaultMailTimeout = 15 * time.Second
	DefaultSubject     = "New Customer Contact Info"
)

// ErrMailNotConfigured is returned when credentials or the recipient are missing.
var ErrMailNotConfigured = errors.New("mail delivery is not configured")

// MailOpts holds configuration options for the SMTP mailer.
type MailOpts struct {
	Host     string
	Port     int
	Secure   bool // implicit TLS; otherwise STARTTLS when offered
	Username string
	Password string
	From     string // defaults to Username
	To       string
	Subject  string
	Timeout  time.Duration
}

// MailOption defines a configuration option for the SMTP mailer.
type MailOption func(*MailOpts)

// WithSMTPServer sets host, port and whether the port speaks implicit TLS.
func WithSMTPServer(host string, port int, secure bool) MailOption {
	return func(o *MailOpts) {
		o.Host = host
		o.Port = port
		o.Secure = secure
	}
}

// WithSMTPAuth sets the LOGIN credentials.
func WithSMTPAuth(username, password string) MailOption {
	return func(o *MailOpts) {
		o.Username = username
		o.Password = password
	}
}

// WithFrom overrides the sender address.
func WithFrom(from string) MailOption {
	return func(o *MailOpts) { o.From = from }
}

// WithRecipient sets the operator address.
func WithRecipient(to string) MailOption {
	return func(o *MailOpts) { o.To = to }
}

// WithSubject sets the message subject.
func WithSubject(subject string) MailOption {
	return func(o *MailOpts) { o.Subject = subject }
}

// WithMailTimeout bounds connecting and sending.
func WithMailTimeout(d time.Duration) MailOption {
	return func(o *MailOpts) { o.Timeout = d }
}

// sendFunc delivers one built message.
type sendFunc func(ctx context.Context, msg *mail.Msg) error

// Mailer e-mails each submission to the operator as an HTML label/value table.
type Mailer struct {
	cfg    MailOpts
	fields []Field
	send   sendFunc
	now    func() time.Time
}

// NewMailer creates a mailer for the given fields. It fails with ErrMailNotConfigured
// when credentials or the recipient are missing.
func NewMailer(fields []Field, opts ...MailOption) (*Mailer, error) {
	cfg := MailOpts{
		Host:    DefaultSMTPHost,
		Port:    DefaultSMTPPort,
		Secure:  true,
		Subject: DefaultSubject,
		Timeout: DefaultMailTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Mailer config loaded", "host", cfg.Host, "port", cfg.Port, "secure", cfg.Secure,
		"username_set", cfg.Username != "", "password_set", cfg.Password != "", "to", cfg.To)

	if cfg.Username == "" || cfg.Password == "" || cfg.To == "" {
		return nil, ErrMailNotConfigured
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	m := &Mailer{cfg: cfg, fields: append([]Field(nil), fields...), now: time.Now}
	m.send = m.dialAndSend
	return m, nil
}

// Notify builds and sends the submission e-mail.
func (m *Mailer) Notify(ctx context.Context, rec models.SubmissionRecord) error {
	msg, err := m.buildMessage(rec)
	if err != nil {
		return err
	}
	start := m.now()
	if err := m.send(ctx, msg); err != nil {
		slog.Error("Mailer.Notify: send failed", "to", m.cfg.To, "error", err)
		return fmt.Errorf("failed to send submission e-mail to %s: %w", m.cfg.To, err)
	}
	slog.Info("Mailer.Notify: submission e-mail sent", "to", m.cfg.To, "elapsed", m.now().Sub(start))
	return nil
}

func (m *Mailer) buildMessage(rec models.SubmissionRecord) (*mail.Msg, error) {
	html, err := RenderHTML(m.fields, rec)
	if err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(m.cfg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(m.cfg.Subject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(mail.TypeTextHTML, html)
	msg.AddAlternativeString(mail.TypeTextPlain, RenderText(m.fields, rec))
	return msg, nil
}

// dialAndSend opens one SMTP connection per message.
func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return client.DialAndSendWithContext(ctx, msg)
}
