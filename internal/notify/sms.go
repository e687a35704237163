package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// maxSMSLength keeps summaries within a few SMS segments.
const maxSMSLength = 480

// messageCreator is the part of the Twilio REST API used for SMS.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSOpts holds configuration options for the Twilio SMS notifier.
type SMSOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// SMSOption defines a configuration option for the Twilio SMS notifier.
type SMSOption func(*SMSOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) SMSOption {
	return func(o *SMSOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) SMSOption {
	return func(o *SMSOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) SMSOption {
	return func(o *SMSOpts) { o.From = from }
}

// WithOperatorPhone sets the phone number that receives the summaries.
func WithOperatorPhone(to string) SMSOption {
	return func(o *SMSOpts) { o.To = to }
}

// SMSNotifier texts a short submission summary to an operator.
type SMSNotifier struct {
	api    messageCreator
	from   string
	to     string
	fields []Field
}

// NewSMSNotifier creates a Twilio-backed notifier. Missing options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and OPERATOR_PHONE variables.
func NewSMSNotifier(fields []Field, opts ...SMSOption) (*SMSNotifier, error) {
	var cfg SMSOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("OPERATOR_PHONE")
	}
	slog.Debug("Twilio SMS config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and operator phone numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newSMSNotifier(client.Api, cfg.From, cfg.To, fields), nil
}

func newSMSNotifier(api messageCreator, from, to string, fields []Field) *SMSNotifier {
	return &SMSNotifier{api: api, from: from, to: to, fields: append([]Field(nil), fields...)}
}

// Notify sends the summary.
func (n *SMSNotifier) Notify(ctx context.Context, rec models.SubmissionRecord) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(Summary(n.fields, rec))

	if _, err := n.api.CreateMessage(params); err != nil {
		slog.Error("SMSNotifier.Notify failed", "to", n.to, "error", err)
		return fmt.Errorf("failed to send SMS to %s: %w", n.to, err)
	}
	slog.Debug("SMSNotifier.Notify: message sent", "to", n.to)
	return nil
}

// Summary renders rec on one line, truncated to a few SMS segments.
func Summary(fields []Field, rec models.SubmissionRecord) string {
	rows := Rows(fields, rec)
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, r.Label+": "+r.Value)
	}
	s := "New contact: " + strings.Join(parts, ", ")
	if r := []rune(s); len(r) > maxSMSLength {
		s = string(r[:maxSMSLength-3]) + "..."
	}
	return s
}
