package accounts

import (
	"bytes"
	"context"
	"html/template"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

const (
	// SubjectVerifyEmail is the verification message subject
	SubjectVerifyEmail = "Verify your email"
	// SubjectResetPassword is the recovery message subject
	SubjectResetPassword = "Reset your password"
)

var verificationEmailTmpl = template.Must(template.New("verification").Parse(
	`<p>Click on the following link to verify your email:</p><a href="{{.Link}}">Verify Email</a>`,
))

var passwordResetEmailTmpl = template.Must(template.New("password_reset").Parse(
	`<p>Click on the following link to choose a new password. The link expires in {{.TTL}}:</p><a href="{{.Link}}">Reset Password</a>`,
))

// LinkBuilder renders the action links and bodies embedded in outbound mail
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder normalizes the service base URL once
func NewLinkBuilder(baseURL string) *LinkBuilder {
	return &LinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// VerificationLink is the public URL that consumes a verification token
func (b *LinkBuilder) VerificationLink(token string) string {
	return b.baseURL + "/api/v1/users/verify/" + token
}

// ResetLink is the public URL that opens the reset-password flow
func (b *LinkBuilder) ResetLink(token string) string {
	return b.baseURL + "/reset-password/" + token
}

// VerificationBody renders the verification email HTML
func (b *LinkBuilder) VerificationBody(token string) (string, error) {
	return renderMailBody(verificationEmailTmpl, map[string]any{
		"Link": b.VerificationLink(token),
	})
}

// ResetBody renders the recovery email HTML
func (b *LinkBuilder) ResetBody(token, ttl string) (string, error) {
	return renderMailBody(passwordResetEmailTmpl, map[string]any{
		"Link": b.ResetLink(token),
		"TTL":  ttl,
	})
}

func renderMailBody(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to render email body")
	}
	return buf.String(), nil
}

// SMTPMailer ships mail through an SMTP relay
type SMTPMailer struct {
	client *mail.Client
	sender string
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer dials nothing up front; the client connects per send.
func NewSMTPMailer(cfg MailConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build SMTP client")
	}

	return &SMTPMailer{client: client, sender: cfg.Sender}, nil
}

// Send delivers one HTML message
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.sender); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid sender address")
	}
	if err := msg.To(to); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid recipient address")
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to deliver email")
	}

	return nil
}

// LogMailer writes outbound mail to the logger instead of the network. It is
// the default when no SMTP host is configured.
type LogMailer struct {
	logger Logger
}

var _ Mailer = (*LogMailer)(nil)

// NewLogMailer builds a log-only mailer
func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

// Send logs the message instead of delivering it
func (m *LogMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.logger.Info("outbound email", "to", to, "subject", subject, "body", htmlBody)
	return nil
}

// RecorderMailer captures messages for assertions in tests
type RecorderMailer struct {
	mu       sync.Mutex
	Messages []RecordedMessage
	// Err, when set, is returned by Send to exercise delivery failures.
	Err error
}

// RecordedMessage is one captured send
type RecordedMessage struct {
	To      string
	Subject string
	Body    string
}

var _ Mailer = (*RecorderMailer)(nil)

// Send records the message
func (m *RecorderMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.Messages = append(m.Messages, RecordedMessage{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Last returns the most recent message, if any
func (m *RecorderMailer) Last() (RecordedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Messages) == 0 {
		return RecordedMessage{}, false
	}
	return m.Messages[len(m.Messages)-1], true
}
