package notifier

import (
	"bytes"
	"context"
	"html/template"
	"net/url"
	"strings"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

const (
	VerifyEmailPath     = "/verify-email"
	ResetPasswordPath   = "/reset-password"
	ActivateAccountPath = "/activate-account"
)

// Links builds the frontend URLs that carry opaque tokens
type Links struct {
	FrontendURL string
}

func (l Links) VerifyEmail(token string) string {
	return l.build(VerifyEmailPath, token)
}

func (l Links) ResetPassword(token string) string {
	return l.build(ResetPasswordPath, token)
}

func (l Links) ActivateAccount(token string) string {
	return l.build(ActivateAccountPath, token)
}

func (l Links) build(path, token string) string {
	return strings.TrimRight(l.FrontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// LogNotifier writes the links through the logger instead of sending mail
type LogNotifier struct {
	links  Links
	logger accounts.Logger
}

func NewLogNotifier(frontendURL string, logger accounts.Logger) *LogNotifier {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}
	return &LogNotifier{
		links:  Links{FrontendURL: frontendURL},
		logger: logger,
	}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, name, token string) error {
	n.logger.Info("verification email", "to", email, "name", name, "link", n.links.VerifyEmail(token))
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, name, token string) error {
	n.logger.Info("password reset email", "to", email, "name", name, "link", n.links.ResetPassword(token))
	return nil
}

func (n *LogNotifier) SendInvitation(ctx context.Context, email, name, token string) error {
	n.logger.Info("invitation email", "to", email, "name", name, "link", n.links.ActivateAccount(token))
	return nil
}

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FrontendURL string
}

// SMTPNotifier renders HTML emails and sends them over SMTP
type SMTPNotifier struct {
	from      string
	links     Links
	sender    Sender
	templates *template.Template
}

type SMTPOption func(*SMTPNotifier)

// WithSender replaces the SMTP dialer
func WithSender(s Sender) SMTPOption {
	return func(n *SMTPNotifier) {
		if s != nil {
			n.sender = s
		}
	}
}

func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPOption) *SMTPNotifier {
	n := &SMTPNotifier{
		from:      cfg.From,
		links:     Links{FrontendURL: cfg.FrontendURL},
		sender:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		templates: template.Must(template.New("emails").Parse(emailTemplates)),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

func (n *SMTPNotifier) SendVerification(ctx context.Context, email, name, token string) error {
	return n.send(ctx, email, "Verify your email", "verification", name, n.links.VerifyEmail(token))
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, name, token string) error {
	return n.send(ctx, email, "Reset your password", "password_reset", name, n.links.ResetPassword(token))
}

func (n *SMTPNotifier) SendInvitation(ctx context.Context, email, name, token string) error {
	return n.send(ctx, email, "You have been invited", "invitation", name, n.links.ActivateAccount(token))
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, tpl, name, link string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var body bytes.Buffer
	err := n.templates.ExecuteTemplate(&body, tpl, map[string]string{
		"Name": name,
		"Link": link,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email template")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	if err := n.sender.DialAndSend(m); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{"to": to, "template": tpl})
	}

	return nil
}

const emailTemplates = `
{{define "verification"}}<p>Hello {{.Name}},</p>
<p>confirm your email address by opening the link below. It expires in 24 hours.</p>
<p><a href="{{.Link}}">Verify email</a></p>{{end}}
{{define "password_reset"}}<p>Hello {{.Name}},</p>
<p>we received a request to reset your password. The link below expires in one hour.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for it you can ignore this email.</p>{{end}}
{{define "invitation"}}<p>Hello {{.Name}},</p>
<p>an account was created for you. Choose a password to activate it.</p>
<p><a href="{{.Link}}">Activate account</a></p>{{end}}
`
