package authcore

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
)

// MailDispatcher sends a single HTML email. Applications provide their own
// transport; a nil error means the message was accepted for delivery.
type MailDispatcher interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// MailDispatcherFunc adapts a function to MailDispatcher
type MailDispatcherFunc func(ctx context.Context, to, subject, htmlBody string) error

func (f MailDispatcherFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	return f(ctx, to, subject, htmlBody)
}

// ConsoleMailDispatcher is a development implementation that logs emails.
// Only the recipient and subject are logged unless ShowBody is set; bodies
// carry live recovery links.
type ConsoleMailDispatcher struct {
	Logger   *slog.Logger
	ShowBody bool
}

func (c *ConsoleMailDispatcher) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if c.ShowBody {
		logger.WarnContext(ctx, "EMAIL", "to", to, "subject", subject, "body", htmlBody)
		return nil
	}
	logger.InfoContext(ctx, "EMAIL", "to", to, "subject", subject)
	return nil
}

// LinkConfig describes where recovery links point and how mails are signed
type LinkConfig struct {
	ClientURL         string // e.g. https://app.example.com
	ConfirmEmailPath  string // e.g. account/confirm-email
	ResetPasswordPath string // e.g. account/reset-password
	ApplicationName   string
}

// Default link paths
const (
	DefaultConfirmEmailPath  = "account/confirm-email"
	DefaultResetPasswordPath = "account/reset-password"
)

// ConfirmEmailLink builds the link sent in confirmation mails
func (l LinkConfig) ConfirmEmailLink(encodedToken, email string) string {
	path := l.ConfirmEmailPath
	if path == "" {
		path = DefaultConfirmEmailPath
	}
	return l.link(path, encodedToken, email)
}

// ResetPasswordLink builds the link sent in password recovery mails
func (l LinkConfig) ResetPasswordLink(encodedToken, email string) string {
	path := l.ResetPasswordPath
	if path == "" {
		path = DefaultResetPasswordPath
	}
	return l.link(path, encodedToken, email)
}

func (l LinkConfig) link(path, encodedToken, email string) string {
	q := url.Values{}
	q.Set("token", encodedToken)
	q.Set("email", email)
	return fmt.Sprintf("%s/%s?%s", strings.TrimSuffix(l.ClientURL, "/"), strings.TrimPrefix(path, "/"), q.Encode())
}

var confirmEmailTemplate = template.Must(template.New("confirm").Parse(
	`<p>Hello: {{.FirstName}} {{.LastName}}</p>` +
		`<p>Please confirm your email address by clicking on the following link.</p>` +
		`<p><a href="{{.Link}}">Click here</a></p>` +
		`<p>Thank you,</p><br>{{.ApplicationName}}`))

var resetPasswordTemplate = template.Must(template.New("reset").Parse(
	`<p>Hello: {{.FirstName}} {{.LastName}}</p>` +
		`<p>Username: {{.Username}}.</p>` +
		`<p>In order to reset your password, please click on the following link.</p>` +
		`<p><a href="{{.Link}}">Click here</a></p>` +
		`<p>Thank you,</p><br>{{.ApplicationName}}`))

type mailData struct {
	FirstName       string
	LastName        string
	Username        string
	Link            string
	ApplicationName string
}

// Subjects of the mails composed by the Authenticator
const (
	SubjectConfirmEmail  = "Confirm your email"
	SubjectResetPassword = "Forgot username or password"
)

func renderMail(t *template.Template, identity *LocalIdentity, link, appName string) (string, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, mailData{
		FirstName:       identity.Name.First,
		LastName:        identity.Name.Last,
		Username:        identity.Username,
		Link:            link,
		ApplicationName: appName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render mail: %w", err)
	}
	return buf.String(), nil
}
