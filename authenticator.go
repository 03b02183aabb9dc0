package authcore

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

// ExternalVerifier checks that a provider token was issued to claimedUserID.
// Implementations never fail outward: any problem is a false result, with
// the details left in their own logs.
type ExternalVerifier interface {
	Verify(ctx context.Context, token, claimedUserID string) bool
}

// Profile is the minimal profile returned next to a session credential
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AuthResult is returned by flows that authenticate the caller
type AuthResult struct {
	Session *SessionCredential `json:"session"`
	Profile Profile            `json:"profile"`
}

// Notice is returned by flows that only change account state
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// RegisterRequest holds the fields of a local registration
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// RegisterExternalRequest holds the fields of a federated registration
type RegisterExternalRequest struct {
	Provider    string
	AccessToken string
	UserID      string
	FirstName   string
	LastName    string
}

// Authenticator orchestrates the account flows. It holds no per-request
// state; all fields are set once at startup and only read afterwards.
type Authenticator struct {
	Store    IdentityStore
	Facebook ExternalVerifier
	Google   ExternalVerifier
	Sessions *SessionIssuer
	Mailer   MailDispatcher
	Links    LinkConfig
	Logger   *slog.Logger

	// AutoConfirmLocal creates local accounts with a confirmed email and
	// skips the confirmation mail. Federated accounts are never confirmed.
	AutoConfirmLocal bool
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// verifierFor selects the verification strategy for a federated provider
func (a *Authenticator) verifierFor(p Provider) (ExternalVerifier, bool) {
	var v ExternalVerifier
	switch p {
	case ProviderFacebook:
		v = a.Facebook
	case ProviderGoogle:
		v = a.Google
	case ProviderNone:
		return nil, false
	}
	return v, v != nil
}

// verifyExternal turns every verifier outcome other than true, including a
// panic, into a rejection.
func (a *Authenticator) verifyExternal(ctx context.Context, v ExternalVerifier, p Provider, token, claimedUserID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger().ErrorContext(ctx, "external verifier panicked", "provider", p.String(), "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return v.Verify(ctx, token, claimedUserID)
}

func (a *Authenticator) issue(ctx context.Context, identity *LocalIdentity) (*AuthResult, error) {
	session, err := a.Sessions.Issue(identity)
	if err != nil {
		a.logger().ErrorContext(ctx, "failed to issue session", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindInternal)
	}
	return &AuthResult{
		Session: session,
		Profile: Profile{FirstName: identity.Name.First, LastName: identity.Name.Last},
	}, nil
}

// Login authenticates a local account
func (a *Authenticator) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, NewAuthError(KindInvalidCredentials)
	}

	identity, err := a.Store.FindByUsername(ctx, username)
	if err != nil {
		a.logger().ErrorContext(ctx, "login lookup failed", "error", err)
		return nil, NewAuthError(KindInvalidCredentials)
	}
	if identity == nil {
		return nil, NewAuthError(KindInvalidCredentials)
	}
	if !identity.EmailConfirmed {
		return nil, NewAuthError(KindEmailNotConfirmed)
	}

	ok, err := a.Store.VerifyPassword(ctx, identity, password)
	if err != nil {
		a.logger().ErrorContext(ctx, "password verification failed", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindInvalidCredentials)
	}
	if !ok {
		return nil, NewAuthError(KindInvalidCredentials)
	}
	return a.issue(ctx, identity)
}

// LoginExternal authenticates a federated account with a provider token
func (a *Authenticator) LoginExternal(ctx context.Context, provider, token, claimedUserID string) (*AuthResult, error) {
	p, err := a.verifyFederated(ctx, provider, token, claimedUserID)
	if err != nil {
		return nil, err
	}

	identity, err := a.Store.FindByProviderSubject(ctx, p, claimedUserID)
	if err != nil {
		a.logger().ErrorContext(ctx, "federated lookup failed", "provider", p.String(), "error", err)
		return nil, NewAuthError(KindAccountNotFound)
	}
	if identity == nil {
		return nil, NewAuthError(KindAccountNotFound)
	}
	return a.issue(ctx, identity)
}

func (a *Authenticator) verifyFederated(ctx context.Context, provider, token, claimedUserID string) (Provider, error) {
	p, ok := ParseProvider(provider)
	if !ok {
		return ProviderNone, NewAuthError(KindUnsupportedProvider)
	}
	v, ok := a.verifierFor(p)
	if !ok {
		a.logger().WarnContext(ctx, "provider not configured", "provider", p.String())
		return ProviderNone, NewAuthError(KindUnsupportedProvider)
	}
	if token == "" || claimedUserID == "" {
		return ProviderNone, NewAuthError(KindExternalVerificationFailed)
	}
	if !a.verifyExternal(ctx, v, p, token, claimedUserID) {
		a.logger().InfoContext(ctx, "external verification rejected", "provider", p.String())
		return ProviderNone, NewAuthError(KindExternalVerificationFailed)
	}
	return p, nil
}

// Register creates a local account and mails a confirmation link. A failed
// mail leaves the account in place.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (*Notice, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, NewAuthError(KindInvalidRequest)
	}

	existing, err := a.Store.FindByEmail(ctx, email)
	if err != nil {
		a.logger().ErrorContext(ctx, "registration lookup failed", "error", err)
		return nil, NewAuthError(KindRegistrationFailed)
	}
	if existing != nil {
		return nil, NewAuthError(KindEmailInUse)
	}

	identity := &LocalIdentity{
		Username:       email,
		Email:          email,
		EmailConfirmed: a.AutoConfirmLocal,
		Name: DisplayName{
			First: NormalizeName(req.FirstName),
			Last:  NormalizeName(req.LastName),
		},
	}
	password := req.Password
	if err := a.Store.Create(ctx, identity, &password); err != nil {
		return nil, a.createError(ctx, err, KindEmailInUse)
	}

	if a.AutoConfirmLocal {
		return &Notice{Title: "Account Created", Message: "Your account has been created, you can login"}, nil
	}
	if err := a.sendConfirmation(ctx, identity); err != nil {
		a.logger().ErrorContext(ctx, "failed to send confirmation", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindConfirmationSendFailed)
	}
	return &Notice{Title: "Account Created", Message: "Your account has been created, please confirm your email address"}, nil
}

// RegisterExternal creates a federated account and signs it in
func (a *Authenticator) RegisterExternal(ctx context.Context, req RegisterExternalRequest) (*AuthResult, error) {
	p, err := a.verifyFederated(ctx, req.Provider, req.AccessToken, req.UserID)
	if err != nil {
		return nil, err
	}

	existing, err := a.Store.FindByProviderSubject(ctx, p, req.UserID)
	if err != nil {
		a.logger().ErrorContext(ctx, "federated registration lookup failed", "provider", p.String(), "error", err)
		return nil, NewAuthError(KindRegistrationFailed)
	}
	if existing != nil {
		return nil, NewAuthError(KindAlreadyRegistered)
	}

	identity := &LocalIdentity{
		Username:        req.UserID,
		Provider:        p,
		ProviderSubject: req.UserID,
		Name: DisplayName{
			First: NormalizeName(req.FirstName),
			Last:  NormalizeName(req.LastName),
		},
	}
	if err := a.Store.Create(ctx, identity, nil); err != nil {
		return nil, a.createError(ctx, err, KindAlreadyRegistered)
	}
	return a.issue(ctx, identity)
}

func (a *Authenticator) createError(ctx context.Context, err error, duplicate ErrorKind) error {
	switch {
	case errors.Is(err, ErrDuplicate):
		return NewAuthError(duplicate)
	case errors.Is(err, ErrWeakPassword):
		return NewAuthError(KindWeakPassword)
	}
	a.logger().ErrorContext(ctx, "failed to create account", "error", err)
	return NewAuthError(KindRegistrationFailed)
}

// ConfirmEmail applies a confirmation token. An already confirmed email is
// rejected before the token is looked at.
func (a *Authenticator) ConfirmEmail(ctx context.Context, email, encodedToken string) (*Notice, error) {
	identity, err := a.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity.EmailConfirmed {
		return nil, NewAuthError(KindAlreadyConfirmed)
	}

	token, err := DecodeToken(encodedToken)
	if err != nil {
		return nil, NewAuthError(KindInvalidToken)
	}
	if err := a.Store.ConfirmEmail(ctx, identity, token); err != nil {
		a.logger().InfoContext(ctx, "email confirmation rejected", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindInvalidToken)
	}
	return &Notice{Title: "Email confirmed", Message: "Your email address is confirmed. You can login now"}, nil
}

// ResendConfirmation mails a fresh confirmation link to an unconfirmed account
func (a *Authenticator) ResendConfirmation(ctx context.Context, email string) (*Notice, error) {
	identity, err := a.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity.EmailConfirmed {
		return nil, NewAuthError(KindAlreadyConfirmed)
	}
	if err := a.sendConfirmation(ctx, identity); err != nil {
		a.logger().ErrorContext(ctx, "failed to resend confirmation", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindConfirmationSendFailed)
	}
	return &Notice{Title: "Confirmation link sent", Message: "Please confirm your email address"}, nil
}

// ForgotCredentials mails the username and a password reset link
func (a *Authenticator) ForgotCredentials(ctx context.Context, email string) (*Notice, error) {
	identity, err := a.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !identity.EmailConfirmed {
		return nil, NewAuthError(KindEmailNotConfirmed)
	}
	if err := a.sendRecovery(ctx, identity); err != nil {
		a.logger().ErrorContext(ctx, "failed to send recovery mail", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindRecoverySendFailed)
	}
	return &Notice{Title: "Forgot username or password email sent", Message: "Please check your email"}, nil
}

// ResetPassword applies a reset token and sets a new password
func (a *Authenticator) ResetPassword(ctx context.Context, email, encodedToken, newPassword string) (*Notice, error) {
	identity, err := a.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !identity.EmailConfirmed {
		return nil, NewAuthError(KindEmailNotConfirmed)
	}

	token, err := DecodeToken(encodedToken)
	if err != nil {
		return nil, NewAuthError(KindInvalidToken)
	}
	if err := a.Store.ResetPassword(ctx, identity, token, newPassword); err != nil {
		if errors.Is(err, ErrWeakPassword) {
			return nil, NewAuthError(KindWeakPassword)
		}
		a.logger().InfoContext(ctx, "password reset rejected", "id", identity.ID, "error", err)
		return nil, NewAuthError(KindInvalidToken)
	}
	return &Notice{Title: "Password reset success", Message: "Your password has been reset"}, nil
}

// RefreshSession issues a new credential for an already authenticated subject
func (a *Authenticator) RefreshSession(ctx context.Context, subjectID string) (*AuthResult, error) {
	if subjectID == "" {
		return nil, NewAuthError(KindAccountNotFound)
	}
	identity, err := a.Store.FindByID(ctx, subjectID)
	if err != nil {
		a.logger().ErrorContext(ctx, "refresh lookup failed", "id", subjectID, "error", err)
		return nil, NewAuthError(KindAccountNotFound)
	}
	if identity == nil {
		return nil, NewAuthError(KindAccountNotFound)
	}
	return a.issue(ctx, identity)
}

func (a *Authenticator) findByEmail(ctx context.Context, email string) (*LocalIdentity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, NewAuthError(KindInvalidRequest)
	}
	identity, err := a.Store.FindByEmail(ctx, email)
	if err != nil {
		a.logger().ErrorContext(ctx, "email lookup failed", "error", err)
		return nil, NewAuthError(KindAccountNotFound)
	}
	if identity == nil {
		return nil, NewAuthError(KindAccountNotFound)
	}
	return identity, nil
}

func (a *Authenticator) sendConfirmation(ctx context.Context, identity *LocalIdentity) error {
	token, err := a.Store.GenerateConfirmationToken(ctx, identity)
	if err != nil {
		return err
	}
	link := a.Links.ConfirmEmailLink(EncodeToken(token), identity.Email)
	return a.sendMail(ctx, identity, SubjectConfirmEmail, confirmEmailTemplate, link)
}

func (a *Authenticator) sendRecovery(ctx context.Context, identity *LocalIdentity) error {
	token, err := a.Store.GenerateResetToken(ctx, identity)
	if err != nil {
		return err
	}
	link := a.Links.ResetPasswordLink(EncodeToken(token), identity.Email)
	return a.sendMail(ctx, identity, SubjectResetPassword, resetPasswordTemplate, link)
}

func (a *Authenticator) sendMail(ctx context.Context, identity *LocalIdentity, subject string, t *template.Template, link string) error {
	if a.Mailer == nil {
		return errors.New("no mail dispatcher configured")
	}
	body, err := renderMail(t, identity, link, a.Links.ApplicationName)
	if err != nil {
		return err
	}
	return a.Mailer.Send(ctx, identity.Email, subject, body)
}
