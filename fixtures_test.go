package authcore_test

import (
	"context"
	"errors"
	"html"
	"net/url"
	"regexp"
	"sync"
	"testing"

	"github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/fs"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

// fakeVerifier accepts a token when it was registered for the claimed user
type fakeVerifier struct {
	tokens map[string]string
	panics bool
}

func (f *fakeVerifier) Verify(ctx context.Context, token, claimedUserID string) bool {
	if f.panics {
		panic("verifier exploded")
	}
	subject, ok := f.tokens[token]
	return ok && subject == claimedUserID
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMailer keeps every mail it is asked to send
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// linkParams returns the token and email query parameters of the link in a mail
func linkParams(t *testing.T, mail sentMail) (token, email string) {
	t.Helper()
	match := hrefPattern.FindStringSubmatch(mail.Body)
	if match == nil {
		t.Fatalf("no link in mail body: %s", mail.Body)
	}
	u, err := url.Parse(html.UnescapeString(match[1]))
	if err != nil {
		t.Fatalf("bad link %q: %v", match[1], err)
	}
	return u.Query().Get("token"), u.Query().Get("email")
}

type testEnv struct {
	Auth     *authcore.Authenticator
	Mailer   *recordingMailer
	Issuer   *authcore.SessionIssuer
	Accounts *fs.FSAccountStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	accounts := fs.NewFSAccountStore(dir)
	tokens := fs.NewFSTokenStore(dir)

	issuer, err := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: testSigningKey})
	if err != nil {
		t.Fatalf("NewSessionIssuer failed: %v", err)
	}
	mailer := &recordingMailer{}
	auth := &authcore.Authenticator{
		Store:    authcore.NewIdentityStore(accounts, tokens, authcore.WithBcryptCost(bcrypt.MinCost)),
		Facebook: &fakeVerifier{tokens: map[string]string{"fb-token": "fb-1"}},
		Google:   &fakeVerifier{tokens: map[string]string{"google-token": "g-1"}},
		Sessions: issuer,
		Mailer:   mailer,
		Links: authcore.LinkConfig{
			ClientURL:       "https://app.example.com",
			ApplicationName: "Example",
		},
	}
	return &testEnv{Auth: auth, Mailer: mailer, Issuer: issuer, Accounts: accounts}
}

// registerConfirmed creates a local account and confirms its email
func (e *testEnv) registerConfirmed(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.Auth.Register(ctx, authcore.RegisterRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: email, Password: password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	token, _ := linkParams(t, e.Mailer.last(t))
	if _, err := e.Auth.ConfirmEmail(ctx, email, token); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
}

func expectKind(t *testing.T, err error, kind authcore.ErrorKind) {
	t.Helper()
	if !authcore.IsKind(err, kind) {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}
