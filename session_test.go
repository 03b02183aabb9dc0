package authcore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/panyam/authcore"
)

func TestNewSessionIssuer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     authcore.SessionConfig
		wantErr bool
	}{
		{"defaults", authcore.SessionConfig{SigningKey: testSigningKey}, false},
		{"HS512", authcore.SessionConfig{SigningKey: testSigningKey, SigningAlg: "HS512"}, false},
		{"short key", authcore.SessionConfig{SigningKey: "short"}, true},
		{"asymmetric alg", authcore.SessionConfig{SigningKey: testSigningKey, SigningAlg: "RS256"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authcore.NewSessionIssuer(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSessionIssueAndVerify(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, err := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: testSigningKey, TTL: time.Hour, Now: clock})
	if err != nil {
		t.Fatalf("NewSessionIssuer failed: %v", err)
	}
	identity := &authcore.LocalIdentity{
		ID:    "u1",
		Email: "ada@example.com",
		Name:  authcore.DisplayName{First: "ada", Last: "lovelace"},
	}

	cred, err := issuer.Issue(identity)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if cred.SubjectID != "u1" || !cred.ExpiresAt.Equal(now.Add(time.Hour)) || cred.DisplayName.String() != "ada lovelace" {
		t.Errorf("unexpected credential %+v", cred)
	}

	claims, err := issuer.Verify(cred.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "u1" || claims.GivenName != "ada" || claims.Provider != "" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.Issuer != authcore.DefaultSessionIssuer {
		t.Errorf("expected issuer %s, got %s", authcore.DefaultSessionIssuer, claims.Issuer)
	}

	now = now.Add(2 * time.Hour)
	if _, err := issuer.Verify(cred.Token); !errors.Is(err, authcore.ErrInvalidSession) {
		t.Errorf("expected expired credential to be rejected, got %v", err)
	}
}

func TestSessionVerifyRejects(t *testing.T) {
	issuer, err := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: testSigningKey})
	if err != nil {
		t.Fatalf("NewSessionIssuer failed: %v", err)
	}
	otherKey, _ := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: "another-signing-key-0123456789abcd"})
	otherAudience, _ := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: testSigningKey, Audience: "someone-else"})
	otherAlg, _ := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: testSigningKey, SigningAlg: "HS384"})

	identity := &authcore.LocalIdentity{ID: "u1"}
	issue := func(i *authcore.SessionIssuer) string {
		cred, err := i.Issue(identity)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		return cred.Token
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    authcore.DefaultSessionIssuer,
		Audience:  jwt.ClaimStrings{authcore.DefaultSessionAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "u1",
		Issuer:   authcore.DefaultSessionIssuer,
		Audience: jwt.ClaimStrings{authcore.DefaultSessionAudience},
	}).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"other key", issue(otherKey)},
		{"other audience", issue(otherAudience)},
		{"other algorithm", issue(otherAlg)},
		{"alg none", unsigned},
		{"no expiry", noExpiry},
		{"garbage", "not.a.jwt"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Verify(tt.token); !errors.Is(err, authcore.ErrInvalidSession) {
				t.Errorf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestSessionFederatedClaims(t *testing.T) {
	issuer, err := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: testSigningKey})
	if err != nil {
		t.Fatalf("NewSessionIssuer failed: %v", err)
	}
	cred, err := issuer.Issue(&authcore.LocalIdentity{ID: "u2", Provider: authcore.ProviderFacebook, ProviderSubject: "fb-1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := issuer.Verify(cred.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Provider != "facebook" {
		t.Errorf("expected provider claim facebook, got %q", claims.Provider)
	}
}
