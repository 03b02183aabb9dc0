package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default session configuration
const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultSessionIssuer   = "authcore"
	DefaultSessionAudience = "authcore-api"
	MinSigningKeyLength    = 32
)

// ErrInvalidSession is returned by SessionIssuer.Verify for any credential
// that does not verify.
var ErrInvalidSession = errors.New("invalid session credential")

// SessionConfig holds the signing configuration. It is read once at startup.
type SessionConfig struct {
	SigningKey string        // HMAC key, at least MinSigningKeyLength bytes
	SigningAlg string        // HS256 (default), HS384 or HS512
	Issuer     string        // iss claim
	Audience   string        // aud claim
	TTL        time.Duration // credential lifetime

	// Now overrides the clock, for tests
	Now func() time.Time
}

// SessionCredential is a signed, time bounded credential handed to the caller
type SessionCredential struct {
	SubjectID   string      `json:"subject_id"`
	DisplayName DisplayName `json:"display_name"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Token       string      `json:"token"`
}

// SessionClaims are the JWT claims carried by a session credential
type SessionClaims struct {
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Provider   string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and verifies session credentials. It holds no mutable
// state and is safe for concurrent use.
type SessionIssuer struct {
	key      []byte
	method   jwt.SigningMethod
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionIssuer validates the configuration and returns an issuer. An
// error here is a fatal configuration problem.
func NewSessionIssuer(cfg SessionConfig) (*SessionIssuer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("session signing key must be at least %d bytes", MinSigningKeyLength)
	}

	var method jwt.SigningMethod
	switch cfg.SigningAlg {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported session signing algorithm %q", cfg.SigningAlg)
	}

	s := &SessionIssuer{
		key:      []byte(cfg.SigningKey),
		method:   method,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultSessionIssuer
	}
	if s.audience == "" {
		s.audience = DefaultSessionAudience
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Issue builds a fresh credential for the identity
func (s *SessionIssuer) Issue(identity *LocalIdentity) (*SessionCredential, error) {
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		Email:      identity.Email,
		GivenName:  identity.Name.First,
		FamilyName: identity.Name.Last,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if identity.IsFederated() {
		claims.Provider = string(identity.Provider)
	}

	tokenString, err := jwt.NewWithClaims(s.method, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	return &SessionCredential{
		SubjectID:   identity.ID,
		DisplayName: identity.Name,
		ExpiresAt:   expiresAt,
		Token:       tokenString,
	}, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry and
// returns the claims of a valid credential.
func (s *SessionIssuer) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return claims, nil
}

// TTL returns the lifetime of issued credentials
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}
