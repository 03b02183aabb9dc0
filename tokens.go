package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenPurpose binds a recovery token to the one state change it authorizes
type TokenPurpose string

const (
	TokenPurposeConfirmEmail  TokenPurpose = "confirm_email"
	TokenPurposeResetPassword TokenPurpose = "reset_password"
)

// Default token expiry durations
const (
	TokenExpiryConfirmEmail  = 24 * time.Hour
	TokenExpiryResetPassword = 1 * time.Hour
)

// ErrMalformedToken is returned by DecodeToken when the input is not
// valid URL-safe base64.
var ErrMalformedToken = errors.New("malformed token")

// ErrTokenNotFound is returned by token stores for unknown, expired or
// already consumed tokens.
var ErrTokenNotFound = errors.New("token not found")

// EncodeToken encodes a raw secret for transport in a URL query parameter.
func EncodeToken(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeToken reverses EncodeToken. Trailing padding is tolerated since some
// link rewriters add it back. DecodeToken("") yields an empty secret.
func DecodeToken(encoded string) ([]byte, error) {
	trimmed := strings.TrimRight(encoded, "=")
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return raw, nil
}

// RecoveryToken is the persisted record of a single-use recovery secret.
// Only the hash of the secret is kept.
type RecoveryToken struct {
	Hash      string       `json:"hash"`
	Purpose   TokenPurpose `json:"purpose"`
	UserID    string       `json:"user_id"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// TokenStore persists recovery tokens
type TokenStore interface {
	// SaveToken stores a token record keyed by its hash
	SaveToken(ctx context.Context, token *RecoveryToken) error

	// GetToken returns the record for the given hash or ErrTokenNotFound
	GetToken(ctx context.Context, hash string) (*RecoveryToken, error)

	// DeleteToken removes a token. Deleting a missing token is not an error.
	DeleteToken(ctx context.Context, hash string) error

	// ConsumeToken atomically removes the token and returns it. Of several
	// concurrent calls for one hash exactly one succeeds; the others, and
	// any call for an unknown hash, get ErrTokenNotFound.
	ConsumeToken(ctx context.Context, hash string) (*RecoveryToken, error)

	// DeleteUserTokens removes every token of the given purpose for a user
	DeleteUserTokens(ctx context.Context, userID string, purpose TokenPurpose) error
}

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the storage key for a raw token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsExpired checks if a token has expired
func (t *RecoveryToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsValidFor checks that the token is unexpired and was minted for the given
// purpose and user.
func (t *RecoveryToken) IsValidFor(purpose TokenPurpose, userID string, now time.Time) bool {
	return t.Purpose == purpose && t.UserID == userID && !t.IsExpired(now)
}
