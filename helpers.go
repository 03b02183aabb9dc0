package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultMinPasswordLength is the shortest password Create and
// ResetPassword accept.
const DefaultMinPasswordLength = 6

var (
	// ErrWeakPassword is returned when a new password violates the policy
	ErrWeakPassword = errors.New("password does not meet the policy")

	// ErrInvalidRecoveryToken is returned for unknown, expired, reused or
	// mismatched recovery tokens
	ErrInvalidRecoveryToken = errors.New("invalid or expired token")

	// ErrInconsistentLink is returned when Provider and ProviderSubject are
	// not both set or both unset
	ErrInconsistentLink = errors.New("provider and provider subject must be set together")
)

// DefaultIdentityStore implements IdentityStore on top of an AccountStore
// and a TokenStore. It hashes passwords with bcrypt and keeps recovery
// tokens hashed, purpose bound and single use.
type DefaultIdentityStore struct {
	accounts          AccountStore
	tokens            TokenStore
	bcryptCost        int
	minPasswordLength int
	now               func() time.Time
	logger            *slog.Logger
}

// IdentityStoreOption configures a DefaultIdentityStore
type IdentityStoreOption func(*DefaultIdentityStore)

// WithBcryptCost overrides bcrypt.DefaultCost
func WithBcryptCost(cost int) IdentityStoreOption {
	return func(s *DefaultIdentityStore) { s.bcryptCost = cost }
}

// WithMinPasswordLength overrides DefaultMinPasswordLength
func WithMinPasswordLength(n int) IdentityStoreOption {
	return func(s *DefaultIdentityStore) { s.minPasswordLength = n }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) IdentityStoreOption {
	return func(s *DefaultIdentityStore) { s.now = now }
}

// WithStoreLogger sets the logger used for store diagnostics
func WithStoreLogger(logger *slog.Logger) IdentityStoreOption {
	return func(s *DefaultIdentityStore) { s.logger = logger }
}

// NewIdentityStore creates an IdentityStore from primitive stores
func NewIdentityStore(accounts AccountStore, tokens TokenStore, opts ...IdentityStoreOption) *DefaultIdentityStore {
	s := &DefaultIdentityStore{
		accounts:          accounts,
		tokens:            tokens,
		bcryptCost:        bcrypt.DefaultCost,
		minPasswordLength: DefaultMinPasswordLength,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *DefaultIdentityStore) FindByID(ctx context.Context, id string) (*LocalIdentity, error) {
	return notFoundAsNil(s.accounts.GetAccountByID(ctx, id))
}

func (s *DefaultIdentityStore) FindByUsername(ctx context.Context, username string) (*LocalIdentity, error) {
	return notFoundAsNil(s.accounts.GetAccountByUsername(ctx, username))
}

func (s *DefaultIdentityStore) FindByEmail(ctx context.Context, email string) (*LocalIdentity, error) {
	return notFoundAsNil(s.accounts.GetAccountByEmail(ctx, NormalizeEmail(email)))
}

func (s *DefaultIdentityStore) FindByProviderSubject(ctx context.Context, provider Provider, subject string) (*LocalIdentity, error) {
	return notFoundAsNil(s.accounts.GetAccountByProviderSubject(ctx, provider, subject))
}

func (s *DefaultIdentityStore) Create(ctx context.Context, identity *LocalIdentity, password *string) error {
	if !identity.HasConsistentLink() {
		return ErrInconsistentLink
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	identity.Email = NormalizeEmail(identity.Email)

	if password != nil {
		hash, err := s.hashPassword(*password)
		if err != nil {
			return err
		}
		identity.PasswordHash = hash
	}

	now := s.now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	if err := s.accounts.CreateAccount(ctx, identity); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	s.logger.InfoContext(ctx, "created account", "id", identity.ID, "provider", identity.Provider.String())
	return nil
}

func (s *DefaultIdentityStore) VerifyPassword(ctx context.Context, identity *LocalIdentity, password string) (bool, error) {
	if identity.PasswordHash == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
	return true, nil
}

func (s *DefaultIdentityStore) GenerateConfirmationToken(ctx context.Context, identity *LocalIdentity) ([]byte, error) {
	return s.mintToken(ctx, identity, TokenPurposeConfirmEmail, TokenExpiryConfirmEmail)
}

func (s *DefaultIdentityStore) GenerateResetToken(ctx context.Context, identity *LocalIdentity) ([]byte, error) {
	return s.mintToken(ctx, identity, TokenPurposeResetPassword, TokenExpiryResetPassword)
}

func (s *DefaultIdentityStore) ConfirmEmail(ctx context.Context, identity *LocalIdentity, token []byte) error {
	current, err := s.accounts.GetAccountByID(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	record, err := s.consumeToken(ctx, identity, TokenPurposeConfirmEmail, token)
	if err != nil {
		return err
	}

	current.EmailConfirmed = true
	current.UpdatedAt = s.now()
	if err := s.accounts.SaveAccount(ctx, current); err != nil {
		s.restoreToken(ctx, record)
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	identity.EmailConfirmed = true
	return nil
}

func (s *DefaultIdentityStore) ResetPassword(ctx context.Context, identity *LocalIdentity, token []byte, newPassword string) error {
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	current, err := s.accounts.GetAccountByID(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	record, err := s.consumeToken(ctx, identity, TokenPurposeResetPassword, token)
	if err != nil {
		return err
	}

	current.PasswordHash = hash
	current.UpdatedAt = s.now()
	if err := s.accounts.SaveAccount(ctx, current); err != nil {
		s.restoreToken(ctx, record)
		return fmt.Errorf("failed to update password: %w", err)
	}
	s.logger.InfoContext(ctx, "password updated", "id", identity.ID)
	return nil
}

func (s *DefaultIdentityStore) hashPassword(password string) (string, error) {
	if len(password) < s.minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// mintToken replaces any outstanding token of the same purpose, so only the
// most recently mailed link works.
func (s *DefaultIdentityStore) mintToken(ctx context.Context, identity *LocalIdentity, purpose TokenPurpose, ttl time.Duration) ([]byte, error) {
	if err := s.tokens.DeleteUserTokens(ctx, identity.ID, purpose); err != nil {
		return nil, fmt.Errorf("failed to clear old tokens: %w", err)
	}

	raw, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	record := &RecoveryToken{
		Hash:      HashToken(raw),
		Purpose:   purpose,
		UserID:    identity.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.tokens.SaveToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return []byte(raw), nil
}

// consumeToken validates the token and then claims it with ConsumeToken.
// Only the caller whose claim succeeds may mutate the account, so a token
// is applied at most once even under concurrent use. A token presented for
// the wrong purpose or account is left in place.
func (s *DefaultIdentityStore) consumeToken(ctx context.Context, identity *LocalIdentity, purpose TokenPurpose, token []byte) (*RecoveryToken, error) {
	hash := HashToken(string(token))
	record, err := s.tokens.GetToken(ctx, hash)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrInvalidRecoveryToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if !record.IsValidFor(purpose, identity.ID, s.now()) {
		if record.IsExpired(s.now()) {
			_ = s.tokens.DeleteToken(ctx, hash)
		}
		return nil, ErrInvalidRecoveryToken
	}

	claimed, err := s.tokens.ConsumeToken(ctx, hash)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrInvalidRecoveryToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	if !claimed.IsValidFor(purpose, identity.ID, s.now()) {
		return nil, ErrInvalidRecoveryToken
	}
	return claimed, nil
}

// restoreToken puts a claimed token back after the account update it
// authorized failed, so the mailed link keeps working.
func (s *DefaultIdentityStore) restoreToken(ctx context.Context, record *RecoveryToken) {
	if err := s.tokens.SaveToken(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "failed to restore recovery token", "id", record.UserID, "purpose", string(record.Purpose), "error", err)
	}
}

func notFoundAsNil(identity *LocalIdentity, err error) (*LocalIdentity, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}
