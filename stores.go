package authcore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by AccountStore lookups that match nothing
	ErrNotFound = errors.New("account not found")

	// ErrDuplicate is returned by AccountStore.CreateAccount when a unique
	// key (username, email of a local account, or provider subject) is taken
	ErrDuplicate = errors.New("account already exists")
)

// AccountStore persists LocalIdentity records. Implementations must enforce
// uniqueness of the username, of (provider, provider subject) and of the
// email among local accounts, reporting violations as ErrDuplicate.
type AccountStore interface {
	// CreateAccount inserts a new account
	CreateAccount(ctx context.Context, identity *LocalIdentity) error

	// SaveAccount updates an existing account
	SaveAccount(ctx context.Context, identity *LocalIdentity) error

	// GetAccountByID looks up an account by its id
	GetAccountByID(ctx context.Context, id string) (*LocalIdentity, error)

	// GetAccountByUsername looks up an account by username
	GetAccountByUsername(ctx context.Context, username string) (*LocalIdentity, error)

	// GetAccountByEmail looks up an account by normalized email
	GetAccountByEmail(ctx context.Context, email string) (*LocalIdentity, error)

	// GetAccountByProviderSubject looks up a federated account
	GetAccountByProviderSubject(ctx context.Context, provider Provider, subject string) (*LocalIdentity, error)
}

// IdentityStore is the identity-store contract the Authenticator depends on.
// Lookups return (nil, nil) when nothing matches; any error is a store
// failure. The store owns password hashing and recovery token validation.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (*LocalIdentity, error)
	FindByUsername(ctx context.Context, username string) (*LocalIdentity, error)
	FindByEmail(ctx context.Context, email string) (*LocalIdentity, error)
	FindByProviderSubject(ctx context.Context, provider Provider, subject string) (*LocalIdentity, error)

	// Create persists a new identity. A nil password creates an identity
	// without local credentials (federated accounts).
	Create(ctx context.Context, identity *LocalIdentity, password *string) error

	// VerifyPassword reports whether password matches the identity's
	// credentials. A mismatch is (false, nil).
	VerifyPassword(ctx context.Context, identity *LocalIdentity, password string) (bool, error)

	GenerateConfirmationToken(ctx context.Context, identity *LocalIdentity) ([]byte, error)
	ConfirmEmail(ctx context.Context, identity *LocalIdentity, token []byte) error

	GenerateResetToken(ctx context.Context, identity *LocalIdentity) ([]byte, error)
	ResetPassword(ctx context.Context, identity *LocalIdentity, token []byte, newPassword string) error
}
