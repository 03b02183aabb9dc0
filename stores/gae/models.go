//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	"github.com/panyam/authcore"
)

// AccountEntity is the Datastore entity for accounts
type AccountEntity struct {
	Key             *datastore.Key `datastore:"__key__"`
	Username        string         `datastore:"username"`
	FirstName       string         `datastore:"first_name,noindex"`
	LastName        string         `datastore:"last_name,noindex"`
	Email           string         `datastore:"email"`
	EmailConfirmed  bool           `datastore:"email_confirmed"`
	PasswordHash    string         `datastore:"password_hash,noindex"`
	Provider        string         `datastore:"provider"`
	ProviderSubject string         `datastore:"provider_subject"`
	CreatedAt       time.Time      `datastore:"created_at"`
	UpdatedAt       time.Time      `datastore:"updated_at"`
}

func (e *AccountEntity) ToIdentity() *authcore.LocalIdentity {
	return &authcore.LocalIdentity{
		ID:              e.Key.Name,
		Username:        e.Username,
		Name:            authcore.DisplayName{First: e.FirstName, Last: e.LastName},
		Email:           e.Email,
		EmailConfirmed:  e.EmailConfirmed,
		PasswordHash:    e.PasswordHash,
		Provider:        authcore.Provider(e.Provider),
		ProviderSubject: e.ProviderSubject,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func AccountToEntity(i *authcore.LocalIdentity, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:             key,
		Username:        i.Username,
		FirstName:       i.Name.First,
		LastName:        i.Name.Last,
		Email:           i.Email,
		EmailConfirmed:  i.EmailConfirmed,
		PasswordHash:    i.PasswordHash,
		Provider:        string(i.Provider),
		ProviderSubject: i.ProviderSubject,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

// AccountKeyEntity claims a unique key for an account
type AccountKeyEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// RecoveryTokenEntity is the Datastore entity for recovery tokens.
// The key name is the token hash.
type RecoveryTokenEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Purpose   string         `datastore:"purpose"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
	ExpiresAt time.Time      `datastore:"expires_at"`
}

func (e *RecoveryTokenEntity) ToRecoveryToken() *authcore.RecoveryToken {
	return &authcore.RecoveryToken{
		Hash:      e.Key.Name,
		Purpose:   authcore.TokenPurpose(e.Purpose),
		UserID:    e.UserID,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	}
}

func RecoveryTokenToEntity(t *authcore.RecoveryToken, key *datastore.Key) *RecoveryTokenEntity {
	return &RecoveryTokenEntity{
		Key:       key,
		Purpose:   string(t.Purpose),
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}
