//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/panyam/authcore"
)

// AutoMigrate runs database migrations for all authcore tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&RecoveryTokenModel{},
	)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", authcore.ErrDuplicate, err)
	}
	return err
}

// =============================================================================
// AccountStore
// =============================================================================

// AccountStore implements authcore.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, identity *authcore.LocalIdentity) error {
	return translate(s.db.WithContext(ctx).Create(AccountToModel(identity)).Error, authcore.ErrNotFound)
}

func (s *AccountStore) SaveAccount(ctx context.Context, identity *authcore.LocalIdentity) error {
	result := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", identity.ID).
		Select("*").Omit("created_at").
		Updates(AccountToModel(identity))
	if err := translate(result.Error, authcore.ErrNotFound); err != nil {
		return err
	}
	if result.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *AccountStore) first(ctx context.Context, query string, args ...any) (*authcore.LocalIdentity, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		return nil, translate(err, authcore.ErrNotFound)
	}
	return model.ToIdentity(), nil
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*authcore.LocalIdentity, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *AccountStore) GetAccountByUsername(ctx context.Context, username string) (*authcore.LocalIdentity, error) {
	return s.first(ctx, "normalized_username = ?", normalizeUsername(username))
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*authcore.LocalIdentity, error) {
	return s.first(ctx, "email = ?", authcore.NormalizeEmail(email))
}

func (s *AccountStore) GetAccountByProviderSubject(ctx context.Context, provider authcore.Provider, subject string) (*authcore.LocalIdentity, error) {
	return s.first(ctx, "provider = ? AND provider_subject = ?", string(provider), subject)
}

// =============================================================================
// TokenStore
// =============================================================================

// TokenStore implements authcore.TokenStore using GORM
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) SaveToken(ctx context.Context, token *authcore.RecoveryToken) error {
	return translate(s.db.WithContext(ctx).Create(RecoveryTokenToModel(token)).Error, authcore.ErrTokenNotFound)
}

func (s *TokenStore) GetToken(ctx context.Context, hash string) (*authcore.RecoveryToken, error) {
	var model RecoveryTokenModel
	if err := s.db.WithContext(ctx).First(&model, "hash = ?", hash).Error; err != nil {
		return nil, translate(err, authcore.ErrTokenNotFound)
	}
	return model.ToRecoveryToken(), nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, hash string) error {
	return s.db.WithContext(ctx).Delete(&RecoveryTokenModel{}, "hash = ?", hash).Error
}

// ConsumeToken deletes the row inside a transaction and only succeeds for
// the caller whose delete affected it.
func (s *TokenStore) ConsumeToken(ctx context.Context, hash string) (*authcore.RecoveryToken, error) {
	var model RecoveryTokenModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "hash = ?", hash).Error; err != nil {
			return translate(err, authcore.ErrTokenNotFound)
		}
		result := tx.Delete(&RecoveryTokenModel{}, "hash = ?", hash)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return authcore.ErrTokenNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.ToRecoveryToken(), nil
}

func (s *TokenStore) DeleteUserTokens(ctx context.Context, userID string, purpose authcore.TokenPurpose) error {
	return s.db.WithContext(ctx).Delete(&RecoveryTokenModel{}, "user_id = ? AND purpose = ?", userID, purpose).Error
}
