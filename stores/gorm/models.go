//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	"github.com/panyam/authcore"
)

// AccountModel is the GORM model for accounts. Nullable columns keep the
// unique indexes from colliding on accounts that do not use them.
type AccountModel struct {
	ID                 string    `gorm:"primaryKey;size:64"`
	Username           string    `gorm:"size:255"`
	NormalizedUsername *string   `gorm:"size:255;uniqueIndex"`
	FirstName          string    `gorm:"size:255"`
	LastName           string    `gorm:"size:255"`
	Email              *string   `gorm:"size:255;uniqueIndex"`
	EmailConfirmed     bool      `gorm:"default:false"`
	PasswordHash       string    `gorm:"size:255"`
	Provider           *string   `gorm:"size:32;uniqueIndex:idx_provider_subject"`
	ProviderSubject    *string   `gorm:"size:255;uniqueIndex:idx_provider_subject"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToIdentity() *authcore.LocalIdentity {
	identity := &authcore.LocalIdentity{
		ID:             m.ID,
		Username:       m.Username,
		Name:           authcore.DisplayName{First: m.FirstName, Last: m.LastName},
		EmailConfirmed: m.EmailConfirmed,
		PasswordHash:   m.PasswordHash,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Email != nil {
		identity.Email = *m.Email
	}
	if m.Provider != nil && m.ProviderSubject != nil {
		identity.Provider = authcore.Provider(*m.Provider)
		identity.ProviderSubject = *m.ProviderSubject
	}
	return identity
}

func AccountToModel(i *authcore.LocalIdentity) *AccountModel {
	m := &AccountModel{
		ID:             i.ID,
		Username:       i.Username,
		FirstName:      i.Name.First,
		LastName:       i.Name.Last,
		EmailConfirmed: i.EmailConfirmed,
		PasswordHash:   i.PasswordHash,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
	if i.Username != "" && !i.IsFederated() {
		username := normalizeUsername(i.Username)
		m.NormalizedUsername = &username
	}
	if i.Email != "" {
		email := authcore.NormalizeEmail(i.Email)
		m.Email = &email
	}
	if i.IsFederated() {
		provider := string(i.Provider)
		subject := i.ProviderSubject
		m.Provider = &provider
		m.ProviderSubject = &subject
	}
	return m
}

// RecoveryTokenModel is the GORM model for recovery tokens
type RecoveryTokenModel struct {
	Hash      string                `gorm:"primaryKey;size:64"`
	Purpose   authcore.TokenPurpose `gorm:"size:32;index:idx_token_user_purpose"`
	UserID    string                `gorm:"size:64;index:idx_token_user_purpose"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (RecoveryTokenModel) TableName() string {
	return "recovery_tokens"
}

func (m *RecoveryTokenModel) ToRecoveryToken() *authcore.RecoveryToken {
	return &authcore.RecoveryToken{
		Hash:      m.Hash,
		Purpose:   m.Purpose,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func RecoveryTokenToModel(t *authcore.RecoveryToken) *RecoveryTokenModel {
	return &RecoveryTokenModel{
		Hash:      t.Hash,
		Purpose:   t.Purpose,
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}
