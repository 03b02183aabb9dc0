//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/panyam/authcore"
)

// Kind constants for Datastore entities
const (
	KindAccount       = "Account"
	KindAccountKey    = "AccountKey"
	KindRecoveryToken = "RecoveryToken"
)

// accountKeyNames lists the uniqueness claims an account holds. Federated
// accounts claim their provider subject, not their username.
func accountKeyNames(identity *authcore.LocalIdentity) []string {
	var names []string
	if identity.Username != "" && !identity.IsFederated() {
		names = append(names, "username:"+strings.ToLower(identity.Username))
	}
	if identity.Email != "" {
		names = append(names, "email:"+authcore.NormalizeEmail(identity.Email))
	}
	if identity.IsFederated() {
		names = append(names, providerKeyName(identity.Provider, identity.ProviderSubject))
	}
	return names
}

func providerKeyName(provider authcore.Provider, subject string) string {
	return "provider:" + string(provider) + ":" + subject
}

// ============================================================================
// AccountStore
// ============================================================================

// AccountStore implements authcore.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{client: client, namespace: namespace}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

// claim checks every key is free or already owned by accountID, then writes them
func (s *AccountStore) claim(tx *datastore.Transaction, accountID string, names []string) error {
	now := time.Now()
	for _, name := range names {
		key := s.namespacedKey(KindAccountKey, name)
		var existing AccountKeyEntity
		err := tx.Get(key, &existing)
		if err == nil {
			if existing.AccountID != accountID {
				return fmt.Errorf("%w: %s", authcore.ErrDuplicate, strings.SplitN(name, ":", 2)[0])
			}
			continue
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(key, &AccountKeyEntity{Key: key, AccountID: accountID, CreatedAt: now}); err != nil {
			return err
		}
	}
	return nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, identity *authcore.LocalIdentity) error {
	if identity.ID == "" {
		return errors.New("account id is required")
	}
	key := s.namespacedKey(KindAccount, identity.ID)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return fmt.Errorf("%w: id", authcore.ErrDuplicate)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if err := s.claim(tx, identity.ID, accountKeyNames(identity)); err != nil {
			return err
		}
		_, err = tx.Put(key, AccountToEntity(identity, key))
		return err
	})
	return err
}

func (s *AccountStore) SaveAccount(ctx context.Context, identity *authcore.LocalIdentity) error {
	key := s.namespacedKey(KindAccount, identity.ID)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrNotFound
			}
			return err
		}

		names := accountKeyNames(identity)
		if err := s.claim(tx, identity.ID, names); err != nil {
			return err
		}
		keep := map[string]bool{}
		for _, name := range names {
			keep[name] = true
		}
		var stale []*datastore.Key
		for _, name := range accountKeyNames(existing.ToIdentity()) {
			if !keep[name] {
				stale = append(stale, s.namespacedKey(KindAccountKey, name))
			}
		}
		if len(stale) > 0 {
			if err := tx.DeleteMulti(stale); err != nil {
				return err
			}
		}
		_, err := tx.Put(key, AccountToEntity(identity, key))
		return err
	})
	return err
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*authcore.LocalIdentity, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return entity.ToIdentity(), nil
}

func (s *AccountStore) getByKeyName(ctx context.Context, name string) (*authcore.LocalIdentity, error) {
	var claim AccountKeyEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccountKey, name), &claim); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, claim.AccountID)
}

func (s *AccountStore) GetAccountByUsername(ctx context.Context, username string) (*authcore.LocalIdentity, error) {
	return s.getByKeyName(ctx, "username:"+strings.ToLower(username))
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*authcore.LocalIdentity, error) {
	return s.getByKeyName(ctx, "email:"+authcore.NormalizeEmail(email))
}

func (s *AccountStore) GetAccountByProviderSubject(ctx context.Context, provider authcore.Provider, subject string) (*authcore.LocalIdentity, error) {
	return s.getByKeyName(ctx, providerKeyName(provider, subject))
}

// ============================================================================
// TokenStore
// ============================================================================

// TokenStore implements authcore.TokenStore using Google Cloud Datastore
type TokenStore struct {
	client    *datastore.Client
	namespace string
}

// NewTokenStore creates a new Datastore-backed TokenStore
func NewTokenStore(client *datastore.Client, namespace string) *TokenStore {
	return &TokenStore{client: client, namespace: namespace}
}

func (s *TokenStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *TokenStore) SaveToken(ctx context.Context, token *authcore.RecoveryToken) error {
	key := s.namespacedKey(KindRecoveryToken, token.Hash)
	_, err := s.client.Put(ctx, key, RecoveryTokenToEntity(token, key))
	return err
}

func (s *TokenStore) GetToken(ctx context.Context, hash string) (*authcore.RecoveryToken, error) {
	var entity RecoveryTokenEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindRecoveryToken, hash), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrTokenNotFound
		}
		return nil, err
	}
	return entity.ToRecoveryToken(), nil
}

// DeleteToken removes a token. Datastore deletes of missing keys succeed.
func (s *TokenStore) DeleteToken(ctx context.Context, hash string) error {
	return s.client.Delete(ctx, s.namespacedKey(KindRecoveryToken, hash))
}

// ConsumeToken gets and deletes the entity in one transaction. A competing
// consumer conflicts, is retried, and then finds the entity gone.
func (s *TokenStore) ConsumeToken(ctx context.Context, hash string) (*authcore.RecoveryToken, error) {
	key := s.namespacedKey(KindRecoveryToken, hash)
	var entity RecoveryTokenEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrTokenNotFound
			}
			return err
		}
		return tx.Delete(key)
	})
	if err != nil {
		return nil, err
	}
	return entity.ToRecoveryToken(), nil
}

func (s *TokenStore) DeleteUserTokens(ctx context.Context, userID string, purpose authcore.TokenPurpose) error {
	query := datastore.NewQuery(KindRecoveryToken).
		FilterField("user_id", "=", userID).
		FilterField("purpose", "=", string(purpose)).
		KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var keys []*datastore.Key
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(ctx, keys)
}
