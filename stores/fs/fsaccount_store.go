package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/panyam/authcore"
)

// FSAccountStore implements authcore.AccountStore with JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── accounts/
//	│   └── {id}.json                     # the LocalIdentity
//	└── account_index/
//	    ├── username/{key}.json           # {"account_id": "..."}
//	    ├── email/{key}.json
//	    └── provider/{key}.json           # key of "provider:subject"
//
// Index keys are hex encoded so any username or email is a safe file name.
// Usernames and emails are indexed lower-cased. Federated accounts are
// indexed by provider and subject only, never by username.
//
// # Concurrency Model
//
// A mutex serializes writes within the process, so two concurrent
// registrations of the same email cannot both succeed. Separate processes
// sharing a directory are not coordinated.
type FSAccountStore struct {
	StoragePath string
	mu          sync.Mutex
}

// NewFSAccountStore creates a new filesystem-backed AccountStore
func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

type indexEntry struct {
	AccountID string `json:"account_id"`
}

const (
	indexUsername = "username"
	indexEmail    = "email"
	indexProvider = "provider"
)

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", filepath.Base(id)+".json")
}

func (s *FSAccountStore) indexPath(index, key string) string {
	return filepath.Join(s.StoragePath, "account_index", index, fileKey(key)+".json")
}

// indexKeys lists the unique keys an account occupies
func indexKeys(identity *authcore.LocalIdentity) map[string]string {
	keys := map[string]string{}
	if identity.Username != "" && !identity.IsFederated() {
		keys[indexUsername] = strings.ToLower(identity.Username)
	}
	if identity.Email != "" {
		keys[indexEmail] = authcore.NormalizeEmail(identity.Email)
	}
	if identity.IsFederated() {
		keys[indexProvider] = string(identity.Provider) + ":" + identity.ProviderSubject
	}
	return keys
}

func (s *FSAccountStore) lookup(index, key string) (string, error) {
	var entry indexEntry
	if err := readJSONFile(s.indexPath(index, key), &entry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return entry.AccountID, nil
}

func (s *FSAccountStore) readAccount(id string) (*authcore.LocalIdentity, error) {
	var identity authcore.LocalIdentity
	if err := readJSONFile(s.accountPath(id), &identity); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return &identity, nil
}

// claimKeys fails with ErrDuplicate if any key belongs to another account
func (s *FSAccountStore) claimKeys(id string, keys map[string]string) error {
	for index, key := range keys {
		owner, err := s.lookup(index, key)
		if err != nil {
			return err
		}
		if owner != "" && owner != id {
			return fmt.Errorf("%w: %s in use", authcore.ErrDuplicate, index)
		}
	}
	return nil
}

func (s *FSAccountStore) writeIndexes(id string, keys map[string]string) error {
	for index, key := range keys {
		if err := writeJSONFile(s.indexPath(index, key), indexEntry{AccountID: id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSAccountStore) CreateAccount(ctx context.Context, identity *authcore.LocalIdentity) error {
	if identity.ID == "" {
		return errors.New("account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.accountPath(identity.ID)); err == nil {
		return fmt.Errorf("%w: id in use", authcore.ErrDuplicate)
	}
	keys := indexKeys(identity)
	if err := s.claimKeys(identity.ID, keys); err != nil {
		return err
	}
	if err := writeJSONFile(s.accountPath(identity.ID), identity); err != nil {
		return err
	}
	return s.writeIndexes(identity.ID, keys)
}

func (s *FSAccountStore) SaveAccount(ctx context.Context, identity *authcore.LocalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAccount(identity.ID)
	if err != nil {
		return err
	}
	keys := indexKeys(identity)
	if err := s.claimKeys(identity.ID, keys); err != nil {
		return err
	}
	if err := writeJSONFile(s.accountPath(identity.ID), identity); err != nil {
		return err
	}

	for index, oldKey := range indexKeys(existing) {
		if keys[index] != oldKey {
			if err := removeIfExists(s.indexPath(index, oldKey)); err != nil {
				return err
			}
		}
	}
	return s.writeIndexes(identity.ID, keys)
}

func (s *FSAccountStore) GetAccountByID(ctx context.Context, id string) (*authcore.LocalIdentity, error) {
	return s.readAccount(id)
}

func (s *FSAccountStore) getByIndex(index, key string) (*authcore.LocalIdentity, error) {
	id, err := s.lookup(index, key)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, authcore.ErrNotFound
	}
	return s.readAccount(id)
}

func (s *FSAccountStore) GetAccountByUsername(ctx context.Context, username string) (*authcore.LocalIdentity, error) {
	return s.getByIndex(indexUsername, strings.ToLower(username))
}

func (s *FSAccountStore) GetAccountByEmail(ctx context.Context, email string) (*authcore.LocalIdentity, error) {
	return s.getByIndex(indexEmail, authcore.NormalizeEmail(email))
}

func (s *FSAccountStore) GetAccountByProviderSubject(ctx context.Context, provider authcore.Provider, subject string) (*authcore.LocalIdentity, error) {
	return s.getByIndex(indexProvider, string(provider)+":"+subject)
}
