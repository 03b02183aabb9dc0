package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/panyam/authcore"
)

// FSTokenStore stores recovery tokens as JSON files named by token hash
type FSTokenStore struct {
	StoragePath string
	mu          sync.Mutex
}

func NewFSTokenStore(storagePath string) *FSTokenStore {
	return &FSTokenStore{StoragePath: storagePath}
}

func (s *FSTokenStore) tokensDir() string {
	return filepath.Join(s.StoragePath, "tokens")
}

func (s *FSTokenStore) getTokenPath(hash string) string {
	return filepath.Join(s.tokensDir(), filepath.Base(hash)+".json")
}

func (s *FSTokenStore) SaveToken(ctx context.Context, token *authcore.RecoveryToken) error {
	return writeJSONFile(s.getTokenPath(token.Hash), token)
}

func (s *FSTokenStore) GetToken(ctx context.Context, hash string) (*authcore.RecoveryToken, error) {
	var token authcore.RecoveryToken
	if err := readJSONFile(s.getTokenPath(hash), &token); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, authcore.ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (s *FSTokenStore) DeleteToken(ctx context.Context, hash string) error {
	return removeIfExists(s.getTokenPath(hash))
}

// ConsumeToken reads the token and removes its file. The removal is the
// claim: a caller that finds the file already gone gets ErrTokenNotFound.
func (s *FSTokenStore) ConsumeToken(ctx context.Context, hash string) (*authcore.RecoveryToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.GetToken(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(s.getTokenPath(hash)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, authcore.ErrTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

func (s *FSTokenStore) DeleteUserTokens(ctx context.Context, userID string, purpose authcore.TokenPurpose) error {
	entries, err := os.ReadDir(s.tokensDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.tokensDir(), entry.Name())
		var token authcore.RecoveryToken
		if err := readJSONFile(path, &token); err != nil {
			continue
		}
		if token.UserID == userID && token.Purpose == purpose {
			if err := removeIfExists(path); err != nil {
				return err
			}
		}
	}
	return nil
}
