// Package fs keeps authcore session credentials in a private JSON file, one
// per account API the user has signed in to.
package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panyam/authcore/client"
)

// fileVersion is bumped whenever the on-disk layout changes
const fileVersion = 1

// ErrNoToken is returned by SetCredential for a credential without a token
var ErrNoToken = errors.New("credential has no access token")

// session is the on-disk form of a client.ServerCredential
type session struct {
	Token     string    `json:"token"`
	Subject   string    `json:"sub"`
	FirstName string    `json:"given_name,omitempty"`
	LastName  string    `json:"family_name,omitempty"`
	ExpiresAt time.Time `json:"exp"`
	SavedAt   time.Time `json:"saved_at"`
}

type sessionFile struct {
	Version  int                 `json:"version"`
	Sessions map[string]*session `json:"sessions"`
}

// CredentialStore implements client.CredentialStore on a JSON file.
// Credentials are keyed by the account API they were issued by: scheme,
// lower-cased host with default ports dropped, and path.
//
// Expiry and subject are taken from the token's own claims when present,
// so a stored credential never outlives its session. Expired credentials
// are dropped on load and never returned.
type CredentialStore struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*session
	dirty    bool
	now      func() time.Time
}

// DefaultPath is ~/.config/authcore/credentials.json, or the platform's
// user config directory equivalent
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "authcore", "credentials.json"), nil
}

// NewCredentialStore opens the store at path, or at DefaultPath when path is
// empty. A missing file is an empty store.
func NewCredentialStore(path string) (*CredentialStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	s := &CredentialStore{path: path, sessions: map[string]*session{}, now: time.Now}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CredentialStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if file.Version != fileVersion {
		return fmt.Errorf("unsupported credentials file version %d", file.Version)
	}
	now := s.now()
	for key, sess := range file.Sessions {
		if sess == nil || sess.Token == "" || !now.Before(sess.ExpiresAt) {
			s.dirty = true
			continue
		}
		s.sessions[key] = sess
	}
	return nil
}

// serverKey normalizes an account API URL. A bare host is taken as https.
func serverKey(serverURL string) (string, error) {
	raw := strings.TrimSpace(serverURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: no host", serverURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "https" && port == "443") && !(scheme == "http" && port == "80") {
		host += ":" + port
	}
	return scheme + "://" + host + strings.TrimSuffix(u.EscapedPath(), "/"), nil
}

// GetCredential returns the live credential for serverURL, or nil
func (s *CredentialStore) GetCredential(serverURL string) (*client.ServerCredential, error) {
	key, err := serverKey(serverURL)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, key)
		s.dirty = true
		return nil, nil
	}
	return &client.ServerCredential{
		AccessToken: sess.Token,
		UserID:      sess.Subject,
		FirstName:   sess.FirstName,
		LastName:    sess.LastName,
		ExpiresAt:   sess.ExpiresAt,
		CreatedAt:   sess.SavedAt,
	}, nil
}

// SetCredential records cred for serverURL. The token's exp and sub claims
// override ExpiresAt and UserID when the token carries them.
func (s *CredentialStore) SetCredential(serverURL string, cred *client.ServerCredential) error {
	if cred == nil || cred.AccessToken == "" {
		return ErrNoToken
	}
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}

	sess := &session{
		Token:     cred.AccessToken,
		Subject:   cred.UserID,
		FirstName: cred.FirstName,
		LastName:  cred.LastName,
		ExpiresAt: cred.ExpiresAt,
		SavedAt:   cred.CreatedAt,
	}
	if exp, ok := client.TokenExpiry(cred.AccessToken); ok {
		sess.ExpiresAt = exp
	}
	if sub, ok := client.TokenSubject(cred.AccessToken); ok {
		sess.Subject = sub
	}
	if sess.SavedAt.IsZero() {
		sess.SavedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = sess
	s.dirty = true
	return nil
}

// RemoveCredential forgets the credential for serverURL
func (s *CredentialStore) RemoveCredential(serverURL string) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; ok {
		delete(s.sessions, key)
		s.dirty = true
	}
	return nil
}

// Save writes pending changes. The file is replaced atomically and is only
// readable by the owner.
func (s *CredentialStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(sessionFile{Version: fileVersion, Sessions: s.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	s.dirty = false
	return nil
}
