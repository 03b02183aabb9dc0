package fs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authcore/client"
)

var _ client.CredentialStore = (*CredentialStore)(nil)

func sessionToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString([]byte("key-held-by-the-server-only"))
	require.NoError(t, err)
	return token
}

func TestCredentialStore_TokenClaimsDriveTheRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewCredentialStore(path)
	require.NoError(t, err)

	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token := sessionToken(t, "u1", exp)
	require.NoError(t, store.SetCredential("https://auth.example.com/api/account", &client.ServerCredential{
		AccessToken: token,
		UserID:      "stale-id",
		FirstName:   "ada",
		LastName:    "lovelace",
		ExpiresAt:   time.Now().Add(time.Minute),
	}))
	require.NoError(t, store.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewCredentialStore(path)
	require.NoError(t, err)
	cred, err := reopened.GetCredential("https://auth.example.com/api/account")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, token, cred.AccessToken)
	assert.Equal(t, "u1", cred.UserID, "subject comes from the token")
	assert.True(t, cred.ExpiresAt.Equal(exp), "expiry comes from the token, got %v", cred.ExpiresAt)
	assert.Equal(t, "ada", cred.FirstName)
	assert.Equal(t, "lovelace", cred.LastName)
	assert.False(t, cred.CreatedAt.IsZero())
}

func TestCredentialStore_ServerKeys(t *testing.T) {
	store, err := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)
	token := sessionToken(t, "u1", time.Now().Add(time.Hour))
	require.NoError(t, store.SetCredential("https://auth.example.com/api/account", &client.ServerCredential{AccessToken: token}))

	tests := []struct {
		name   string
		server string
		found  bool
	}{
		{"same url", "https://auth.example.com/api/account", true},
		{"case and trailing slash", "HTTPS://Auth.Example.com/api/account/", true},
		{"default port", "https://auth.example.com:443/api/account", true},
		{"bare host defaults to https", "auth.example.com/api/account", true},
		{"other path", "https://auth.example.com/v2/account", false},
		{"other scheme", "http://auth.example.com/api/account", false},
		{"other port", "https://auth.example.com:8443/api/account", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := store.GetCredential(tt.server)
			require.NoError(t, err)
			assert.Equal(t, tt.found, cred != nil)
		})
	}

	_, err = store.GetCredential("https://")
	assert.Error(t, err)
}

func TestCredentialStore_ExpiredCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewCredentialStore(path)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.SetCredential("https://a.example.com", &client.ServerCredential{
		AccessToken: sessionToken(t, "u1", now.Add(time.Hour)),
	}))
	require.NoError(t, store.SetCredential("https://b.example.com", &client.ServerCredential{
		AccessToken: sessionToken(t, "u2", now.Add(2*time.Hour)),
	}))
	require.NoError(t, store.Save())

	// Reopen ninety minutes later: only the second session is still live
	later, err := NewCredentialStore(path)
	require.NoError(t, err)
	later.sessions = map[string]*session{}
	later.now = func() time.Time { return now.Add(90 * time.Minute) }
	require.NoError(t, later.load())

	cred, err := later.GetCredential("https://a.example.com")
	require.NoError(t, err)
	assert.Nil(t, cred, "expired credential must not be returned")
	cred, err = later.GetCredential("https://b.example.com")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "u2", cred.UserID)

	require.NoError(t, later.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var file sessionFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, fileVersion, file.Version)
	assert.Len(t, file.Sessions, 1, "expired session is pruned from disk")
}

func TestCredentialStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := NewCredentialStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetCredential("https://auth.example.com", &client.ServerCredential{
		AccessToken: sessionToken(t, "u1", time.Now().Add(time.Hour)),
	}))
	require.NoError(t, store.Save())
	require.NoError(t, store.RemoveCredential("https://auth.example.com"))
	require.NoError(t, store.Save())

	reopened, err := NewCredentialStore(path)
	require.NoError(t, err)
	cred, err := reopened.GetCredential("https://auth.example.com")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialStore_Rejects(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCredentialStore(filepath.Join(dir, "credentials.json"))
	require.NoError(t, err)
	assert.ErrorIs(t, store.SetCredential("https://auth.example.com", &client.ServerCredential{}), ErrNoToken)
	assert.ErrorIs(t, store.SetCredential("https://auth.example.com", nil), ErrNoToken)

	for name, content := range map[string]string{
		"garbage":         "{not json",
		"unknown version": `{"version": 99, "sessions": {}}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			_, err := NewCredentialStore(path)
			assert.Error(t, err)
		})
	}
}
