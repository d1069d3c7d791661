package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *Store {
	t.Helper()
	return &Store{useKeyring: false, fallbackDir: t.TempDir()}
}

func TestStoreFileBackend(t *testing.T) {
	store := newFileStore(t)

	origin := "https://memory.example.com"
	creds := &Credentials{
		AccessToken:      "test-access-token",
		RefreshToken:     "test-refresh-token",
		ExpiresAt:        time.Now().Unix() + 3600,
		RefreshExpiresAt: time.Now().Unix() + 86400,
		TenantID:         "my-tenant",
		Username:         "testuser",
	}

	require.NoError(t, store.Save(origin, creds))

	// Credential file must not be world-readable.
	info, err := os.Stat(filepath.Join(store.fallbackDir, "credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load(origin)
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken, loaded.AccessToken)
	assert.Equal(t, creds.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, creds.ExpiresAt, loaded.ExpiresAt)
	assert.Equal(t, creds.TenantID, loaded.TenantID)
	assert.Equal(t, creds.Username, loaded.Username)
}

func TestStoreMultipleOrigins(t *testing.T) {
	store := newFileStore(t)

	require.NoError(t, store.Save("https://one.example.com", &Credentials{AccessToken: "token1"}))
	require.NoError(t, store.Save("https://two.example.com", &Credentials{AccessToken: "token2"}))

	loaded1, err := store.Load("https://one.example.com")
	require.NoError(t, err)
	assert.Equal(t, "token1", loaded1.AccessToken)

	loaded2, err := store.Load("https://two.example.com")
	require.NoError(t, err)
	assert.Equal(t, "token2", loaded2.AccessToken)
}

func TestStoreDelete(t *testing.T) {
	store := newFileStore(t)

	origin := "https://memory.example.com"
	require.NoError(t, store.Save(origin, &Credentials{AccessToken: "doomed"}))
	require.NoError(t, store.Delete(origin))

	_, err := store.Load(origin)
	assert.Error(t, err, "Load should fail after delete")
}

func TestStoreLoadMissing(t *testing.T) {
	store := newFileStore(t)

	_, err := store.Load("https://nonexistent.example.com")
	assert.Error(t, err)
}

func TestKeyFunction(t *testing.T) {
	tests := []struct {
		origin   string
		expected string
	}{
		{"http://localhost:3000", "memctl::http://localhost:3000"},
		{"https://memory.example.com", "memctl::https://memory.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.expected, key(tt.origin))
		})
	}
}

func TestUsingKeyring(t *testing.T) {
	assert.True(t, (&Store{useKeyring: true}).UsingKeyring())
	assert.False(t, (&Store{useKeyring: false}).UsingKeyring())
}
