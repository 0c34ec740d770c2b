package auth

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := VerifyPassword(hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordRejectsEmptyAndHuge(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)

	huge := make([]byte, maxPasswordLength+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err = HashPassword(string(huge))
	assert.Error(t, err)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	ok, err := VerifyPassword("not-a-real-hash", "password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService(testKey(t), 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)

	account := &domain.Account{ID: "account_1", Username: "simon"}

	token, err := svc.GenerateAccessToken(account)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "account_1", claims.AccountID)
	assert.Equal(t, "simon", claims.Username)
	assert.Equal(t, "account_1", claims.Subject)
	assert.NotEmpty(t, claims.TokenID)
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	svc, err := NewTokenService(testKey(t), -1*time.Minute, time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(&domain.Account{ID: "account_1", Username: "simon"})
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestVerifyAccessTokenRejectsWrongKey(t *testing.T) {
	svc, err := NewTokenService(testKey(t), 15*time.Minute, time.Hour)
	require.NoError(t, err)
	other, err := NewTokenService(testKey(t), 15*time.Minute, time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(&domain.Account{ID: "account_1", Username: "simon"})
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestNewTokenServiceRejectsShortKey(t *testing.T) {
	_, err := NewTokenService([]byte("too short"), time.Minute, time.Hour)
	assert.Error(t, err)
}

func TestRefreshTokenHashing(t *testing.T) {
	svc, err := NewTokenService(testKey(t), 15*time.Minute, time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	hash := HashRefreshToken(token)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, token, hash)
	assert.Equal(t, hash, HashRefreshToken(token), "hashing must be deterministic")

	other, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, HashRefreshToken(other), hash)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := t.TempDir()

	key1, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, key1, keyLength)

	// Second load returns the same key.
	key2, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// Key file is not readable by other users.
	info, err := os.Stat(filepath.Join(dir, "auth.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
