package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/service"
)

func TestAuthSetup(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/setup", "", map[string]any{
		"username": "owner",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope[service.AuthResponse](t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "owner", env.Data.Username)
	assert.NotEmpty(t, env.Data.AccessToken)
	assert.NotEmpty(t, env.Data.RefreshToken)
	assert.False(t, env.Data.ExpiresAt.IsZero())

	t.Run("second setup is rejected", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/setup", "", map[string]any{
			"username": "intruder",
			"password": "another password",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.False(t, env.Success)
		assert.Equal(t, "ALREADY_CONFIGURED", env.Error)
	})
}

func TestAuthSetup_Validation(t *testing.T) {
	ts := setupTestServer(t)

	t.Run("missing password", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/setup", "", map[string]any{
			"username": "owner",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "VALIDATION", env.Error)
	})

	t.Run("short password", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/setup", "", map[string]any{
			"username": "owner",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "VALIDATION", env.Error)
	})

	t.Run("nothing was created", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/v1/server", "", nil)
		env := decodeEnvelope[ServerInfoResponse](t, rec)
		assert.True(t, env.Data.SetupRequired)
	})
}

func TestAuthLogin(t *testing.T) {
	ts := setupTestServer(t)
	ts.setupOwner(t)

	t.Run("valid credentials", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
			"username": "owner",
			"password": "correct horse battery",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		env := decodeEnvelope[service.AuthResponse](t, rec)
		assert.NotEmpty(t, env.Data.AccessToken)

		books := ts.request(t, http.MethodGet, "/api/v1/books", env.Data.AccessToken, nil)
		assert.Equal(t, http.StatusOK, books.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
			"username": "owner",
			"password": "wrong password entirely",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "INVALID_CREDENTIALS", env.Error)
	})

	t.Run("wrong username gets the same answer", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
			"username": "somebody",
			"password": "correct horse battery",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "INVALID_CREDENTIALS", env.Error)
	})
}

func TestAuthRefresh(t *testing.T) {
	ts := setupTestServer(t)
	_, refresh := ts.setupOwner(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope[service.AuthResponse](t, rec)
	assert.NotEmpty(t, env.Data.AccessToken)
	assert.NotEqual(t, refresh, env.Data.RefreshToken, "refresh must rotate the token")

	t.Run("old token is dead after rotation", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
			"refresh_token": refresh,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
			"refresh_token": "not-a-real-token",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "UNAUTHORIZED", env.Error)
	})
}

func TestAuthLogout(t *testing.T) {
	ts := setupTestServer(t)
	access, refresh := ts.setupOwner(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/logout", access, map[string]any{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope[MessageResponse](t, rec)
	assert.Equal(t, "logged out", env.Data.Message)

	t.Run("refresh token is revoked", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
			"refresh_token": refresh,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("logging out twice is harmless", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/logout", access, map[string]any{
			"refresh_token": refresh,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
