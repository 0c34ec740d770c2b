package response

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestJSONWritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"title": "Dracula"}, discardLogger())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Empty(t, env.Error)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dracula", data["title"])
}

func TestJSONSuccessFollowsStatus(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{http.StatusOK, true},
		{http.StatusCreated, true},
		{http.StatusNoContent, true},
		{http.StatusMovedPermanently, true},
		{399, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		JSON(w, tt.status, nil, discardLogger())

		env := decodeEnvelope(t, w)
		assert.Equal(t, tt.success, env.Success, "status %d", tt.status)
	}
}

func TestJSONToleratesNilLogger(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, "ok", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
}

func TestSuccessAndCreated(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, "done", discardLogger())
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	Created(w, map[string]string{"id": "book-1"}, discardLogger())
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string, *slog.Logger)
		status int
		code   string
	}{
		{"bad request", BadRequest, http.StatusBadRequest, "VALIDATION"},
		{"unauthorized", Unauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", Forbidden, http.StatusForbidden, "UNAUTHORIZED"},
		{"not found", NotFound, http.StatusNotFound, "NOT_FOUND"},
		{"internal", InternalError, http.StatusInternalServerError, "INTERNAL"},
		{"too many requests", TooManyRequests, http.StatusTooManyRequests, "RATE_LIMITED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "narration failed", discardLogger())

			assert.Equal(t, tt.status, w.Code)
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error)
			assert.Equal(t, "narration failed", env.Message)
		})
	}
}

func TestErrorCodeOverridesDerivedCode(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorCode(w, http.StatusBadRequest, "NO_SESSION", "no book is open", discardLogger())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "NO_SESSION", env.Error)
	assert.Equal(t, "no book is open", env.Message)
}

func TestHandleErrorMapsDomainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, apperrors.NotFound("book not found"), discardLogger())

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Error)
	assert.Equal(t, "book not found", env.Message)
}

func TestHandleErrorUnwraps(t *testing.T) {
	w := httptest.NewRecorder()
	wrapped := fmt.Errorf("resume playback: %w", apperrors.NoSession("no book is open"))
	HandleError(w, wrapped, discardLogger())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "NO_SESSION", env.Error)
	assert.Equal(t, "no book is open", env.Message)
}

func TestHandleErrorHidesUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.New("badger: value log truncated"), discardLogger())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "INTERNAL", env.Error)
	assert.Equal(t, "internal server error", env.Message, "internal detail must not leak")
}

func TestEnvelopeOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Envelope{Success: true, Data: "test"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
	assert.NotContains(t, string(data), `"message"`)

	data, err = json.Marshal(Envelope{Success: false, Error: "NOT_FOUND", Message: "gone"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"data"`)
	assert.Contains(t, string(data), `"success":false`)
}
