package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/playback"
)

func TestPlayback_IdleState(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/playback", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope[playback.Snapshot](t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, domain.StatusIdle, env.Data.Status)
	assert.Empty(t, env.Data.BookID)
	assert.Equal(t, 1.0, env.Data.Rate)
}

func TestPlayback_SessionLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)
	book := ts.seedBook(t, "Narrated", twoChapterText)

	rec := ts.request(t, http.MethodPost, "/api/v1/playback/open", token, map[string]any{
		"book_id": book.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, book.ID, env.Data.BookID)
	assert.Equal(t, "Narrated", env.Data.Title)
	assert.Equal(t, 2, env.Data.ChapterCount)
	assert.Equal(t, domain.StatusIdle, env.Data.Status, "open loads the book, play starts it")

	rec = ts.request(t, http.MethodPost, "/api/v1/playback/play", token, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, domain.StatusSpeaking, env.Data.Status)
	assert.NotEmpty(t, env.Data.ChunkText)
	assert.NotEmpty(t, ts.engine.Requests(), "play must reach the engine")

	rec = ts.request(t, http.MethodPost, "/api/v1/playback/pause", token, nil)
	env = decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, domain.StatusPaused, env.Data.Status)

	rec = ts.request(t, http.MethodPost, "/api/v1/playback/resume", token, nil)
	env = decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, domain.StatusSpeaking, env.Data.Status)

	rec = ts.request(t, http.MethodPost, "/api/v1/playback/close", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decodeEnvelope[MessageResponse](t, rec)
	assert.Equal(t, "session closed", msg.Data.Message)

	rec = ts.request(t, http.MethodGet, "/api/v1/playback", token, nil)
	env = decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, domain.StatusIdle, env.Data.Status)

	t.Run("progress survives the session", func(t *testing.T) {
		progress, err := ts.store.GetProgress(book.ID)
		require.NoError(t, err)
		assert.Equal(t, book.ID, progress.BookID)
	})
}

func TestPlayback_Open_UnknownBook(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/playback/open", token, map[string]any{
		"book_id": "book_ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env := decodeEnvelope[any](t, rec)
	assert.Equal(t, "NOT_FOUND", env.Error)
}

func TestPlayback_PlayAtPosition(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)
	book := ts.seedBook(t, "Positioned", twoChapterText)

	rec := ts.request(t, http.MethodPost, "/api/v1/playback/open", token, map[string]any{
		"book_id": book.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/playback/play", token, map[string]any{
		"chapter": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, 1, env.Data.Position.Chapter)
	assert.Equal(t, 0, env.Data.Position.Chunk, "chapter change restarts at the first chunk")
	assert.Equal(t, "CHAPTER 2", env.Data.ChapterTitle)
}

func TestPlayback_JumpChapter(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)
	book := ts.seedBook(t, "Jumpy", twoChapterText)

	ts.request(t, http.MethodPost, "/api/v1/playback/open", token, map[string]any{"book_id": book.ID})

	rec := ts.request(t, http.MethodPost, "/api/v1/playback/chapter", token, map[string]any{
		"chapter": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, 1, env.Data.Position.Chapter)

	t.Run("out of range", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/chapter", token, map[string]any{
			"chapter": 7,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "VALIDATION", env.Error)
	})
}

func TestPlayback_WithoutSession(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)

	for _, path := range []string{"pause", "resume", "play", "skip", "chapter", "sleep"} {
		t.Run(path, func(t *testing.T) {
			var body map[string]any
			switch path {
			case "skip":
				body = map[string]any{"seconds": 30.0}
			case "chapter":
				body = map[string]any{"chapter": 0}
			case "sleep":
				body = map[string]any{"mode": "off"}
			default:
				body = map[string]any{}
			}

			rec := ts.request(t, http.MethodPost, "/api/v1/playback/"+path, token, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			env := decodeEnvelope[any](t, rec)
			assert.Equal(t, "NO_SESSION", env.Error)
		})
	}

	t.Run("close is a no-op", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/close", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestPlayback_VoiceAndRate(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/playback/voice", token, map[string]any{
		"voice_id": "en-test-2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope[PreferenceResponse](t, rec)
	assert.Equal(t, "en-test-2", env.Data.Preference.VoiceID)
	assert.Nil(t, env.Data.Snapshot, "no live session to report")

	t.Run("unknown voice", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/voice", token, map[string]any{
			"voice_id": "klingon-basso",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		env := decodeEnvelope[any](t, rec)
		assert.Equal(t, "VALIDATION", env.Error)
	})

	t.Run("rate", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/rate", token, map[string]any{
			"rate": 1.5,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		env := decodeEnvelope[PreferenceResponse](t, rec)
		assert.Equal(t, 1.5, env.Data.Preference.Rate)
	})

	t.Run("rate outside bounds", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/rate", token, map[string]any{
			"rate": 9.0,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestPlayback_SleepTimer(t *testing.T) {
	ts := setupTestServer(t)
	token, _ := ts.setupOwner(t)
	book := ts.seedBook(t, "Sleepy", twoChapterText)

	ts.request(t, http.MethodPost, "/api/v1/playback/open", token, map[string]any{"book_id": book.ID})

	rec := ts.request(t, http.MethodPost, "/api/v1/playback/sleep", token, map[string]any{
		"mode":    "countdown",
		"seconds": 1800,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope[playback.Snapshot](t, rec)
	assert.Equal(t, domain.SleepCountdown, env.Data.SleepTimer.Mode)
	assert.Positive(t, env.Data.SleepTimer.Remaining)

	t.Run("end of chapter", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/sleep", token, map[string]any{
			"mode": "end_of_chapter",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		env := decodeEnvelope[playback.Snapshot](t, rec)
		assert.Equal(t, domain.SleepEndOfChapter, env.Data.SleepTimer.Mode)
	})

	t.Run("off", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/sleep", token, map[string]any{
			"mode": "off",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		env := decodeEnvelope[playback.Snapshot](t, rec)
		assert.True(t, env.Data.SleepTimer.IsOff())
	})

	t.Run("countdown without seconds", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/sleep", token, map[string]any{
			"mode": "countdown",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("made-up mode", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/playback/sleep", token, map[string]any{
			"mode": "nap",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "enum violations fail schema validation")
	})
}
