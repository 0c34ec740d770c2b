package api

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/playback"
)

// PlaybackStateOutput wraps a playback snapshot. An idle server reports an
// empty snapshot with status "idle" rather than an error.
type PlaybackStateOutput struct {
	Body playback.Snapshot
}

// OpenBookInput opens a book for narration.
type OpenBookInput struct {
	Body struct {
		BookID string `json:"book_id" doc:"Book to open"`
	}
}

// PlayInput starts narration. Without a position it plays from the session's
// current spot, which Open already set to the saved resume point.
type PlayInput struct {
	Body struct {
		Chapter *int `json:"chapter,omitempty" minimum:"0" doc:"Chapter index"`
		Chunk   *int `json:"chunk,omitempty" minimum:"0" doc:"Chunk index within the chapter"`
	}
}

// SkipInput moves the position by a signed number of seconds.
type SkipInput struct {
	Body struct {
		Seconds float64 `json:"seconds" doc:"Signed skip amount, e.g. -30 rewinds"`
	}
}

// JumpChapterInput restarts narration at a chapter start.
type JumpChapterInput struct {
	Body struct {
		Chapter int `json:"chapter" minimum:"0" doc:"Chapter index"`
	}
}

// SetVoiceInput switches the narration voice. An empty ID clears the saved
// choice so the next session picks the engine default.
type SetVoiceInput struct {
	Body struct {
		VoiceID string `json:"voice_id"`
	}
}

// SetRateInput adjusts the speaking rate.
type SetRateInput struct {
	Body struct {
		Rate float64 `json:"rate" minimum:"0.5" maximum:"2.0" doc:"Speaking rate multiplier"`
	}
}

// SleepInput configures the sleep timer.
type SleepInput struct {
	Body struct {
		Mode    string `json:"mode" enum:"off,countdown,end_of_chapter"`
		Seconds int    `json:"seconds,omitempty" minimum:"0" doc:"Countdown length, countdown mode only"`
	}
}

// PreferenceResponse reports the persisted voice preference, plus the live
// snapshot when a session is open.
type PreferenceResponse struct {
	Preference domain.VoicePreference `json:"preference"`
	Snapshot   *playback.Snapshot     `json:"snapshot,omitempty"`
}

// PreferenceOutput wraps a preference change.
type PreferenceOutput struct {
	Body PreferenceResponse
}

func (s *Server) registerPlaybackRoutes() {
	security := []map[string][]string{{"bearer": {}}}

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-state",
		Method:      http.MethodGet,
		Path:        "/api/v1/playback",
		Summary:     "Playback state",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handlePlaybackState)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-open",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/open",
		Summary:     "Open a book",
		Description: "Loads a book into the narration session at its saved resume point. Narration starts on play.",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleOpenBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-play",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/play",
		Summary:     "Start narration",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handlePlay)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-pause",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/pause",
		Summary:     "Pause narration",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handlePause)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-resume",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/resume",
		Summary:     "Resume narration",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleResume)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-skip",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/skip",
		Summary:     "Skip forward or back",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleSkip)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-chapter",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/chapter",
		Summary:     "Jump to a chapter",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleJumpChapter)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-close",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/close",
		Summary:     "Close the session",
		Description: "Stops narration and saves progress. Idle servers accept this as a no-op.",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleCloseSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-voice",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/voice",
		Summary:     "Switch voice",
		Description: "Persists the voice choice and applies it to the live session from its next chunk.",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleSetVoice)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-rate",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/rate",
		Summary:     "Set speaking rate",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleSetRate)

	huma.Register(s.api, huma.Operation{
		OperationID: "playback-sleep",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/sleep",
		Summary:     "Set the sleep timer",
		Tags:        []string{"Playback"},
		Security:    security,
	}, s.handleSetSleepTimer)
}

func (s *Server) handlePlaybackState(ctx context.Context, _ *struct{}) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		// No open session is a normal state, not an error.
		return &PlaybackStateOutput{Body: playback.Snapshot{
			Status: domain.StatusIdle,
			Rate:   s.playback.Preference().Rate,
		}}, nil
	}
	return &PlaybackStateOutput{Body: sess.Snapshot()}, nil
}

func (s *Server) handleOpenBook(ctx context.Context, input *OpenBookInput) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	book, chapters, err := s.services.Books.Chapters(ctx, input.Body.BookID)
	if err != nil {
		return nil, err
	}

	sess := s.playback.Open(ctx, book, chapters)
	return &PlaybackStateOutput{Body: sess.Snapshot()}, nil
}

func (s *Server) handlePlay(ctx context.Context, input *PlayInput) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		return nil, err
	}

	pos := sess.Snapshot().Position
	if input.Body.Chapter != nil {
		pos.Chapter = *input.Body.Chapter
		pos.Chunk = 0
	}
	if input.Body.Chunk != nil {
		pos.Chunk = *input.Body.Chunk
	}

	return &PlaybackStateOutput{Body: sess.Play(pos.Chapter, pos.Chunk)}, nil
}

func (s *Server) handlePause(ctx context.Context, _ *struct{}) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		return nil, err
	}
	return &PlaybackStateOutput{Body: sess.Pause()}, nil
}

func (s *Server) handleResume(ctx context.Context, _ *struct{}) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		return nil, err
	}
	return &PlaybackStateOutput{Body: sess.Resume()}, nil
}

func (s *Server) handleSkip(ctx context.Context, input *SkipInput) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		return nil, err
	}
	return &PlaybackStateOutput{Body: sess.Skip(input.Body.Seconds)}, nil
}

func (s *Server) handleJumpChapter(ctx context.Context, input *JumpChapterInput) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		return nil, err
	}

	snap := sess.Snapshot()
	if input.Body.Chapter >= snap.ChapterCount {
		return nil, apperrors.Validationf("chapter %d out of range, book has %d", input.Body.Chapter, snap.ChapterCount)
	}
	return &PlaybackStateOutput{Body: sess.JumpToChapter(input.Body.Chapter)}, nil
}

func (s *Server) handleCloseSession(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	if err := s.playback.CloseCurrent(); err != nil && !errors.Is(err, apperrors.ErrNoSession) {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "session closed"}}, nil
}

func (s *Server) handleSetVoice(ctx context.Context, input *SetVoiceInput) (*PreferenceOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	// Reject unknown voices when the engine has a catalog to check against.
	if id := input.Body.VoiceID; id != "" {
		voices, err := s.playback.Voices(ctx)
		if err == nil && len(voices) > 0 {
			known := slices.ContainsFunc(voices, func(v domain.Voice) bool { return v.ID == id })
			if !known {
				return nil, apperrors.Validationf("unknown voice %q", id)
			}
		}
	}

	snap, err := s.playback.SetVoice(input.Body.VoiceID)
	if err != nil {
		return nil, err
	}
	return &PreferenceOutput{Body: PreferenceResponse{
		Preference: s.playback.Preference(),
		Snapshot:   snap,
	}}, nil
}

func (s *Server) handleSetRate(ctx context.Context, input *SetRateInput) (*PreferenceOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	snap, err := s.playback.SetRate(input.Body.Rate)
	if err != nil {
		return nil, err
	}
	return &PreferenceOutput{Body: PreferenceResponse{
		Preference: s.playback.Preference(),
		Snapshot:   snap,
	}}, nil
}

func (s *Server) handleSetSleepTimer(ctx context.Context, input *SleepInput) (*PlaybackStateOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	sess, err := s.playback.Current()
	if err != nil {
		return nil, err
	}

	var timer domain.SleepTimer
	switch domain.SleepTimerMode(input.Body.Mode) {
	case domain.SleepOff:
		timer = domain.SleepTimerOff()
	case domain.SleepCountdown:
		if input.Body.Seconds <= 0 {
			return nil, apperrors.Validation("countdown needs a positive number of seconds")
		}
		timer = domain.SleepTimerSeconds(input.Body.Seconds)
	case domain.SleepEndOfChapter:
		timer = domain.SleepTimerEndOfChapter()
	default:
		return nil, apperrors.Validationf("unknown sleep timer mode %q", input.Body.Mode)
	}

	return &PlaybackStateOutput{Body: sess.SetSleepTimer(timer)}, nil
}
