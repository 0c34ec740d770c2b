package speech

import (
	"context"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

// Disabled is the engine used when narration is switched off or no backend
// exists on the host. Speaking reports the engine as unavailable; everything
// else is a quiet no-op.
type Disabled struct{}

func (Disabled) SetHandler(Handler) {}

func (Disabled) Speak(Request) error {
	return apperrors.ErrEngineUnavailable
}

func (Disabled) Pause() error  { return nil }
func (Disabled) Resume() error { return nil }
func (Disabled) Cancel() error { return nil }

func (Disabled) SetRate(float64) error { return ErrUnsupported }

func (Disabled) Voices(context.Context) ([]domain.Voice, error) {
	return nil, nil
}

func (Disabled) Name() string { return "disabled" }
func (Disabled) Close() error { return nil }
