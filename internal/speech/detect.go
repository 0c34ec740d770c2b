package speech

import (
	"context"
	"os"

	"github.com/aloudapp/aloud-server/internal/config"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/logger"
)

// Detect builds the engine named by cfg.Engine, probing the host when set
// to auto. A nil engine with a nil error means narration is switched off.
func Detect(ctx context.Context, cfg config.SpeechConfig, log *logger.Logger) (Engine, error) {
	switch cfg.Engine {
	case "off":
		return nil, nil
	case "google":
		return NewGoogleEngine(ctx, log, cfg.ProgressInterval)
	case "espeak":
		return NewEspeakEngine(log, cfg.EspeakPath, cfg.ProgressInterval)
	}

	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		eng, err := NewGoogleEngine(ctx, log, cfg.ProgressInterval)
		if err == nil {
			log.Info("narration engine selected", "engine", eng.Name())
			return eng, nil
		}
		log.WithError(err).Warn("google engine unavailable, falling back to espeak")
	}
	if eng, err := NewEspeakEngine(log, cfg.EspeakPath, cfg.ProgressInterval); err == nil {
		log.Info("narration engine selected", "engine", eng.Name())
		return eng, nil
	}
	return nil, apperrors.ErrEngineUnavailable
}
