package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/config"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/speech"
)

// EngineHandle carries the narration engine; a nil Engine means narration is
// off. The playback manager owns the engine and closes it on shutdown, so
// there is no shutdown hook here.
type EngineHandle struct {
	speech.Engine
}

// ProvideEngine probes for a narration backend. An explicitly configured
// engine that fails to come up aborts startup; a fruitless auto-probe only
// disables narration.
func ProvideEngine(i do.Injector) (*EngineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	engine, err := speech.Detect(context.Background(), cfg.Speech, log)
	if err != nil {
		if !errors.Is(err, apperrors.ErrEngineUnavailable) {
			return nil, err
		}
		log.Warn("no narration engine found")
	}
	if engine == nil {
		log.Info("narration disabled")
	}

	return &EngineHandle{Engine: engine}, nil
}
