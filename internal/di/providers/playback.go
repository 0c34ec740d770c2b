package providers

import (
	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/mpris"
	"github.com/aloudapp/aloud-server/internal/playback"
	"github.com/aloudapp/aloud-server/internal/speech"
)

// MPRISHandle wraps the desktop media-controls adapter.
type MPRISHandle struct {
	*mpris.Service
}

// Shutdown implements do.ShutdownerWithError.
func (h *MPRISHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideMPRIS provides the MPRIS adapter. It is built unconditionally so the
// playback manager can carry it as a notifier; it only touches the session
// bus once the playback provider starts it.
func ProvideMPRIS(i do.Injector) (*MPRISHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return &MPRISHandle{Service: mpris.New(log)}, nil
}

// PlaybackHandle wraps the playback manager with shutdown capability.
type PlaybackHandle struct {
	*playback.Manager
}

// Shutdown implements do.ShutdownerWithError.
func (h *PlaybackHandle) Shutdown() error {
	h.Manager.Shutdown()
	return nil
}

// ProvidePlaybackManager provides the narration manager, wired to the event
// stream and, when enabled, the desktop media controls.
func ProvidePlaybackManager(i do.Injector) (*PlaybackHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	engineHandle := do.MustInvoke[*EngineHandle](i)
	mprisHandle := do.MustInvoke[*MPRISHandle](i)

	manager := playback.NewManager(playback.ManagerOptions{
		Engine:   engineHandle.Engine,
		Store:    storeHandle.Store,
		Notifier: playback.Notifiers{sseHandle.Manager, mprisHandle.Service},
		Policy: speech.VoicePolicy{
			Prefix:  cfg.Speech.VoiceLocalePrefix,
			Exclude: cfg.Speech.VoiceLocaleExclude,
		},
		Logger: log,
	})

	if cfg.Server.EnableMPRIS {
		if err := mprisHandle.Start(manager); err != nil {
			log.WithError(err).Warn("media controls unavailable")
		}
	}

	return &PlaybackHandle{Manager: manager}, nil
}
