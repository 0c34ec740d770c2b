package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/sse"
)

// VoiceWarmerHandle owns the voice catalog poller.
type VoiceWarmerHandle struct {
	cancel context.CancelFunc
}

// Shutdown implements do.ShutdownerWithError.
func (h *VoiceWarmerHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideVoiceWarmer polls the engine's voice catalog until it fills, then
// announces it on the event stream. espeak lists voices immediately;
// google's catalog arrives after the first API round-trip, and clients
// shouldn't have to refresh for it.
func ProvideVoiceWarmer(i do.Injector) (*VoiceWarmerHandle, error) {
	playbackHandle := do.MustInvoke[*PlaybackHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		deadline := time.After(time.Minute)

		for {
			voices, err := playbackHandle.Voices(ctx)
			if err == nil && len(voices) > 0 {
				log.Info("voice catalog ready",
					"engine", playbackHandle.EngineName(),
					"voices", len(voices),
				)
				sseHandle.Emit(sse.NewVoicesUpdatedEvent(playbackHandle.EngineName(), voices))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-deadline:
				// Disabled engines never fill; stop asking.
				return
			case <-ticker.C:
			}
		}
	}()

	return &VoiceWarmerHandle{cancel: cancel}, nil
}

const janitorInterval = time.Hour

// StoreJanitorHandle owns the periodic store maintenance loop.
type StoreJanitorHandle struct {
	cancel context.CancelFunc
}

// Shutdown implements do.ShutdownerWithError.
func (h *StoreJanitorHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideStoreJanitor sweeps expired refresh tokens and runs a round of
// Badger value-log garbage collection on a slow ticker. Expiry is already
// enforced at token use; the sweep just keeps dead records from piling up.
func ProvideStoreJanitor(i do.Injector) (*StoreJanitorHandle, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if n, err := storeHandle.PurgeExpiredTokens(ctx, time.Now()); err != nil {
				log.WithError(err).Warn("token sweep failed")
			} else if n > 0 {
				log.Info("purged expired refresh tokens", "count", n)
			}
			if err := storeHandle.RunGC(); err != nil {
				log.WithError(err).Warn("value log gc failed")
			}
		}
	}()

	return &StoreJanitorHandle{cancel: cancel}, nil
}
