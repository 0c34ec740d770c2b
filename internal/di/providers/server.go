package providers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/api"
	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/library"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/mdns"
	"github.com/aloudapp/aloud-server/internal/media/images"
	"github.com/aloudapp/aloud-server/internal/service"
)

// HTTPServerHandle wraps http.Server with shutdown capability.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.ShutdownerWithError.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer assembles the API server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	playbackHandle := do.MustInvoke[*PlaybackHandle](i)
	covers := do.MustInvoke[*images.Storage](i)
	scanner := do.MustInvoke[*library.Scanner](i)
	authService := do.MustInvoke[*service.AuthService](i)
	bookService := do.MustInvoke[*service.BookService](i)

	handler := api.NewServer(api.Options{
		Config:   cfg,
		Store:    storeHandle.Store,
		Services: &api.Services{Auth: authService, Books: bookService},
		Playback: playbackHandle.Manager,
		Scanner:  scanner,
		Index:    indexHandle.SearchIndex,
		Covers:   covers,
		Events:   sseHandle.Manager,
		Logger:   log,
		Version:  Version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server error")
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}

// MDNSHandle wraps the Avahi advertiser; nil when advertisement is disabled.
type MDNSHandle struct {
	*mdns.Advertiser
}

// Shutdown implements do.ShutdownerWithError.
func (h *MDNSHandle) Shutdown() error {
	if h.Advertiser != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNS advertises the server over Avahi when enabled. Failure is
// non-fatal: a host without the daemon just goes undiscovered.
func ProvideMDNS(i do.Injector) (*MDNSHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mdns advertisement disabled by configuration")
		return &MDNSHandle{}, nil
	}

	adv := mdns.New(log)

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		log.Warn("unparseable server port, skipping mdns", "port", cfg.Server.Port)
		return &MDNSHandle{Advertiser: adv}, nil
	}

	txt := map[string]string{
		"version": Version,
		"name":    cfg.Server.Name,
	}
	if err := adv.Start(cfg.Server.Name, port, txt); err != nil {
		log.WithError(err).Warn("mdns advertisement unavailable")
	}

	return &MDNSHandle{Advertiser: adv}, nil
}
