package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/sse"
	"github.com/aloudapp/aloud-server/internal/store"
)

// SSEManagerHandle wraps the event manager with its run context for
// lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.ShutdownerWithError.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("event manager started")

	return &SSEManagerHandle{Manager: manager, cancel: cancel}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.ShutdownerWithError.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the badger store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := filepath.Join(cfg.Data.BasePath, "store")
	st, err := store.New(path, log)
	if err != nil {
		return nil, err
	}

	log.Info("store opened", "path", path)

	return &StoreHandle{Store: st}, nil
}
