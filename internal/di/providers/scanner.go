package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/library"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/media/images"
)

// ProvideScanner provides the library scanner.
func ProvideScanner(i do.Injector) (*library.Scanner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*extract.Registry](i)
	covers := do.MustInvoke[*images.Processor](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return library.NewScanner(storeHandle.Store, registry, covers, indexHandle.SearchIndex, sseHandle.Manager, log, library.Options{
		Root:          cfg.Library.Path,
		CalibreImport: cfg.Library.CalibreImport,
	}), nil
}

// LibraryWatchHandle owns the filesystem watch goroutine.
type LibraryWatchHandle struct {
	cancel context.CancelFunc
}

// Shutdown implements do.ShutdownerWithError.
func (h *LibraryWatchHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideLibraryWatch starts watching the library dir when configured;
// batches of filesystem events run through the scanner's incremental path.
func ProvideLibraryWatch(i do.Injector) (*LibraryWatchHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	scanner := do.MustInvoke[*library.Scanner](i)

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Library.Watch && cfg.Library.Path != "" {
		go func() {
			if err := scanner.Watch(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("library watch stopped")
			}
		}()
	}

	return &LibraryWatchHandle{cancel: cancel}, nil
}

// RunStartupScan reconciles the library with the catalog in the background.
// Books added or removed while the server was down surface without waiting
// for a manual scan.
func RunStartupScan(i do.Injector) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Library.Path == "" {
		return
	}

	scanner := do.MustInvoke[*library.Scanner](i)
	log := do.MustInvoke[*logger.Logger](i)

	go func() {
		if _, err := scanner.Scan(context.Background(), library.ScanOptions{}); err != nil {
			log.WithError(err).Error("startup scan failed")
		}
	}()
}
