package providers

import (
	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/media/images"
)

// ProvideCoverStorage provides the cover file store under the data dir.
func ProvideCoverStorage(i do.Injector) (*images.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return images.NewStorage(cfg.Data.BasePath)
}

// ProvideCoverProcessor provides the cover pipeline (store + blurhash).
func ProvideCoverProcessor(i do.Injector) (*images.Processor, error) {
	storage := do.MustInvoke[*images.Storage](i)
	log := do.MustInvoke[*logger.Logger](i)
	return images.NewProcessor(storage, log), nil
}

// ProvideExtractRegistry provides the book format extractor registry.
func ProvideExtractRegistry(i do.Injector) (*extract.Registry, error) {
	return extract.NewRegistry(), nil
}
