// Package di wires the application graph for the Aloud server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/auth"
	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/di/providers"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/library"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/media/images"
	"github.com/aloudapp/aloud-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Persistence + events
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideCoverStorage)
	do.Provide(injector, providers.ProvideCoverProcessor)
	do.Provide(injector, providers.ProvideExtractRegistry)

	// Narration
	do.Provide(injector, providers.ProvideEngine)
	do.Provide(injector, providers.ProvideMPRIS)
	do.Provide(injector, providers.ProvidePlaybackManager)

	// Auth + services
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideBookService)

	// Library pipeline
	do.Provide(injector, providers.ProvideScanner)
	do.Provide(injector, providers.ProvideLibraryWatch)

	// Workers
	do.Provide(injector, providers.ProvideVoiceWarmer)
	do.Provide(injector, providers.ProvideStoreJanitor)

	// Server + discovery
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNS)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle
// management. This triggers lazy initialization of everything in the graph.
func Bootstrap(injector *do.RootScope) error {
	// Core infrastructure
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)

	// Persistence + events
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*images.Storage](injector)
	_ = do.MustInvoke[*images.Processor](injector)
	_ = do.MustInvoke[*extract.Registry](injector)

	// Narration
	_ = do.MustInvoke[*providers.EngineHandle](injector)
	_ = do.MustInvoke[*providers.MPRISHandle](injector)
	_ = do.MustInvoke[*providers.PlaybackHandle](injector)

	// Auth + services
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.BookService](injector)

	// Library pipeline
	_ = do.MustInvoke[*library.Scanner](injector)
	_ = do.MustInvoke[*providers.LibraryWatchHandle](injector)

	// Workers
	_ = do.MustInvoke[*providers.VoiceWarmerHandle](injector)
	_ = do.MustInvoke[*providers.StoreJanitorHandle](injector)

	// Server + discovery
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSHandle](injector)

	// Catch up with whatever changed in the library while we were down.
	providers.RunStartupScan(injector)

	return nil
}
