// Package api exposes the application over HTTP: a typed REST surface built
// on huma, raw streaming routes for covers, events, and backups, and the
// middleware stack shared by both.
package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/library"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/media/images"
	"github.com/aloudapp/aloud-server/internal/playback"
	"github.com/aloudapp/aloud-server/internal/ratelimit"
	"github.com/aloudapp/aloud-server/internal/search"
	"github.com/aloudapp/aloud-server/internal/sse"
	"github.com/aloudapp/aloud-server/internal/store"
)

// eventsPath is the SSE stream; its requests are long-lived and skip the
// request logger.
const eventsPath = "/api/v1/events"

// Options carries the wired application pieces into the HTTP layer.
type Options struct {
	Config   *config.Config
	Store    *store.Store
	Services *Services
	Playback *playback.Manager
	Scanner  *library.Scanner
	Index    *search.SearchIndex
	Covers   *images.Storage
	Events   *sse.Manager
	Logger   *logger.Logger
	Version  string
}

// Server is the HTTP surface of the application. Typed JSON routes go
// through huma so they validate and document themselves; byte streams
// (covers, SSE, backups) mount straight on the router.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	services *Services
	playback *playback.Manager
	scanner  *library.Scanner
	index    *search.SearchIndex
	covers   *images.Storage
	events   *sse.Manager
	stream   *sse.Handler
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	log      *logger.Logger
	version  string
}

// NewServer builds the middleware chain, the typed API, and every route.
func NewServer(opts Options) *Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		services: opts.Services,
		playback: opts.Playback,
		scanner:  opts.Scanner,
		index:    opts.Index,
		covers:   opts.Covers,
		events:   opts.Events,
		stream:   sse.NewHandler(opts.Events, opts.Logger),
		log:      opts.Logger,
		version:  version,
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "ETag"},
		MaxAge:         300,
	}))
	if s.cfg.Server.RateLimitRPS > 0 {
		s.limiter = ratelimit.New(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)
		s.router.Use(s.rateLimitMiddleware)
	}
	s.router.Use(s.authContext)

	humaConfig := huma.DefaultConfig("Aloud", version)
	humaConfig.Info.Description = "Self-hosted narration server: point it at a folder of books and listen to them on any device."
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerServerRoutes()
	s.registerAuthRoutes()
	s.registerBookRoutes()
	s.registerLibraryRoutes()
	s.registerPlaybackRoutes()
	s.registerVoiceRoutes()
	s.registerSearchRoutes()
	s.registerEventRoutes()
	s.registerAdminRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases server-owned resources. The HTTP listener itself belongs
// to the caller.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
