package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/placefinder/search-api/internal/authz"
	"github.com/placefinder/search-api/internal/events"
	"github.com/placefinder/search-api/internal/http/mw"
	"github.com/placefinder/search-api/internal/photoproxy"
)

// sunsetDate is the RFC 8594 Sunset date advertised on the legacy /api
// mount. spec.md §6 asks only that one be present; this one is a
// placeholder far enough out that no client should be surprised by it.
const sunsetDate = "Wed, 31 Dec 2026 23:59:59 GMT"

// RouterConfig bundles everything NewRouter needs to assemble the HTTP
// surface spec.md §6 names.
type RouterConfig struct {
	Handler          *Handler
	Hub              *events.Hub
	Jobs             events.JobReader
	Photos           *photoproxy.Handler
	CORSOrigins      []string
	RateLimits       mw.RateLimitConfig
	Logger           *slog.Logger
}

// NewRouter builds the chi router: a public huma API (docs-visible), a
// hidden huma API for /healthz, and raw chi mounts for the SSE stream, the
// WebSocket upgrade, and the photo proxy — mirroring the three-huma-API
// split the teacher uses to keep k8s probes and non-JSON endpoints out of
// the generated OpenAPI doc.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          10 * time.Second,
		Extended:         45 * time.Second,
		ExtendedPatterns: []string{"/search"},
		SkipPatterns:     []string{"/stream", "/ws"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(middleware.RequestSize(64 * 1024))
	router.Use(authz.Middleware)
	router.Use(mw.RateLimitBySession(cfg.RateLimits, authz.SessionIDFunc))
	router.Use(mw.Cache(mw.DefaultCacheConfig()))
	router.Use(mw.APIVersion())
	router.Use(mw.ExtendWriteDeadlineForSyncRequests())

	humaConfig := huma.DefaultConfig("Place Search API", "1.0.0")
	humaConfig.Info.Description = "Natural-language restaurant search, backed by an async job pipeline."

	hiddenConfig := huma.DefaultConfig("Place Search API", "1.0.0")
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""

	registerVersioned := func(mountPrefix string, api huma.API) {
		huma.Register(api, huma.Operation{
			OperationID: "createSearch-" + mountPrefix,
			Method:      http.MethodPost,
			Path:        mountPrefix + "/search",
			Summary:     "Submit a natural-language search",
		}, cfg.Handler.CreateSearch)

		huma.Register(api, huma.Operation{
			OperationID: "getSearchResult-" + mountPrefix,
			Method:      http.MethodGet,
			Path:        mountPrefix + "/search/{requestId}/result",
			Summary:     "Poll or fetch a search's result",
		}, cfg.Handler.GetSearchResult)
	}

	api := humachi.New(router, humaConfig)
	registerVersioned("/api/v1", api)

	// Legacy mount: same operations, same handler, under the old prefix —
	// every response additionally carries Deprecation/Sunset per spec.md
	// §6. The operations are registered on their own humachi instance so
	// their OperationIDs don't collide with the /api/v1 ones.
	router.Group(func(r chi.Router) {
		r.Use(deprecationHeaders)
		legacyAPI := humachi.New(r, hiddenConfig)
		registerVersioned("/api", legacyAPI)
	})

	hiddenAPI := humachi.New(router, hiddenConfig)
	huma.Get(hiddenAPI, "/healthz", cfg.Handler.Healthz)

	router.Get("/stream/assistant/{requestId}", events.AssistantStreamHandler(cfg.Jobs, events.DefaultOrchestratorConfig(), logger))
	router.Get("/ws/{requestId}", events.WSHandler(cfg.Hub, logger))

	// The photo proxy has no session binding at all, so it needs its own
	// per-remote-address limiter rather than riding on RateLimitBySession's
	// session-keyed one (spec.md §4.7: "per-remote-address rate limiter
	// (≈60/min) protects the upstream").
	router.Group(func(r chi.Router) {
		r.Use(mw.RateLimitByIP(cfg.RateLimits.IPRequestsPerMinute))
		r.Get("/photos/places/{placeId}/photos/{photoId}", cfg.Photos.ServeHTTP)
	})

	return router
}

// deprecationHeaders marks every response under the legacy /api mount with
// the Deprecation/Sunset pair spec.md §6 requires.
func deprecationHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Deprecation", "true")
		w.Header().Set("Sunset", sunsetDate)
		next.ServeHTTP(w, r)
	})
}
