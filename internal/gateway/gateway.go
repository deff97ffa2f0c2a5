// Package gateway implements the HTTP proxy surface: routing, inbound
// authentication, request/response transformation, and upstream dispatch.
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxrelay/maxrelay/internal/config"
	"github.com/maxrelay/maxrelay/internal/monitoring"
	"github.com/maxrelay/maxrelay/internal/oauth"
)

// Gateway proxies message requests to the upstream provider using the
// subscription OAuth credential.
type Gateway struct {
	cfg      *config.Config
	tokens   *oauth.Manager
	metrics  *monitoring.Metrics
	logger   zerolog.Logger
	client   *http.Client
	versions *versionCache
}

// New builds a Gateway. The upstream client carries no timeout: streamed
// responses are open-ended and the server's write timeout bounds them.
func New(cfg *config.Config, tokens *oauth.Manager, metrics *monitoring.Metrics, logger zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		tokens:   tokens,
		metrics:  metrics,
		logger:   logger.With().Str("component", "gateway").Logger(),
		client:   &http.Client{},
		versions: newVersionCache(cfg.Upstream.VersionRegistryURL),
	}
}

// Handler returns the gateway's HTTP routing table.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(preflight)

	r.Post("/v1/messages", g.handleMessages)
	r.Post("/anthropic/v1/messages", g.handleMessages)
	r.Get("/v1/models", g.handleModels)
	r.Get("/anthropic/v1/models", g.handleModels)
	r.Get("/", g.handleHealth)
	r.Get("/health", g.handleHealth)
	if g.metrics != nil {
		r.Method(http.MethodGet, "/metrics", g.metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// requestID tags each request so log lines from one exchange correlate.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
