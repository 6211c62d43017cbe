// Package api implements the management API: JSON
// resources over the live Config Store and Stats Registry, dashboard
// cookie auth, Prometheus /metrics, and embedded static dashboard assets.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Annihilater/net-relay/internal/adapter/outbound/memory"
	"github.com/Annihilater/net-relay/internal/config"
	"github.com/Annihilater/net-relay/internal/domain/session"
	"github.com/Annihilater/net-relay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is the build version surfaced by GET /api/health.
const Version = "0.1.0"

// sessionCookieName is the dashboard auth cookie.
const sessionCookieName = "net_relay_session"

// Handler serves the management API. Construct with New and mount Routes.
type Handler struct {
	store      *config.Store
	stats      *memory.StatsRegistry
	sessions   *session.Service
	registry   *prometheus.Registry
	logger     *slog.Logger
	startTime  time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetricsRegistry wires the Prometheus registry backing GET /metrics
// and the metrics recorded by the proxy listeners.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(h *Handler) { h.registry = reg }
}

// New creates a management API Handler over store and stats, with a
// dashboard Session Service backed by sessionStore.
func New(store *config.Store, stats *memory.StatsRegistry, sessionStore session.SessionStore, opts ...Option) *Handler {
	h := &Handler{
		store:     store,
		stats:     stats,
		sessions:  session.NewService(sessionStore, session.Config{Timeout: 24 * time.Hour}),
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// envelope is the uniform JSON response shape every endpoint returns.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (h *Handler) respondOK(w http.ResponseWriter, data interface{}) {
	h.respond(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respond(w, status, envelope{Success: false, Message: message})
}

func (h *Handler) respond(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.logger.Error("failed to encode api response", "error", err)
	}
}

func (h *Handler) decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Routes builds the full route tree: CORS, dashboard auth middleware,
// /metrics, and embedded static assets around the JSON API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/connections", h.handleConnections)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/stats/users", h.handleUserStats)

	mux.HandleFunc("GET /api/config", h.handleGetConfig)
	mux.HandleFunc("GET /api/config/access-control", h.handleGetAccessControl)
	mux.HandleFunc("POST /api/config/access-control", h.handlePostAccessControl)
	mux.HandleFunc("POST /api/config/ip/blacklist", h.handlePostIP(ipListBlacklist))
	mux.HandleFunc("DELETE /api/config/ip/blacklist", h.handleDeleteIP(ipListBlacklist))
	mux.HandleFunc("POST /api/config/ip/whitelist", h.handlePostIP(ipListWhitelist))
	mux.HandleFunc("DELETE /api/config/ip/whitelist", h.handleDeleteIP(ipListWhitelist))
	mux.HandleFunc("POST /api/config/rules", h.handlePostRule)
	mux.HandleFunc("DELETE /api/config/rules", h.handleDeleteRule)
	mux.HandleFunc("GET /api/config/security", h.handleGetSecurity)
	mux.HandleFunc("PUT /api/config/security", h.handlePutSecurity)
	mux.HandleFunc("POST /api/config/users", h.handlePostUser)
	mux.HandleFunc("PUT /api/config/users", h.handlePutUser)
	mux.HandleFunc("DELETE /api/config/users", h.handleDeleteUser)
	mux.HandleFunc("GET /api/config/server", h.handleGetServer)
	mux.HandleFunc("PUT /api/config/server", h.handlePutServer)

	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/auth/check", h.handleAuthCheck)

	if h.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry}))
	}

	mux.Handle("/", newStaticHandler())

	return corsMiddleware(h.dashboardAuthMiddleware(mux))
}

// MetricsRegistry builds the Prometheus registry and metrics this handler's
// /metrics endpoint exposes, using the standard
// collectors.NewGoCollector()/NewProcessCollector() pattern. Callers wire
// the returned *metrics.Metrics into proxy.Deps.Metrics so the listeners
// record into the same registry this handler serves.
func MetricsRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}
