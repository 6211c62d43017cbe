package api

import (
	"net/http"
	"strconv"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth serves GET /api/health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, healthResponse{Status: "ok", Version: Version})
}

type statsResponse struct {
	Aggregated  interface{} `json:"aggregated"`
	Connections interface{} `json:"connections"`
}

// handleStats serves GET /api/stats: aggregated counters plus the active
// connection list.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, statsResponse{
		Aggregated:  h.stats.GetAggregated(),
		Connections: h.stats.GetActive(),
	})
}

// handleConnections serves GET /api/connections.
func (h *Handler) handleConnections(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, h.stats.GetActive())
}

// handleHistory serves GET /api/history?limit=N. A missing or
// non-positive limit means "all" (StatsRegistry.GetHistory's own contract).
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	h.respondOK(w, h.stats.GetHistory(limit))
}

// handleUserStats serves GET /api/stats/users.
func (h *Handler) handleUserStats(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, h.stats.GetUserStats())
}
