package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// unauthorized writes the literal body expected for a missing or invalid
// dashboard session: {"success":false,"error":"..."} — note the "error"
// key, not the envelope's usual "message".
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{Success: false, Error: message})
}

// corsMiddleware sets permissive CORS headers: "*" for origin, methods, and
// headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// dashboardPublicPrefixes lists paths that never require a session, even
// when the dashboard realm's auth_enabled is true: the auth
// endpoints themselves, the root document, static assets, and the metrics
// endpoint (scraped by infrastructure, not a logged-in operator).
var dashboardPublicPrefixes = []string{
	"/api/auth/",
	"/static/",
	"/metrics",
}

func isDashboardPublic(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range dashboardPublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// dashboardAuthMiddleware enforces a valid net_relay_session cookie on
// every path except the ones isDashboardPublic exempts, when the
// dashboard's auth_enabled flag is set. A missing or
// expired session yields a JSON 401, never a redirect — this is an API,
// not a browser-navigable login flow.
func (h *Handler) dashboardAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.store.IsDashboardAuthEnabled() || isDashboardPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			unauthorized(w, "Authentication required")
			return
		}

		sess, err := h.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			unauthorized(w, "Authentication required")
			return
		}

		_ = h.sessions.Refresh(r.Context(), sess.ID)
		next.ServeHTTP(w, r)
	})
}
