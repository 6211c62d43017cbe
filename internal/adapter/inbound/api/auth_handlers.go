package api

import (
	"net/http"
	"time"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username string `json:"username"`
}

// handleLogin serves POST /api/auth/login: authenticates
// against the dashboard realm and, on success, issues a session cookie.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username, ok := h.store.AuthenticateDashboard(req.Username, req.Password)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessions.Create(r.Context(), username)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})
	h.respondOK(w, loginResponse{Username: username})
}

// handleLogout serves POST /api/auth/logout: deletes the session (if any)
// and clears the cookie regardless of whether one was present.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		_ = h.sessions.Delete(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	h.respondOK(w, nil)
}

type authCheckResponse struct {
	AuthEnabled   bool   `json:"auth_enabled"`
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// handleAuthCheck serves GET /api/auth/check: reports whether the
// dashboard realm requires auth and, if a valid session cookie is present,
// who it belongs to.
func (h *Handler) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	resp := authCheckResponse{AuthEnabled: h.store.IsDashboardAuthEnabled()}

	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if sess, err := h.sessions.Get(r.Context(), cookie.Value); err == nil {
			resp.Authenticated = true
			resp.Username = sess.Username
		}
	}
	h.respondOK(w, resp)
}
