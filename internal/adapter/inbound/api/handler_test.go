package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Annihilater/net-relay/internal/adapter/outbound/memory"
	"github.com/Annihilater/net-relay/internal/config"
)

func newTestHandler(t *testing.T, cfg config.Config) *Handler {
	t.Helper()
	store := config.NewStore(cfg)
	stats := memory.NewStatsRegistry(100)
	sessionStore := memory.NewSessionStore()
	return New(store, stats, sessionStore)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v, body=%s", err, w.Body.String())
	}
	return env
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, config.Config{})
	w := doJSON(t, h.Routes(), http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Errorf("success = false, want true")
	}
}

func TestHandler_GetSecurity_OmitsPasswords(t *testing.T) {
	t.Parallel()
	cfg := config.Config{
		Security: config.SecurityConfig{
			AuthEnabled: true,
			Users:       []config.User{{Username: "alice", Password: "s3cret", Enabled: true}},
		},
	}
	h := newTestHandler(t, cfg)
	w := doJSON(t, h.Routes(), http.MethodGet, "/api/config/security", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("s3cret")) {
		t.Fatalf("response leaked a password: %s", w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("alice")) {
		t.Fatalf("response missing expected username: %s", w.Body.String())
	}
}

func TestHandler_GetConfig_OmitsPasswords(t *testing.T) {
	t.Parallel()
	cfg := config.Config{
		Security: config.SecurityConfig{
			Users: []config.User{{Username: "bob", Password: "hunter2"}},
		},
	}
	h := newTestHandler(t, cfg)
	w := doJSON(t, h.Routes(), http.MethodGet, "/api/config", nil)
	if bytes.Contains(w.Body.Bytes(), []byte("hunter2")) {
		t.Fatalf("response leaked a password: %s", w.Body.String())
	}
}

func TestHandler_PostAndDeleteIPBlacklist(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, config.Config{})
	routes := h.Routes()

	w := doJSON(t, routes, http.MethodPost, "/api/config/ip/blacklist", ipRequest{IP: "10.0.0.5"})
	if w.Code != http.StatusOK {
		t.Fatalf("post status = %d, want 200: %s", w.Code, w.Body.String())
	}
	ac := h.store.GetAccessControl()
	if len(ac.IPBlacklist) != 1 || ac.IPBlacklist[0] != "10.0.0.5" {
		t.Fatalf("blacklist after post = %v", ac.IPBlacklist)
	}

	w = doJSON(t, routes, http.MethodDelete, "/api/config/ip/blacklist", ipRequest{IP: "10.0.0.5"})
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200: %s", w.Code, w.Body.String())
	}
	ac = h.store.GetAccessControl()
	if len(ac.IPBlacklist) != 0 {
		t.Fatalf("blacklist after delete = %v, want empty", ac.IPBlacklist)
	}
}

func TestHandler_PostRuleThenDeleteByIndex(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, config.Config{})
	routes := h.Routes()

	rule := config.Rule{Name: "deny-internal", DomainPattern: "*.internal", Action: config.ActionDeny, Enabled: true}
	w := doJSON(t, routes, http.MethodPost, "/api/config/rules", rule)
	if w.Code != http.StatusOK {
		t.Fatalf("post rule status = %d: %s", w.Code, w.Body.String())
	}
	if got := h.store.GetAccessControl().Rules; len(got) != 1 || got[0].Name != "deny-internal" {
		t.Fatalf("rules after post = %+v", got)
	}

	w = doJSON(t, routes, http.MethodDelete, "/api/config/rules", deleteRuleRequest{Index: 0})
	if w.Code != http.StatusOK {
		t.Fatalf("delete rule status = %d: %s", w.Code, w.Body.String())
	}
	if got := h.store.GetAccessControl().Rules; len(got) != 0 {
		t.Fatalf("rules after delete = %+v, want empty", got)
	}
}

func TestHandler_UserLifecycle(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, config.Config{})
	routes := h.Routes()

	user := config.User{Username: "alice", Password: "s3cret", Enabled: true}
	w := doJSON(t, routes, http.MethodPost, "/api/config/users", user)
	if w.Code != http.StatusOK {
		t.Fatalf("post user status = %d: %s", w.Code, w.Body.String())
	}

	// Duplicate username is rejected.
	w = doJSON(t, routes, http.MethodPost, "/api/config/users", user)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate post status = %d, want 409", w.Code)
	}

	user.Enabled = false
	w = doJSON(t, routes, http.MethodPut, "/api/config/users", user)
	if w.Code != http.StatusOK {
		t.Fatalf("put user status = %d: %s", w.Code, w.Body.String())
	}
	sec := h.store.GetSecurity()
	if len(sec.Users) != 1 || sec.Users[0].Enabled {
		t.Fatalf("users after put = %+v", sec.Users)
	}

	w = doJSON(t, routes, http.MethodDelete, "/api/config/users", deleteUserRequest{Username: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("delete user status = %d: %s", w.Code, w.Body.String())
	}
	if len(h.store.GetSecurity().Users) != 0 {
		t.Fatalf("users after delete = %+v, want empty", h.store.GetSecurity().Users)
	}
}

func TestHandler_LoginLogoutAndDashboardAuth(t *testing.T) {
	t.Parallel()
	cfg := config.Config{
		Security: config.SecurityConfig{
			AuthEnabled: true,
			Users:       []config.User{{Username: "alice", Password: "s3cret", Enabled: true}},
		},
	}
	h := newTestHandler(t, cfg)
	routes := h.Routes()

	// A protected path without a cookie is rejected.
	w := doJSON(t, routes, http.MethodGet, "/api/config", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	loginReq := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(mustJSON(t, loginRequest{Username: "alice", Password: "s3cret"})))
	loginW := httptest.NewRecorder()
	routes.ServeHTTP(loginW, loginReq)
	if loginW.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", loginW.Code, loginW.Body.String())
	}
	cookies := loginW.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("login did not set the session cookie: %+v", cookies)
	}

	authedReq := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	authedReq.AddCookie(cookies[0])
	authedW := httptest.NewRecorder()
	routes.ServeHTTP(authedW, authedReq)
	if authedW.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200: %s", authedW.Code, authedW.Body.String())
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	logoutReq.AddCookie(cookies[0])
	logoutW := httptest.NewRecorder()
	routes.ServeHTTP(logoutW, logoutReq)
	if logoutW.Code != http.StatusOK {
		t.Fatalf("logout status = %d: %s", logoutW.Code, logoutW.Body.String())
	}

	afterLogoutReq := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	afterLogoutReq.AddCookie(cookies[0])
	afterLogoutW := httptest.NewRecorder()
	routes.ServeHTTP(afterLogoutW, afterLogoutReq)
	if afterLogoutW.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d, want 401", afterLogoutW.Code)
	}
}

func TestHandler_StaticIndexServedWithETag(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, config.Config{})
	w := doJSON(t, h.Routes(), http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header on the static index page")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	h.Routes().ServeHTTP(w2, r)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional GET status = %d, want 304", w2.Code)
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
