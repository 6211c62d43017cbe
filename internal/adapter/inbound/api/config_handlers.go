package api

import (
	"net/http"

	"github.com/Annihilater/net-relay/internal/config"
)

// publicUser mirrors config.User but omits Password: every response this
// handler returns that involves users (GET /api/config/security, the
// users list embedded in GET /api/config) must omit password fields.
type publicUser struct {
	Username        string `json:"username"`
	Enabled         bool   `json:"enabled"`
	Description     string `json:"description"`
	BandwidthLimit  int64  `json:"bandwidth_limit"`
	ConnectionLimit int    `json:"connection_limit"`
}

func sanitizeUser(u config.User) publicUser {
	return publicUser{
		Username:        u.Username,
		Enabled:         u.Enabled,
		Description:     u.Description,
		BandwidthLimit:  u.BandwidthLimit,
		ConnectionLimit: u.ConnectionLimit,
	}
}

func sanitizeUsers(users []config.User) []publicUser {
	out := make([]publicUser, len(users))
	for i, u := range users {
		out[i] = sanitizeUser(u)
	}
	return out
}

// publicConfig mirrors config.Config with Security.Users sanitized.
type publicConfig struct {
	Server        config.ServerConfig        `json:"server"`
	Security      publicSecurityConfig       `json:"security"`
	AccessControl config.AccessControlConfig `json:"access_control"`
	Limits        config.LimitsConfig        `json:"limits"`
	Logging       config.LoggingConfig       `json:"logging"`
	Stats         config.StatsConfig         `json:"stats"`
}

type publicSecurityConfig struct {
	AuthEnabled bool         `json:"auth_enabled"`
	Users       []publicUser `json:"users"`
}

func sanitizeConfig(c config.Config) publicConfig {
	return publicConfig{
		Server: c.Server,
		Security: publicSecurityConfig{
			AuthEnabled: c.Security.AuthEnabled,
			Users:       sanitizeUsers(c.Security.Users),
		},
		AccessControl: c.AccessControl,
		Limits:        c.Limits,
		Logging:       c.Logging,
		Stats:         c.Stats,
	}
}

// handleGetConfig serves GET /api/config: the whole configuration, with
// passwords stripped from the embedded user list.
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, sanitizeConfig(h.store.Get()))
}

// handleGetAccessControl serves GET /api/config/access-control.
func (h *Handler) handleGetAccessControl(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, h.store.GetAccessControl())
}

// handlePostAccessControl serves POST /api/config/access-control: replaces
// the whole access-control subtree.
func (h *Handler) handlePostAccessControl(w http.ResponseWriter, r *http.Request) {
	var ac config.AccessControlConfig
	if err := h.decodeJSON(r, &ac); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.UpdateAccessControl(ac); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, ac)
}

// ipList identifies which of the two IP ACL lists a request targets.
type ipList int

const (
	ipListBlacklist ipList = iota
	ipListWhitelist
)

type ipRequest struct {
	IP string `json:"ip"`
}

// handlePostIP returns a handler for POST /api/config/ip/{blacklist,whitelist}:
// appends an IP (or CIDR-textual-prefix pattern) to the given list, when not
// already present.
func (h *Handler) handlePostIP(list ipList) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ipRequest
		if err := h.decodeJSON(r, &req); err != nil || req.IP == "" {
			h.respondError(w, http.StatusBadRequest, "missing ip")
			return
		}
		ac := h.store.GetAccessControl()
		switch list {
		case ipListBlacklist:
			if !containsString(ac.IPBlacklist, req.IP) {
				ac.IPBlacklist = append(ac.IPBlacklist, req.IP)
			}
		case ipListWhitelist:
			if !containsString(ac.IPWhitelist, req.IP) {
				ac.IPWhitelist = append(ac.IPWhitelist, req.IP)
			}
		}
		if err := h.store.UpdateAccessControl(ac); err != nil {
			h.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.respondOK(w, ac)
	}
}

// handleDeleteIP returns a handler for DELETE /api/config/ip/{blacklist,whitelist}.
func (h *Handler) handleDeleteIP(list ipList) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ipRequest
		if err := h.decodeJSON(r, &req); err != nil || req.IP == "" {
			h.respondError(w, http.StatusBadRequest, "missing ip")
			return
		}
		ac := h.store.GetAccessControl()
		switch list {
		case ipListBlacklist:
			ac.IPBlacklist = removeString(ac.IPBlacklist, req.IP)
		case ipListWhitelist:
			ac.IPWhitelist = removeString(ac.IPWhitelist, req.IP)
		}
		if err := h.store.UpdateAccessControl(ac); err != nil {
			h.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.respondOK(w, ac)
	}
}

// handlePostRule serves POST /api/config/rules: appends a target rule to
// the end of the ordered rule list. Rules evaluate in declaration order, so
// new rules are lowest-priority by default.
func (h *Handler) handlePostRule(w http.ResponseWriter, r *http.Request) {
	var rule config.Rule
	if err := h.decodeJSON(r, &rule); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ac := h.store.GetAccessControl()
	ac.Rules = append(ac.Rules, rule)
	if err := h.store.UpdateAccessControl(ac); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, ac)
}

type deleteRuleRequest struct {
	Index int `json:"index"`
}

// handleDeleteRule serves DELETE /api/config/rules (body: {"index": N}).
func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	var req deleteRuleRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ac := h.store.GetAccessControl()
	if req.Index < 0 || req.Index >= len(ac.Rules) {
		h.respondError(w, http.StatusBadRequest, "rule index out of range")
		return
	}
	ac.Rules = append(ac.Rules[:req.Index], ac.Rules[req.Index+1:]...)
	if err := h.store.UpdateAccessControl(ac); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, ac)
}

// handleGetSecurity serves GET /api/config/security, passwords stripped.
func (h *Handler) handleGetSecurity(w http.ResponseWriter, r *http.Request) {
	sec := h.store.GetSecurity()
	h.respondOK(w, publicSecurityConfig{
		AuthEnabled: sec.AuthEnabled,
		Users:       sanitizeUsers(sec.Users),
	})
}

// putSecurityRequest accepts auth_enabled only; user management goes
// through the dedicated /api/config/users endpoints so that a PUT here can
// never silently wipe the password of every stored user.
type putSecurityRequest struct {
	AuthEnabled bool `json:"auth_enabled"`
}

// handlePutSecurity serves PUT /api/config/security: toggles auth_enabled,
// leaving the user list untouched.
func (h *Handler) handlePutSecurity(w http.ResponseWriter, r *http.Request) {
	var req putSecurityRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sec := h.store.GetSecurity()
	sec.AuthEnabled = req.AuthEnabled
	if err := h.store.UpdateSecurity(sec); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, publicSecurityConfig{AuthEnabled: sec.AuthEnabled, Users: sanitizeUsers(sec.Users)})
}

// handlePostUser serves POST /api/config/users: adds a new user. The unique
// username invariant is enforced here, not left to Config.Validate alone,
// so a duplicate is rejected with a clear message rather than a generic
// validation error.
func (h *Handler) handlePostUser(w http.ResponseWriter, r *http.Request) {
	var user config.User
	if err := h.decodeJSON(r, &user); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if user.Username == "" {
		h.respondError(w, http.StatusBadRequest, "username is required")
		return
	}
	sec := h.store.GetSecurity()
	for _, u := range sec.Users {
		if u.Username == user.Username {
			h.respondError(w, http.StatusConflict, "username already exists")
			return
		}
	}
	sec.Users = append(sec.Users, user)
	if err := h.store.UpdateSecurity(sec); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, sanitizeUser(user))
}

// handlePutUser serves PUT /api/config/users: replaces an existing user by
// username (body carries the full updated User, including username).
func (h *Handler) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var user config.User
	if err := h.decodeJSON(r, &user); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sec := h.store.GetSecurity()
	idx := -1
	for i, u := range sec.Users {
		if u.Username == user.Username {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.respondError(w, http.StatusNotFound, "user not found")
		return
	}
	sec.Users[idx] = user
	if err := h.store.UpdateSecurity(sec); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, sanitizeUser(user))
}

type deleteUserRequest struct {
	Username string `json:"username"`
}

// handleDeleteUser serves DELETE /api/config/users (body: {"username": ...}).
// Removing a User never deletes its already-accumulated UserStats rollup —
// that's the Stats Registry's concern, untouched here.
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := h.decodeJSON(r, &req); err != nil || req.Username == "" {
		h.respondError(w, http.StatusBadRequest, "missing username")
		return
	}
	sec := h.store.GetSecurity()
	idx := -1
	for i, u := range sec.Users {
		if u.Username == req.Username {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.respondError(w, http.StatusNotFound, "user not found")
		return
	}
	sec.Users = append(sec.Users[:idx], sec.Users[idx+1:]...)
	if err := h.store.UpdateSecurity(sec); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, nil)
}

// handleGetServer serves GET /api/config/server.
func (h *Handler) handleGetServer(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, h.store.GetServer())
}

// handlePutServer serves PUT /api/config/server. Host and port changes
// only take effect on the next process restart: updating this subtree
// never re-binds the running listeners.
func (h *Handler) handlePutServer(w http.ResponseWriter, r *http.Request) {
	var sc config.ServerConfig
	if err := h.decodeJSON(r, &sc); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.UpdateServer(sc); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondOK(w, sc)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
