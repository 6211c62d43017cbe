package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// PersistFunc is invoked by Store after every successful in-memory update,
// when a load path is known, to rewrite the backing TOML file. Persistence
// failures surface to the caller but never roll back the in-memory change.
type PersistFunc func(cfg Config) error

// Store is the single source of truth for the live Config. Readers take a
// cheap snapshot under a shared lock and release immediately; writers take
// an exclusive lock only for the duration of the in-memory mutation, never
// across I/O. This is what lets the proxy listeners re-read policy on every
// accept without serializing against the relay itself.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	path    string
	persist PersistFunc
}

// NewStore creates a Store seeded with cfg and no bound file: updates stay
// in memory only. NewStoreWithFile binds the file to persist updates to.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// NewStoreWithFile creates a Store that persists updates back to path using
// an atomic (write-temp, rename) TOML rewrite.
func NewStoreWithFile(cfg Config, path string) *Store {
	s := &Store{cfg: cfg, path: path}
	if path != "" {
		s.persist = func(c Config) error { return writeTOMLAtomic(path, c) }
	}
	return s
}

// Get returns a snapshot of the whole configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// GetSecurity returns a snapshot of the security subtree.
func (s *Store) GetSecurity() SecurityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone().Security
}

// GetServer returns a snapshot of the server subtree.
func (s *Store) GetServer() ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Server
}

// GetAccessControl returns a snapshot of the access-control subtree.
func (s *Store) GetAccessControl() AccessControlConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone().AccessControl
}

// Update atomically replaces the whole Config, then best-effort persists it.
func (s *Store) Update(cfg Config) error {
	s.mu.Lock()
	s.cfg = cfg.Clone()
	persist := s.persist
	snapshot := s.cfg
	s.mu.Unlock()
	return persistIfBound(persist, snapshot)
}

// UpdateAccessControl atomically replaces the access-control subtree.
func (s *Store) UpdateAccessControl(ac AccessControlConfig) error {
	s.mu.Lock()
	s.cfg.AccessControl = ac
	persist := s.persist
	snapshot := s.cfg.Clone()
	s.mu.Unlock()
	return persistIfBound(persist, snapshot)
}

// UpdateSecurity atomically replaces the security subtree.
func (s *Store) UpdateSecurity(sec SecurityConfig) error {
	s.mu.Lock()
	s.cfg.Security = sec
	persist := s.persist
	snapshot := s.cfg.Clone()
	s.mu.Unlock()
	return persistIfBound(persist, snapshot)
}

// UpdateServer atomically replaces the server subtree. Live changes here do
// not re-bind the running listeners.
func (s *Store) UpdateServer(sc ServerConfig) error {
	s.mu.Lock()
	s.cfg.Server = sc
	persist := s.persist
	snapshot := s.cfg.Clone()
	s.mu.Unlock()
	return persistIfBound(persist, snapshot)
}

func persistIfBound(persist PersistFunc, cfg Config) error {
	if persist == nil {
		return nil
	}
	if err := persist(cfg); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	return nil
}

// Authenticate returns the matched username iff a User exists whose Enabled
// is true, Username matches exactly, and Password equals the provided
// value. Comparison is plaintext — the recorded current contract.
func (s *Store) Authenticate(username, password string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.cfg.Security.Users {
		if u.Enabled && u.Username == username && u.Password == password {
			return u.Username, true
		}
	}
	return "", false
}

// AuthenticateDashboard has the identical contract as Authenticate, scoped
// to the dashboard realm; this design shares one user list across realms.
func (s *Store) AuthenticateDashboard(username, password string) (string, bool) {
	return s.Authenticate(username, password)
}

// IsAuthEnabled reports the proxy realm's auth_enabled flag.
func (s *Store) IsAuthEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Security.AuthEnabled
}

// IsDashboardAuthEnabled reports the dashboard realm's auth_enabled flag
// (identical flag in this design; see IsAuthEnabled).
func (s *Store) IsDashboardAuthEnabled() bool {
	return s.IsAuthEnabled()
}

func writeTOMLAtomic(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
