package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a dashboard session doesn't exist,
// or has already expired at the time it was looked up.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists dashboard sessions on Service's behalf. It lives
// in this package rather than the management API's adapter package so
// Service can depend on it without an import cycle. The only
// implementation backing it at runtime is the in-memory adapter in
// internal/adapter/outbound/memory. Service.Get and Service.Refresh below
// check expiry themselves, whether or not the store also does.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

// Config holds session service configuration.
type Config struct {
	// Timeout is the session expiration duration. Default: 30 minutes.
	Timeout time.Duration
}

// Service manages dashboard session lifecycle on top of a SessionStore.
type Service struct {
	store   SessionStore
	timeout time.Duration
}

// NewService creates a new Service with the given store and config.
func NewService(store SessionStore, cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		store:   store,
		timeout: timeout,
	}
}

// Create issues a new session for a successfully authenticated username.
func (s *Service) Create(ctx context.Context, username string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:         id,
		Username:   username,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.timeout),
		LastAccess: now,
	}

	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Get retrieves a session by ID.
// Returns ErrSessionNotFound if the session doesn't exist.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Double-check expiration (store might not enforce it)
	if sess.IsExpired() {
		_ = s.store.Delete(ctx, id)
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Refresh extends session expiration and updates last access time.
func (s *Service) Refresh(ctx context.Context, id string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if sess.IsExpired() {
		_ = s.store.Delete(ctx, id)
		return ErrSessionNotFound
	}

	sess.Refresh(s.timeout)

	if err := s.store.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	return nil
}

// Delete terminates a session (dashboard logout).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// GenerateSessionID creates a cryptographically random session ID: 64 hex
// characters (32 bytes) from crypto/rand. Dashboard sessions gate
// configuration-mutating endpoints, so the token comes from a CSPRNG.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
