// Package proxy holds the dependencies and accept-time policy checks
// shared by the SOCKS5 and HTTP CONNECT listeners (step
// "accept -> IP ACL -> protocol handshake"). Each listener holds a *Deps
// and calls DialTarget identically, then drives its own
// wire-protocol state machine and its own IP/target ACL checks via
// internal/domain/acl against the snapshot Deps.Store.Get() returns.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Annihilater/net-relay/internal/adapter/outbound/memory"
	"github.com/Annihilater/net-relay/internal/config"
	"github.com/Annihilater/net-relay/internal/domain/acl"
	"github.com/Annihilater/net-relay/internal/domain/conn"
	"github.com/Annihilater/net-relay/internal/domain/ratelimit"
	"github.com/Annihilater/net-relay/internal/metrics"
	"github.com/Annihilater/net-relay/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Dialer abstracts net.Dialer.DialContext so tests can substitute a fake
// target without binding a real socket.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Deps bundles everything a listener needs beyond its own protocol state
// machine: the live Config Store, the optional CEL rule evaluator, the
// Stats Registry, the connection semaphore, a Dialer, and a logger.
type Deps struct {
	Store    *config.Store
	RuleEval acl.RuleEvaluator
	Stats    *memory.StatsRegistry
	ConnSem  *ratelimit.ConnSemaphore
	Dialer   Dialer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// NewConnectionInfo creates a ConnectionInfo in the Connecting state and
// mints its 128-bit id. The caller registers it with Deps.Stats once
// the protocol success reply has been written.
func NewConnectionInfo(protocol conn.Protocol, clientAddr, targetAddr string, targetPort uint16, username, traceID string) conn.Info {
	return conn.Info{
		ID:          uuid.New().String(),
		Protocol:    protocol,
		ClientAddr:  clientAddr,
		TargetAddr:  targetAddr,
		TargetPort:  targetPort,
		State:       conn.StateConnecting,
		ConnectedAt: time.Now().UTC(),
		Username:    username,
		TraceID:     traceID,
	}
}

// DialTarget attempts a TCP dial to host:port with a bounded timeout. On
// failure the caller replies with the protocol's failure status and
// terminates the connection.
func (d *Deps) DialTarget(ctx context.Context, host string, port uint16) (net.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 10 * time.Second}
	}
	address := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return dialer.DialContext(ctx, "tcp", address)
}

// RecordAuthFailure increments the auth-failure counter, when metrics are wired.
func (d *Deps) RecordAuthFailure() {
	if d.Metrics != nil {
		d.Metrics.AuthFailuresTotal.Inc()
	}
}

// RecordACLDenial increments the ACL-denial counter for the given kind
// ("ip" or "target"), when metrics are wired.
func (d *Deps) RecordACLDenial(kind string) {
	if d.Metrics != nil {
		d.Metrics.ACLDenialsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordConnectionOpen increments the per-protocol connection counter and
// the active-connections gauge, when metrics are wired.
func (d *Deps) RecordConnectionOpen(protocol conn.Protocol) {
	if d.Metrics != nil {
		d.Metrics.ConnectionsTotal.WithLabelValues(string(protocol)).Inc()
		d.Metrics.ConnectionsActive.Inc()
	}
}

// RecordConnectionClose decrements the active-connections gauge and adds
// the final byte counts to the per-direction totals, when metrics are wired.
func (d *Deps) RecordConnectionClose(bytesSent, bytesReceived uint64) {
	if d.Metrics != nil {
		d.Metrics.ConnectionsActive.Dec()
		d.Metrics.BytesTotal.WithLabelValues("sent").Add(float64(bytesSent))
		d.Metrics.BytesTotal.WithLabelValues("received").Add(float64(bytesReceived))
	}
}

// FinalizeSpan ends the OTel span for a closed connection with its final
// byte counts. Releasing the connection semaphore slot acquired at accept
// time is the listener's own responsibility (typically a single deferred
// call right after TryAcquire succeeds), so that it runs exactly once
// regardless of which return path the handler takes.
func (d *Deps) FinalizeSpan(span trace.Span, bytesSent, bytesReceived uint64) {
	telemetry.EndConnectionSpan(span, bytesSent, bytesReceived)
}
