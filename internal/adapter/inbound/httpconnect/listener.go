// Package httpconnect drives the HTTP CONNECT accept loop:
// it binds a listener, and per accepted socket parses a CONNECT request
// with internal/domain/httpconnect's pure parser, consulting the live
// Config Store and Access Evaluator exactly as the SOCKS5 listener does.
package httpconnect

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Annihilater/net-relay/internal/adapter/inbound/proxy"
	"github.com/Annihilater/net-relay/internal/ctxkey"
	"github.com/Annihilater/net-relay/internal/domain/acl"
	"github.com/Annihilater/net-relay/internal/domain/conn"
	"github.com/Annihilater/net-relay/internal/domain/httpconnect"
	"github.com/Annihilater/net-relay/internal/domain/relay"
	"github.com/Annihilater/net-relay/internal/telemetry"
)

// Listener runs the HTTP CONNECT accept loop.
type Listener struct {
	deps *proxy.Deps
}

// New creates an HTTP CONNECT Listener over the given shared dependencies.
func New(deps *proxy.Deps) *Listener {
	return &Listener{deps: deps}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("httpconnect: listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logger := l.logger()
	logger.Info("http connect listener started", "addr", addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("http connect accept failed", "error", err)
			continue
		}
		go l.handle(ctx, c)
	}
}

func (l *Listener) logger() *slog.Logger {
	if l.deps.Logger != nil {
		return l.deps.Logger
	}
	return slog.Default()
}

func writeStatus(c net.Conn, status string) {
	_, _ = c.Write([]byte(status))
}

// handle drives one connection through the CONNECT state machine.
func (l *Listener) handle(ctx context.Context, c net.Conn) {
	defer c.Close()
	clientAddr := c.RemoteAddr().String()
	clientIP := telemetry.ClientIP(c.RemoteAddr())
	logger := l.logger().With("client", clientAddr, "protocol", "http-connect")
	ctx = ctxkey.WithLogger(ctx, logger)

	cfg := l.deps.Store.Get()

	// Step 1: IP check. Unlike SOCKS5 (silent close on every accept-time
	// rejection), the HTTP protocol still has no response to send here:
	// the client hasn't sent anything yet either, so this is also a
	// silent close.
	if !acl.IPAllowed(cfg.AccessControl, clientIP) {
		l.deps.RecordACLDenial("ip")
		logger.Debug("connection rejected by ip acl")
		return
	}
	if l.deps.ConnSem != nil && !l.deps.ConnSem.TryAcquire() {
		writeStatus(c, httpconnect.Response503ServiceUnavailable)
		logger.Debug("connection rejected: max_connections reached")
		return
	}
	defer func() {
		if l.deps.ConnSem != nil {
			l.deps.ConnSem.Release()
		}
	}()

	// Step 2-4: request line, target, headers.
	reader := bufio.NewReader(c)
	req, err := httpconnect.ReadRequest(reader)
	if err != nil {
		if err == httpconnect.ErrUnsupportedMethod {
			writeStatus(c, httpconnect.Response405MethodNotAllowed)
		}
		logger.Debug("request parse failed", "error", err)
		return
	}

	// Step 5: auth.
	var username string
	if cfg.Security.AuthEnabled {
		if req.ProxyAuthorization == "" {
			writeStatus(c, httpconnect.Response407ProxyAuthRequired)
			return
		}
		user, pass, err := httpconnect.DecodeBasicAuth(req.ProxyAuthorization)
		if err != nil {
			writeStatus(c, httpconnect.Response407ProxyAuthRequired)
			return
		}
		matched, ok := l.deps.Store.Authenticate(user, pass)
		if !ok {
			writeStatus(c, httpconnect.Response407ProxyAuthRequired)
			l.deps.RecordAuthFailure()
			logger.Debug("authentication failed", "username", user)
			return
		}
		username = matched
	}

	// Step 6: target ACL.
	cfg = l.deps.Store.Get()
	if !acl.TargetAllowed(cfg.AccessControl, req.Host, "", l.deps.RuleEval) {
		writeStatus(c, httpconnect.Response403Forbidden)
		l.deps.RecordACLDenial("target")
		logger.Debug("target denied by acl", "host", req.Host)
		return
	}

	// Step 7: dial.
	port, err := parsePort(req.Port)
	if err != nil {
		writeStatus(c, httpconnect.Response502BadGateway)
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	target, err := l.deps.DialTarget(dialCtx, req.Host, port)
	cancel()
	if err != nil {
		writeStatus(c, httpconnect.Response502BadGateway)
		logger.Debug("dial failed", "host", req.Host, "port", req.Port, "error", err)
		return
	}
	defer target.Close()

	_, span := telemetry.StartConnectionSpan(ctx, "http.connect", clientAddr, fmt.Sprintf("%s:%d", req.Host, port))
	telemetry.SetUsername(span, username)

	// Step 8: success, register, relay, finalize. A client that pipelines
	// its first tunneled bytes right behind CONNECT may have already had
	// them pulled into reader's buffer; relay over a wrapper that drains
	// that buffer first so nothing sent early is lost.
	info := proxy.NewConnectionInfo(conn.ProtocolHTTPConnect, clientAddr, req.Host, port, username, span.SpanContext().TraceID().String())
	writeStatus(c, httpconnect.Response200Established)

	info.State = conn.StateActive
	l.deps.Stats.AddConnection(info)
	l.deps.RecordConnectionOpen(conn.ProtocolHTTPConnect)

	result := relay.Relay(&bufferedConn{Conn: c, r: reader}, target)

	l.deps.Stats.CloseConnection(info.ID, result.ClientToTarget, result.TargetToClient)
	l.deps.RecordConnectionClose(result.ClientToTarget, result.TargetToClient)
	telemetry.EndConnectionSpan(span, result.ClientToTarget, result.TargetToClient)
}

// bufferedConn layers a net.Conn's already-buffered header-parsing bytes
// back in front of its live socket reads, so the Relay Engine sees exactly
// the byte stream the client sent with nothing dropped. Writes and the
// half-close signal pass straight through to the underlying connection.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *bufferedConn) CloseWrite() error {
	if hc, ok := b.Conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return nil
}

func parsePort(s string) (uint16, error) {
	if len(s) == 0 || len(s) > 5 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	var port uint32
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid port %q", s)
		}
		port = port*10 + uint32(c-'0')
		if port > 65535 {
			return 0, fmt.Errorf("invalid port %q", s)
		}
	}
	if port == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(port), nil
}
