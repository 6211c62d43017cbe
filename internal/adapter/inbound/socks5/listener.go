// Package socks5 drives the SOCKS5 (RFC 1928/1929) accept loop: it binds a
// listener, and per accepted socket runs the handshake state machine
// against internal/domain/socks5's pure codec, consulting the live Config
// Store and Access Evaluator on every step.
package socks5

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Annihilater/net-relay/internal/adapter/inbound/proxy"
	"github.com/Annihilater/net-relay/internal/ctxkey"
	"github.com/Annihilater/net-relay/internal/domain/acl"
	"github.com/Annihilater/net-relay/internal/domain/conn"
	"github.com/Annihilater/net-relay/internal/domain/relay"
	"github.com/Annihilater/net-relay/internal/domain/socks5"
	"github.com/Annihilater/net-relay/internal/telemetry"
)

// Listener runs the SOCKS5 accept loop.
type Listener struct {
	deps *proxy.Deps
}

// New creates a SOCKS5 Listener over the given shared dependencies.
func New(deps *proxy.Deps) *Listener {
	return &Listener{deps: deps}
}

// ListenAndServe binds addr and serves until ctx is cancelled. A cancelled
// ctx makes Accept return an error, which stops the loop without treating
// it as an accept failure worth logging.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("socks5: listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logger := l.logger()
	logger.Info("socks5 listener started", "addr", addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("socks5 accept failed", "error", err)
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

// handle drives one connection's handshake through to relay completion.
// A failing step ends the connection after sending whatever reply the
// protocol prescribes for it; an IP ACL deny, a full connection limit, or
// an unreadable method request ends it without any reply.
func (l *Listener) handle(ctx context.Context, c net.Conn) {
	defer c.Close()
	clientAddr := c.RemoteAddr().String()
	clientIP := telemetry.ClientIP(c.RemoteAddr())
	logger := l.logger().With("client", clientAddr, "protocol", "socks5")
	ctx = ctxkey.WithLogger(ctx, logger)

	cfg := l.deps.Store.Get()

	// Step 1: IP check.
	if !acl.IPAllowed(cfg.AccessControl, clientIP) {
		l.deps.RecordACLDenial("ip")
		logger.Debug("connection rejected by ip acl")
		return
	}
	if l.deps.ConnSem != nil && !l.deps.ConnSem.TryAcquire() {
		logger.Debug("connection rejected: max_connections reached")
		return
	}
	released := false
	releaseSem := func() {
		if !released && l.deps.ConnSem != nil {
			released = true
			l.deps.ConnSem.Release()
		}
	}
	defer releaseSem()

	// Step 2: method negotiation.
	methodReq, err := socks5.ReadMethodRequest(c)
	if err != nil {
		logger.Debug("method negotiation failed", "error", err)
		return
	}

	var username string
	if cfg.Security.AuthEnabled {
		if !methodReq.Offers(socks5.MethodUserPass) {
			_, _ = c.Write(socks5.MethodReply(socks5.MethodNoAcceptable))
			return
		}
		if _, err := c.Write(socks5.MethodReply(socks5.MethodUserPass)); err != nil {
			return
		}
		// Step 3: RFC 1929 sub-negotiation.
		upReq, err := socks5.ReadUserPassRequest(c)
		if err != nil {
			_, _ = c.Write(socks5.AuthReply(socks5.AuthStatusFailure))
			logger.Debug("sub-negotiation failed", "error", err)
			return
		}
		matched, ok := l.deps.Store.Authenticate(upReq.Username, upReq.Password)
		if !ok {
			_, _ = c.Write(socks5.AuthReply(socks5.AuthStatusFailure))
			l.deps.RecordAuthFailure()
			logger.Debug("authentication failed", "username", upReq.Username)
			return
		}
		if _, err := c.Write(socks5.AuthReply(socks5.AuthStatusSuccess)); err != nil {
			return
		}
		username = matched
	} else {
		if !methodReq.Offers(socks5.MethodNoAuth) {
			_, _ = c.Write(socks5.MethodReply(socks5.MethodNoAcceptable))
			return
		}
		if _, err := c.Write(socks5.MethodReply(socks5.MethodNoAuth)); err != nil {
			return
		}
	}

	// Step 4-5: request header + address parse.
	req, err := socks5.ReadRequest(c)
	if err != nil {
		switch {
		case errors.Is(err, socks5.ErrUnsupportedCommand):
			_, _ = c.Write(socks5.ConnectReply(socks5.RepCommandNotSupported))
		case errors.Is(err, socks5.ErrUnsupportedAddressType):
			_, _ = c.Write(socks5.ConnectReply(socks5.RepAddressTypeNotSupported))
		}
		logger.Debug("request parse failed", "error", err)
		return
	}

	// Step 6: target ACL.
	cfg = l.deps.Store.Get() // re-snapshot: rules may have changed between accept and this point
	if !acl.TargetAllowed(cfg.AccessControl, req.Host, "", l.deps.RuleEval) {
		_, _ = c.Write(socks5.ConnectReply(socks5.RepNotAllowed))
		l.deps.RecordACLDenial("target")
		logger.Debug("target denied by acl", "host", req.Host)
		return
	}

	// Step 7: dial.
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	target, err := l.deps.DialTarget(dialCtx, req.Host, req.Port)
	cancel()
	if err != nil {
		_, _ = c.Write(socks5.ConnectReply(socks5.RepConnectionRefused))
		logger.Debug("dial failed", "host", req.Host, "port", req.Port, "error", err)
		return
	}
	defer target.Close()

	spanCtx, span := telemetry.StartConnectionSpan(ctx, "socks5.connect", clientAddr, fmt.Sprintf("%s:%d", req.Host, req.Port))
	telemetry.SetUsername(span, username)
	_ = spanCtx

	// Step 8: success reply, register, relay, finalize.
	info := proxy.NewConnectionInfo(conn.ProtocolSocks5, clientAddr, req.Host, req.Port, username, span.SpanContext().TraceID().String())
	if _, err := c.Write(socks5.ConnectReply(socks5.RepSucceeded)); err != nil {
		span.End()
		return
	}

	info.State = conn.StateActive
	l.deps.Stats.AddConnection(info)
	l.deps.RecordConnectionOpen(conn.ProtocolSocks5)

	result := relay.Relay(c, target)

	l.deps.Stats.CloseConnection(info.ID, result.ClientToTarget, result.TargetToClient)
	l.deps.RecordConnectionClose(result.ClientToTarget, result.TargetToClient)
	telemetry.EndConnectionSpan(span, result.ClientToTarget, result.TargetToClient)
}
