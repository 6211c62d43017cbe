// Package telemetry wraps an OpenTelemetry TracerProvider that starts one
// span per tunnelled connection. The listeners start the span once the
// target has been dialled, so it covers success reply -> relay -> close; a
// connection that fails earlier (ACL, auth, parse or dial) gets no span.
// It is pure observability: nothing in this package affects the
// accept -> relay -> close control flow.
package telemetry

import (
	"context"
	"fmt"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this module's instrumentation scope.
const TracerName = "github.com/Annihilater/net-relay"

// NewProvider builds a TracerProvider exporting to stdout, matching the
// teacher's own stdout-exporter default — no external collector is
// required to exercise the connection span.
func NewProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartConnectionSpan starts a span named spanName ("socks5.connect" or
// "http.connect") with the client and target addresses attached. The
// caller ends the span with EndConnectionSpan, which attaches the final
// byte counts, once the Relay Engine returns.
func StartConnectionSpan(ctx context.Context, spanName, clientAddr, targetAddr string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("net.peer.addr", clientAddr),
		attribute.String("net.host.addr", targetAddr),
	))
}

// SetUsername records the authenticated identity on span once known.
func SetUsername(span trace.Span, username string) {
	if username == "" {
		return
	}
	span.SetAttributes(attribute.String("enduser.id", username))
}

// EndConnectionSpan records final byte counts and ends span.
func EndConnectionSpan(span trace.Span, bytesSent, bytesReceived uint64) {
	span.SetAttributes(
		attribute.Int64("bytes.sent", int64(bytesSent)),
		attribute.Int64("bytes.received", int64(bytesReceived)),
	)
	span.End()
}

// ClientIP extracts the bare IP literal from a net.Addr ("ip:port"),
// falling back to the full address string if it cannot be split.
func ClientIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
