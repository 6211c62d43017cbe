// Package metrics holds the Prometheus metrics exposed by the management
// API's /metrics endpoint. The proxy listeners record into these through
// proxy.Deps; nothing here affects the
// accept -> relay -> close control flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge this proxy records.
type Metrics struct {
	ConnectionsTotal  *prometheus.CounterVec
	ConnectionsActive prometheus.Gauge
	BytesTotal        *prometheus.CounterVec
	AuthFailuresTotal prometheus.Counter
	ACLDenialsTotal   *prometheus.CounterVec
}

// New creates and registers every metric with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "net_relay",
				Name:      "connections_total",
				Help:      "Total connections accepted, by protocol",
			},
			[]string{"protocol"}, // protocol=socks5/http_connect
		),
		ConnectionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "net_relay",
				Name:      "connections_active",
				Help:      "Currently active relayed connections",
			},
		),
		BytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "net_relay",
				Name:      "bytes_total",
				Help:      "Total bytes relayed, by direction",
			},
			[]string{"direction"}, // direction=sent/received
		),
		AuthFailuresTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "net_relay",
				Name:      "auth_failures_total",
				Help:      "Total credential authentication failures",
			},
		),
		ACLDenialsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "net_relay",
				Name:      "acl_denials_total",
				Help:      "Total access-control denials, by kind",
			},
			[]string{"kind"}, // kind=ip/target
		),
	}
}
