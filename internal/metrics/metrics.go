// Package metrics exposes Prometheus instrumentation for the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections counts accepted client connections.
	Connections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lb_connections_total",
		Help: "Total accepted client connections",
	})

	// ActiveConnections tracks currently open client connections.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lb_active_connections",
		Help: "Currently open client connections",
	})

	// Redirects counts transfer packets sent to clients.
	Redirects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lb_redirects_total",
		Help: "Total clients redirected to a backend",
	})

	// StatusRequests counts served status queries.
	StatusRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lb_status_requests_total",
		Help: "Total status requests served",
	})

	// ProbeFailures counts backend probes that failed or timed out.
	ProbeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lb_probe_failures_total",
		Help: "Total backend probes that failed or timed out",
	})
)

// Register installs all collectors on the default registry.
func Register() {
	prometheus.MustRegister(
		Connections,
		ActiveConnections,
		Redirects,
		StatusRequests,
		ProbeFailures,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
