// Package metrics exposes Prometheus counters/histograms for the
// protocol's three RPCs, grounded on
// Sumatoshi-tech-codefang/internal/observability's dedicated-registry
// promhttp pattern (this module skips the OTel bridge that repo layers on
// top, since go.mod only carries prometheus/client_golang directly).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this server records, keyed by RPC name
// and, for errors, by psierr.Kind.
type Registry struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec
	IntersectionSize prometheus.Histogram
}

// New builds a Registry with its own prometheus.Registry, so multiple
// Registrys in the same process (e.g. in tests) never collide.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlap_psi",
			Name:      "requests_total",
			Help:      "Total RPC requests handled, by rpc name.",
		}, []string{"rpc"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlap_psi",
			Name:      "errors_total",
			Help:      "Total RPC failures, by rpc name and error kind.",
		}, []string{"rpc", "kind"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "overlap_psi",
			Name:      "request_duration_seconds",
			Help:      "RPC handling latency in seconds, by rpc name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rpc"}),
		IntersectionSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "overlap_psi",
			Name:      "intersection_size",
			Help:      "Number of answer ciphertexts (alpha) returned per completed query; the server cannot see the actual intersection size.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
	}

	reg.MustRegister(r.RequestsTotal, r.ErrorsTotal, r.RequestLatency, r.IntersectionSize)
	return r
}

// Handler returns the promhttp handler serving this Registry's metrics,
// mounted at `GET /metrics`.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveError increments ErrorsTotal for rpc/kind.
func (r *Registry) ObserveError(rpc, kind string) {
	r.ErrorsTotal.WithLabelValues(rpc, kind).Inc()
}
