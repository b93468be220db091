// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/piyushhsainii/rugs.fun/internal/domain"
)

// Metrics holds the service collectors and the registry they are bound to
type Metrics struct {
	Registry *prometheus.Registry

	rpcRequests *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	transfers   *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, alongside the Go and
// process collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		rpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rugsfun",
				Subsystem: "grpc",
				Name:      "requests_total",
				Help:      "Total number of gRPC requests handled.",
			},
			[]string{"method", "code"},
		),

		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rugsfun",
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "Duration of gRPC requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"method"},
		),

		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rugsfun",
				Subsystem: "vault",
				Name:      "transfers_total",
				Help:      "Vault transfers by direction and outcome.",
			},
			[]string{"direction", "result"},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rugsfun",
				Subsystem: "grpc",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by a rate limit, by limit scope.",
			},
			[]string{"scope"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rpcRequests,
		m.rpcDuration,
		m.transfers,
		m.rateLimited,
	)

	return m
}

// ObserveRequest records one finished RPC
func (m *Metrics) ObserveRequest(method, code string, elapsed time.Duration) {
	m.rpcRequests.WithLabelValues(method, code).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveTransfer records the outcome of a deposit or withdrawal. Failures
// are labelled with their error kind.
func (m *Metrics) ObserveTransfer(direction domain.Direction, err error) {
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	m.transfers.WithLabelValues(string(direction), result).Inc()
}

// Rate limit scopes
const (
	ScopePeer   = "peer"
	ScopeSigner = "signer"
)

// ObserveRateLimited records one request rejected by the limit of scope
func (m *Metrics) ObserveRateLimited(scope string) {
	m.rateLimited.WithLabelValues(scope).Inc()
}
