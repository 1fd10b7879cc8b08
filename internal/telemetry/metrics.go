package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// AdmissionRejectionsTotal counts rejections at the session, agent-expiry and
// entitlement steps by the error kind that caused them (unauthorized,
// session_expired, service_not_allowed). Rate-limit rejections are counted in
// RateLimitRejectionsTotal instead.
var AdmissionRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "admission",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the admission pipeline, by error kind.",
	},
	[]string{"kind"},
)

// UpstreamDispatchTotal counts completed upstream dispatches by service and result.
var UpstreamDispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "upstream",
		Name:      "dispatch_total",
		Help:      "Total number of upstream dispatches, by service and result.",
	},
	[]string{"service", "result"},
)

// CredentialRefreshTotal counts refresh attempts performed inline by the
// admission pipeline, by outcome.
var CredentialRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "credential",
		Name:      "refresh_total",
		Help:      "Total number of inline credential refresh attempts, by outcome (refreshed, no_refresh_token, persist_failed).",
	},
	[]string{"outcome"},
)

// RateLimitRejectionsTotal counts sliding-window rejections by namespace (agent/service).
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the sliding-window rate limiter, by namespace.",
	},
	[]string{"namespace"},
)

// All returns the gateway-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		AdmissionRejectionsTotal,
		UpstreamDispatchTotal,
		CredentialRefreshTotal,
		RateLimitRejectionsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP metric, and any additional service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
