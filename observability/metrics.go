package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	runClubOnce     sync.Once
	runClubRegistry *RunClubMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// gateway activity per module and route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "runclub",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by module, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "runclub",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by module, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "runclub",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "runclub",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Requests rejected by rate limiting.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// RunClubMetrics captures runtime level activity for club operations.
type RunClubMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
	redeemed   *prometheus.CounterVec
}

// RunClub returns the singleton registry for club operations.
func RunClub() *RunClubMetrics {
	runClubOnce.Do(func() {
		runClubRegistry = &RunClubMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "runclub",
				Subsystem: "runtime",
				Name:      "operations_total",
				Help:      "Count of runtime calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "runclub",
				Subsystem: "runtime",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for runtime calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "runclub",
				Subsystem: "runtime",
				Name:      "events_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			redeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "runclub",
				Subsystem: "runtime",
				Name:      "redeemed_amount_total",
				Help:      "Stable asset paid out through redemptions in base units.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			runClubRegistry.operations,
			runClubRegistry.latency,
			runClubRegistry.events,
			runClubRegistry.redeemed,
		)
	})
	return runClubRegistry
}

// ObserveOperation records a committed or rejected runtime call.
func (m *RunClubMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent counts a committed event.
func (m *RunClubMetrics) RecordEvent(eventType string) {
	if m == nil || strings.TrimSpace(eventType) == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// RecordRedeemed adds a payout amount to the redeemed counter.
func (m *RunClubMetrics) RecordRedeemed(asset string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.redeemed.WithLabelValues(normalized).Add(value)
}
