package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records counters for the checkout and fulfillment path.
type CheckoutMetrics struct {
	sessions        *prometheus.CounterVec
	claims          *prometheus.CounterVec
	materializedDur *prometheus.HistogramVec
	sideEffectFails *prometheus.CounterVec
}

// NewCheckoutMetrics registers checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout sessions created or reused, labeled by outcome.",
	}, []string{"outcome"})
	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_session_claims_total",
		Help: "Session claim attempts, labeled by the claiming path and result.",
	}, []string{"path", "result"})
	materializedDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_materialization_seconds",
		Help:    "Duration of order materialization in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
	sideEffectFails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_side_effect_failures_total",
		Help: "Post-order side effects that failed, labeled by effect.",
	}, []string{"effect"})
	reg.MustRegister(sessions, claims, materializedDur, sideEffectFails)
	return &CheckoutMetrics{
		sessions:        sessions,
		claims:          claims,
		materializedDur: materializedDur,
		sideEffectFails: sideEffectFails,
	}
}

// IncSession counts a session creation outcome ("created" or "reused").
func (c *CheckoutMetrics) IncSession(outcome string) {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncClaim counts a claim attempt by path ("webhook", "fallback") and result.
func (c *CheckoutMetrics) IncClaim(path, result string) {
	if c == nil || c.claims == nil {
		return
	}
	c.claims.WithLabelValues(normalizeLabel(path), normalizeLabel(result)).Inc()
}

// ObserveMaterialization records how long materialization took for the path.
func (c *CheckoutMetrics) ObserveMaterialization(path string, duration time.Duration) {
	if c == nil || c.materializedDur == nil {
		return
	}
	c.materializedDur.WithLabelValues(normalizeLabel(path)).Observe(duration.Seconds())
}

// IncSideEffectFailure counts a failed post-order side effect.
func (c *CheckoutMetrics) IncSideEffectFailure(effect string) {
	if c == nil || c.sideEffectFails == nil {
		return
	}
	c.sideEffectFails.WithLabelValues(normalizeLabel(effect)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
