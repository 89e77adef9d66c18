package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes reported by the service.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeMerged           = "merged"
	OutcomeNoop             = "noop"
)

// Metrics holds Prometheus metrics for the resolution core.
type Metrics struct {
	Resolutions         *prometheus.CounterVec
	ResolveDuration     prometheus.Histogram
	Demotions           prometheus.Counter
	RelinkedDependents  prometheus.Counter
	InvariantViolations prometheus.Counter
}

// New creates and registers all resolution metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_link_resolutions_total",
			Help: "Identity resolutions by outcome.",
		}, []string{"outcome"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_link_resolve_duration_seconds",
			Help:    "End-to-end resolution latency including the store transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		Demotions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "identity_link_primary_demotions_total",
			Help: "Primaries demoted to secondary during cluster merges.",
		}),
		RelinkedDependents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "identity_link_relinked_dependents_total",
			Help: "Secondaries re-pointed at the surviving primary during merges.",
		}),
		InvariantViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "identity_link_invariant_violations_total",
			Help: "Stored records observed violating the depth-one link invariant.",
		}),
	}
}

// All methods are safe on a nil receiver so the service runs without metrics
// in tests.

func (m *Metrics) ObserveResolution(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(seconds)
}

func (m *Metrics) AddDemotions(n int) {
	if m == nil {
		return
	}
	m.Demotions.Add(float64(n))
}

func (m *Metrics) AddRelinked(n int) {
	if m == nil {
		return
	}
	m.RelinkedDependents.Add(float64(n))
}

func (m *Metrics) IncInvariantViolation() {
	if m == nil {
		return
	}
	m.InvariantViolations.Inc()
}
