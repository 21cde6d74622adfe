package erc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the runner's prometheus collectors.
type Metrics struct {
	Runs          prometheus.Counter
	RunDuration   prometheus.Histogram
	Violations    *prometheus.GaugeVec
	CheckFailures *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otn", Subsystem: "erc", Name: "runs_total",
			Help: "Completed rule check runs.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "otn", Subsystem: "erc", Name: "run_duration_seconds",
			Help:    "Wall time of rule check runs.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		Violations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "otn", Subsystem: "erc", Name: "violations",
			Help: "Violations found by the last run of each layout.",
		}, []string{"layout", "rule", "severity"}),
		CheckFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otn", Subsystem: "erc", Name: "check_failures_total",
			Help: "Checks that panicked on a subject.",
		}, []string{"rule"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otn", Subsystem: "erc", Name: "cache_hits_total",
			Help: "Net check results served from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otn", Subsystem: "erc", Name: "cache_misses_total",
			Help: "Net check results computed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.RunDuration, m.Violations, m.CheckFailures, m.CacheHits, m.CacheMisses)
	}
	return m
}

// observeRun records a finished run. Only the series of layout are
// replaced, so runners for other layouts may share m.
func (m *Metrics) observeRun(layout string, d time.Duration, vs []Violation) {
	if m == nil {
		return
	}
	m.Runs.Inc()
	m.RunDuration.Observe(d.Seconds())
	m.Violations.DeletePartialMatch(prometheus.Labels{"layout": layout})
	for _, v := range vs {
		m.Violations.WithLabelValues(layout, v.RuleKey, v.Severity.String()).Inc()
	}
}

func (m *Metrics) checkFailed(rule string) {
	if m != nil {
		m.CheckFailures.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
