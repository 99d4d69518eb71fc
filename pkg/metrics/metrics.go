package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StrategyRuns counts strategy invocations by strategy name and outcome (ok/error)
var StrategyRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bundleprep_strategy_runs_total",
		Help: "Total number of strategy invocations by outcome",
	},
	[]string{"strategy", "outcome"},
)

// StrategyDuration records how long each strategy's apply step took
var StrategyDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "bundleprep_strategy_duration_seconds",
		Help:    "Latency in seconds of a single strategy apply",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"strategy"},
)

// Feature sets scaled per mode
var FeatureSetsScaled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bundleprep_feature_sets_scaled_total",
		Help: "Number of feature sets processed by the scaling engine",
	},
	[]string{"mode"},
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

func init() {
	prometheus.MustRegister(StrategyRuns, StrategyDuration, FeatureSetsScaled)
}
