// Package metrics exposes numeric diagnostics of mixture predictors as
// prometheus collectors. A nil *Metrics is valid and records nothing.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Normalisation stages reported by NormalizationFailure.
const (
	StageMixture    = "mixture"
	StagePredictive = "predictive"
)

// #region metrics
// Metrics bundles the collectors of one predictor.
type Metrics struct {
	observations          prometheus.Counter
	normalizationFailures *prometheus.CounterVec
	weightUpdateSkips     prometheus.Counter
	contextWeights        prometheus.Gauge
	logLoss               prometheus.Histogram
}

// New registers the collectors on reg, labelled with the predictor name.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer, predictor string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"predictor": predictor}
	return &Metrics{
		observations: f.NewCounter(prometheus.CounterOpts{
			Name:        "bvmm_observations_total",
			Help:        "Total observations processed",
			ConstLabels: labels,
		}),
		normalizationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "bvmm_normalization_failures_total",
			Help:        "Distributions that failed to sum to one, by stage",
			ConstLabels: labels,
		}, []string{"stage"}),
		weightUpdateSkips: f.NewCounter(prometheus.CounterOpts{
			Name:        "bvmm_weight_update_skips_total",
			Help:        "Weight parameter updates skipped because the posterior was not finite",
			ConstLabels: labels,
		}),
		contextWeights: f.NewGauge(prometheus.GaugeOpts{
			Name:        "bvmm_context_weights",
			Help:        "Number of stored mixture weight parameters",
			ConstLabels: labels,
		}),
		logLoss: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "bvmm_log_loss_bits",
			Help:        "Per-observation log loss in bits",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// #endregion metrics

// #region record
// ObserveStep records one observation that was assigned probability p, with
// params weight parameters stored afterwards.
func (m *Metrics) ObserveStep(p float64, params int) {
	if m == nil {
		return
	}
	m.observations.Inc()
	m.contextWeights.Set(float64(params))
	if p > 0 {
		m.logLoss.Observe(-math.Log2(p))
	} else {
		m.logLoss.Observe(math.Inf(1))
	}
}

// NormalizationFailure counts a distribution that had to be repaired.
func (m *Metrics) NormalizationFailure(stage string) {
	if m == nil {
		return
	}
	m.normalizationFailures.WithLabelValues(stage).Inc()
}

// WeightUpdateSkipped counts a weight parameter left unchanged.
func (m *Metrics) WeightUpdateSkipped() {
	if m == nil {
		return
	}
	m.weightUpdateSkips.Inc()
}

// #endregion record
