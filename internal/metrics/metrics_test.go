package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep(0.5, 3)
	m.NormalizationFailure(StageMixture)
	m.WeightUpdateSkipped()
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "bvmm")

	m.ObserveStep(0.5, 4)
	m.ObserveStep(0.25, 6)
	m.NormalizationFailure(StagePredictive)
	m.WeightUpdateSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.observations))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.contextWeights))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.normalizationFailures.WithLabelValues(StagePredictive)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.normalizationFailures.WithLabelValues(StageMixture)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.weightUpdateSkips))
	assert.Equal(t, 1, testutil.CollectAndCount(m.logLoss))
}

func TestMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "global")
	b := New(reg, "context")
	a.ObserveStep(1, 1)
	b.ObserveStep(1, 1)
	b.ObserveStep(1, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.observations))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.observations))
}
