package eval

import (
	"fmt"
	"math"
)

// #region eval-harness
// EvalHarness validates a prediction run against thresholds.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks the summary of a run. Error rate and bits per symbol are
// blocking; the step count is informational.
func (h *EvalHarness) Run(s Summary) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	// 1. Error rate
	errPass := s.ErrorRate <= h.config.MaxErrorRate
	metrics = append(metrics, EvalMetric{
		Name:  "error_rate",
		Value: s.ErrorRate,
		Pass:  errPass,
	})
	if !errPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("error rate %.4f exceeds %.4f", s.ErrorRate, h.config.MaxErrorRate))
	}

	// 2. Log loss; an infinite value means some observation got probability 0
	bitsPass := !math.IsNaN(s.BitsPerSymbol) && s.BitsPerSymbol <= h.config.MaxBitsPerSymbol
	metrics = append(metrics, EvalMetric{
		Name:  "bits_per_symbol",
		Value: s.BitsPerSymbol,
		Pass:  bitsPass,
	})
	if !bitsPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("bits per symbol %.4f exceeds %.4f", s.BitsPerSymbol, h.config.MaxBitsPerSymbol))
	}

	// 3. Step count: informational, does not fail
	metrics = append(metrics, EvalMetric{
		Name:  "steps",
		Value: float64(s.Steps),
		Pass:  s.Steps >= h.config.MinSteps,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness
