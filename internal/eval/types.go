package eval

// #region eval-config
// EvalConfig holds the thresholds a prediction run must meet.
type EvalConfig struct {
	MaxErrorRate     float64 `json:"max_error_rate" yaml:"max_error_rate"`           // reject if the 0/1 loss rate exceeds this
	MaxBitsPerSymbol float64 `json:"max_bits_per_symbol" yaml:"max_bits_per_symbol"` // reject if mean log loss exceeds this
	MinSteps         int     `json:"min_steps" yaml:"min_steps"`                     // informational only
}

// DefaultEvalConfig returns thresholds for a binary alphabet: no better than
// chance fails.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxErrorRate:     0.5,
		MaxBitsPerSymbol: 1.0,
		MinSteps:         1,
	}
}

// #endregion eval-config

// #region summary
// Summary aggregates a Stats run.
type Summary struct {
	Steps         int     `json:"steps" yaml:"steps"`
	Errors        int     `json:"errors" yaml:"errors"`
	ErrorRate     float64 `json:"error_rate" yaml:"error_rate"`
	TotalAccuracy float64 `json:"total_accuracy" yaml:"total_accuracy"` // sum of P(observed)
	MeanAccuracy  float64 `json:"mean_accuracy" yaml:"mean_accuracy"`
	BitsPerSymbol float64 `json:"bits_per_symbol" yaml:"bits_per_symbol"`
	Perplexity    float64 `json:"perplexity" yaml:"perplexity"`
}

// #endregion summary

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of validating a run.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
