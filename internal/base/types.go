package base

import "github.com/danielpatrickdp/bvmm/internal/history"

// #region predictor
// Predictor is a fixed-order conditional model of the next symbol.
//
// The caller owns the history and passes the context key for the model's
// order. Probability must not mutate state; Observe is always called after
// the step's prediction. Symbols outside [0, n_symbols) are a caller contract
// violation and are not checked here.
type Predictor interface {
	Order() int
	Probability(ctx history.Key, symbol int) float64
	Observe(ctx history.Key, symbol int)
	Reset()
}

// Factory builds the base predictor for one order.
type Factory func(order, nSymbols int) Predictor

// #endregion predictor

// #region chain-config
// ChainConfig holds the smoothing parameters of a Chain.
type ChainConfig struct {
	Threshold float64 // pseudo-count added to every symbol (default 0.5)
}

// DefaultChainConfig returns the Krichevsky–Trofimov pseudo-count.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{Threshold: 0.5}
}

// #endregion chain-config
