package mixture

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/bvmm/internal/base"
	"github.com/danielpatrickdp/bvmm/internal/history"
	"github.com/danielpatrickdp/bvmm/internal/metrics"
	"github.com/danielpatrickdp/bvmm/internal/weights"
)

// #region averaged
// Averaged is plain Bayesian model averaging over the same family of
// fixed-order chains: each order's log posterior accumulates log P_k(x) and
// is renormalised after every observation. It has no recursive blend and no
// context dependence, and serves as a baseline for the mixture.
type Averaged struct {
	config   Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	bases    []base.Predictor
	logPrior []float64
	logPost  []float64
	window   *history.Window
	nObs     int

	keys []history.Key
	pr   []float64
	dist []float64
	top  int
}

// NewAveraged builds the baseline. Policy, Polya, Generation and Workers are ignored.
func NewAveraged(config Config, opts ...Option) (*Averaged, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	logPrior, err := weights.Prior(config.MaxOrder, config.Prior)
	if err != nil {
		return nil, err
	}
	n := config.MaxOrder + 1
	a := &Averaged{
		config:   config,
		log:      o.logger,
		metrics:  o.metrics,
		bases:    base.NewFamily(config.NSymbols, config.MaxOrder, o.factory),
		logPrior: logPrior,
		logPost:  make([]float64, n),
		window:   history.NewWindow(config.MaxOrder),
		keys:     make([]history.Key, n),
		pr:       make([]float64, n),
		dist:     make([]float64, config.NSymbols),
	}
	copy(a.logPost, logPrior)
	return a, nil
}

// ObserveAction returns the pre-update probability of symbol and updates
// every order's posterior and counts.
func (a *Averaged) ObserveAction(action, symbol int) (float64, error) {
	if err := checkIndices(a.config, action, symbol); err != nil {
		return 0, err
	}
	a.mix(action)
	prob := a.dist[symbol]

	for k, b := range a.bases {
		ctx := a.window.Key(k, action)
		a.logPost[k] += math.Log(b.Probability(ctx, symbol))
		b.Observe(ctx, symbol)
	}
	norm := floats.LogSumExp(a.logPost)
	if math.IsInf(norm, 0) || math.IsNaN(norm) {
		a.log.Warn("model averaging posterior degenerate, restoring prior",
			"log_sum", norm, "observations", a.nObs)
		a.metrics.NormalizationFailure(metrics.StageMixture)
		copy(a.logPost, a.logPrior)
	} else {
		floats.AddConst(-norm, a.logPost)
	}

	a.window.Push(history.Step{Action: action, Symbol: symbol})
	a.nObs++
	a.metrics.ObserveStep(prob, a.Params())
	return prob, nil
}

// Distribution returns the averaged predictive distribution for action.
func (a *Averaged) Distribution(action int) ([]float64, error) {
	if err := checkIndices(a.config, action, 0); err != nil {
		return nil, err
	}
	a.mix(action)
	out := make([]float64, len(a.dist))
	copy(out, a.dist)
	return out, nil
}

// PredictAction returns the most probable next symbol, lowest index on ties.
func (a *Averaged) PredictAction(action int) (int, error) {
	if err := checkIndices(a.config, action, 0); err != nil {
		return 0, err
	}
	a.mix(action)
	return floats.MaxIdx(a.dist), nil
}

// Posterior returns the renormalised order posterior over 0..top.
func (a *Averaged) Posterior() []float64 {
	out := make([]float64, a.top+1)
	copy(out, a.pr[:a.top+1])
	return out
}

// Params returns the number of order posteriors kept.
func (a *Averaged) Params() int { return len(a.logPost) }

// Reset restores the prior and forgets all counts and history.
func (a *Averaged) Reset() {
	for _, b := range a.bases {
		b.Reset()
	}
	copy(a.logPost, a.logPrior)
	a.window.Reset()
	a.nObs = 0
	a.top = 0
}

// mix restricts the posterior to orders 0..top, renormalises it and blends
// the base predictions.
func (a *Averaged) mix(action int) {
	top := min(a.config.MaxOrder, a.nObs)
	a.top = top
	for k := 0; k <= top; k++ {
		a.keys[k] = a.window.Key(k, action)
	}
	norm := floats.LogSumExp(a.logPost[:top+1])
	for k := 0; k <= top; k++ {
		a.pr[k] = math.Exp(a.logPost[k] - norm)
	}
	clear(a.dist)
	for k := 0; k <= top; k++ {
		for s := range a.dist {
			a.dist[s] += a.pr[k] * a.bases[k].Probability(a.keys[k], s)
		}
	}
}

// #endregion averaged
