// Package mixture implements the Bayesian mixture-of-order Markov predictor.
//
// A family of fixed-order base predictors of orders 0..K is blended
// recursively:
//
//	Lkoi[0] = P_0
//	Lkoi[k] = w_k·P_k + (1−w_k)·Lkoi[k−1]
//
// and Lkoi[top] with top = min(K, observations) is the predictive
// distribution. After each observation every w_k is replaced by its one-step
// posterior, either globally per order or per (order, context).
//
// A Predictor is not safe for concurrent use; wrap it in Locked to share it.
package mixture

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danielpatrickdp/bvmm/internal/base"
	"github.com/danielpatrickdp/bvmm/internal/history"
	"github.com/danielpatrickdp/bvmm/internal/metrics"
	"github.com/danielpatrickdp/bvmm/internal/weights"
)

// #region predictor
// Predictor is the Bayesian variable-order mixture.
type Predictor struct {
	config   Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	bases    []base.Predictor
	weights  weights.Store
	logPrior []float64
	window   *history.Window
	rng      *rand.Rand
	nObs     int

	// Scratch for the last mixture computation.
	keys   []history.Key
	pObs   [][]float64 // per-order base predictions
	lkoi   [][]float64 // blended predictions using orders 0..k
	weight []float64
	pr     []float64 // posterior over orders 0..top
	dist   []float64 // normalised predictive distribution
	top    int
}

// New validates config and builds a predictor with orders 0..config.MaxOrder.
func New(config Config, opts ...Option) (*Predictor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	logPrior, err := weights.Prior(config.MaxOrder, config.Prior)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	store, err := weights.NewStore(config.Policy, config.MaxOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	n := config.MaxOrder + 1
	p := &Predictor{
		config:   config,
		log:      o.logger,
		metrics:  o.metrics,
		bases:    base.NewFamily(config.NSymbols, config.MaxOrder, o.factory),
		weights:  store,
		logPrior: logPrior,
		window:   history.NewWindow(config.MaxOrder),
		keys:     make([]history.Key, n),
		pObs:     make([][]float64, n),
		lkoi:     make([][]float64, n),
		weight:   make([]float64, n),
		pr:       make([]float64, n),
		dist:     make([]float64, config.NSymbols),
	}
	for k := 0; k < n; k++ {
		p.pObs[k] = make([]float64, config.NSymbols)
		p.lkoi[k] = make([]float64, config.NSymbols)
	}
	p.seedRNG()
	p.pr[0] = 1
	return p, nil
}

func (p *Predictor) seedRNG() {
	p.rng = rand.New(rand.NewPCG(p.config.Seed, p.config.Seed^0x9e3779b97f4a7c15))
}

// Config returns the construction parameters.
func (p *Predictor) Config() Config { return p.config }

// Observations returns the number of observations since the last Reset.
func (p *Predictor) Observations() int { return p.nObs }

// TopOrder returns the highest order currently allowed to contribute.
func (p *Predictor) TopOrder() int { return min(p.config.MaxOrder, p.nObs) }

// Params returns the number of stored weight parameters.
func (p *Predictor) Params() int { return p.weights.Len() }

// #endregion predictor

// #region observe
// Observe is ObserveAction with action 0.
func (p *Predictor) Observe(symbol int) (float64, error) {
	return p.ObserveAction(0, symbol)
}

// ObserveAction adapts the model to symbol observed after action and returns
// the probability the mixture assigned to symbol before the update.
func (p *Predictor) ObserveAction(action, symbol int) (float64, error) {
	if err := p.check(action, symbol); err != nil {
		return 0, err
	}
	top := p.mix(action)
	prob := p.dist[symbol]

	for k := 0; k <= top; k++ {
		post, ok := weights.Posterior(p.weight[k], p.pObs[k][symbol], p.lkoi[k][symbol])
		if !ok {
			p.log.Warn("mixture weight update skipped",
				"order", k, "weight", p.weight[k], "observations", p.nObs)
			p.metrics.WeightUpdateSkipped()
			if th := p.weights.Param(k, p.keys[k]); math.IsNaN(th) || math.IsInf(th, 0) {
				p.weights.Set(k, p.keys[k], 0)
			}
			continue
		}
		p.weights.Set(k, p.keys[k], weights.Theta(post, p.logPrior[k]))
	}

	// Every order keeps counting, including those still above top.
	for k, b := range p.bases {
		ctx := p.keys[k]
		if k > top {
			ctx = p.window.Key(k, action)
		}
		b.Observe(ctx, symbol)
	}

	p.window.Push(history.Step{Action: action, Symbol: symbol})
	p.nObs++
	p.metrics.ObserveStep(prob, p.weights.Len())
	return prob, nil
}

// Seed is SeedAction with action 0.
func (p *Predictor) Seed(symbol int) error {
	return p.SeedAction(0, symbol)
}

// SeedAction extends the history without updating any statistic, so a run
// can be primed with an initial observation.
func (p *Predictor) SeedAction(action, symbol int) error {
	if err := p.check(action, symbol); err != nil {
		return err
	}
	p.window.Push(history.Step{Action: action, Symbol: symbol})
	return nil
}

// #endregion observe

// #region query
// ObservationProbability returns P(symbol | history, action) without learning.
func (p *Predictor) ObservationProbability(action, symbol int) (float64, error) {
	if err := p.check(action, symbol); err != nil {
		return 0, err
	}
	p.mix(action)
	return p.dist[symbol], nil
}

// Distribution returns a copy of the predictive distribution for action.
func (p *Predictor) Distribution(action int) ([]float64, error) {
	if err := p.check(action, 0); err != nil {
		return nil, err
	}
	p.mix(action)
	out := make([]float64, len(p.dist))
	copy(out, p.dist)
	return out, nil
}

// Predict is PredictAction with action 0.
func (p *Predictor) Predict() int {
	s, _ := p.PredictAction(0)
	return s
}

// PredictAction returns the most probable next symbol, lowest index on ties.
func (p *Predictor) PredictAction(action int) (int, error) {
	if err := p.check(action, 0); err != nil {
		return 0, err
	}
	p.mix(action)
	return floats.MaxIdx(p.dist), nil
}

// Generate is GenerateAction with action 0.
func (p *Predictor) Generate() int {
	s, _ := p.GenerateAction(0)
	return s
}

// GenerateAction picks the next symbol according to the configured
// Generation policy and pushes it into the history as if observed. Base
// model counts and weights are left untouched.
func (p *Predictor) GenerateAction(action int) (int, error) {
	if err := p.check(action, 0); err != nil {
		return 0, err
	}
	p.mix(action)
	var symbol int
	switch p.config.Generation {
	case GenerateSample:
		symbol = int(distuv.NewCategorical(p.dist, p.rng).Rand())
	default:
		symbol = floats.MaxIdx(p.dist)
	}
	p.window.Push(history.Step{Action: action, Symbol: symbol})
	return symbol, nil
}

// Posterior returns Pr[0..top] from the last mixture computation: the
// probability that each order is the deepest one to trust.
func (p *Predictor) Posterior() []float64 {
	out := make([]float64, p.top+1)
	copy(out, p.pr[:p.top+1])
	return out
}

// MostProbableOrder returns the argmax of Posterior.
func (p *Predictor) MostProbableOrder() int {
	return floats.MaxIdx(p.pr[:p.top+1])
}

// #endregion query

// #region reset
// Reset returns the predictor to its freshly constructed state: counts,
// history, weights and the sampling seed.
func (p *Predictor) Reset() {
	for _, b := range p.bases {
		b.Reset()
	}
	p.weights.Reset()
	p.window.Reset()
	p.nObs = 0
	p.top = 0
	clear(p.pr)
	p.pr[0] = 1
	p.seedRNG()
}

// #endregion reset

// #region mix
// mix fills the scratch tables for action and returns top.
func (p *Predictor) mix(action int) int {
	top := p.TopOrder()
	for k := 0; k <= top; k++ {
		p.keys[k] = p.window.Key(k, action)
	}
	p.query(top)

	p.weight[0] = 1
	copy(p.lkoi[0], p.pObs[0])
	for k := 1; k <= top; k++ {
		var prev float64
		if p.config.Polya {
			prev = p.weights.Param(k-1, p.keys[k-1])
		}
		w := weights.Weight(k, p.weights.Param(k, p.keys[k]), prev, p.logPrior[k], p.config.Polya)
		p.weight[k] = w
		lower, cur, pk := p.lkoi[k-1], p.lkoi[k], p.pObs[k]
		for s := range cur {
			// Equivalent to w·P_k + (1−w)·Lkoi[k−1] but exact when both agree.
			cur[s] = lower[s] + w*(pk[s]-lower[s])
		}
	}

	// Pr[k] = w_k · Π_{j>k} (1 − w_j)
	pw := 1.0
	for k := top; k >= 0; k-- {
		p.pr[k] = pw * p.weight[k]
		pw *= 1 - p.weight[k]
	}
	clear(p.pr[top+1:])
	p.top = top

	copy(p.dist, p.lkoi[top])
	if sum := floats.Sum(p.pr[:top+1]); !(math.Abs(sum-1) <= sumTolerance) {
		p.log.Warn("mixture posterior not normalised, using uniform over orders",
			"sum", sum, "top", top, "observations", p.nObs)
		p.metrics.NormalizationFailure(metrics.StageMixture)
		u := 1 / float64(top+1)
		for k := 0; k <= top; k++ {
			p.pr[k] = u
		}
		clear(p.dist)
		for k := 0; k <= top; k++ {
			floats.AddScaled(p.dist, u, p.pObs[k])
		}
	}
	p.normaliseDist(top)
	return top
}

// query fills pObs for orders 0..top. The reads are independent across
// orders and fan out when Workers > 1.
func (p *Predictor) query(top int) {
	fill := func(k int) {
		row := p.pObs[k]
		for s := range row {
			row[s] = p.bases[k].Probability(p.keys[k], s)
		}
	}
	if p.config.Workers <= 1 || top == 0 {
		for k := 0; k <= top; k++ {
			fill(k)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(p.config.Workers)
	for k := 0; k <= top; k++ {
		g.Go(func() error {
			fill(k)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Predictor) normaliseDist(top int) {
	sum := floats.Sum(p.dist)
	if math.Abs(sum-1) <= sumTolerance {
		return
	}
	p.log.Warn("predictive distribution not normalised",
		"sum", sum, "top", top, "observations", p.nObs)
	p.metrics.NormalizationFailure(metrics.StagePredictive)
	if sum > 0 && !math.IsInf(sum, 0) && floats.Min(p.dist) >= 0 {
		floats.Scale(1/sum, p.dist)
		return
	}
	u := 1 / float64(len(p.dist))
	for s := range p.dist {
		p.dist[s] = u
	}
}

// #endregion mix

// #region validation
func (p *Predictor) check(action, symbol int) error {
	return checkIndices(p.config, action, symbol)
}

func checkIndices(c Config, action, symbol int) error {
	if action < 0 || action >= c.NActions {
		return fmt.Errorf("%w: action %d outside [0, %d)", ErrInvalidArgument, action, c.NActions)
	}
	if symbol < 0 || symbol >= c.NSymbols {
		return fmt.Errorf("%w: symbol %d outside [0, %d)", ErrInvalidArgument, symbol, c.NSymbols)
	}
	return nil
}

// #endregion validation
