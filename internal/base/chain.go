package base

import "github.com/danielpatrickdp/bvmm/internal/history"

// #region chain
// Chain is a sparse order-k Markov chain over a finite alphabet. Each context
// row stores per-symbol counts followed by the row total.
type Chain struct {
	order     int
	nSymbols  int
	threshold float64
	counts    map[history.Key][]float64
}

// NewChain creates an empty chain of the given order.
func NewChain(order, nSymbols int, config ChainConfig) *Chain {
	return &Chain{
		order:     order,
		nSymbols:  nSymbols,
		threshold: config.Threshold,
		counts:    make(map[history.Key][]float64),
	}
}

// Order returns the memory length of the chain.
func (c *Chain) Order() int { return c.order }

// Probability returns the smoothed estimate (n_x + α) / (n + Sα).
// Unseen contexts yield the uniform distribution.
func (c *Chain) Probability(ctx history.Key, symbol int) float64 {
	row := c.counts[ctx]
	s := float64(c.nSymbols)
	if row == nil {
		return 1 / s
	}
	return (row[symbol] + c.threshold) / (row[c.nSymbols] + s*c.threshold)
}

// Observe counts symbol under ctx.
func (c *Chain) Observe(ctx history.Key, symbol int) {
	row := c.counts[ctx]
	if row == nil {
		row = make([]float64, c.nSymbols+1)
		c.counts[ctx] = row
	}
	row[symbol]++
	row[c.nSymbols]++
}

// Contexts returns the number of distinct contexts seen.
func (c *Chain) Contexts() int { return len(c.counts) }

// Reset forgets all counts.
func (c *Chain) Reset() {
	clear(c.counts)
}

// #endregion chain

// #region factory
// ChainFactory returns a Factory producing Chains with the given config.
func ChainFactory(config ChainConfig) Factory {
	return func(order, nSymbols int) Predictor {
		return NewChain(order, nSymbols, config)
	}
}

// NewFamily builds one predictor per order 0..maxOrder.
func NewFamily(nSymbols, maxOrder int, factory Factory) []Predictor {
	family := make([]Predictor, maxOrder+1)
	for k := range family {
		family[k] = factory(k, nSymbols)
	}
	return family
}

// #endregion factory
