package weights

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// #region prior
// Prior returns log prior masses for orders 0..maxOrder proportional to p^k,
// normalised to sum to one.
func Prior(maxOrder int, p float64) ([]float64, error) {
	if maxOrder < 0 {
		return nil, fmt.Errorf("prior: negative max order %d", maxOrder)
	}
	if !(p > 0 && p < 1) {
		return nil, fmt.Errorf("prior: parameter %v outside (0, 1)", p)
	}
	logPrior := make([]float64, maxOrder+1)
	for k := range logPrior {
		logPrior[k] = float64(k) * math.Log(p)
	}
	norm := floats.LogSumExp(logPrior)
	floats.AddConst(-norm, logPrior)
	return logPrior, nil
}

// #endregion prior

// #region weight
// Weight derives w_k from the stored parameters. Order 0 always has weight 1.
//
// Standard form: w_k = exp(logPrior_k + θ_k).
// Polya form:    w_k = (0.5 + θ_k) / (0.5 + θ_{k-1}).
//
// Finite results are clamped to [0, 1]; NaN is passed through so the caller
// can detect the normalisation failure.
func Weight(order int, theta, prevTheta, logPrior float64, polya bool) float64 {
	if order == 0 {
		return 1
	}
	var w float64
	if polya {
		w = (0.5 + theta) / (0.5 + prevTheta)
	} else {
		w = math.Exp(logPrior + theta)
	}
	switch {
	case math.IsNaN(w):
		return w
	case w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}

// #endregion weight

// #region posterior
// Posterior is the one-step responsibility of order k for the observed
// symbol: w_k * P_k(x) / Lkoi_k(x). ok is false when the result is not a
// positive finite number, in which case the parameter should be left as is.
func Posterior(w, pk, lk float64) (posterior float64, ok bool) {
	if !(lk > 0) {
		return 0, false
	}
	posterior = w * pk / lk
	if !(posterior > 0) || math.IsInf(posterior, 0) {
		return 0, false
	}
	return posterior, true
}

// Theta converts a posterior back into the stored parameter.
func Theta(posterior, logPrior float64) float64 {
	return math.Log(posterior) - logPrior
}

// #endregion posterior
