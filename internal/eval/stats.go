package eval

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// #region stats
// Stats accumulates per-step prediction quality: 0/1 loss, the probability
// assigned to the observed symbol and the log loss in bits.
type Stats struct {
	loss     []float64
	accuracy []float64
	bits     []float64
}

// NewStats returns empty statistics with room for capacity steps.
func NewStats(capacity int) *Stats {
	return &Stats{
		loss:     make([]float64, 0, capacity),
		accuracy: make([]float64, 0, capacity),
		bits:     make([]float64, 0, capacity),
	}
}

// Record adds one step. prob is the probability the predictor gave the
// observed symbol before learning it; zero yields an infinite log loss.
func (s *Stats) Record(predicted, observed int, prob float64) {
	var l float64
	if predicted != observed {
		l = 1
	}
	s.loss = append(s.loss, l)
	s.accuracy = append(s.accuracy, prob)
	s.bits = append(s.bits, -math.Log2(prob))
}

// Steps returns the number of recorded steps.
func (s *Stats) Steps() int { return len(s.loss) }

// Errors returns the number of mispredicted steps.
func (s *Stats) Errors() int { return int(floats.Sum(s.loss)) }

// Loss returns a copy of the per-step 0/1 loss.
func (s *Stats) Loss() []float64 { return append([]float64(nil), s.loss...) }

// Accuracy returns a copy of the per-step probability of the observation.
func (s *Stats) Accuracy() []float64 { return append([]float64(nil), s.accuracy...) }

// Bits returns a copy of the per-step log loss in bits.
func (s *Stats) Bits() []float64 { return append([]float64(nil), s.bits...) }

// Summary aggregates the recorded steps. An empty run reports zeros and a
// perplexity of 1.
func (s *Stats) Summary() Summary {
	n := len(s.loss)
	if n == 0 {
		return Summary{Perplexity: 1}
	}
	errs := floats.Sum(s.loss)
	acc := floats.Sum(s.accuracy)
	bps := floats.Sum(s.bits) / float64(n)
	return Summary{
		Steps:         n,
		Errors:        int(errs),
		ErrorRate:     errs / float64(n),
		TotalAccuracy: acc,
		MeanAccuracy:  acc / float64(n),
		BitsPerSymbol: bps,
		Perplexity:    math.Exp2(bps),
	}
}

// Reset clears all recorded steps.
func (s *Stats) Reset() {
	s.loss = s.loss[:0]
	s.accuracy = s.accuracy[:0]
	s.bits = s.bits[:0]
}

// #endregion stats

// #region curves
// LossCurve averages the per-step 0/1 loss over repeated runs of the same
// length, giving the error rate at each time step. Runs shorter than the
// longest one contribute only to the steps they cover.
func LossCurve(runs []*Stats) []float64 {
	return meanCurve(runs, func(s *Stats) []float64 { return s.loss })
}

// AccuracyCurve averages the per-step probability of the observation over runs.
func AccuracyCurve(runs []*Stats) []float64 {
	return meanCurve(runs, func(s *Stats) []float64 { return s.accuracy })
}

func meanCurve(runs []*Stats, field func(*Stats) []float64) []float64 {
	var length int
	for _, r := range runs {
		length = max(length, r.Steps())
	}
	total := make([]float64, length)
	count := make([]float64, length)
	for _, r := range runs {
		v := field(r)
		floats.Add(total[:len(v)], v)
		floats.AddConst(1, count[:len(v)])
	}
	for i := range total {
		if count[i] > 0 {
			total[i] /= count[i]
		}
	}
	return total
}

// #endregion curves
