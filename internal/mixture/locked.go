package mixture

import "sync"

// #region locked
// Locked serialises every call to a Predictor so it can be shared between
// goroutines. Queries also take the exclusive lock because they reuse the
// predictor's scratch tables.
type Locked struct {
	mu sync.Mutex
	p  *Predictor
}

// NewLocked wraps p. The caller must not use p directly afterwards.
func NewLocked(p *Predictor) *Locked {
	return &Locked{p: p}
}

func (l *Locked) Observe(symbol int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Observe(symbol)
}

func (l *Locked) ObserveAction(action, symbol int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.ObserveAction(action, symbol)
}

func (l *Locked) Seed(symbol int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Seed(symbol)
}

func (l *Locked) SeedAction(action, symbol int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.SeedAction(action, symbol)
}

func (l *Locked) Observations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Observations()
}

func (l *Locked) TopOrder() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.TopOrder()
}

func (l *Locked) ObservationProbability(action, symbol int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.ObservationProbability(action, symbol)
}

func (l *Locked) Distribution(action int) ([]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Distribution(action)
}

func (l *Locked) Predict() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Predict()
}

func (l *Locked) PredictAction(action int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.PredictAction(action)
}

func (l *Locked) Generate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Generate()
}

func (l *Locked) GenerateAction(action int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.GenerateAction(action)
}

func (l *Locked) Posterior() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Posterior()
}

func (l *Locked) MostProbableOrder() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.MostProbableOrder()
}

func (l *Locked) Params() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Params()
}

func (l *Locked) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p.Reset()
}

// #endregion locked
