package mixture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/danielpatrickdp/bvmm/internal/base"
	"github.com/danielpatrickdp/bvmm/internal/metrics"
	"github.com/danielpatrickdp/bvmm/internal/weights"
)

var (
	// ErrInvalidArgument marks a symbol or action outside the declared alphabet.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidConfig marks a configuration rejected at construction.
	ErrInvalidConfig = errors.New("invalid config")
)

// sumTolerance bounds how far a distribution may drift from 1 before it is repaired.
const sumTolerance = 1e-6

// #region generation
// Generation selects how Generate picks a symbol from the predictive distribution.
type Generation int

const (
	// GenerateArgMax returns the most probable symbol (lowest index on ties).
	GenerateArgMax Generation = iota
	// GenerateSample draws from the predictive distribution.
	GenerateSample
)

func (g Generation) String() string {
	switch g {
	case GenerateArgMax:
		return "argmax"
	case GenerateSample:
		return "sample"
	default:
		return fmt.Sprintf("generation(%d)", int(g))
	}
}

// Valid reports whether g is a supported generation policy.
func (g Generation) Valid() bool {
	return g == GenerateArgMax || g == GenerateSample
}

// MarshalText implements encoding.TextMarshaler.
func (g Generation) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("unsupported generation policy %d", int(g))
	}
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Generation) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "argmax", "":
		*g = GenerateArgMax
	case "sample":
		*g = GenerateSample
	default:
		return fmt.Errorf("unsupported generation policy %q", b)
	}
	return nil
}

// #endregion generation

// #region config
// Config holds the construction parameters of a predictor.
type Config struct {
	NSymbols   int            `json:"n_symbols" yaml:"n_symbols" validate:"gte=1"`
	NActions   int            `json:"n_actions" yaml:"n_actions" validate:"gte=1"`
	MaxOrder   int            `json:"max_order" yaml:"max_order" validate:"gte=0"`
	Prior      float64        `json:"prior" yaml:"prior" validate:"gt=0,lt=1"`
	Policy     weights.Policy `json:"policy" yaml:"policy"`
	Polya      bool           `json:"polya" yaml:"polya"`
	Generation Generation     `json:"generation" yaml:"generation"`
	Workers    int            `json:"workers" yaml:"workers" validate:"gte=0"` // >1 fans the per-order query out
	Seed       uint64         `json:"seed" yaml:"seed"`                         // sampling seed for GenerateSample
}

// DefaultConfig returns a binary-alphabet, order-4, global-weight configuration.
func DefaultConfig() Config {
	return Config{
		NSymbols:   2,
		NActions:   1,
		MaxOrder:   4,
		Prior:      0.5,
		Policy:     weights.Global,
		Generation: GenerateArgMax,
		Workers:    1,
	}
}

var validate = validator.New()

// Validate reports construction misuse; errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !c.Policy.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, weights.ErrUnsupportedPolicy, int(c.Policy))
	}
	if !c.Generation.Valid() {
		return fmt.Errorf("%w: unsupported generation policy %d", ErrInvalidConfig, int(c.Generation))
	}
	return nil
}

// #endregion config

// #region options
type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	factory base.Factory
}

// Option customises a predictor at construction.
type Option func(*options)

// WithLogger sets the logger for numeric diagnostics (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records diagnostics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBases replaces the default Chain base predictors.
func WithBases(f base.Factory) Option {
	return func(o *options) { o.factory = f }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  slog.Default(),
		factory: base.ChainFactory(base.DefaultChainConfig()),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// #endregion options

// #region sequential
// Sequential is the surface shared by the mixture predictor and the
// model-averaging baseline, used by experiment drivers.
type Sequential interface {
	ObserveAction(action, symbol int) (float64, error)
	Distribution(action int) ([]float64, error)
	PredictAction(action int) (int, error)
	Posterior() []float64
	Params() int
	Reset()
}

var (
	_ Sequential = (*Predictor)(nil)
	_ Sequential = (*Averaged)(nil)
	_ Sequential = (*Locked)(nil)
)

// #endregion sequential
