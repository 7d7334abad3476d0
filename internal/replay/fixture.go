package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/bvmm/internal/eval"
	"github.com/danielpatrickdp/bvmm/internal/history"
	"github.com/danielpatrickdp/bvmm/internal/mixture"
	"github.com/danielpatrickdp/bvmm/internal/weights"
)

// Predictor kinds accepted in fixtures.
const (
	KindMixture  = "mixture"
	KindAveraged = "averaged"
)

// #region fixture-types

// Fixture is the top-level structure of a replay fixture. The sequence is
// either listed step by step or given as a pattern repeated Cycles times.
type Fixture struct {
	Description string             `json:"description" yaml:"description"`
	NSymbols    int                `json:"n_symbols" yaml:"n_symbols" validate:"gte=1"`
	NActions    int                `json:"n_actions" yaml:"n_actions" validate:"gte=0"`
	Predictors  []FixturePredictor `json:"predictors" yaml:"predictors" validate:"required,min=1,dive"`
	Steps       []history.Step     `json:"steps" yaml:"steps"`
	Pattern     []int              `json:"pattern" yaml:"pattern"`
	Cycles      int                `json:"cycles" yaml:"cycles" validate:"gte=0"`
	Replay      FixtureReplay      `json:"replay" yaml:"replay"`
	Expected    []FixtureExpected  `json:"expected" yaml:"expected" validate:"dive"`
}

// FixturePredictor configures one predictor. Alphabet sizes come from the fixture.
type FixturePredictor struct {
	Name       string             `json:"name" yaml:"name" validate:"required"`
	Kind       string             `json:"kind" yaml:"kind" validate:"required,oneof=mixture averaged"`
	MaxOrder   int                `json:"max_order" yaml:"max_order" validate:"gte=0"`
	Prior      float64            `json:"prior" yaml:"prior" validate:"gt=0,lt=1"`
	Policy     weights.Policy     `json:"policy" yaml:"policy"`
	Polya      bool               `json:"polya" yaml:"polya"`
	Generation mixture.Generation `json:"generation" yaml:"generation"`
	Workers    int                `json:"workers" yaml:"workers" validate:"gte=0"`
	Seed       uint64             `json:"seed" yaml:"seed"`
}

// FixtureReplay mirrors ReplayConfig.
type FixtureReplay struct {
	SnapshotEvery int             `json:"snapshot_every" yaml:"snapshot_every" validate:"gte=0"`
	Eval          eval.EvalConfig `json:"eval" yaml:"eval"`
}

// FixtureExpected bounds the outcome of one predictor.
type FixtureExpected struct {
	Predictor string `json:"predictor" yaml:"predictor" validate:"required"`
	MaxErrors int    `json:"max_errors" yaml:"max_errors" validate:"gte=0"`
	// TailCorrect requires the last TailCorrect predictions to be right.
	TailCorrect int `json:"tail_correct" yaml:"tail_correct" validate:"gte=0"`
	// MinMass requires the final posterior mass on orders >= FromOrder.
	FromOrder int     `json:"from_order" yaml:"from_order" validate:"gte=0"`
	MinMass   float64 `json:"min_mass" yaml:"min_mass" validate:"gte=0,lte=1"`
}

// #endregion fixture-types

// #region fixture-loader

var validate = validator.New()

// LoadFixture reads and validates a fixture. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks field bounds and that the sequence fits the alphabets.
func (f *Fixture) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	seq := f.Sequence()
	if len(seq) == 0 {
		return errors.New("validate: empty sequence")
	}
	nActions := max(1, f.NActions)
	for i, st := range seq {
		if st.Symbol < 0 || st.Symbol >= f.NSymbols || st.Action < 0 || st.Action >= nActions {
			return fmt.Errorf("validate: step %d (%d, %d) outside alphabet", i, st.Action, st.Symbol)
		}
	}
	return nil
}

// Sequence returns the steps to replay.
func (f *Fixture) Sequence() []history.Step {
	if len(f.Steps) > 0 {
		return f.Steps
	}
	seq := make([]history.Step, 0, len(f.Pattern)*f.Cycles)
	for c := 0; c < f.Cycles; c++ {
		for _, s := range f.Pattern {
			seq = append(seq, history.Step{Symbol: s})
		}
	}
	return seq
}

// ToReplayConfig converts the fixture's replay section.
func (f *Fixture) ToReplayConfig() ReplayConfig {
	cfg := ReplayConfig{
		SnapshotEvery: f.Replay.SnapshotEvery,
		EvalConfig:    f.Replay.Eval,
	}
	if cfg.EvalConfig == (eval.EvalConfig{}) {
		cfg.EvalConfig = eval.DefaultEvalConfig()
	}
	return cfg
}

// Config converts a fixture predictor to a mixture config.
func (fp *FixturePredictor) Config(nSymbols, nActions int) mixture.Config {
	return mixture.Config{
		NSymbols:   nSymbols,
		NActions:   max(1, nActions),
		MaxOrder:   fp.MaxOrder,
		Prior:      fp.Prior,
		Policy:     fp.Policy,
		Polya:      fp.Polya,
		Generation: fp.Generation,
		Workers:    fp.Workers,
		Seed:       fp.Seed,
	}
}

// Build constructs the fixture's predictors.
func (f *Fixture) Build(opts ...mixture.Option) ([]Entry, error) {
	entries := make([]Entry, 0, len(f.Predictors))
	for _, fp := range f.Predictors {
		cfg := fp.Config(f.NSymbols, f.NActions)
		var (
			p   mixture.Sequential
			err error
		)
		switch fp.Kind {
		case KindAveraged:
			p, err = mixture.NewAveraged(cfg, opts...)
		default:
			p, err = mixture.New(cfg, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", fp.Name, err)
		}
		entries = append(entries, Entry{Name: fp.Name, Predictor: p})
	}
	return entries, nil
}

// Check compares results against the fixture's expectations and joins every
// violation into one error.
func (f *Fixture) Check(results []ReplayResult) error {
	byName := make(map[string]ReplayResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	var errs []error
	for _, exp := range f.Expected {
		r, ok := byName[exp.Predictor]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: no result", exp.Predictor))
			continue
		}
		if r.Summary.Errors > exp.MaxErrors {
			errs = append(errs, fmt.Errorf("%s: %d errors, want at most %d", exp.Predictor, r.Summary.Errors, exp.MaxErrors))
		}
		start := max(0, len(r.Steps)-exp.TailCorrect)
		for _, st := range r.Steps[start:] {
			if st.Predicted != st.Symbol {
				errs = append(errs, fmt.Errorf("%s: step %d predicted %d, observed %d", exp.Predictor, st.Step, st.Predicted, st.Symbol))
				break
			}
		}
		if exp.MinMass > 0 {
			var mass float64
			post := r.Final().Posterior
			for k := exp.FromOrder; k < len(post); k++ {
				mass += post[k]
			}
			if mass < exp.MinMass {
				errs = append(errs, fmt.Errorf("%s: posterior mass %.4f on orders >= %d, want at least %.4f", exp.Predictor, mass, exp.FromOrder, exp.MinMass))
			}
		}
	}
	return errors.Join(errs...)
}

// #endregion fixture-loader

// #region sequence-loader

// maxSequencePrealloc caps the capacity reserved from a sequence header.
const maxSequencePrealloc = 1 << 16

// LoadSequence reads a whitespace-separated sequence: the length T followed
// by T symbols numbered from 1. It returns zero-based steps and the alphabet
// size, the largest symbol seen. A positive limit truncates the sequence.
func LoadSequence(r io.Reader, limit int) ([]history.Step, int, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	next := func() (int, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		return strconv.Atoi(sc.Text())
	}

	t, err := next()
	if err != nil {
		return nil, 0, fmt.Errorf("read length: %w", err)
	}
	if t < 0 {
		return nil, 0, fmt.Errorf("read length: negative length %d", t)
	}
	if limit > 0 && limit < t {
		t = limit
	}

	// The declared length is untrusted; short input ends in io.ErrUnexpectedEOF.
	steps := make([]history.Step, 0, min(t, maxSequencePrealloc))
	nSymbols := 0
	for i := 0; i < t; i++ {
		x, err := next()
		if err != nil {
			return nil, 0, fmt.Errorf("read symbol %d: %w", i, err)
		}
		if x < 1 {
			return nil, 0, fmt.Errorf("read symbol %d: %d is not a positive symbol", i, x)
		}
		nSymbols = max(nSymbols, x)
		steps = append(steps, history.Step{Symbol: x - 1})
	}
	return steps, nSymbols, nil
}

// #endregion sequence-loader
