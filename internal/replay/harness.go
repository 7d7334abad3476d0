package replay

import (
	"fmt"

	"github.com/danielpatrickdp/bvmm/internal/eval"
	"github.com/danielpatrickdp/bvmm/internal/history"
	"github.com/danielpatrickdp/bvmm/internal/mixture"
)

// #region types
// Entry is a named predictor taking part in a replay.
type Entry struct {
	Name      string
	Predictor mixture.Sequential
}

// ReplayConfig controls snapshotting and the thresholds applied to each run.
type ReplayConfig struct {
	SnapshotEvery int // 0 keeps only the final snapshot
	EvalConfig    eval.EvalConfig
}

// DefaultReplayConfig returns a config with final snapshots only.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		EvalConfig: eval.DefaultEvalConfig(),
	}
}

// StepResult is one predict-then-observe step.
type StepResult struct {
	Step        int
	Action      int
	Symbol      int
	Predicted   int
	Probability float64
}

// Snapshot is the order posterior of a predictor after Step observations.
type Snapshot struct {
	Step      int
	Posterior []float64
	Params    int
}

// ReplayResult captures one predictor's run over the sequence.
type ReplayResult struct {
	Name       string
	Steps      []StepResult
	Stats      *eval.Stats
	Summary    eval.Summary
	EvalResult eval.EvalResult
	Snapshots  []Snapshot // periodic, then final
}

// Final returns the last snapshot.
func (r ReplayResult) Final() Snapshot {
	if len(r.Snapshots) == 0 {
		return Snapshot{}
	}
	return r.Snapshots[len(r.Snapshots)-1]
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps int
	Passed     int
	Failed     int
	Best       string // lowest bits per symbol
}

// #endregion types

// #region replay
// Replay resets every predictor and feeds it the sequence: predict, record
// the probability of the actual symbol, observe. Predictors run one after
// another and do not share state.
func Replay(steps []history.Step, entries []Entry, config ReplayConfig) ([]ReplayResult, error) {
	harness := eval.NewEvalHarness(config.EvalConfig)
	results := make([]ReplayResult, 0, len(entries))

	for _, e := range entries {
		p := e.Predictor
		p.Reset()

		res := ReplayResult{
			Name:  e.Name,
			Steps: make([]StepResult, 0, len(steps)),
			Stats: eval.NewStats(len(steps)),
		}
		for i, st := range steps {
			// 1. Predict
			pred, err := p.PredictAction(st.Action)
			if err != nil {
				return nil, fmt.Errorf("replay %s step %d: %w", e.Name, i, err)
			}

			// 2. Observe
			prob, err := p.ObserveAction(st.Action, st.Symbol)
			if err != nil {
				return nil, fmt.Errorf("replay %s step %d: %w", e.Name, i, err)
			}
			res.Stats.Record(pred, st.Symbol, prob)
			res.Steps = append(res.Steps, StepResult{
				Step:        i,
				Action:      st.Action,
				Symbol:      st.Symbol,
				Predicted:   pred,
				Probability: prob,
			})

			// 3. Periodic snapshot
			if config.SnapshotEvery > 0 && (i+1)%config.SnapshotEvery == 0 {
				snap, err := snapshot(p, i+1, st.Action)
				if err != nil {
					return nil, fmt.Errorf("replay %s step %d: %w", e.Name, i, err)
				}
				res.Snapshots = append(res.Snapshots, snap)
			}
		}

		if n := len(res.Snapshots); n == 0 || res.Snapshots[n-1].Step != len(steps) {
			action := 0
			if len(steps) > 0 {
				action = steps[len(steps)-1].Action
			}
			snap, err := snapshot(p, len(steps), action)
			if err != nil {
				return nil, fmt.Errorf("replay %s final snapshot: %w", e.Name, err)
			}
			res.Snapshots = append(res.Snapshots, snap)
		}

		res.Summary = res.Stats.Summary()
		res.EvalResult = harness.Run(res.Summary)
		results = append(results, res)
	}

	return results, nil
}

// snapshot refreshes the mixture for the next prediction so the posterior
// reflects everything observed so far.
func snapshot(p mixture.Sequential, step, action int) (Snapshot, error) {
	if _, err := p.Distribution(action); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Step: step, Posterior: p.Posterior(), Params: p.Params()}, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	var s ReplaySummary
	best := -1.0
	for _, r := range results {
		s.TotalSteps += r.Summary.Steps
		if r.EvalResult.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		if best < 0 || r.Summary.BitsPerSymbol < best {
			best = r.Summary.BitsPerSymbol
			s.Best = r.Name
		}
	}
	return s
}

// #endregion replay

// #region curves

// LossCurves averages the per-step 0/1 loss of each predictor over repeated
// replays, keyed by entry name. Each element of runs is the output of one
// Replay call.
func LossCurves(runs [][]ReplayResult) map[string][]float64 {
	return curves(runs, eval.LossCurve)
}

// AccuracyCurves averages the per-step probability of the observed symbol
// the same way.
func AccuracyCurves(runs [][]ReplayResult) map[string][]float64 {
	return curves(runs, eval.AccuracyCurve)
}

func curves(runs [][]ReplayResult, curve func([]*eval.Stats) []float64) map[string][]float64 {
	byName := make(map[string][]*eval.Stats)
	for _, results := range runs {
		for _, r := range results {
			if r.Stats != nil {
				byName[r.Name] = append(byName[r.Name], r.Stats)
			}
		}
	}
	out := make(map[string][]float64, len(byName))
	for name, stats := range byName {
		out[name] = curve(stats)
	}
	return out
}

// #endregion curves
