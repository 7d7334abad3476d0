package replay

import (
	"fmt"

	"github.com/danielpatrickdp/bvmm/internal/store"
)

// #region record
// Record persists a replay result as a new run: its configuration, every
// step, the snapshots chained in order and the summary. The run is written
// in one transaction. It returns the run ID.
func Record(s *store.Store, r ReplayResult, config any) (string, error) {
	steps := make([]store.StepRecord, len(r.Steps))
	for i, st := range r.Steps {
		steps[i] = store.StepRecord{
			Step:        st.Step,
			Action:      st.Action,
			Symbol:      st.Symbol,
			Predicted:   st.Predicted,
			Probability: st.Probability,
		}
	}
	snaps := make([]store.SnapshotRecord, len(r.Snapshots))
	for i, snap := range r.Snapshots {
		snaps[i] = store.SnapshotRecord{
			Step:      snap.Step,
			Posterior: snap.Posterior,
			NParams:   snap.Params,
		}
	}

	run, err := s.SaveRun(r.Name, config, r.Summary, steps, snaps)
	if err != nil {
		return "", fmt.Errorf("record %s: %w", r.Name, err)
	}
	return run.RunID, nil
}

// #endregion record
