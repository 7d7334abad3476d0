package store

import "time"

// #region run-record
// RunRecord describes one predictor run over a sequence.
type RunRecord struct {
	RunID       string
	Predictor   string
	ConfigJSON  string
	SummaryJSON string // empty until FinishRun
	CreatedAt   time.Time
}

// #endregion run-record

// #region step-record
// StepRecord is one prediction step of a run.
type StepRecord struct {
	Step        int
	Action      int
	Symbol      int
	Predicted   int
	Probability float64 // probability given to Symbol before it was learned
}

// #endregion step-record

// #region snapshot-record
// SnapshotRecord is the order posterior of a run at a given step. Snapshots
// of the same run form a chain through ParentID.
type SnapshotRecord struct {
	SnapshotID string
	ParentID   string
	RunID      string
	Step       int
	Posterior  []float64
	NParams    int
	CreatedAt  time.Time
}

// #endregion snapshot-record
