package store

import (
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type testConfig struct {
	NSymbols int `json:"n_symbols"`
	MaxOrder int `json:"max_order"`
}

func TestCreateAndGetRun(t *testing.T) {
	s := tempDB(t)

	rec, err := s.CreateRun("bvmm", testConfig{NSymbols: 2, MaxOrder: 3})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if rec.RunID == "" {
		t.Fatal("expected non-empty run ID")
	}

	got, err := s.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Predictor != "bvmm" {
		t.Fatalf("expected predictor bvmm, got %s", got.Predictor)
	}
	if got.ConfigJSON != `{"n_symbols":2,"max_order":3}` {
		t.Fatalf("unexpected config %s", got.ConfigJSON)
	}
	if got.SummaryJSON != "" {
		t.Fatalf("expected empty summary, got %s", got.SummaryJSON)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("created_at %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := tempDB(t)
	_, err := s.GetRun("nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestFinishRun(t *testing.T) {
	s := tempDB(t)
	rec, err := s.CreateRun("bvmm", testConfig{})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.FinishRun(rec.RunID, map[string]int{"errors": 3}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, _ := s.GetRun(rec.RunID)
	if got.SummaryJSON != `{"errors":3}` {
		t.Fatalf("unexpected summary %s", got.SummaryJSON)
	}
	if err := s.FinishRun("missing", nil); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := tempDB(t)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		rec, err := s.CreateRun(name, testConfig{})
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		ids = append(ids, rec.RunID)
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != ids[2] || runs[1].RunID != ids[1] {
		t.Fatalf("unexpected order: %s, %s", runs[0].Predictor, runs[1].Predictor)
	}
}

func TestLogStepsRoundTrip(t *testing.T) {
	s := tempDB(t)
	rec, _ := s.CreateRun("bvmm", testConfig{})

	steps := []StepRecord{
		{Step: 0, Action: 0, Symbol: 1, Predicted: 0, Probability: 0.5},
		{Step: 1, Action: 0, Symbol: 0, Predicted: 0, Probability: 0.75},
		{Step: 2, Action: 1, Symbol: 1, Predicted: 1, Probability: 0.9},
	}
	if err := s.LogSteps(rec.RunID, steps); err != nil {
		t.Fatalf("LogSteps: %v", err)
	}

	got, err := s.RunSteps(rec.RunID)
	if err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
	if len(got) != len(steps) {
		t.Fatalf("expected %d steps, got %d", len(steps), len(got))
	}
	for i := range steps {
		if got[i] != steps[i] {
			t.Fatalf("step %d: got %+v, want %+v", i, got[i], steps[i])
		}
	}
}

func TestLogStepsIsAtomic(t *testing.T) {
	s := tempDB(t)
	rec, _ := s.CreateRun("bvmm", testConfig{})

	// Duplicate step numbers violate the primary key; nothing may be written.
	steps := []StepRecord{{Step: 0}, {Step: 1}, {Step: 1}}
	if err := s.LogSteps(rec.RunID, steps); err == nil {
		t.Fatal("expected error on duplicate step")
	}
	got, err := s.RunSteps(rec.RunID)
	if err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no steps after failed batch, got %d", len(got))
	}
}

func TestLogStepsRequiresRun(t *testing.T) {
	s := tempDB(t)
	if err := s.LogSteps("missing", []StepRecord{{Step: 0}}); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestSnapshotChain(t *testing.T) {
	s := tempDB(t)
	rec, _ := s.CreateRun("bvmm", testConfig{})

	first, err := s.CommitSnapshot(SnapshotRecord{
		RunID:     rec.RunID,
		Step:      10,
		Posterior: []float64{0.25, 0.75},
		NParams:   2,
	})
	if err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}
	if first.SnapshotID == "" || first.CreatedAt.IsZero() {
		t.Fatal("expected generated ID and timestamp")
	}

	second, err := s.CommitSnapshot(SnapshotRecord{
		ParentID:  first.SnapshotID,
		RunID:     rec.RunID,
		Step:      20,
		Posterior: []float64{0.1, 0.2, 0.7},
		NParams:   3,
	})
	if err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	latest, err := s.LatestSnapshot(rec.RunID)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest.SnapshotID != second.SnapshotID || latest.ParentID != first.SnapshotID {
		t.Fatalf("unexpected latest %+v", latest)
	}
	if len(latest.Posterior) != 3 || latest.Posterior[2] != 0.7 || latest.NParams != 3 {
		t.Fatalf("posterior not round-tripped: %+v", latest)
	}

	all, err := s.Snapshots(rec.RunID)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(all) != 2 || all[0].Step != 10 || all[0].ParentID != "" {
		t.Fatalf("unexpected snapshots %+v", all)
	}
}

func TestSnapshotRejectsUnknownParent(t *testing.T) {
	s := tempDB(t)
	rec, _ := s.CreateRun("bvmm", testConfig{})
	_, err := s.CommitSnapshot(SnapshotRecord{
		ParentID:  "missing",
		RunID:     rec.RunID,
		Posterior: []float64{1},
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestLatestSnapshotMissing(t *testing.T) {
	s := tempDB(t)
	_, err := s.LatestSnapshot("nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestFloatEncoding(t *testing.T) {
	v := []float64{0, 1, -2.5, math.Inf(1), math.SmallestNonzeroFloat64}
	got := decodeFloats(encodeFloats(v))
	if len(got) != len(v) {
		t.Fatalf("length %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("index %d: got %v, want %v", i, got[i], v[i])
		}
	}
	if len(decodeFloats([]byte{1, 2, 3})) != 0 {
		t.Fatal("short blob should decode to nothing")
	}
}

func TestSaveRun(t *testing.T) {
	s := tempDB(t)
	steps := []StepRecord{{Step: 0, Probability: 0.5}, {Step: 1, Symbol: 1, Probability: 0.25}}
	snaps := []SnapshotRecord{
		{Step: 1, Posterior: []float64{1}, NParams: 1},
		{Step: 2, Posterior: []float64{0.4, 0.6}, NParams: 2},
	}
	rec, err := s.SaveRun("bvmm", testConfig{NSymbols: 2}, map[string]int{"errors": 1}, steps, snaps)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.SummaryJSON != `{"errors":1}` || got.ConfigJSON != `{"n_symbols":2,"max_order":0}` {
		t.Fatalf("unexpected run %+v", got)
	}
	stored, err := s.RunSteps(rec.RunID)
	if err != nil || len(stored) != 2 || stored[1] != steps[1] {
		t.Fatalf("RunSteps: %+v, %v", stored, err)
	}
	all, err := s.Snapshots(rec.RunID)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(all) != 2 || all[0].ParentID != "" || all[1].ParentID != all[0].SnapshotID {
		t.Fatalf("snapshots not chained: %+v", all)
	}
}

func TestSaveRunIsAtomic(t *testing.T) {
	s := tempDB(t)

	// The second snapshot reuses the first ID and violates the primary key
	// after the run and its steps were already inserted.
	snaps := []SnapshotRecord{
		{SnapshotID: "dup", Step: 1, Posterior: []float64{1}},
		{SnapshotID: "dup", Step: 2, Posterior: []float64{1}},
	}
	if _, err := s.SaveRun("bvmm", testConfig{}, nil, []StepRecord{{Step: 0}}, snaps); err == nil {
		t.Fatal("expected error on duplicate snapshot ID")
	}

	// An unencodable summary fails before anything is written.
	if _, err := s.SaveRun("bvmm", testConfig{}, math.Inf(1), nil, nil); err == nil {
		t.Fatal("expected marshal error")
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after failed saves, got %d", len(runs))
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM run_steps`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("expected no orphan steps, got %d (%v)", n, err)
	}
}
