// Package store persists predictor runs, their step traces and posterior
// snapshots in SQLite.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	predictor     TEXT NOT NULL,
	config_json   TEXT NOT NULL,
	summary_json  TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_steps (
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	action        INTEGER NOT NULL,
	symbol        INTEGER NOT NULL,
	predicted     INTEGER NOT NULL,
	probability   REAL NOT NULL,
	PRIMARY KEY (run_id, step),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS weight_snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	parent_id     TEXT,
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	posterior     BLOB NOT NULL,
	n_params      INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES weight_snapshots(snapshot_id),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// Store manages run history in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region runs
// CreateRun registers a new run for predictor. config is stored as JSON.
func (s *Store) CreateRun(predictor string, config any) (RunRecord, error) {
	rec, err := newRun(predictor, config)
	if err != nil {
		return RunRecord{}, err
	}
	if err := insertRun(s.db, rec); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// SaveRun stores a finished run in one transaction: the run with its summary,
// every step and the snapshots chained through ParentID in the given order.
// Nothing is written if any part fails.
func (s *Store) SaveRun(predictor string, config, summary any, steps []StepRecord, snapshots []SnapshotRecord) (RunRecord, error) {
	rec, err := newRun(predictor, config)
	if err != nil {
		return RunRecord{}, err
	}
	sumJSON, err := json.Marshal(summary)
	if err != nil {
		return RunRecord{}, fmt.Errorf("marshal summary: %w", err)
	}
	rec.SummaryJSON = string(sumJSON)

	tx, err := s.db.Begin()
	if err != nil {
		return RunRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(tx, rec); err != nil {
		return RunRecord{}, err
	}
	if err := insertSteps(tx, rec.RunID, steps); err != nil {
		return RunRecord{}, err
	}
	var parent string
	for _, snap := range snapshots {
		snap.RunID = rec.RunID
		snap.ParentID = parent
		stored, err := insertSnapshot(tx, snap)
		if err != nil {
			return RunRecord{}, fmt.Errorf("snapshot at %d: %w", snap.Step, err)
		}
		parent = stored.SnapshotID
	}
	if err := tx.Commit(); err != nil {
		return RunRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func newRun(predictor string, config any) (RunRecord, error) {
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return RunRecord{}, fmt.Errorf("marshal config: %w", err)
	}
	return RunRecord{
		RunID:      uuid.New().String(),
		Predictor:  predictor,
		ConfigJSON: string(cfgJSON),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func insertRun(ex execer, rec RunRecord) error {
	var summary any
	if rec.SummaryJSON != "" {
		summary = rec.SummaryJSON
	}
	_, err := ex.Exec(
		`INSERT INTO runs (run_id, predictor, config_json, summary_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.Predictor, rec.ConfigJSON, summary, rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun attaches a JSON summary to a run.
func (s *Store) FinishRun(runID string, summary any) error {
	sumJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := s.db.Exec(`UPDATE runs SET summary_json = ? WHERE run_id = ?`, string(sumJSON), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, predictor, config_json, summary_json, created_at
		 FROM runs WHERE run_id = ?`, runID,
	)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, predictor, config_json, summary_json, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var summary sql.NullString
	var createdStr string
	if err := sc.Scan(&rec.RunID, &rec.Predictor, &rec.ConfigJSON, &summary, &createdStr); err != nil {
		return RunRecord{}, err
	}
	if summary.Valid {
		rec.SummaryJSON = summary.String
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion runs

// #region steps
// LogSteps appends steps to a run in a single transaction.
func (s *Store) LogSteps(runID string, steps []StepRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertSteps(tx, runID, steps); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSteps(tx *sql.Tx, runID string, steps []StepRecord) error {
	stmt, err := tx.Prepare(
		`INSERT INTO run_steps (run_id, step, action, symbol, predicted, probability)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range steps {
		if _, err := stmt.Exec(runID, st.Step, st.Action, st.Symbol, st.Predicted, st.Probability); err != nil {
			return fmt.Errorf("insert step %d: %w", st.Step, err)
		}
	}
	return nil
}

// RunSteps returns the steps of a run in order.
func (s *Store) RunSteps(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT step, action, symbol, predicted, probability
		 FROM run_steps WHERE run_id = ? ORDER BY step`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("run steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var st StepRecord
		if err := rows.Scan(&st.Step, &st.Action, &st.Symbol, &st.Predicted, &st.Probability); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// #endregion steps

// #region snapshots
// CommitSnapshot stores a posterior snapshot. Empty SnapshotID and zero
// CreatedAt are filled in; the stored record is returned.
func (s *Store) CommitSnapshot(rec SnapshotRecord) (SnapshotRecord, error) {
	return insertSnapshot(s.db, rec)
}

func insertSnapshot(ex execer, rec SnapshotRecord) (SnapshotRecord, error) {
	if rec.SnapshotID == "" {
		rec.SnapshotID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var parentPtr any
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}

	_, err := ex.Exec(
		`INSERT INTO weight_snapshots (snapshot_id, parent_id, run_id, step, posterior, n_params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SnapshotID, parentPtr, rec.RunID, rec.Step, encodeFloats(rec.Posterior),
		rec.NParams, rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return rec, nil
}

// LatestSnapshot returns the snapshot with the highest step of a run.
func (s *Store) LatestSnapshot(runID string) (SnapshotRecord, error) {
	row := s.db.QueryRow(
		`SELECT snapshot_id, parent_id, run_id, step, posterior, n_params, created_at
		 FROM weight_snapshots WHERE run_id = ? ORDER BY step DESC, created_at DESC LIMIT 1`, runID,
	)
	rec, err := scanSnapshot(row)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("latest snapshot %s: %w", runID, err)
	}
	return rec, nil
}

// Snapshots returns every snapshot of a run ordered by step.
func (s *Store) Snapshots(runID string) ([]SnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, parent_id, run_id, step, posterior, n_params, created_at
		 FROM weight_snapshots WHERE run_id = ? ORDER BY step, created_at`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSnapshot(sc scanner) (SnapshotRecord, error) {
	var rec SnapshotRecord
	var parentID sql.NullString
	var blob []byte
	var createdStr string
	if err := sc.Scan(&rec.SnapshotID, &parentID, &rec.RunID, &rec.Step, &blob, &rec.NParams, &createdStr); err != nil {
		return SnapshotRecord{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	rec.Posterior = decodeFloats(blob)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion snapshots

// #region vector-encoding
func encodeFloats(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// #endregion vector-encoding
