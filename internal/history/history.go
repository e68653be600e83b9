// Package history persists run summaries to SQLite so past results survive
// the REPL session. The journal is written through an emitter, so the
// execution core stays unaware of persistence.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"factual/internal/report"
)

// Store is the SQLite-backed run journal.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// Open initializes the journal database at path, creating the schema on
// first use. Use ":memory:" for an ephemeral store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		checked INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		errored INTEGER NOT NULL,
		load_failures INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	outcomesTable := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		fact_id TEXT NOT NULL,
		namespace TEXT NOT NULL,
		name TEXT,
		status TEXT NOT NULL,
		detail TEXT,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_fact ON outcomes(fact_id);
	`

	for _, table := range []string{runsTable, outcomesTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

// outcomeStatus flattens an outcome into the journal's status column.
func outcomeStatus(o report.Outcome) (status, detail string) {
	switch {
	case o.Err != "":
		return "error", o.Err
	case o.Passed:
		return "pass", ""
	default:
		return "fail", strings.Join(o.Failures, "\n")
	}
}

// RecordRun journals one run summary and its per-fact outcomes.
func (s *Store) RecordRun(sum report.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO runs (run_id, started_at, duration_ms, checked, passed, failed, errored, load_failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Started.UTC(), sum.Duration.Milliseconds(),
		sum.Checked, sum.Passed, sum.Failed, sum.Errored, len(sum.Loads),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", sum.RunID, err)
	}

	for _, o := range sum.Outcomes {
		status, detail := outcomeStatus(o)
		_, err = tx.Exec(
			`INSERT INTO outcomes (run_id, fact_id, namespace, name, status, detail, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, o.FactID, o.Namespace, o.Name, status, detail, o.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to record outcome for %s: %w", o.FactID, err)
		}
	}

	return tx.Commit()
}

// Run is one journaled run.
type Run struct {
	RunID        string
	Started      time.Time
	Duration     time.Duration
	Checked      int
	Passed       int
	Failed       int
	Errored      int
	LoadFailures int
}

// AllPassed mirrors report.Summary.AllPassed for journaled runs.
func (r Run) AllPassed() bool {
	return r.Failed == 0 && r.Errored == 0 && r.LoadFailures == 0
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT run_id, started_at, duration_ms, checked, passed, failed, errored, load_failures
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durMs int64
		if err := rows.Scan(&r.RunID, &r.Started, &durMs, &r.Checked, &r.Passed, &r.Failed, &r.Errored, &r.LoadFailures); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FactOutcome is one journaled per-fact result.
type FactOutcome struct {
	RunID     string
	FactID    string
	Namespace string
	Name      string
	Status    string // pass, fail or error
	Detail    string
	Duration  time.Duration
}

// RunOutcomes returns the per-fact outcomes of one run, in check order.
func (s *Store) RunOutcomes(runID string) ([]FactOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT run_id, fact_id, namespace, name, status, detail, duration_ms
		 FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []FactOutcome
	for rows.Next() {
		var o FactOutcome
		var durMs int64
		if err := rows.Scan(&o.RunID, &o.FactID, &o.Namespace, &o.Name, &o.Status, &o.Detail, &durMs); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(durMs) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// FactHistory returns the journaled outcomes of one fact across runs,
// newest first. Useful for spotting facts that flap.
func (s *Store) FactHistory(factID string, limit int) ([]FactOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT run_id, fact_id, namespace, name, status, detail, duration_ms
		 FROM outcomes WHERE fact_id = ? ORDER BY id DESC LIMIT ?`, factID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []FactOutcome
	for rows.Next() {
		var o FactOutcome
		var durMs int64
		if err := rows.Scan(&o.RunID, &o.FactID, &o.Namespace, &o.Name, &o.Status, &o.Detail, &durMs); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(durMs) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Stats returns row counts per table.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int64)
	for _, table := range []string{"runs", "outcomes"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, err
		}
		stats[table] = count
	}
	return stats, nil
}
