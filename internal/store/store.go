// Package store keeps a SQLite ledger of batch runs: the plan computed from
// the sample, every shard written and every student's summary entries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/plgspl/internal/model"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		out_prefix TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		pages_per_submission INTEGER NOT NULL DEFAULT 0,
		submissions_per_file INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS shards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		shard_index INTEGER NOT NULL,
		path TEXT NOT NULL,
		first_student INTEGER NOT NULL,
		last_student INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		UNIQUE (run_id, shard_index),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS summary_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		slot INTEGER NOT NULL,
		variant TEXT NOT NULL,
		scores TEXT NOT NULL,
		UNIQUE (run_id, student_id, slot),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS run_metadata (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun starts a new run and returns it.
func (s *Store) CreateRun(outPrefix string) (model.Run, error) {
	run := model.Run{
		ID:        uuid.NewString(),
		OutPrefix: outPrefix,
		Status:    model.RunInProgress,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, out_prefix, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.OutPrefix, run.Status, run.StartedAt,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(id string) (model.Run, error) {
	var r model.Run
	err := s.db.QueryRow(
		`SELECT id, out_prefix, status, pages_per_submission, submissions_per_file, started_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.OutPrefix, &r.Status, &r.PagesPerSubmission, &r.SubmissionsPerFile, &r.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (model.Run, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM runs ORDER BY rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrRunNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	return s.GetRun(id)
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]model.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, out_prefix, status, pages_per_submission, submissions_per_file, started_at FROM runs ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.OutPrefix, &r.Status, &r.PagesPerSubmission, &r.SubmissionsPerFile, &r.StartedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FinishRun marks a run completed, or failed when runErr is non-nil.
func (s *Store) FinishRun(id string, runErr error) error {
	status, msg := model.RunCompleted, ""
	if runErr != nil {
		status, msg = model.RunFailed, runErr.Error()
	}
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, time.Now().UTC(), id,
	)
	return err
}

// RunError returns the error message recorded for a failed run.
func (s *Store) RunError(id string) (string, error) {
	var msg string
	err := s.db.QueryRow(`SELECT error FROM runs WHERE id = ?`, id).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return msg, err
}

// ListShards returns the shards of a run in index order.
func (s *Store) ListShards(runID string) ([]model.ShardInfo, error) {
	rows, err := s.db.Query(
		`SELECT shard_index, path, first_student, last_student, pages FROM shards WHERE run_id = ? ORDER BY shard_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shards []model.ShardInfo
	for rows.Next() {
		var sh model.ShardInfo
		if err := rows.Scan(&sh.Index, &sh.Path, &sh.FirstStudent, &sh.LastStudent, &sh.Pages); err != nil {
			return nil, err
		}
		shards = append(shards, sh)
	}
	return shards, rows.Err()
}

// Summary returns the summary entries of a run keyed by student.
func (s *Store) Summary(runID string) (model.Summary, error) {
	rows, err := s.db.Query(
		`SELECT student_id, variant, scores FROM summary_entries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summary := model.Summary{}
	for rows.Next() {
		var student string
		var e model.SummaryEntry
		if err := rows.Scan(&student, &e.Variant, &e.Scores); err != nil {
			return nil, err
		}
		summary[student] = append(summary[student], e)
	}
	return summary, rows.Err()
}

// Recorder returns a recorder that writes batch progress into run runID.
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{s: s, runID: runID}
}

// Recorder stores the progress of one run as it happens.
type Recorder struct {
	s     *Store
	runID string
}

func (r *Recorder) RecordPlan(ctx context.Context, pagesPerSubmission, submissionsPerFile int) error {
	_, err := r.s.db.ExecContext(ctx,
		`UPDATE runs SET pages_per_submission = ?, submissions_per_file = ? WHERE id = ?`,
		pagesPerSubmission, submissionsPerFile, r.runID,
	)
	return err
}

func (r *Recorder) RecordShard(ctx context.Context, sh model.ShardInfo) error {
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO shards (run_id, shard_index, path, first_student, last_student, pages) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, sh.Index, sh.Path, sh.FirstStudent, sh.LastStudent, sh.Pages,
	)
	return err
}

func (r *Recorder) RecordSummary(ctx context.Context, studentID string, entries []model.SummaryEntry) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, e := range entries {
		scores := e.Scores
		if scores == "" {
			scores = "null"
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO summary_entries (run_id, student_id, slot, variant, scores) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, student_id, slot) DO UPDATE SET variant = excluded.variant, scores = excluded.scores`,
			r.runID, studentID, i, e.Variant, scores,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
