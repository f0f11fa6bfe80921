package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sourceplane/assignctl/internal/model"
)

// timeLayout sorts lexically in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned when a run id is not recorded
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a recorded run without its results
type RunSummary struct {
	ID          string
	Kind        model.RunKind
	StartedAt   time.Time
	FinishedAt  time.Time
	SnapshotRef string
	Error       string
	Succeeded   int
	Failed      int
	Skipped     int
}

// RunRepo stores run reports backed by SQLite
type RunRepo struct {
	DB *sql.DB
}

// Record writes a run and all of its results in one transaction
func (r *RunRepo) Record(ctx context.Context, report *model.RunReport) error {
	if report.ID == "" {
		return fmt.Errorf("run report must have an id")
	}
	succeeded, failed, skipped := report.Tally()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, snapshot_ref, error, succeeded, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, string(report.Kind),
		report.StartedAt.UTC().Format(timeLayout), report.FinishedAt.UTC().Format(timeLayout),
		report.SnapshotRef, report.Error, succeeded, failed, skipped,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, result := range report.Results {
		op, err := json.Marshal(result.Operation)
		if err != nil {
			return fmt.Errorf("marshal operation: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_results (run_id, position, app_id, group_id, operation, outcome, error_kind, detail, retries)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, i, result.Operation.AppID, result.Operation.Target.GroupID, string(op),
			string(result.Outcome), string(result.ErrorKind), result.Detail, result.RetriesUsed,
		)
		if err != nil {
			return fmt.Errorf("insert run result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run insert: %w", err)
	}
	return nil
}

// List returns the most recent runs first. A non-positive limit returns all runs
func (r *RunRepo) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, kind, started_at, finished_at, snapshot_ref, error, succeeded, failed, skipped
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get loads one run with its results in their original order
func (r *RunRepo) Get(ctx context.Context, id string) (*model.RunReport, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, kind, started_at, finished_at, snapshot_ref, error, succeeded, failed, skipped
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	report := &model.RunReport{
		ID:          run.ID,
		Kind:        run.Kind,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		SnapshotRef: run.SnapshotRef,
		Error:       run.Error,
		Results:     []model.OperationResult{},
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT operation, outcome, error_kind, detail, retries
		 FROM run_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list run results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			op      string
			result  model.OperationResult
			outcome string
			errKind string
		)
		if err := rows.Scan(&op, &outcome, &errKind, &result.Detail, &result.RetriesUsed); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		if err := json.Unmarshal([]byte(op), &result.Operation); err != nil {
			return nil, fmt.Errorf("unmarshal operation: %w", err)
		}
		result.Outcome = model.Outcome(outcome)
		result.ErrorKind = model.ErrorKind(errKind)
		report.Results = append(report.Results, result)
	}
	return report, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunSummary, error) {
	var (
		run                 RunSummary
		kind                string
		startedAt, finished string
	)
	err := s.Scan(&run.ID, &kind, &startedAt, &finished, &run.SnapshotRef, &run.Error,
		&run.Succeeded, &run.Failed, &run.Skipped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, err
		}
		return RunSummary{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = model.RunKind(kind)
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return RunSummary{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return RunSummary{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return run, nil
}
