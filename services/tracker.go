package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/models"
)

// RunTracker records the lifecycle of job executions in Postgres.
type RunTracker struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRunTracker(conn *sqlx.DB, log *zap.Logger) *RunTracker {
	return &RunTracker{db: conn, log: log}
}

// RunUpdate is the terminal update applied by CompleteRun.
type RunUpdate struct {
	Status           string
	RecordsFound     int
	RecordsProcessed int
	RecordsInserted  int
	RecordsUpdated   int
	ErrorMessage     *string
	Warnings         []string
}

// StartRun creates a new run in the started state. Rejects with
// ErrAlreadyRunning when a started run already exists for the job.
func (t *RunTracker) StartRun(jobID string) (*models.Run, error) {
	var exists int
	err := t.db.QueryRow(
		`SELECT 1 FROM job_runs WHERE job_id = $1 AND status = 'started' LIMIT 1`,
		jobID,
	).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check running: %w", err)
	}

	run := &models.Run{
		ID:     uuid.NewString(),
		JobID:  jobID,
		Status: models.RunStarted,
	}
	err = t.db.QueryRow(
		`INSERT INTO job_runs (id, job_id, status) VALUES ($1, $2, 'started')
		 RETURNING started_at`,
		run.ID, jobID,
	).Scan(&run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	t.log.Info("run started", zap.String("job_id", jobID), zap.String("run_id", run.ID))
	return run, nil
}

// CompleteRun applies the terminal update. The WHERE status = 'started' guard
// makes a second terminal update a no-op at the SQL level; it is then reported
// as ErrRunFinished (or ErrRunNotFound for unknown ids), never silently
// overwritten.
func (t *RunTracker) CompleteRun(runID string, upd RunUpdate) (*models.Run, error) {
	if upd.Status != models.RunCompleted && upd.Status != models.RunFailed {
		return nil, fmt.Errorf("invalid terminal status %q", upd.Status)
	}
	if upd.RecordsFound < 0 || upd.RecordsProcessed < 0 || upd.RecordsInserted < 0 || upd.RecordsUpdated < 0 {
		return nil, fmt.Errorf("negative record counts")
	}
	if upd.Warnings == nil {
		upd.Warnings = []string{}
	}
	warningsJSON, err := json.Marshal(upd.Warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}

	run := &models.Run{ID: runID, Status: upd.Status}
	err = t.db.QueryRow(
		`UPDATE job_runs
		 SET status = $2,
		     completed_at = NOW(),
		     records_found = $3,
		     records_processed = $4,
		     records_inserted = $5,
		     records_updated = $6,
		     error_message = $7,
		     warnings = $8,
		     runtime_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - started_at)))
		 WHERE id = $1 AND status = 'started'
		 RETURNING job_id, started_at, completed_at, runtime_seconds`,
		runID, upd.Status,
		upd.RecordsFound, upd.RecordsProcessed, upd.RecordsInserted, upd.RecordsUpdated,
		upd.ErrorMessage, warningsJSON,
	).Scan(&run.JobID, &run.StartedAt, &run.CompletedAt, &run.RuntimeSeconds)

	if errors.Is(err, sql.ErrNoRows) {
		var status string
		if e := t.db.QueryRow(`SELECT status FROM job_runs WHERE id = $1`, runID).Scan(&status); e != nil {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("%w: %s (status %s)", ErrRunFinished, runID, status)
	}
	if err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}

	run.RecordsFound = upd.RecordsFound
	run.RecordsProcessed = upd.RecordsProcessed
	run.RecordsInserted = upd.RecordsInserted
	run.RecordsUpdated = upd.RecordsUpdated
	run.ErrorMessage = upd.ErrorMessage
	run.Warnings = upd.Warnings

	t.log.Info("run finished",
		zap.String("job_id", run.JobID),
		zap.String("run_id", runID),
		zap.String("status", upd.Status),
		zap.Float64p("runtime_seconds", run.RuntimeSeconds))
	return run, nil
}

// FailInterrupted sweeps runs left in the started state by a previous
// process into failed. Called once at boot, before the scheduler starts:
// without it a crash mid-run leaves an orphaned started row that makes
// StartRun reject the job forever. Returns how many rows were swept. The
// swept failures enter each job's failure rate at its next health
// recomputation.
func (t *RunTracker) FailInterrupted() (int, error) {
	res, err := t.db.Exec(
		`UPDATE job_runs
		 SET status = 'failed',
		     completed_at = NOW(),
		     error_message = 'interrupted by process restart',
		     runtime_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - started_at)))
		 WHERE status = 'started'`)
	if err != nil {
		return 0, fmt.Errorf("sweep interrupted runs: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		t.log.Warn("interrupted runs marked failed", zap.Int64("count", affected))
	}
	return int(affected), nil
}

// RecentRuns returns up to limit runs for a job, most recent first.
func (t *RunTracker) RecentRuns(jobID string, limit int) ([]models.Run, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return t.scanRuns(
		`SELECT id, job_id, status, started_at, completed_at,
		        records_found, records_processed, records_inserted, records_updated,
		        error_message, warnings, runtime_seconds
		 FROM job_runs WHERE job_id = $1
		 ORDER BY started_at DESC LIMIT $2`,
		jobID, limit)
}

// RunsSince returns the runs started within the window, most recent first.
// The health aggregator uses a 24h window.
func (t *RunTracker) RunsSince(jobID string, since time.Time) ([]models.Run, error) {
	return t.scanRuns(
		`SELECT id, job_id, status, started_at, completed_at,
		        records_found, records_processed, records_inserted, records_updated,
		        error_message, warnings, runtime_seconds
		 FROM job_runs WHERE job_id = $1 AND started_at >= $2
		 ORDER BY started_at DESC`,
		jobID, since)
}

func (t *RunTracker) scanRuns(query string, args ...any) ([]models.Run, error) {
	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		var r models.Run
		var warningsRaw []byte
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.RecordsFound, &r.RecordsProcessed, &r.RecordsInserted, &r.RecordsUpdated,
			&r.ErrorMessage, &warningsRaw, &r.RuntimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(warningsRaw) > 0 {
			_ = json.Unmarshal(warningsRaw, &r.Warnings)
		}
		if r.Warnings == nil {
			r.Warnings = []string{}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
