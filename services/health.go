package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/models"
)

// Failure-streak threshold at which a job is considered in error.
const ErrorStreakThreshold = 3

// HealthAggregator derives per-job health from recent run history. All the
// arithmetic lives in pure functions so recomputing over the same history is
// idempotent; only the upsert touches the database.
type HealthAggregator struct {
	db      *sqlx.DB
	tracker *RunTracker
	log     *zap.Logger
}

func NewHealthAggregator(conn *sqlx.DB, tracker *RunTracker, log *zap.Logger) *HealthAggregator {
	return &HealthAggregator{db: conn, tracker: tracker, log: log}
}

// ComputeHealthScore starts at 100 and applies the penalty bands: 10 points
// per consecutive failure, up to 30 for the 24h failure rate, and a staleness
// penalty of 15 (>24h since last success) or 30 (>48h) - the bands are
// exclusive, only the larger applies. Clamped to [0, 100].
func ComputeHealthScore(consecutiveFailures int, failureRate float64, lastSuccessAt *time.Time, now time.Time) int {
	score := 100.0
	score -= 10 * float64(consecutiveFailures)
	score -= min(30, failureRate)

	if lastSuccessAt != nil {
		hours := now.Sub(*lastSuccessAt).Hours()
		if hours > 48 {
			score -= 30
		} else if hours > 24 {
			score -= 15
		}
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

// FailureRate is the percentage of failed runs among terminal runs in the
// window, 0 when the window is empty.
func FailureRate(runs []models.Run) float64 {
	total, failed := 0, 0
	for _, r := range runs {
		switch r.Status {
		case models.RunFailed:
			total++
			failed++
		case models.RunCompleted:
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total) * 100
}

// HealthStatus maps the latest run outcome and failure streak to a status.
func HealthStatus(enabled bool, lastRunStatus string, consecutiveFailures int) string {
	if !enabled {
		return models.HealthDisabled
	}
	if consecutiveFailures >= ErrorStreakThreshold {
		return models.HealthError
	}
	if lastRunStatus == models.RunFailed {
		return models.HealthWarning
	}
	return models.HealthHealthy
}

// Recompute folds a terminal run into the job's health record and upserts it.
// It returns the previous failure streak alongside the new record so the
// alert engine can detect threshold crossings.
func (h *HealthAggregator) Recompute(job *models.Job, run *models.Run) (*models.HealthRecord, int, error) {
	if run.Status != models.RunCompleted && run.Status != models.RunFailed {
		return nil, 0, fmt.Errorf("recompute on non-terminal run %s", run.ID)
	}

	prev, err := h.Get(job.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, err
	}

	rec := &models.HealthRecord{JobID: job.ID}
	prevStreak := 0
	if prev != nil {
		prevStreak = prev.ConsecutiveFailures
		rec.ErrorCount = prev.ErrorCount
		rec.LastSuccessAt = prev.LastSuccessAt
	}

	now := time.Now()
	rec.LastRunAt = &run.StartedAt
	if run.Status == models.RunCompleted {
		rec.ConsecutiveFailures = 0
		completedAt := *run.CompletedAt
		rec.LastSuccessAt = &completedAt
	} else {
		rec.ConsecutiveFailures = prevStreak + 1
		rec.ErrorCount++
	}

	window, err := h.tracker.RunsSince(job.ID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, 0, err
	}
	rec.FailureRate = FailureRate(window)
	rec.HealthScore = ComputeHealthScore(rec.ConsecutiveFailures, rec.FailureRate, rec.LastSuccessAt, now)
	rec.Status = HealthStatus(job.Enabled, run.Status, rec.ConsecutiveFailures)
	rec.UpdatedAt = now

	if err := h.upsert(rec); err != nil {
		return nil, 0, err
	}

	h.log.Debug("health recomputed",
		zap.String("job_id", job.ID),
		zap.String("status", rec.Status),
		zap.Int("score", rec.HealthScore),
		zap.Int("consecutive_failures", rec.ConsecutiveFailures))
	return rec, prevStreak, nil
}

func (h *HealthAggregator) upsert(rec *models.HealthRecord) error {
	_, err := h.db.Exec(
		`INSERT INTO health_records
		     (job_id, status, consecutive_failures, error_count,
		      last_run_at, last_success_at, health_score, failure_rate, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (job_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     consecutive_failures = EXCLUDED.consecutive_failures,
		     error_count = EXCLUDED.error_count,
		     last_run_at = EXCLUDED.last_run_at,
		     last_success_at = EXCLUDED.last_success_at,
		     health_score = EXCLUDED.health_score,
		     failure_rate = EXCLUDED.failure_rate,
		     updated_at = EXCLUDED.updated_at`,
		rec.JobID, rec.Status, rec.ConsecutiveFailures, rec.ErrorCount,
		rec.LastRunAt, rec.LastSuccessAt, rec.HealthScore, rec.FailureRate, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert health record: %w", err)
	}
	return nil
}

// Get returns the health record for one job, sql.ErrNoRows when absent.
func (h *HealthAggregator) Get(jobID string) (*models.HealthRecord, error) {
	var rec models.HealthRecord
	err := h.db.Get(&rec,
		`SELECT job_id, status, consecutive_failures, error_count,
		        last_run_at, last_success_at, health_score, failure_rate, updated_at
		 FROM health_records WHERE job_id = $1`,
		jobID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// All returns every health record, most recently updated first.
func (h *HealthAggregator) All() ([]models.HealthRecord, error) {
	records := []models.HealthRecord{}
	err := h.db.Select(&records,
		`SELECT job_id, status, consecutive_failures, error_count,
		        last_run_at, last_success_at, health_score, failure_rate, updated_at
		 FROM health_records ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query health records: %w", err)
	}
	return records, nil
}
