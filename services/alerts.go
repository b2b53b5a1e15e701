package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/models"
)

// Failure streak at which an alert escalates from high to critical.
const criticalStreakThreshold = 5

// AlertEngine creates and resolves alerts. Alerts are append-only: creation
// happens on threshold crossings, resolution only by operator action, deletion
// never.
type AlertEngine struct {
	db             *sqlx.DB
	notifier       Notifier
	log            *zap.Logger
	slowRunSeconds float64
}

func NewAlertEngine(conn *sqlx.DB, notifier Notifier, slowRunSeconds float64, log *zap.Logger) *AlertEngine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if slowRunSeconds <= 0 {
		slowRunSeconds = 600
	}
	return &AlertEngine{db: conn, notifier: notifier, log: log, slowRunSeconds: slowRunSeconds}
}

// ShouldFireFailureAlert is the edge-trigger rule: a failure alert fires when
// the streak crosses the error threshold, and once more when it escalates
// across the critical threshold. Never on the failures in between, since
// streaks grow one at a time the critical severity would otherwise be
// unreachable.
func ShouldFireFailureAlert(prevStreak, newStreak int) bool {
	if newStreak >= ErrorStreakThreshold && prevStreak < ErrorStreakThreshold {
		return true
	}
	return newStreak >= criticalStreakThreshold && prevStreak < criticalStreakThreshold
}

// FailureSeverity maps a streak length to an alert severity.
func FailureSeverity(streak int) string {
	if streak >= criticalStreakThreshold {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

// HandleRunResult inspects a terminal run against the thresholds and creates
// whatever alerts apply. Called by the dispatcher after health recomputation,
// so rec reflects this run already. Store errors are logged and swallowed:
// the run's terminal state is authoritative even if alerting bookkeeping
// fails.
func (a *AlertEngine) HandleRunResult(job *models.Job, run *models.Run, rec *models.HealthRecord, prevStreak int) {
	// Failure alerts rely on edge-triggering alone: each crossing happens at
	// most once per streak, and a streak can only restart after an
	// intervening success. That new streak deserves its own alert even if
	// the previous one is still open.
	if ShouldFireFailureAlert(prevStreak, rec.ConsecutiveFailures) {
		errMsg := ""
		if run.ErrorMessage != nil {
			errMsg = *run.ErrorMessage
		}
		a.create(models.Alert{
			JobID:     job.ID,
			SourceID:  run.ID,
			AlertType: models.AlertFailure,
			Severity:  FailureSeverity(rec.ConsecutiveFailures),
			Message: fmt.Sprintf("%s has failed %d times in a row",
				job.Name, rec.ConsecutiveFailures),
			Details: map[string]any{
				"consecutive_failures": rec.ConsecutiveFailures,
				"last_error":           errMsg,
				"health_score":         rec.HealthScore,
			},
		})
	}

	if run.Status == models.RunCompleted {
		if len(run.Warnings) > 0 || run.RecordsProcessed < run.RecordsFound {
			a.createDeduped(models.Alert{
				JobID:     job.ID,
				SourceID:  run.ID,
				AlertType: models.AlertDataQuality,
				Severity:  models.SeverityMedium,
				Message: fmt.Sprintf("%s processed %d of %d records",
					job.Name, run.RecordsProcessed, run.RecordsFound),
				Details: map[string]any{
					"records_found":     run.RecordsFound,
					"records_processed": run.RecordsProcessed,
					"warnings":          run.Warnings,
				},
			})
		}
	}

	if run.RuntimeSeconds != nil && *run.RuntimeSeconds > a.slowRunSeconds {
		a.createDeduped(models.Alert{
			JobID:     job.ID,
			SourceID:  run.ID,
			AlertType: models.AlertPerformance,
			Severity:  models.SeverityMedium,
			Message: fmt.Sprintf("%s took %.0fs (threshold %.0fs)",
				job.Name, *run.RuntimeSeconds, a.slowRunSeconds),
			Details: map[string]any{
				"runtime_seconds": *run.RuntimeSeconds,
				"threshold":       a.slowRunSeconds,
			},
		})
	}
}

// createDeduped inserts the alert unless an unresolved alert of the same
// job+type already exists.
func (a *AlertEngine) createDeduped(alert models.Alert) {
	var exists int
	err := a.db.QueryRow(
		`SELECT 1 FROM alerts
		 WHERE job_id = $1 AND alert_type = $2 AND NOT is_resolved LIMIT 1`,
		alert.JobID, alert.AlertType,
	).Scan(&exists)
	if err == nil {
		a.log.Info("duplicate alert suppressed",
			zap.String("job_id", alert.JobID), zap.String("alert_type", alert.AlertType))
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		a.log.Error("alert dedupe check failed", zap.Error(err))
		return
	}

	a.create(alert)
}

// create is Create with the store error swallowed, for the post-run paths
// where alerting is best effort.
func (a *AlertEngine) create(alert models.Alert) {
	if _, err := a.Create(alert); err != nil {
		a.log.Error("create alert failed",
			zap.String("job_id", alert.JobID), zap.String("alert_type", alert.AlertType), zap.Error(err))
	}
}

// Create writes the alert row first, then notifies asynchronously.
func (a *AlertEngine) Create(alert models.Alert) (*models.Alert, error) {
	alert.ID = uuid.NewString()
	if alert.Details == nil {
		alert.Details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(alert.Details)
	if err != nil {
		return nil, fmt.Errorf("marshal alert details: %w", err)
	}

	err = a.db.QueryRow(
		`INSERT INTO alerts (id, job_id, source_id, alert_type, severity, message, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		alert.ID, alert.JobID, alert.SourceID, alert.AlertType,
		alert.Severity, alert.Message, detailsJSON,
	).Scan(&alert.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}

	a.log.Info("alert created",
		zap.String("alert_id", alert.ID),
		zap.String("job_id", alert.JobID),
		zap.String("alert_type", alert.AlertType),
		zap.String("severity", alert.Severity))

	go a.notifier.Notify(alert)
	return &alert, nil
}

// Resolve marks an alert resolved. Resolving twice is a no-op: resolved_at
// keeps its original value.
func (a *AlertEngine) Resolve(alertID string) error {
	res, err := a.db.Exec(
		`UPDATE alerts SET is_resolved = TRUE, resolved_at = NOW()
		 WHERE id = $1 AND NOT is_resolved`,
		alertID)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		a.log.Info("alert resolved", zap.String("alert_id", alertID))
		return nil
	}

	var exists int
	if err := a.db.QueryRow(`SELECT 1 FROM alerts WHERE id = $1`, alertID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}
	// Already resolved.
	return nil
}

// AlertFilter narrows List. Zero values mean no filtering.
type AlertFilter struct {
	JobID     string
	AlertType string
	Severity  string
	Resolved  *bool
	Limit     int
}

// List returns alerts newest first.
func (a *AlertEngine) List(filter AlertFilter) ([]models.Alert, error) {
	query := `SELECT id, job_id, source_id, alert_type, severity, message, details,
	                 is_resolved, resolved_at, created_at
	          FROM alerts WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, val any) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, val)
	}
	if filter.JobID != "" {
		add("job_id", filter.JobID)
	}
	if filter.AlertType != "" {
		add("alert_type", filter.AlertType)
	}
	if filter.Severity != "" {
		add("severity", filter.Severity)
	}
	if filter.Resolved != nil {
		add("is_resolved", *filter.Resolved)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var al models.Alert
		var detailsRaw []byte
		if err := rows.Scan(&al.ID, &al.JobID, &al.SourceID, &al.AlertType, &al.Severity,
			&al.Message, &detailsRaw, &al.IsResolved, &al.ResolvedAt, &al.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if len(detailsRaw) > 0 {
			_ = json.Unmarshal(detailsRaw, &al.Details)
		}
		alerts = append(alerts, al)
	}
	return alerts, rows.Err()
}
