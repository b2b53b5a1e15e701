package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"justicetracker/models"
)

// MissedRunChecker sweeps the registry for jobs that have not succeeded
// within their expected window and raises missing_data alerts. It runs as a
// scheduled job itself.
type MissedRunChecker struct {
	db       *sqlx.DB
	registry *Registry
	alerts   *AlertEngine
	log      *zap.Logger
}

func NewMissedRunChecker(conn *sqlx.DB, registry *Registry, alerts *AlertEngine, log *zap.Logger) *MissedRunChecker {
	return &MissedRunChecker{db: conn, registry: registry, alerts: alerts, log: log}
}

// ScheduleInterval derives a job's recurrence interval from two successive
// fire times of its cron schedule.
func ScheduleInterval(sched cron.Schedule, now time.Time) time.Duration {
	first := sched.Next(now)
	return sched.Next(first).Sub(first)
}

// MissedDeadline is how long a job may go without a success before it is
// considered missing: two full intervals plus a 30 minute grace.
func MissedDeadline(interval time.Duration) time.Duration {
	return 2*interval + 30*time.Minute
}

// Check walks every enabled job and alerts on the stale ones. Implements the
// missing_data_check job callable.
func (m *MissedRunChecker) Check(ctx context.Context) (*models.JobResult, error) {
	result := &models.JobResult{}
	now := time.Now().In(m.registry.Location())

	for _, job := range m.registry.EnabledJobs() {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.RecordsFound++

		var lastSuccess time.Time
		err := m.db.QueryRowContext(ctx,
			`SELECT started_at FROM job_runs
			 WHERE job_id = $1 AND status = 'completed'
			 ORDER BY started_at DESC LIMIT 1`,
			job.ID,
		).Scan(&lastSuccess)

		deadline := MissedDeadline(ScheduleInterval(job.CronSchedule, now))
		var lastKnown string
		missed := false

		if errors.Is(err, sql.ErrNoRows) {
			// Never succeeded. Fall back to the first recorded run of any
			// status; a brand new job with no runs at all is not missing yet.
			var firstRun time.Time
			e := m.db.QueryRowContext(ctx,
				`SELECT started_at FROM job_runs WHERE job_id = $1
				 ORDER BY started_at ASC LIMIT 1`,
				job.ID,
			).Scan(&firstRun)
			if e == nil && now.Sub(firstRun) > deadline {
				missed = true
				lastKnown = "never succeeded"
			}
		} else if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: last-success lookup failed: %v", job.ID, err))
			continue
		} else if now.Sub(lastSuccess) > deadline {
			missed = true
			lastKnown = lastSuccess.Format(time.RFC3339)
		}

		result.RecordsProcessed++
		if !missed {
			continue
		}

		m.log.Warn("missed run detected",
			zap.String("job_id", job.ID),
			zap.String("last_success", lastKnown),
			zap.Duration("deadline", deadline))

		m.alerts.createDeduped(models.Alert{
			JobID:     job.ID,
			AlertType: models.AlertMissingData,
			Severity:  models.SeverityHigh,
			Message:   fmt.Sprintf("%s has not succeeded within its expected window", job.Name),
			Details: map[string]any{
				"last_success":     lastKnown,
				"deadline_seconds": deadline.Seconds(),
				"schedule":         job.Schedule,
			},
		})
		result.RecordsInserted++
	}

	return result, nil
}
