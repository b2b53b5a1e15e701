package scrapers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/models"
)

// Reporter produces the weekly activity snapshot the dashboard reads and the
// hourly database health check.
type Reporter struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewReporter(conn *sqlx.DB, log *zap.Logger) *Reporter {
	return &Reporter{db: conn, log: log}
}

// WeeklyReport implements the weekly_report job callable: it aggregates the
// past week's runs and open alerts into one report_snapshots row.
func (r *Reporter) WeeklyReport(ctx context.Context) (*models.JobResult, error) {
	weekAgo := time.Now().AddDate(0, 0, -7)

	var totalRuns, failedRuns, recordsInserted, openAlerts int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COALESCE(SUM(records_inserted), 0)
		 FROM job_runs WHERE started_at >= $1`,
		weekAgo,
	).Scan(&totalRuns, &failedRuns, &recordsInserted)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE NOT is_resolved`,
	).Scan(&openAlerts)
	if err != nil {
		return nil, err
	}

	weekStarting := weekAgo.Format("2006-01-02")
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO report_snapshots
		     (id, week_starting, total_runs, failed_runs, records_inserted, open_alerts)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (week_starting) DO UPDATE SET
		     total_runs = EXCLUDED.total_runs,
		     failed_runs = EXCLUDED.failed_runs,
		     records_inserted = EXCLUDED.records_inserted,
		     open_alerts = EXCLUDED.open_alerts,
		     generated_at = NOW()`,
		uuid.NewString(), weekStarting, totalRuns, failedRuns, recordsInserted, openAlerts)
	if err != nil {
		return nil, err
	}

	r.log.Info("weekly report snapshot written",
		zap.String("week_starting", weekStarting),
		zap.Int("total_runs", totalRuns),
		zap.Int("failed_runs", failedRuns))

	return &models.JobResult{
		RecordsFound:     totalRuns,
		RecordsProcessed: totalRuns,
		RecordsInserted:  1,
	}, nil
}

// HealthCheck implements the health_check job callable: a connectivity probe
// recorded like any other run.
func (r *Reporter) HealthCheck(ctx context.Context) (*models.JobResult, error) {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return nil, err
	}
	return &models.JobResult{RecordsFound: 1, RecordsProcessed: 1}, nil
}
