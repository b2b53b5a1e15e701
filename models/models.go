package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Job priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Run statuses.
const (
	RunStarted   = "started"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Health statuses.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthError    = "error"
	HealthDisabled = "disabled"
)

// Alert types.
const (
	AlertFailure     = "failure"
	AlertDataQuality = "data_quality"
	AlertPerformance = "performance"
	AlertAnomaly     = "anomaly"
	AlertMissingData = "missing_data"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Job is a static descriptor of one recurring collection task. Jobs are built
// from configuration at startup and never mutated afterwards; only Enabled is
// consulted again on each scheduler tick.
type Job struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone"`
	Priority string `json:"priority"`
	Enabled  bool   `json:"enabled"`

	// CronSchedule is the parsed form of Schedule, set by the registry.
	CronSchedule cron.Schedule `json:"-"`
}

// Run is one execution attempt of a Job.
type Run struct {
	ID               string     `db:"id" json:"id"`
	JobID            string     `db:"job_id" json:"job_id"`
	Status           string     `db:"status" json:"status"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	RecordsFound     int        `db:"records_found" json:"records_found"`
	RecordsProcessed int        `db:"records_processed" json:"records_processed"`
	RecordsInserted  int        `db:"records_inserted" json:"records_inserted"`
	RecordsUpdated   int        `db:"records_updated" json:"records_updated"`
	ErrorMessage     *string    `db:"error_message" json:"error_message,omitempty"`
	Warnings         []string   `db:"-" json:"warnings"`
	RuntimeSeconds   *float64   `db:"runtime_seconds" json:"runtime_seconds,omitempty"`
}

// JobResult is what a job callable returns on success. Partial failures are
// reported through Warnings rather than an error.
type JobResult struct {
	RecordsFound     int      `json:"records_found"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsInserted  int      `json:"records_inserted"`
	RecordsUpdated   int      `json:"records_updated"`
	Warnings         []string `json:"warnings,omitempty"`
}

// HealthRecord is the rolling derived state for one Job, upserted after every
// terminal run.
type HealthRecord struct {
	JobID               string     `db:"job_id" json:"job_id"`
	Status              string     `db:"status" json:"status"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	ErrorCount          int        `db:"error_count" json:"error_count"`
	LastRunAt           *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	LastSuccessAt       *time.Time `db:"last_success_at" json:"last_success_at,omitempty"`
	HealthScore         int        `db:"health_score" json:"health_score"`
	FailureRate         float64    `db:"failure_rate" json:"failure_rate"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Alert is a durable record of a condition requiring attention. Alerts are
// never deleted; operators resolve them explicitly.
type Alert struct {
	ID         string         `db:"id" json:"id"`
	JobID      string         `db:"job_id" json:"job_id"`
	SourceID   string         `db:"source_id" json:"source_id"`
	AlertType  string         `db:"alert_type" json:"alert_type"`
	Severity   string         `db:"severity" json:"severity"`
	Message    string         `db:"message" json:"message"`
	Details    map[string]any `db:"-" json:"details,omitempty"`
	IsResolved bool           `db:"is_resolved" json:"is_resolved"`
	ResolvedAt *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
