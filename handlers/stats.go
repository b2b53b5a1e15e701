package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GetHealth(c *gin.Context) {
	records, err := h.health.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"health": records})
}

// GetStatsOverview aggregates run history across all jobs for the dashboard
// landing page.
func (h *Handlers) GetStatsOverview(c *gin.Context) {
	var stats struct {
		TotalJobs         int     `json:"total_jobs"`
		TotalRuns         int     `json:"total_runs"`
		SuccessRuns       int     `json:"success_runs"`
		FailedRuns        int     `json:"failed_runs"`
		SuccessRate       float64 `json:"success_rate"`
		AvgRuntimeSeconds float64 `json:"avg_runtime_seconds"`
		OpenAlerts        int     `json:"open_alerts"`
	}

	stats.TotalJobs = len(h.registry.Jobs())

	_ = h.db.QueryRow(`SELECT COUNT(*) FROM job_runs`).Scan(&stats.TotalRuns)
	_ = h.db.QueryRow(`SELECT COUNT(*) FROM job_runs WHERE status = 'completed'`).Scan(&stats.SuccessRuns)
	_ = h.db.QueryRow(`SELECT COUNT(*) FROM job_runs WHERE status = 'failed'`).Scan(&stats.FailedRuns)
	_ = h.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE NOT is_resolved`).Scan(&stats.OpenAlerts)

	var avgRuntime *float64
	_ = h.db.QueryRow(`SELECT AVG(runtime_seconds) FROM job_runs WHERE runtime_seconds IS NOT NULL`).Scan(&avgRuntime)
	if avgRuntime != nil {
		stats.AvgRuntimeSeconds = *avgRuntime
	}

	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.SuccessRuns) / float64(stats.TotalRuns) * 100
	}

	c.JSON(http.StatusOK, stats)
}

type reportSnapshot struct {
	ID              string    `db:"id" json:"id"`
	WeekStarting    time.Time `db:"week_starting" json:"week_starting"`
	TotalRuns       int       `db:"total_runs" json:"total_runs"`
	FailedRuns      int       `db:"failed_runs" json:"failed_runs"`
	RecordsInserted int       `db:"records_inserted" json:"records_inserted"`
	OpenAlerts      int       `db:"open_alerts" json:"open_alerts"`
	GeneratedAt     time.Time `db:"generated_at" json:"generated_at"`
}

// GetReports lists the weekly activity snapshots, newest first.
func (h *Handlers) GetReports(c *gin.Context) {
	reports := []reportSnapshot{}
	err := h.db.Select(&reports,
		`SELECT id, week_starting, total_runs, failed_runs, records_inserted,
		        open_alerts, generated_at
		 FROM report_snapshots ORDER BY week_starting DESC LIMIT 52`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
