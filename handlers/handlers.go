package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/services"
)

// Handlers carries the service instances the read API needs. No package
// globals: tests construct isolated instances.
type Handlers struct {
	db        *sqlx.DB
	registry  *services.Registry
	scheduler *services.Scheduler
	tracker   *services.RunTracker
	health    *services.HealthAggregator
	alerts    *services.AlertEngine
	anomalies *services.AnomalyDetector
	log       *zap.Logger
}

func New(
	conn *sqlx.DB,
	registry *services.Registry,
	scheduler *services.Scheduler,
	tracker *services.RunTracker,
	health *services.HealthAggregator,
	alerts *services.AlertEngine,
	anomalies *services.AnomalyDetector,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		db:        conn,
		registry:  registry,
		scheduler: scheduler,
		tracker:   tracker,
		health:    health,
		alerts:    alerts,
		anomalies: anomalies,
		log:       log,
	}
}

// Register mounts the read API.
func (h *Handlers) Register(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/:id", h.GetJob)
		api.GET("/jobs/:id/runs", h.GetJobRuns)
		api.POST("/jobs/:id/run", h.RunJobNow)
		api.PATCH("/jobs/:id/enabled", h.SetJobEnabled)

		api.GET("/health", h.GetHealth)

		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
		api.POST("/anomalies/evaluate", h.EvaluateAnomalies)

		api.GET("/stats/overview", h.GetStatsOverview)
		api.GET("/reports", h.GetReports)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}
