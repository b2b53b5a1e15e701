package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"justicetracker/models"
	"justicetracker/services"
)

type jobView struct {
	*models.Job
	Health  *models.HealthRecord `json:"health,omitempty"`
	LastRun *models.Run          `json:"last_run,omitempty"`
}

func (h *Handlers) ListJobs(c *gin.Context) {
	jobs := []jobView{}
	for _, job := range h.registry.Jobs() {
		view := jobView{Job: job}

		if rec, err := h.health.Get(job.ID); err == nil {
			view.Health = rec
		} else if !errors.Is(err, sql.ErrNoRows) {
			h.log.Warn("health lookup failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}

		if runs, err := h.tracker.RecentRuns(job.ID, 1); err == nil && len(runs) > 0 {
			view.LastRun = &runs[0]
		}

		jobs = append(jobs, view)
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	view := jobView{Job: job}
	if rec, err := h.health.Get(job.ID); err == nil {
		view.Health = rec
	}
	if runs, err := h.tracker.RecentRuns(job.ID, 1); err == nil && len(runs) > 0 {
		view.LastRun = &runs[0]
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handlers) GetJobRuns(c *gin.Context) {
	job, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	runs, err := h.tracker.RecentRuns(job.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// RunJobNow triggers a job outside its schedule. An in-flight run is a 409,
// not an error condition.
func (h *Handlers) RunJobNow(c *gin.Context) {
	run, err := h.scheduler.RunNow(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, services.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "Job is already running"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start job"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "job_id": run.JobID, "status": run.Status})
}

// SetJobEnabled is the operator toggle. Disabling does not interrupt an
// in-flight run; the job simply stops being scheduled.
func (h *Handlers) SetJobEnabled(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}

	if err := h.registry.SetEnabled(c.Param("id"), *req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "enabled": *req.Enabled})
}

func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
