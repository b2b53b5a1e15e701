package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"justicetracker/services"
)

func (h *Handlers) ListAlerts(c *gin.Context) {
	filter := services.AlertFilter{
		JobID:     c.Query("job_id"),
		AlertType: c.Query("type"),
		Severity:  c.Query("severity"),
	}
	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be true or false"})
			return
		}
		filter.Resolved = &resolved
	}
	if v := c.Query("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}

	alerts, err := h.alerts.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// ResolveAlert is idempotent: resolving an already-resolved alert succeeds
// without touching resolved_at.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	err := h.alerts.Resolve(c.Param("id"))
	if errors.Is(err, services.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved"})
}

// EvaluateAnomalies takes a fresh snapshot of the domain metrics. Repeat
// anomalies produce repeat alert rows by design.
func (h *Handlers) EvaluateAnomalies(c *gin.Context) {
	created, err := h.anomalies.Evaluate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Evaluation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"anomalies": created})
}
