package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"justicetracker/models"
	"justicetracker/services"
)

func TestComputeHealthScore_EmptyHistory(t *testing.T) {
	now := time.Now()
	score := services.ComputeHealthScore(0, 0, nil, now)
	assert.Equal(t, 100, score)
}

func TestComputeHealthScore_Penalties(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-1 * time.Hour)
	stale := now.Add(-30 * time.Hour)
	veryStale := now.Add(-72 * time.Hour)

	tests := []struct {
		name          string
		streak        int
		failureRate   float64
		lastSuccessAt *time.Time
		want          int
	}{
		{"healthy", 0, 0, &recent, 100},
		{"one failure", 1, 50, &recent, 60},
		{"streak of three", 3, 100, &recent, 40},
		{"failure rate capped at 30", 0, 100, &recent, 70},
		{"stale over 24h", 0, 0, &stale, 85},
		{"stale over 48h takes the larger penalty only", 0, 0, &veryStale, 70},
		{"floor at zero", 10, 100, &veryStale, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.ComputeHealthScore(tt.streak, tt.failureRate, tt.lastSuccessAt, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeHealthScore_AlwaysInRange(t *testing.T) {
	now := time.Now()
	stale := now.Add(-100 * time.Hour)
	for streak := 0; streak <= 20; streak++ {
		for _, rate := range []float64{0, 25, 50, 100} {
			score := services.ComputeHealthScore(streak, rate, &stale, now)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		}
	}
}

func TestComputeHealthScore_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-26 * time.Hour)

	first := services.ComputeHealthScore(2, 40, &last, now)
	second := services.ComputeHealthScore(2, 40, &last, now)
	assert.Equal(t, first, second)
}

func TestFailureRate(t *testing.T) {
	assert.Zero(t, services.FailureRate(nil))

	runs := []models.Run{
		{Status: models.RunCompleted},
		{Status: models.RunFailed},
		{Status: models.RunFailed},
		{Status: models.RunCompleted},
	}
	assert.InDelta(t, 50.0, services.FailureRate(runs), 0.001)

	// A still-started run is not part of the rate.
	runs = append(runs, models.Run{Status: models.RunStarted})
	assert.InDelta(t, 50.0, services.FailureRate(runs), 0.001)
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		last    string
		streak  int
		want    string
	}{
		{"disabled wins", false, models.RunCompleted, 0, models.HealthDisabled},
		{"error at streak three", true, models.RunFailed, 3, models.HealthError},
		{"error above threshold", true, models.RunFailed, 7, models.HealthError},
		{"warning below threshold", true, models.RunFailed, 2, models.HealthWarning},
		{"healthy after success", true, models.RunCompleted, 0, models.HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.HealthStatus(tt.enabled, tt.last, tt.streak)
			assert.Equal(t, tt.want, got)
		})
	}
}
