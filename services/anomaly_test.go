package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"justicetracker/models"
	"justicetracker/services"
)

func TestBudgetShareSeverity(t *testing.T) {
	tests := []struct {
		name      string
		actualPct float64
		severity  string
		anomalous bool
	}{
		{"even split", 50, "", false},
		{"below elevated band", 80, "", false},
		{"at elevated boundary", 85, "", false},
		{"elevated", 87.5, models.SeverityHigh, true},
		{"at extreme boundary", 90, models.SeverityHigh, true},
		{"extreme", 92, models.SeverityCritical, true},
		{"current published split", 90.6, models.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, anomalous := services.BudgetShareSeverity(tt.actualPct)
			assert.Equal(t, tt.anomalous, anomalous)
			assert.Equal(t, tt.severity, severity)
		})
	}
}

func TestOverrepresentationSeverity(t *testing.T) {
	tests := []struct {
		name      string
		factor    float64
		severity  string
		anomalous bool
	}{
		{"proportional", 1, "", false},
		{"mild", 5, "", false},
		{"elevated", 12, models.SeverityHigh, true},
		{"at extreme boundary", 20, models.SeverityHigh, true},
		{"extreme", 22, models.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, anomalous := services.OverrepresentationSeverity(tt.factor)
			assert.Equal(t, tt.anomalous, anomalous)
			assert.Equal(t, tt.severity, severity)
		})
	}
}
