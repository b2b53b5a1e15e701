package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"justicetracker/models"
	"justicetracker/services"
)

func TestShouldFireFailureAlert(t *testing.T) {
	tests := []struct {
		name       string
		prevStreak int
		newStreak  int
		want       bool
	}{
		{"first failure", 0, 1, false},
		{"second failure", 1, 2, false},
		{"crossing the threshold", 2, 3, true},
		{"already past the threshold", 3, 4, false},
		{"escalating to critical", 4, 5, true},
		{"already past critical", 5, 6, false},
		{"deep into a streak", 6, 7, false},
		{"restart after success crosses again", 2, 3, true},
		{"streak reset does not fire", 3, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.ShouldFireFailureAlert(tt.prevStreak, tt.newStreak)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailureSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityHigh, services.FailureSeverity(3))
	assert.Equal(t, models.SeverityHigh, services.FailureSeverity(4))
	assert.Equal(t, models.SeverityCritical, services.FailureSeverity(5))
	assert.Equal(t, models.SeverityCritical, services.FailureSeverity(9))
}
