package services_test

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"justicetracker/services"
)

func mustParse(t *testing.T, expr string) cron.Schedule {
	t.Helper()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	require.NoError(t, err)
	return sched
}

func TestScheduleInterval(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	hourly := services.ScheduleInterval(mustParse(t, "0 * * * *"), now)
	assert.Equal(t, time.Hour, hourly)

	daily := services.ScheduleInterval(mustParse(t, "0 9 * * *"), now)
	assert.Equal(t, 24*time.Hour, daily)

	weekly := services.ScheduleInterval(mustParse(t, "0 8 * * 1"), now)
	assert.Equal(t, 7*24*time.Hour, weekly)
}

func TestMissedDeadline(t *testing.T) {
	assert.Equal(t, 48*time.Hour+30*time.Minute, services.MissedDeadline(24*time.Hour))
	assert.Equal(t, 2*time.Hour+30*time.Minute, services.MissedDeadline(time.Hour))
}
