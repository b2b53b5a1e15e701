package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"justicetracker/config"
	"justicetracker/models"
	"justicetracker/services"
)

func noop(context.Context) (*models.JobResult, error) {
	return &models.JobResult{}, nil
}

func testJobs() []config.JobConfig {
	return []config.JobConfig{
		{ID: "budget_scraper", Name: "Budget scraper", Schedule: "0 9 * * *", Priority: "high", Enabled: true},
		{ID: "weekly_report", Name: "Weekly report", Schedule: "0 8 * * 1", Priority: "low", Enabled: true},
		{ID: "legacy_import", Name: "Legacy import", Schedule: "0 3 * * *", Priority: "low", Enabled: false},
	}
}

func testFuncs() map[string]services.JobFunc {
	return map[string]services.JobFunc{
		"budget_scraper": noop,
		"weekly_report":  noop,
		"legacy_import":  noop,
	}
}

func TestNewRegistry_OrderAndEnabledFilter(t *testing.T) {
	reg, err := services.NewRegistry("Australia/Brisbane", testJobs(), testFuncs())
	require.NoError(t, err)

	all := reg.Jobs()
	require.Len(t, all, 3)
	assert.Equal(t, "budget_scraper", all[0].ID)
	assert.Equal(t, "weekly_report", all[1].ID)
	assert.Equal(t, "legacy_import", all[2].ID)

	enabled := reg.EnabledJobs()
	require.Len(t, enabled, 2)
	assert.Equal(t, "budget_scraper", enabled[0].ID)
	assert.Equal(t, "weekly_report", enabled[1].ID)
}

func TestNewRegistry_ConfigurationErrors(t *testing.T) {
	funcs := testFuncs()

	dup := append(testJobs(), config.JobConfig{
		ID: "budget_scraper", Schedule: "0 9 * * *", Enabled: true,
	})
	_, err := services.NewRegistry("Australia/Brisbane", dup, funcs)
	assert.ErrorContains(t, err, "duplicate job id")

	bad := testJobs()
	bad[0].Schedule = "not a cron line"
	_, err = services.NewRegistry("Australia/Brisbane", bad, funcs)
	assert.ErrorContains(t, err, "invalid schedule")

	_, err = services.NewRegistry("Mars/Olympus", testJobs(), funcs)
	assert.ErrorContains(t, err, "invalid timezone")

	missing := append(testJobs(), config.JobConfig{
		ID: "orphan", Schedule: "0 9 * * *", Enabled: true,
	})
	_, err = services.NewRegistry("Australia/Brisbane", missing, funcs)
	assert.ErrorContains(t, err, "no registered callable")

	badPriority := testJobs()
	badPriority[0].Priority = "urgent"
	_, err = services.NewRegistry("Australia/Brisbane", badPriority, funcs)
	assert.ErrorContains(t, err, "invalid priority")
}

func TestRegistry_Get(t *testing.T) {
	reg, err := services.NewRegistry("Australia/Brisbane", testJobs(), testFuncs())
	require.NoError(t, err)

	job, err := reg.Get("budget_scraper")
	require.NoError(t, err)
	assert.Equal(t, "Budget scraper", job.Name)
	assert.Equal(t, models.PriorityHigh, job.Priority)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, services.ErrJobNotFound)
}

func TestRegistry_SetEnabled(t *testing.T) {
	reg, err := services.NewRegistry("Australia/Brisbane", testJobs(), testFuncs())
	require.NoError(t, err)

	require.NoError(t, reg.SetEnabled("budget_scraper", false))
	job, err := reg.Get("budget_scraper")
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.Len(t, reg.EnabledJobs(), 1)

	err = reg.SetEnabled("nope", true)
	assert.ErrorIs(t, err, services.ErrJobNotFound)
}

// Jobs/Get hand out copies, so a reader holding a snapshot never observes a
// concurrent toggle mid-read. Run with -race.
func TestRegistry_ConcurrentToggleAndRead(t *testing.T) {
	reg, err := services.NewRegistry("Australia/Brisbane", testJobs(), testFuncs())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = reg.SetEnabled("budget_scraper", i%2 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			for _, job := range reg.Jobs() {
				_ = job.Enabled
			}
			if job, gerr := reg.Get("budget_scraper"); gerr == nil {
				_ = job.Enabled
			}
			_ = reg.EnabledJobs()
		}
	}()
	wg.Wait()

	snapshot := reg.Jobs()
	wasEnabled := snapshot[0].Enabled
	require.NoError(t, reg.SetEnabled("budget_scraper", !wasEnabled))
	assert.Equal(t, wasEnabled, snapshot[0].Enabled, "held snapshot must not mutate")
}

func TestRegistry_NextFire(t *testing.T) {
	reg, err := services.NewRegistry("Australia/Brisbane", testJobs(), testFuncs())
	require.NoError(t, err)

	brisbane := reg.Location()

	// 08:30 local: the daily 09:00 job fires later the same day.
	after := time.Date(2025, 6, 10, 8, 30, 0, 0, brisbane)
	next, err := reg.NextFire("budget_scraper", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 10, 9, 0, 0, 0, brisbane), next)

	// 09:30 local: it rolls over to tomorrow, no "+1 day" guesswork.
	after = time.Date(2025, 6, 10, 9, 30, 0, 0, brisbane)
	next, err = reg.NextFire("budget_scraper", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 11, 9, 0, 0, 0, brisbane), next)

	// Weekly job: Tuesday rolls forward to next Monday 08:00.
	next, err = reg.NextFire("weekly_report", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 16, 8, 0, 0, 0, brisbane), next)
}
