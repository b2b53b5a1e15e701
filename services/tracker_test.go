package services_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"justicetracker/models"
	"justicetracker/services"
)

func newMockTracker(t *testing.T) (*services.RunTracker, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return services.NewRunTracker(sqlx.NewDb(mockDB, "postgres"), zap.NewNop()), mock
}

func TestRunTracker_StartRunRejectsWhileStarted(t *testing.T) {
	tracker, mock := newMockTracker(t)

	mock.ExpectQuery("SELECT 1 FROM job_runs").
		WithArgs("budget_scraper").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err := tracker.StartRun("budget_scraper")
	assert.ErrorIs(t, err, services.ErrAlreadyRunning)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A crash mid-run leaves a started row behind with nothing left to finish
// it. The boot sweep turns it into a failed run so the job schedules again.
func TestRunTracker_FailInterruptedUnwedgesJob(t *testing.T) {
	tracker, mock := newMockTracker(t)

	// The orphan from the previous process blocks every start attempt.
	mock.ExpectQuery("SELECT 1 FROM job_runs").
		WithArgs("budget_scraper").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	// Boot sweep marks it failed.
	mock.ExpectExec("UPDATE job_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// With the orphan terminal, the next start goes through.
	mock.ExpectQuery("SELECT 1 FROM job_runs").
		WithArgs("budget_scraper").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO job_runs").
		WithArgs(sqlmock.AnyArg(), "budget_scraper").
		WillReturnRows(sqlmock.NewRows([]string{"started_at"}).AddRow(time.Now()))

	_, err := tracker.StartRun("budget_scraper")
	require.ErrorIs(t, err, services.ErrAlreadyRunning)

	swept, err := tracker.FailInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	run, err := tracker.StartRun("budget_scraper")
	require.NoError(t, err)
	assert.Equal(t, models.RunStarted, run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTracker_FailInterruptedNothingToSweep(t *testing.T) {
	tracker, mock := newMockTracker(t)

	mock.ExpectExec("UPDATE job_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	swept, err := tracker.FailInterrupted()
	require.NoError(t, err)
	assert.Zero(t, swept)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTracker_CompleteRunRejectsSecondTerminal(t *testing.T) {
	tracker, mock := newMockTracker(t)

	mock.ExpectQuery("UPDATE job_runs").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM job_runs").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	_, err := tracker.CompleteRun("run-1", services.RunUpdate{Status: models.RunFailed})
	assert.ErrorIs(t, err, services.ErrRunFinished)
	require.NoError(t, mock.ExpectationsWereMet())
}
