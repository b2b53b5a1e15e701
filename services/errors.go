package services

import "errors"

var (
	// ErrAlreadyRunning means a run for the job is still in the started
	// state. Callers treat this as a no-op, never as a failure.
	ErrAlreadyRunning = errors.New("job is already running")

	// ErrRunNotFound means the run id does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished means the run already reached a terminal state; a
	// second terminal update is rejected rather than overwritten.
	ErrRunFinished = errors.New("run already finished")

	// ErrJobNotFound means the job id is not in the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrAlertNotFound means the alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")
)
