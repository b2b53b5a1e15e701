package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"justicetracker/models"
)

// Scheduler drives recurrence evaluation and dispatch. A minute tick
// evaluates each enabled job's next fire time; due jobs execute in their own
// goroutine under the per-job guard, so distinct jobs run concurrently while
// the same job never overlaps itself. A stuck job therefore cannot starve
// the tick loop.
type Scheduler struct {
	registry *Registry
	tracker  *RunTracker
	health   *HealthAggregator
	alerts   *AlertEngine
	guard    *RunGuard
	log      *zap.Logger

	tickInterval time.Duration
	jobTimeout   time.Duration

	mu       sync.Mutex
	nextFire map[string]time.Time
	lastTick time.Time
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(
	registry *Registry,
	tracker *RunTracker,
	health *HealthAggregator,
	alerts *AlertEngine,
	tickInterval, jobTimeout time.Duration,
	log *zap.Logger,
) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &Scheduler{
		registry:     registry,
		tracker:      tracker,
		health:       health,
		alerts:       alerts,
		guard:        NewRunGuard(),
		log:          log,
		tickInterval: tickInterval,
		jobTimeout:   jobTimeout,
		nextFire:     make(map[string]time.Time),
	}
}

// Start computes the initial fire times and launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	now := time.Now().In(s.registry.Location())
	s.mu.Lock()
	for _, job := range s.registry.EnabledJobs() {
		s.nextFire[job.ID] = job.CronSchedule.Next(now)
	}
	s.running = true
	s.mu.Unlock()

	for _, job := range s.registry.EnabledJobs() {
		s.log.Info("job scheduled",
			zap.String("job_id", job.ID),
			zap.String("schedule", job.Schedule),
			zap.Time("next_run", s.nextFire[job.ID]))
	}

	s.wg.Add(1)
	go s.tickLoop()
}

// Stop halts the tick loop and waits for in-flight runs to settle. Run
// contexts are canceled, so well-behaved callables return promptly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick fires every enabled job whose next fire time has passed and advances
// its schedule.
func (s *Scheduler) tick(now time.Time) {
	now = now.In(s.registry.Location())

	due := []*models.Job{}
	s.mu.Lock()
	s.lastTick = now
	for _, job := range s.registry.EnabledJobs() {
		next, ok := s.nextFire[job.ID]
		if !ok {
			// Enabled since startup; schedule it from here on.
			s.nextFire[job.ID] = job.CronSchedule.Next(now)
			continue
		}
		if !next.After(now) {
			due = append(due, job)
			s.nextFire[job.ID] = job.CronSchedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if _, err := s.dispatch(job); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				// Previous run still going; skipping the tick is expected.
				s.log.Info("tick skipped, job still running", zap.String("job_id", job.ID))
				continue
			}
			s.log.Error("dispatch failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// RunNow triggers a job immediately, bypassing the schedule but not the
// concurrency guard. Fails fast with ErrAlreadyRunning.
func (s *Scheduler) RunNow(jobID string) (*models.Run, error) {
	job, err := s.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(job)
}

// dispatch acquires the guard, opens the run, and hands execution to a
// goroutine. The guard is held for the full duration of the run and released
// exactly once inside execute.
func (s *Scheduler) dispatch(job *models.Job) (*models.Run, error) {
	if !s.guard.TryAcquire(job.ID) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, job.ID)
	}

	run, err := s.tracker.StartRun(job.ID)
	if err != nil {
		s.guard.Release(job.ID)
		return nil, err
	}

	s.wg.Add(1)
	go s.execute(job, run)
	return run, nil
}

// execute invokes the callable and settles the run. Panics and errors from
// the callable become a failed run; the scheduler itself never crashes from
// a job failure.
func (s *Scheduler) execute(job *models.Job, run *models.Run) {
	defer s.wg.Done()
	defer s.guard.Release(job.ID)

	baseCtx := s.ctx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, s.jobTimeout)
	defer cancel()

	result, err := s.invoke(ctx, job)

	upd := RunUpdate{Status: models.RunCompleted}
	if err != nil {
		msg := err.Error()
		upd.Status = models.RunFailed
		upd.ErrorMessage = &msg
	}
	if result != nil {
		upd.RecordsFound = result.RecordsFound
		upd.RecordsProcessed = result.RecordsProcessed
		upd.RecordsInserted = result.RecordsInserted
		upd.RecordsUpdated = result.RecordsUpdated
		upd.Warnings = result.Warnings
	}

	completed, cerr := s.tracker.CompleteRun(run.ID, upd)
	if cerr != nil {
		s.log.Error("terminal update failed",
			zap.String("job_id", job.ID), zap.String("run_id", run.ID), zap.Error(cerr))
		return
	}

	// Health and alert writes are best effort; the run's terminal state
	// above is authoritative.
	rec, prevStreak, herr := s.health.Recompute(job, completed)
	if herr != nil {
		s.log.Error("health recompute failed",
			zap.String("job_id", job.ID), zap.Error(herr))
		return
	}
	s.alerts.HandleRunResult(job, completed, rec, prevStreak)
}

// invoke calls the job callable, converting a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, job *models.Job) (result *models.JobResult, err error) {
	fn, ferr := s.registry.Func(job.ID)
	if ferr != nil {
		return nil, ferr
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return fn(ctx)
}

// JobStatus is one row of the scheduler status snapshot.
type JobStatus struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Priority string     `json:"priority"`
	Enabled  bool       `json:"enabled"`
	Running  bool       `json:"running"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// Status summarizes the scheduler for the read API.
type Status struct {
	Running  bool        `json:"running"`
	LastTick *time.Time  `json:"last_tick,omitempty"`
	Jobs     []JobStatus `json:"jobs"`
}

// Status reports each job's next fire time and whether it is running.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, Jobs: []JobStatus{}}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}

	for _, job := range s.registry.Jobs() {
		js := JobStatus{
			ID:       job.ID,
			Name:     job.Name,
			Priority: job.Priority,
			Enabled:  job.Enabled,
			Running:  s.guard.Held(job.ID),
		}
		if next, ok := s.nextFire[job.ID]; ok {
			n := next
			js.NextRun = &n
		}
		st.Jobs = append(st.Jobs, js)
	}
	return st
}
