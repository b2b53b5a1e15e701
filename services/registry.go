package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"justicetracker/config"
	"justicetracker/models"
)

// JobFunc is the callable behind a job. It must honor ctx and be safe to
// re-invoke after a failure.
type JobFunc func(ctx context.Context) (*models.JobResult, error)

// Registry holds the static job set, built once at startup. Definitions are
// read-only after construction; only the Enabled flag can be toggled by
// operator action, which the scheduler picks up on its next tick.
type Registry struct {
	mu    sync.RWMutex
	jobs  []*models.Job
	byID  map[string]*models.Job
	funcs map[string]JobFunc
	loc   *time.Location
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewRegistry validates and parses the configured jobs against the provided
// callables. Any configuration problem (duplicate id, unknown callable, bad
// cron expression, bad timezone) is fatal to startup.
func NewRegistry(tz string, jobCfgs []config.JobConfig, funcs map[string]JobFunc) (*Registry, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	r := &Registry{
		byID:  make(map[string]*models.Job, len(jobCfgs)),
		funcs: make(map[string]JobFunc, len(jobCfgs)),
		loc:   loc,
	}

	for _, jc := range jobCfgs {
		if jc.ID == "" {
			return nil, fmt.Errorf("job with empty id")
		}
		if _, dup := r.byID[jc.ID]; dup {
			return nil, fmt.Errorf("duplicate job id %q", jc.ID)
		}
		fn, ok := funcs[jc.ID]
		if !ok {
			return nil, fmt.Errorf("job %q has no registered callable", jc.ID)
		}
		sched, err := cronParser.Parse(jc.Schedule)
		if err != nil {
			return nil, fmt.Errorf("job %q: invalid schedule %q: %w", jc.ID, jc.Schedule, err)
		}
		priority := jc.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
		switch priority {
		case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		default:
			return nil, fmt.Errorf("job %q: invalid priority %q", jc.ID, priority)
		}

		job := &models.Job{
			ID:           jc.ID,
			Name:         jc.Name,
			Schedule:     jc.Schedule,
			Timezone:     tz,
			Priority:     priority,
			Enabled:      jc.Enabled,
			CronSchedule: sched,
		}
		r.jobs = append(r.jobs, job)
		r.byID[job.ID] = job
		r.funcs[job.ID] = fn
	}

	return r, nil
}

// Jobs returns a snapshot of every job in declaration order. Callers get
// copies: the registry's own structs are only touched under the lock, so a
// concurrent SetEnabled cannot race a reader holding the slice.
func (r *Registry) Jobs() []*models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		c := *j
		out = append(out, &c)
	}
	return out
}

// EnabledJobs returns a snapshot of the enabled jobs in declaration order.
func (r *Registry) EnabledJobs() []*models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if j.Enabled {
			c := *j
			out = append(out, &c)
		}
	}
	return out
}

// SetEnabled toggles a job. Takes effect on the scheduler's next tick; an
// in-flight run is not interrupted.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.Enabled = enabled
	return nil
}

// Get looks a job up by id. Returns a copy, like Jobs.
func (r *Registry) Get(id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	c := *j
	return &c, nil
}

// Func returns the callable for a job id.
func (r *Registry) Func(id string) (JobFunc, error) {
	fn, ok := r.funcs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fn, nil
}

// Location is the timezone all schedules are evaluated in.
func (r *Registry) Location() *time.Location {
	return r.loc
}

// NextFire computes the next fire time for a job after the given instant.
func (r *Registry) NextFire(id string, after time.Time) (time.Time, error) {
	j, err := r.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	return j.CronSchedule.Next(after.In(r.loc)), nil
}
