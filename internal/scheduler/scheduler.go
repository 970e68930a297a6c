// Package scheduler runs named jobs on cron schedules, never letting two
// runs of the same job overlap.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc is the callback invoked when a scheduled job should run. It
// receives the job name and a context cancelled by Stop.
type RunFunc func(ctx context.Context, name string) error

// JobStatus represents the state of a scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"` // ticks dropped because a run was in progress
}

type job struct {
	entry    cron.EntryID
	schedule string
	running  bool
	lastRun  time.Time
	lastErr  error
	runs     int
	skipped  int
}

// Scheduler manages cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running job goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// New creates a new Scheduler with the given run callback.
func New(run RunFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(newParser())),
		run:    run,
		logger: slog.Default(),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob schedules name using the given cron expression, replacing any
// existing schedule for it. Returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(cronExpr, func() { s.tick(name) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	if existing, ok := s.jobs[name]; ok {
		s.cron.Remove(existing.entry)
		existing.entry = entryID
		existing.schedule = cronExpr
	} else {
		s.jobs[name] = &job{entry: entryID, schedule: cronExpr}
	}

	s.logger.Info("scheduled job",
		"job", name,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)
	return nil
}

// RemoveJob removes the schedule for name. A run in progress finishes.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[name]; ok {
		s.cron.Remove(j.entry)
		delete(s.jobs, name)
		s.logger.Info("removed schedule", "job", name)
	}
}

// tick is the cron callback. A tick that finds the job already running is
// dropped and counted.
func (s *Scheduler) tick(name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	if j.running {
		j.skipped++
		s.mu.Unlock()
		s.logger.Warn("skipping scheduled run; previous run still in progress", "job", name)
		return
	}
	j.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	s.runJob(name, j)
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels running jobs and returns a context that
// is done once they have all returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// runJob executes one run of a job. The caller must have already called
// wg.Add(1) and marked the job running.
func (s *Scheduler) runJob(name string, j *job) {
	defer s.wg.Done()

	s.logger.Info("starting scheduled run", "job", name)
	start := time.Now()

	err := s.run(s.ctx, name)

	s.mu.Lock()
	j.running = false
	j.runs++
	j.lastErr = err
	if err == nil {
		j.lastRun = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Info("scheduled run completed", "job", name, "duration", time.Since(start))
}

// IsScheduled returns true if name has been added to the scheduler.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// Trigger runs name now, outside its schedule. Returns an error if a run is
// already in progress, the job is not scheduled, or the scheduler has been
// stopped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s is not scheduled", name)
	}
	if j.running {
		return fmt.Errorf("job %s is already running", name)
	}

	j.running = true
	s.wg.Add(1)
	go s.runJob(name, j)
	return nil
}

// Status returns the state of every scheduled job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		st := JobStatus{
			Name:     name,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  s.cron.Entry(j.entry).Next,
			Schedule: j.schedule,
			Runs:     j.runs,
			Skipped:  j.skipped,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Name < statuses[b].Name })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := newParser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
