// Package scheduler runs named maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// Scheduler owns a cron runner and the jobs registered on it by name.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	funcs  map[string]JobFunc
	ctx    context.Context
	logger *slog.Logger
}

// New creates a scheduler. Overlapping runs of the same job are skipped.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:   make(map[string]cron.EntryID),
		funcs:  make(map[string]JobFunc),
		ctx:    context.Background(),
		logger: logger.With("component", "scheduler"),
	}
}

// Start runs the cron loop until ctx is cancelled. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// Add registers fn under name, replacing any job with the same name.
// schedule is a 5-field cron expression or a descriptor like "@every 1h".
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = id
	s.funcs[name] = fn
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
}

// RunNow runs a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	fn, ok := s.funcs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: no job named %q", name)
	}
	return fn(ctx)
}

// Remove unregisters a job. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
		delete(s.funcs, name)
	}
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Next returns when the job fires next. It is zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
