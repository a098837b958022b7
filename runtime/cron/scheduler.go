package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	robcron "github.com/robfig/cron/v3"
)

// Scheduler runs registered functions on cron expressions. Expressions may
// carry a CRON_TZ= prefix to pin their time zone.
type Scheduler struct {
	mu      sync.RWMutex
	cron    *robcron.Cron
	jobs    map[string]*managedJob
	started bool
	maxRuns int
	logger  *slog.Logger
	baseCtx context.Context
	timeout time.Duration
}

type managedJob struct {
	Job
	run     RunFunc
	entryID robcron.EntryID
	runs    []JobRun
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxRuns bounds the history kept per job.
func WithMaxRuns(n int) Option {
	return func(s *Scheduler) { s.maxRuns = n }
}

// WithTimeout bounds each scheduled execution.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLocation sets the time zone for expressions without CRON_TZ.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.cron = robcron.New(robcron.WithLocation(loc))
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:    robcron.New(),
		jobs:    make(map[string]*managedJob),
		maxRuns: 100,
		logger:  slog.Default(),
		baseCtx: context.Background(),
		timeout: 9 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers run under name. Returns error if name is duplicate or the
// cron expression is invalid.
func (s *Scheduler) Add(name, cronExpr string, run RunFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if run == nil {
		return fmt.Errorf("job %q has no run function", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already exists", name)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	mj := &managedJob{
		Job: Job{
			Name:     name,
			CronExpr: cronExpr,
			Enabled:  true,
		},
		run:     run,
		entryID: entryID,
	}
	mj.NextRun = s.nextRun(mj)
	s.jobs[name] = mj
	return nil
}

func (s *Scheduler) executeJob(name string) {
	s.mu.RLock()
	base := s.baseCtx
	s.mu.RUnlock()
	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()
	_, _ = s.runAndRecord(ctx, name, "schedule", true)
}

func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mj, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.cron.Remove(mj.entryID)
	delete(s.jobs, name)
	return nil
}

// List returns all registered jobs sorted by name.
func (s *Scheduler) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, mj := range s.jobs {
		j := mj.Job
		j.NextRun = s.nextRun(mj)
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) Get(name string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mj, ok := s.jobs[name]
	if !ok {
		return Job{}, false
	}
	j := mj.Job
	j.NextRun = s.nextRun(mj)
	return j, true
}

// SetEnabled enables or disables a job without removing it. Disabled jobs
// still run when triggered manually.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mj, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	mj.Enabled = enabled
	return nil
}

// Trigger runs a job now, regardless of its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) (string, error) {
	return s.runAndRecord(ctx, name, "manual", false)
}

// History returns up to limit runs of a job, newest first.
func (s *Scheduler) History(name string, limit int) ([]JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mj, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q not found", name)
	}
	if limit <= 0 || limit > len(mj.runs) {
		limit = len(mj.runs)
	}
	out := make([]JobRun, 0, limit)
	for i := len(mj.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, mj.runs[i])
	}
	return out, nil
}

func (s *Scheduler) runAndRecord(ctx context.Context, name, trigger string, skipIfDisabled bool) (string, error) {
	s.mu.RLock()
	mj, ok := s.jobs[name]
	if !ok {
		s.mu.RUnlock()
		return "", fmt.Errorf("job %q not found", name)
	}
	if skipIfDisabled && !mj.Enabled {
		s.mu.RUnlock()
		return "", nil
	}
	run := mj.run
	s.mu.RUnlock()

	started := time.Now()
	output, err := run(ctx)
	finished := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	mj2, ok := s.jobs[name]
	if !ok {
		return output, err
	}
	mj2.LastRun = finished
	mj2.RunCount++
	rec := JobRun{
		At:         finished,
		DurationMS: finished.Sub(started).Milliseconds(),
		Trigger:    trigger,
	}
	if err != nil {
		mj2.LastErr = err.Error()
		rec.Status = "failed"
		rec.Error = err.Error()
		s.logger.ErrorContext(ctx, "cron job failed",
			slog.String("job", name), slog.String("trigger", trigger), slog.Any("error", err))
	} else {
		mj2.LastErr = ""
		rec.Status = "completed"
		rec.Output = truncate(output, 2000)
		s.logger.InfoContext(ctx, "cron job completed",
			slog.String("job", name), slog.String("trigger", trigger), slog.String("output", truncate(output, 100)))
	}
	mj2.runs = append(mj2.runs, rec)
	if s.maxRuns > 0 && len(mj2.runs) > s.maxRuns {
		mj2.runs = mj2.runs[len(mj2.runs)-s.maxRuns:]
	}
	mj2.NextRun = s.nextRun(mj2)
	return output, err
}

func (s *Scheduler) nextRun(mj *managedJob) time.Time {
	return s.cron.Entry(mj.entryID).Next
}

// Start begins the cron scheduler. Non-blocking. Scheduled runs derive
// their context from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx != nil {
		s.baseCtx = ctx
	}
	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	done := s.cron.Stop()
	s.started = false
	s.mu.Unlock()
	<-done.Done()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
