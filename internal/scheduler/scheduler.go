package scheduler

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// JobCategory classifies jobs for semaphore-based concurrency limits.
type JobCategory string

const (
	CategoryConsolidation JobCategory = "consolidation"
	CategoryDefault       JobCategory = "default"
)

// ActiveSessionChecker reports whether any session is currently
// connected, gating jobs that should only run while a session is
// active, per spec.md §4.4 ("periodically every 6 hours while any
// session is active").
type ActiveSessionChecker func() bool

// Job defines a schedulable unit of work. Func is invoked with the
// tick time once Cron matches and (if RequiresActiveSession) a session
// is active.
type Job struct {
	Name                 string
	Cron                 *CronExpr
	Category             JobCategory
	RequiresActiveSession bool
	Func                 func(ctx context.Context, now time.Time) error
}

// Config holds scheduler settings.
type Config struct {
	Enabled      bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval time.Duration `json:"tickInterval"`
	MaxConcurrent int          `json:"maxConcurrent"`
	LockPath     string        `json:"lockPath"`
}

// DefaultConfig returns sensible scheduler defaults: a one-minute tick
// fine enough to catch an hourly-or-coarser cron job on time, one
// concurrent consolidation run (spec.md §4.4's "re-entrant per owner
// but not concurrent").
func DefaultConfig(root string) Config {
	return Config{
		Enabled:       true,
		TickInterval:  60 * time.Second,
		MaxConcurrent: 1,
		LockPath:      filepath.Join(root, "scheduler.lock"),
	}
}

// Scheduler manages job registration, tick dispatch, and concurrency
// control, gated by a file lock so only one process's scheduler acts
// at a time.
type Scheduler struct {
	cfg        Config
	activeSession ActiveSessionChecker
	jobs       map[string]*Job
	mu         sync.RWMutex
	semaphores map[JobCategory]*Semaphore
	lock       *FileLock
}

// New creates a Scheduler. activeSession may be nil, in which case
// RequiresActiveSession jobs never run.
func New(cfg Config, activeSession ActiveSessionChecker) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:           cfg,
		activeSession: activeSession,
		jobs:          make(map[string]*Job),
		semaphores: map[JobCategory]*Semaphore{
			CategoryConsolidation: NewSemaphore(cfg.MaxConcurrent),
			CategoryDefault:       NewSemaphore(cfg.MaxConcurrent),
		},
		lock: NewFileLock(cfg.LockPath),
	}
}

// Register adds a job to the scheduler.
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	slog.Info("scheduler job registered", "name", job.Name, "category", job.Category)
}

// Unregister removes a job by name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Jobs returns the current registered jobs (snapshot).
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Run starts the scheduler tick loop. Blocks until context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "tick", s.cfg.TickInterval, "jobs", len(s.jobs))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

// tick is called every TickInterval. Acquires the global file lock,
// then dispatches any matching jobs.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("scheduler lock error", "error", err)
		return
	}
	if !acquired {
		slog.Debug("scheduler tick skipped: lock held by another process")
		return
	}
	defer s.lock.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if !job.Cron.Matches(now) {
			continue
		}
		if job.RequiresActiveSession && !s.sessionActive() {
			slog.Debug("scheduler job skipped: no active session", "job", job.Name)
			continue
		}
		s.dispatch(ctx, job, now)
	}
}

func (s *Scheduler) sessionActive() bool {
	return s.activeSession != nil && s.activeSession()
}

// dispatch invokes a job's Func if a semaphore slot is available.
func (s *Scheduler) dispatch(ctx context.Context, job *Job, now time.Time) {
	sem := s.semaphores[job.Category]
	if sem == nil {
		sem = s.semaphores[CategoryDefault]
	}

	if !sem.TryAcquire() {
		slog.Warn("scheduler job skipped: concurrency limit", "job", job.Name, "category", job.Category)
		return
	}

	slog.Info("scheduler dispatching job", "job", job.Name)
	go func() {
		defer sem.Release()
		if err := job.Func(ctx, now); err != nil {
			slog.Error("scheduler job failed", "job", job.Name, "error", err)
			return
		}
		slog.Info("scheduler job completed", "job", job.Name)
	}()
}
