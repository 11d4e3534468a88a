// Package scheduler runs periodic ledger jobs such as the outbox relay and
// the expiry sweep.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodic handler.
type Job struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the job once immediately instead of waiting a full interval.
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Scheduler owns a fixed set of jobs. Jobs are registered before Start;
// each runs on its own goroutine and never overlaps with itself.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{jobs: jobs, logger: logger}
}

// Start launches every job. It fails if the scheduler is already running or
// a job has no handler or a non-positive interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}
	for _, j := range s.jobs {
		if j.Run == nil || j.Interval <= 0 {
			return errors.New("scheduler: job " + j.Name + " needs a handler and a positive interval")
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	if j.RunAtStart {
		s.run(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	start := time.Now()
	if err := j.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduled job failed", "job", j.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled job finished", "job", j.Name, "duration", time.Since(start))
}
