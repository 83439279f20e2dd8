// Package scheduler drives recurring poll-and-alert cycles.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner executes one poll-and-alert cycle.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler runs a Runner at a fixed interval. Start and Stop are
// idempotent; at most one scheduled loop is active per Scheduler.
type Scheduler struct {
	runner       Runner
	interval     time.Duration
	startupDelay time.Duration
	log          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Scheduler firing every interval. The first run is delayed a
// few seconds so the host process can finish initializing.
func New(runner Runner, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		startupDelay: 5 * time.Second,
		log:          log,
	}
}

// SetStartupDelay overrides the delay before the first scheduled run.
func (s *Scheduler) SetStartupDelay(d time.Duration) {
	s.startupDelay = d
}

// Start begins the scheduled loop. Calling Start while already running
// replaces the existing loop rather than duplicating it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.log.Info("scheduler started", "interval", s.interval)
	go s.loop(ctx)
}

// Stop halts the scheduled loop. It does not wait for an in-flight cycle to
// finish and is safe to call when already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.log.Info("scheduler stopped")
}

// IsRunning reports whether the scheduled loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// TriggerNow synchronously runs one cycle, independent of the scheduled
// loop.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	timer := time.NewTimer(s.startupDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.runner.Run(ctx); err != nil {
		s.log.Error("poll cycle", "error", err)
	}
}
