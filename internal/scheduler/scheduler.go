// ABOUTME: Periodic task runner for maintenance work: heartbeat checks, decay, cleanup
// ABOUTME: Tasks run independently; one failing or panicking never stops the others

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// TaskFunc is one unit of scheduled work. Errors are logged, not propagated;
// the schedule keeps going.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	cron     string
	fn       TaskFunc
}

// Scheduler runs registered tasks, each on its own goroutine. Interval tasks
// fire on a ticker; cron tasks sleep until the expression's next tick. Tasks
// must be registered before Start.
type Scheduler struct {
	tasks  []task
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an empty scheduler. Pass nil logger for the default.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger.With("component", "scheduler")}
}

// Every registers an interval task.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("task %s: scheduler already started", name)
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
	return nil
}

// Cron registers a task driven by a cron expression.
func (s *Scheduler) Cron(name, expr string, fn TaskFunc) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("task %s: invalid cron expression %q", name, expr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("task %s: scheduler already started", name)
	}
	s.tasks = append(s.tasks, task{name: name, cron: expr, fn: fn})
	return nil
}

// Start launches every registered task. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		if t.cron != "" {
			go s.runCron(ctx, t)
		} else {
			go s.runInterval(ctx, t)
		}
	}
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels all task loops and waits for in-flight runs to finish.
// Idempotent; safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runInterval(ctx context.Context, t task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, t)
		}
	}
}

// runCron sleeps until the expression's next future tick, runs the task, and
// repeats. allowCurrent is false so a run never double-fires on its own tick.
func (s *Scheduler) runCron(ctx context.Context, t task) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(t.cron, now, false)
		if err != nil {
			s.logger.Error("cron tick computation failed", "task", t.name, "error", err)
			next = now.Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.invoke(ctx, t)
		}
	}
}

// invoke runs one task iteration, containing both errors and panics so a
// misbehaving task cannot take the scheduler down.
func (s *Scheduler) invoke(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", t.name, "panic", r)
		}
	}()

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		s.logger.Error("task failed", "task", t.name, "error", err)
		return
	}
	s.logger.Debug("task completed", "task", t.name, "duration", time.Since(start))
}
