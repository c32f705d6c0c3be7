// Package scheduler runs the background tasks that replaced the
// original app's setInterval loops: the 5-minute sync cycle and the
// daily backup. Unlike setInterval, every task has a cancellation
// handle and a guard that skips a tick while the previous run of the
// same task is still in flight, so slow cycles never overlap.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gfmeira/gestor/internal/infra/observability"

	"go.uber.org/zap"
)

// Task is one recurring background job.
type Task struct {
	Name     string
	Interval time.Duration
	// RunAtStart fires the task once shortly after Start, before the
	// first full interval elapses.
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Scheduler owns the task goroutines.
type Scheduler struct {
	tasks   []Task
	metrics *observability.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	running map[string]*sync.Mutex // per-task single-flight guard
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(metrics *observability.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		metrics: metrics,
		logger:  logger,
		running: make(map[string]*sync.Mutex),
	}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(task Task) {
	s.tasks = append(s.tasks, task)
	s.running[task.Name] = &sync.Mutex{}
}

// Start launches one goroutine per task. The provided context bounds
// every task run; Stop (or cancelling the context) shuts everything
// down and waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, task)
	}

	s.logger.Info("scheduler: started", zap.Int("tasks", len(s.tasks)))
}

// Stop cancels all tasks and blocks until in-flight runs return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	if task.RunAtStart {
		select {
		case <-time.After(5 * time.Second):
			s.runOnce(ctx, task)
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

// runOnce executes a task unless its previous run is still going, in
// which case the tick is dropped and counted.
func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	guard := s.running[task.Name]
	if !guard.TryLock() {
		s.metrics.IncrTickSkipped(task.Name)
		s.logger.Warn("scheduler: tick skipped, previous run still in flight",
			zap.String("task", task.Name),
		)
		return
	}
	defer guard.Unlock()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("scheduler: task failed",
			zap.String("task", task.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordRequestDuration("task_"+task.Name, time.Since(start))
	s.logger.Debug("scheduler: task completed",
		zap.String("task", task.Name),
		zap.Duration("duration", time.Since(start)),
	)
}
