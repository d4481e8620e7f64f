// Package jobs runs the periodic maintenance tasks.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of periodic work.
type Job interface {
	Run(ctx context.Context) error
}

type entry struct {
	name     string
	job      Job
	interval time.Duration
}

// Scheduler runs registered jobs on their own tickers. It implements
// cartridge.BackgroundWorker.
type Scheduler struct {
	logger  *slog.Logger
	entries []entry

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	wg        sync.WaitGroup

	// Serializes job executions so they never contend for SQLite writes.
	processingMutex sync.Mutex
	isProcessing    bool
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds a job. Jobs registered after Start are not run.
func (s *Scheduler) Register(name string, job Job, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	s.entries = append(s.entries, entry{name: name, job: job, interval: interval})
}

// executeJobSafely runs a job only if no other job is currently executing.
func (s *Scheduler) executeJobSafely(ctx context.Context, e entry) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", e.name))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", e.name),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", e.name), slog.Any("error", err))
	}
}

// Start begins all background jobs. Each job runs once immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.isRunning = true

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(s.ctx, e)
	}

	s.logger.Info("Background jobs started", slog.Int("jobs", len(s.entries)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()

	s.logger.Info("Starting job", slog.String("job", e.name), slog.Duration("interval", e.interval))
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.executeJobSafely(ctx, e)
	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(ctx, e)
		case <-ctx.Done():
			s.logger.Info("Job stopped", slog.String("job", e.name))
			return
		}
	}
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow executes the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	for _, e := range s.entries {
		if e.name == name {
			s.executeJobSafely(ctx, e)
			return true
		}
	}
	return false
}
