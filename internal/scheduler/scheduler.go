// Package scheduler runs the periodic maintenance jobs of a serving core.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler fires jobs from cron expressions. A run of a job is skipped
// while the previous run of the same job is still going.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   []Job
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors such as
// "@every 10m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser)),
		logger: logger.With("component", "scheduler"),
	}
}

// Add registers job. An invalid schedule is rejected.
func (s *Scheduler) Add(job Job) error {
	if _, err := cronParser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Start registers every job with cron and starts the ticker. Runs receive
// a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		var running sync.Mutex
		_, err := s.cron.AddFunc(job.Schedule, func() {
			if !running.TryLock() {
				s.logger.Debug("previous run still going, skipping", "job", job.Name)
				return
			}
			defer running.Unlock()
			s.run(job)
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		s.logger.Info("scheduled job", "job", job.Name, "schedule", job.Schedule)
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	s.logger.Debug("cron firing job", "job", job.Name)
	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}

// Stop stops the cron ticker, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}
