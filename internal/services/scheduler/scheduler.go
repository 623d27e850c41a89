// Package scheduler runs the recurring maintenance tasks on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"CropCast/pkg/logger"
)

// Job is one scheduled task. Spec is a standard 5-field cron expression.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	l       *logger.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

type Option func(*Scheduler)

// WithJobTimeout caps how long one job run may take.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(lgr *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		timeout: 15 * time.Minute,
		l:       lgr,
		jobs:    make(map[string]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds jobs to the cron table. A bad spec fails registration; a
// failing run is logged and waits for the next tick.
func (s *Scheduler) Register(jobs ...Job) error {
	for _, j := range jobs {
		job := j
		if _, err := s.cron.AddFunc(job.Spec, func() { s.execute(job) }); err != nil {
			return fmt.Errorf("register %s (%q): %w", job.Name, job.Spec, err)
		}
		s.mu.Lock()
		s.jobs[job.Name] = job
		s.mu.Unlock()
		s.l.Info("job registered", logger.String("job", job.Name), logger.String("spec", job.Spec))
	}
	return nil
}

// RunNow triggers a registered job outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	s.execute(job)
	return nil
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.l.Info("job started", logger.String("job", job.Name))
	if err := job.Run(ctx); err != nil {
		s.l.Error("job failed",
			logger.String("job", job.Name),
			logger.Duration("took", time.Since(start)),
			logger.Error(err))
		return
	}
	s.l.Info("job complete",
		logger.String("job", job.Name),
		logger.Duration("took", time.Since(start)))
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", logger.Int("jobs", len(s.jobs)))
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.l.Info("scheduler stopped")
}
