package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const sweepJobName = "expiry-sweep"

// Runner is one sweep.
type Runner interface {
	Sweep(ctx context.Context) (Report, error)
}

// Scheduler runs the sweep on a fixed interval and once immediately on start.
// There is at most one sweep job per process and runs never overlap.
type Scheduler struct {
	mu       sync.Mutex
	sched    gocron.Scheduler
	job      gocron.Job
	started  bool
	runner   Runner
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(runner Runner, clock clockwork.Clock, interval time.Duration, log *slog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		sched:    sched,
		runner:   runner,
		interval: interval,
		log:      log.With("service", "expiry-scheduler"),
	}, nil
}

// Start registers the sweep job, replacing any job registered earlier,
// and starts the scheduler. ctx bounds every sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		if err := s.sched.RemoveJob(s.job.ID()); err != nil {
			s.log.Warn("remove previous sweep job failed", "err", err)
		}
		s.job = nil
	}

	job, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.runner.Sweep(ctx); err != nil {
				s.log.Error("sweep failed", "err", err)
			}
		}),
		gocron.WithName(sweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	s.job = job

	if !s.started {
		s.sched.Start()
		s.started = true
	}
	s.log.Info("expiry sweeper started", "interval", s.interval.String())
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep to finish.
// A stopped scheduler cannot be started again.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = nil
	return s.sched.Shutdown()
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.sched.Jobs())
}
