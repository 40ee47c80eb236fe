// Package scheduler fires automated campaigns whose scheduled time has come.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourove-a/splaro/internal/metrics"
	"github.com/sourove-a/splaro/internal/models"
	"github.com/sourove-a/splaro/internal/runner"
)

// JobStarter starts a job in the background
type JobStarter interface {
	Start(ctx context.Context, campaignID string, mode models.JobMode, opts runner.Options) (*models.Job, error)
}

// Campaigns is the slice of campaign storage the scheduler needs
type Campaigns interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Campaign, error)
	ClaimDispatch(ctx context.Context, id string, scheduledAt time.Time) (bool, error)
	ReleaseDispatch(ctx context.Context, id string, scheduledAt time.Time, previous *time.Time) (bool, error)
}

// Pauser takes a campaign out of scheduling
type Pauser interface {
	Pause(ctx context.Context, id string) error
}

// Scheduler polls for due campaigns on a fixed interval
type Scheduler struct {
	campaigns Campaigns
	pauser    Pauser
	jobs      JobStarter
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

func New(campaigns Campaigns, pauser Pauser, jobs JobStarter, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		campaigns: campaigns,
		pauser:    pauser,
		jobs:      jobs,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used to decide what is due
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start starts the tick loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("scheduler started", "interval", s.interval)
}

// Stop stops the tick loop and waits for a tick in progress
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler...")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if _, err := s.Tick(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Error("scheduler tick failed", "error", err)
	}
}

// Tick dispatches every due campaign once and returns how many jobs started
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.campaigns.ListDue(ctx, s.now())
	if err != nil {
		metrics.IncSchedulerTicks("error")
		return 0, err
	}
	metrics.IncSchedulerTicks("ok")

	started := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if s.fire(ctx, &due[i]) {
			started++
		}
	}

	if len(due) > 0 {
		s.logger.Debug("scheduler tick", "due", len(due), "started", started)
	}
	return started, nil
}

// fire claims the occurrence and starts a job for it. The claim is given back
// whenever the occurrence should be retried on a later tick.
func (s *Scheduler) fire(ctx context.Context, c *models.Campaign) bool {
	scheduledAt := *c.ScheduledAt
	previous := c.LastDispatchedScheduledAt
	log := s.logger.With("campaign_id", c.ID, "scheduled_at", scheduledAt)

	claimed, err := s.campaigns.ClaimDispatch(ctx, c.ID, scheduledAt)
	if err != nil {
		log.Error("failed to claim scheduled occurrence", "error", err)
		metrics.IncScheduledFires("error")
		return false
	}
	if !claimed {
		log.Debug("scheduled occurrence already claimed")
		metrics.IncScheduledFires("skipped")
		return false
	}

	job, err := s.jobs.Start(ctx, c.ID, models.JobModeScheduledFire, runner.Options{
		OnFinish: func(j models.Job) {
			if j.Status == models.JobFailed {
				log.Warn("scheduled job failed, occurrence will be retried", "job_id", j.ID, "error", j.Error)
				s.unclaim(c.ID, scheduledAt, previous, log)
			}
		},
	})

	switch {
	case err == nil:
		log.Info("scheduled campaign fired", "job_id", job.ID)
		metrics.IncScheduledFires("started")
		return true

	case models.IsValidation(err):
		log.Error("scheduled campaign is invalid, pausing it", "error", err)
		s.unclaim(c.ID, scheduledAt, previous, log)
		if perr := s.pauser.Pause(context.WithoutCancel(ctx), c.ID); perr != nil {
			log.Error("failed to pause campaign", "error", perr)
		}
		metrics.IncScheduledFires("paused")

	case errors.Is(err, models.ErrJobAlreadyRunning):
		log.Info("campaign already has a running job, will retry", "error", err)
		s.unclaim(c.ID, scheduledAt, previous, log)
		metrics.IncScheduledFires("busy")

	default:
		log.Error("failed to start scheduled job, will retry", "error", err)
		s.unclaim(c.ID, scheduledAt, previous, log)
		metrics.IncScheduledFires("error")
	}

	return false
}

func (s *Scheduler) unclaim(id string, scheduledAt time.Time, previous *time.Time, log *slog.Logger) {
	if _, err := s.campaigns.ReleaseDispatch(context.Background(), id, scheduledAt, previous); err != nil {
		log.Error("failed to release scheduled occurrence", "error", err)
	}
}
