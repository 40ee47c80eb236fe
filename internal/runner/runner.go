// Package runner executes campaign jobs: it resolves the audience, fans the
// message out through the notifier and records one delivery log entry per
// recipient.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sourove-a/splaro/internal/campaign"
	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/lease"
	"github.com/sourove-a/splaro/internal/metrics"
	"github.com/sourove-a/splaro/internal/models"
	"github.com/sourove-a/splaro/internal/notifier"
	"github.com/sourove-a/splaro/internal/repository"
	"github.com/sourove-a/splaro/internal/segment"
)

const (
	errCancelled   = "dispatch cancelled"
	errInterrupted = "interrupted"

	// temporaryPrefix marks entries the channel reported as worth resending
	temporaryPrefix = "temporary: "

	recordAttempts = 3
	recordBackoff  = 50 * time.Millisecond
)

// Options tune a single job
type Options struct {
	// TestRecipientID picks a directory customer for a TEST job; empty
	// means the configured synthetic recipient.
	TestRecipientID string

	// OnFinish is called once the job has reached a terminal status
	OnFinish func(job models.Job)
}

// Deps are the collaborators a Runner drives
type Deps struct {
	Campaigns *campaign.Store
	Resolver  *segment.Resolver
	Jobs      *repository.JobRepository
	Logs      *repository.DeliveryLogRepository
	Notifier  notifier.Notifier
	Locker    lease.Locker
}

// Runner runs jobs in the background with bounded parallelism
type Runner struct {
	campaigns *campaign.Store
	resolver  *segment.Resolver
	jobs      *repository.JobRepository
	logs      *repository.DeliveryLogRepository
	notifier  notifier.Notifier
	locker    lease.Locker

	concurrency   int
	sendTimeout   time.Duration
	testRecipient models.Recipient
	publicURL     string
	logger        *slog.Logger

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// job is a created job together with what it needs to execute
type job struct {
	job       *models.Job
	campaign  *models.Campaign
	recipient *models.Recipient // TEST jobs only
	lease     lease.Lease
	opts      Options

	// lost counts attempts whose log entry or progress step was never stored
	lost atomic.Int64
}

func New(d Deps, cfg config.RunnerConfig, publicURL string, logger *slog.Logger) *Runner {
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		campaigns:   d.Campaigns,
		resolver:    d.Resolver,
		jobs:        d.Jobs,
		logs:        d.Logs,
		notifier:    d.Notifier,
		locker:      d.Locker,
		concurrency: concurrency,
		sendTimeout: sendTimeout,
		testRecipient: models.Recipient{
			ID:    cfg.TestRecipient.ID,
			Name:  cfg.TestRecipient.Name,
			Email: cfg.TestRecipient.Email,
			Phone: cfg.TestRecipient.Phone,
		},
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger.With("component", "runner"),
		slots:     make(chan struct{}, maxJobs),
		ctx:       ctx,
		cancel:    cancel,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for job and entry timestamps
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Start validates the request, creates a PENDING job and executes it in the
// background. The returned job is the PENDING snapshot.
func (r *Runner) Start(ctx context.Context, campaignID string, mode models.JobMode, opts Options) (*models.Job, error) {
	j, err := r.prepare(ctx, campaignID, mode, opts)
	if err != nil {
		return nil, err
	}

	snapshot := *j.job

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(r.ctx, j)
	}()

	return &snapshot, nil
}

// Run is Start without the background goroutine; it returns the finished job
func (r *Runner) Run(ctx context.Context, campaignID string, mode models.JobMode, opts Options) (*models.Job, error) {
	j, err := r.prepare(ctx, campaignID, mode, opts)
	if err != nil {
		return nil, err
	}

	r.execute(ctx, j)

	return r.jobs.GetByID(context.WithoutCancel(ctx), j.job.ID)
}

// Recover fails jobs a previous process left PENDING or RUNNING. Call it
// before anything starts new jobs.
func (r *Runner) Recover(ctx context.Context) error {
	n, err := r.jobs.FailUnfinished(ctx, errInterrupted, r.now())
	if err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	if n > 0 {
		r.logger.Warn("marked interrupted jobs as failed", "count", n)
	}
	return nil
}

// Stop cancels running jobs and waits for them to record their outcome
func (r *Runner) Stop() {
	r.logger.Info("stopping runner...")
	r.cancel()
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

// Wait blocks until every background job has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) prepare(ctx context.Context, campaignID string, mode models.JobMode, opts Options) (*job, error) {
	if !mode.Valid() {
		return nil, &models.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown job mode %q", mode)}
	}

	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignDeleted {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, models.ErrNotFound)
	}
	if err := c.Segment.Validate(); err != nil {
		return nil, err
	}

	j := &job{campaign: c, opts: opts}

	if mode == models.JobModeTest {
		j.recipient, err = r.testTarget(ctx, opts.TestRecipientID)
		if err != nil {
			return nil, err
		}
	} else {
		if c.Status == models.CampaignPaused {
			metrics.IncJobsRejected("paused")
			return nil, fmt.Errorf("campaign %s is paused: %w", campaignID, models.ErrInvalidTransition)
		}

		j.lease, err = r.locker.Acquire(ctx, "campaign:"+campaignID)
		if errors.Is(err, lease.ErrHeld) {
			metrics.IncJobsRejected("already_running")
			return nil, fmt.Errorf("campaign %s: %w", campaignID, models.ErrJobAlreadyRunning)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to acquire campaign lease: %w", err)
		}
	}

	j.job = &models.Job{CampaignID: campaignID, Mode: mode}
	if err := r.jobs.Create(ctx, j.job); err != nil {
		r.release(ctx, j)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	r.logger.Info("job created", "job_id", j.job.ID, "campaign_id", campaignID, "mode", mode)
	return j, nil
}

func (r *Runner) testTarget(ctx context.Context, id string) (*models.Recipient, error) {
	if id == "" {
		rcpt := r.testRecipient
		return &rcpt, nil
	}
	return r.resolver.Lookup(ctx, id)
}

func (r *Runner) execute(ctx context.Context, j *job) {
	defer r.release(ctx, j)

	log := r.logger.With("job_id", j.job.ID, "campaign_id", j.campaign.ID, "mode", j.job.Mode)

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		r.finish(ctx, j, models.JobFailed, errCancelled, time.Now(), log)
		return
	}

	started := time.Now()
	metrics.IncJobsStarted(string(j.job.Mode))

	var recipients []models.Recipient
	if j.recipient != nil {
		recipients = []models.Recipient{*j.recipient}
	} else {
		var err error
		recipients, err = r.resolver.Resolve(ctx, j.campaign.Segment)
		if err != nil {
			log.Error("audience resolution failed", "error", err)
			r.finish(ctx, j, models.JobFailed, err.Error(), started, log)
			return
		}

		// A Draft goes live only once its audience is known
		if j.campaign.Status == models.CampaignDraft {
			if err := r.campaigns.Activate(ctx, j.campaign.ID); err != nil {
				log.Error("failed to activate campaign", "error", err)
				r.finish(ctx, j, models.JobFailed, err.Error(), started, log)
				return
			}
		}
	}

	if err := r.jobs.MarkRunning(ctx, j.job.ID, len(recipients), r.now()); err != nil {
		log.Error("failed to mark job running", "error", err)
		r.finish(ctx, j, models.JobFailed, err.Error(), started, log)
		return
	}
	log.Info("job running", "recipients", len(recipients))

	r.dispatch(ctx, j, recipients)

	if ctx.Err() != nil {
		r.finish(ctx, j, models.JobFailed, errCancelled, started, log)
		return
	}
	if lost := j.lost.Load(); lost > 0 {
		r.finish(ctx, j, models.JobFailed, fmt.Sprintf("%d of %d deliveries could not be recorded", lost, len(recipients)), started, log)
		return
	}
	r.finish(ctx, j, models.JobSucceeded, "", started, log)
}

// dispatch sends to every recipient through a pool of r.concurrency workers.
// Once ctx is done no further sends start and the rest are logged as failed.
func (r *Runner) dispatch(ctx context.Context, j *job, recipients []models.Recipient) {
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, rcpt := range recipients {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			r.skip(ctx, j, recipients[i:])
			return
		}
		if ctx.Err() != nil {
			<-sem
			wg.Wait()
			r.skip(ctx, j, recipients[i:])
			return
		}

		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			r.deliver(ctx, j, rcpt)
		}()
	}

	wg.Wait()
}

func (r *Runner) deliver(ctx context.Context, j *job, rcpt models.Recipient) {
	entry := r.newEntry(j, rcpt)

	d := &notifier.Delivery{
		EntryID:    entry.ID,
		CampaignID: j.campaign.ID,
		JobID:      j.job.ID,
		Mode:       j.job.Mode,
		Recipient:  rcpt,
		Message:    j.campaign.Message,
		ClickURL:   r.clickURL(entry.ID, j.campaign.Message),
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	start := time.Now()
	err := r.notifier.Send(sendCtx, d)
	elapsed := time.Since(start)
	timedOut := errors.Is(sendCtx.Err(), context.DeadlineExceeded)
	cancel()

	entry.SentAt = r.now()
	if err != nil {
		entry.Status = models.DeliveryFailed
		switch {
		case ctx.Err() != nil:
			entry.ErrorMessage = errCancelled
		case timedOut:
			entry.ErrorMessage = fmt.Sprintf("send timed out after %s", r.sendTimeout)
		case notifier.IsTemporary(err):
			entry.ErrorMessage = temporaryPrefix + err.Error()
		default:
			entry.ErrorMessage = err.Error()
		}
		if notifier.IsTemporary(err) {
			metrics.IncDeliveryErrors("temporary")
		} else {
			metrics.IncDeliveryErrors("permanent")
		}
		r.logger.Debug("delivery failed", "job_id", j.job.ID, "recipient_id", rcpt.ID, "error", entry.ErrorMessage)
	}

	r.record(ctx, j, entry, elapsed)
}

// skip records recipients that were never attempted
func (r *Runner) skip(ctx context.Context, j *job, rest []models.Recipient) {
	for _, rcpt := range rest {
		entry := r.newEntry(j, rcpt)
		entry.Status = models.DeliveryFailed
		entry.ErrorMessage = errCancelled
		entry.SentAt = r.now()
		r.record(ctx, j, entry, 0)
	}
	r.logger.Warn("job cancelled", "job_id", j.job.ID, "unattempted", len(rest))
}

func (r *Runner) newEntry(j *job, rcpt models.Recipient) *models.DeliveryLogEntry {
	return &models.DeliveryLogEntry{
		ID:             uuid.New().String(),
		JobID:          j.job.ID,
		CampaignID:     j.campaign.ID,
		RecipientID:    rcpt.ID,
		RecipientName:  rcpt.Name,
		RecipientEmail: rcpt.Email,
		RecipientPhone: rcpt.Phone,
		Status:         models.DeliverySent,
	}
}

// record appends the entry and then advances progress. Both writes outlive
// cancellation so every attempt stays accounted for; a write that still fails
// after retrying marks the job as having lost an entry.
func (r *Runner) record(ctx context.Context, j *job, entry *models.DeliveryLogEntry, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)

	if err := retryWrite(func() error { return r.logs.Append(ctx, entry) }); err != nil {
		r.logger.Error("failed to append delivery log", "job_id", j.job.ID, "recipient_id", entry.RecipientID, "error", err)
		j.lost.Add(1)
		metrics.IncDeliveriesUnrecorded()
		return
	}
	if err := retryWrite(func() error { return r.jobs.IncrementProgress(ctx, j.job.ID) }); err != nil {
		r.logger.Error("failed to advance job progress", "job_id", j.job.ID, "error", err)
		j.lost.Add(1)
		metrics.IncDeliveriesUnrecorded()
	}

	metrics.ObserveDelivery(string(entry.Status), elapsed.Seconds())
}

// retryWrite runs write up to recordAttempts times with a linear backoff
func retryWrite(write func() error) error {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = write(); err == nil {
			return nil
		}
		if attempt < recordAttempts {
			time.Sleep(time.Duration(attempt) * recordBackoff)
		}
	}
	return err
}

func (r *Runner) finish(ctx context.Context, j *job, status models.JobStatus, errMsg string, started time.Time, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	if err := r.jobs.Finish(ctx, j.job.ID, status, errMsg, r.now()); err != nil {
		log.Error("failed to finish job", "status", status, "error", err)
	}
	metrics.ObserveJobFinished(string(j.job.Mode), string(status), time.Since(started).Seconds())

	if status == models.JobSucceeded && j.job.Mode != models.JobModeTest {
		if err := r.campaigns.Complete(ctx, j.campaign.ID); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				log.Info("campaign keeps its status", "reason", err)
			} else {
				log.Error("failed to complete campaign", "error", err)
			}
		}
	}

	if status == models.JobFailed {
		log.Warn("job failed", "error", errMsg)
	} else {
		log.Info("job finished", "status", status, "duration", time.Since(started))
	}

	if j.opts.OnFinish != nil {
		done := *j.job
		if got, err := r.jobs.GetByID(ctx, j.job.ID); err == nil && got != nil {
			done = *got
		} else {
			done.Status = status
			done.Error = errMsg
		}
		j.opts.OnFinish(done)
	}
}

func (r *Runner) release(ctx context.Context, j *job) {
	if j.lease == nil {
		return
	}
	if err := j.lease.Release(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("failed to release campaign lease", "campaign_id", j.campaign.ID, "error", err)
	}
}

// clickURL wraps the target link in the tracking redirect
func (r *Runner) clickURL(entryID string, msg models.Message) string {
	if r.publicURL == "" || msg.TargetURL == "" {
		return ""
	}
	return r.publicURL + "/t/" + entryID
}
