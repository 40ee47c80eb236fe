// Package campaign owns campaign records and enforces their lifecycle.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/models"
	"github.com/sourove-a/splaro/internal/repository"
)

// casAttempts bounds how often a status change is retried after losing a race
const casAttempts = 3

type Store struct {
	repo   *repository.CampaignRepository
	grace  time.Duration
	logger *slog.Logger

	now func() time.Time
}

func NewStore(repo *repository.CampaignRepository, cfg config.CampaignsConfig, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		grace:  cfg.ScheduleGrace,
		logger: logger.With("component", "campaigns"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates a draft and persists it as a Draft campaign
func (s *Store) Create(ctx context.Context, d models.CampaignInput) (*models.Campaign, error) {
	c := &models.Campaign{
		Name:        strings.TrimSpace(d.Name),
		Message:     d.Message,
		Segment:     d.Segment,
		Status:      models.CampaignDraft,
		ScheduledAt: utcPtr(d.ScheduledAt),
		Automated:   d.Automated,
		CreatedAt:   s.now(),
	}
	if err := s.validate(c, true); err != nil {
		return nil, err
	}
	c.Segment = c.Segment.Normalize()

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "segment", c.Segment.Kind, "automated", c.Automated)
	return c, nil
}

// Get returns a campaign, including deleted ones
func (s *Store) Get(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}
	return c, nil
}

// Update applies a patch. The merged campaign is validated as a whole and
// nothing is written if it is invalid.
func (s *Store) Update(ctx context.Context, id string, p models.CampaignPatch) (*models.Campaign, error) {
	c, err := s.live(ctx, id)
	if err != nil {
		return nil, err
	}

	scheduleTouched := false
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Message != nil {
		c.Message = *p.Message
	}
	if p.Segment != nil {
		c.Segment = *p.Segment
	}
	if p.ClearSchedule {
		c.ScheduledAt = nil
		scheduleTouched = true
	} else if p.ScheduledAt != nil {
		c.ScheduledAt = utcPtr(p.ScheduledAt)
		scheduleTouched = true
	}
	if p.Automated != nil {
		if *p.Automated != c.Automated {
			scheduleTouched = true
		}
		c.Automated = *p.Automated
	}

	if err := s.validate(c, scheduleTouched); err != nil {
		return nil, err
	}
	c.Segment = c.Segment.Normalize()
	c.UpdatedAt = s.now()

	ok, err := s.repo.Update(ctx, c, scheduleTouched)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Deleted while we were merging
		return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}
	s.logger.Info("campaign updated", "campaign_id", c.ID)
	return s.Get(ctx, id)
}

// List returns one page of campaigns matching the filter
func (s *Store) List(ctx context.Context, filter models.CampaignFilter, page, pageSize int) (*models.Page[models.Campaign], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	filter.Query = strings.TrimSpace(filter.Query)

	p := models.NewPagination(page, pageSize)
	items, total, err := s.repo.List(ctx, filter, p.PageSize, p.Offset())
	if err != nil {
		return nil, err
	}

	result := models.NewPage(items, p, total)
	return &result, nil
}

// Duplicate copies a campaign into a new Draft without a schedule
func (s *Store) Duplicate(ctx context.Context, id string) (*models.Campaign, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c := &models.Campaign{
		Name:      src.Name,
		Message:   src.Message,
		Segment:   src.Segment,
		Status:    models.CampaignDraft,
		Automated: src.Automated,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("campaign duplicated", "campaign_id", c.ID, "source_id", src.ID)
	return c, nil
}

// SetStatus performs an operator transition. Completion is reserved for the
// job runner and cannot be requested here.
func (s *Store) SetStatus(ctx context.Context, id string, to models.CampaignStatus) (*models.Campaign, error) {
	if !to.Valid() {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", to)}
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if to == models.CampaignCompleted || !models.CanTransition(c.Status, to) {
			return nil, models.TransitionError(c.Status, to)
		}

		ok, err := s.repo.CompareAndSetStatus(ctx, id, c.Status, to, s.now())
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("campaign status changed", "campaign_id", id, "from", c.Status, "to", to)
			return s.Get(ctx, id)
		}
	}

	return nil, fmt.Errorf("campaign %s: %w: concurrent status change", id, models.ErrInvalidTransition)
}

// Delete soft-deletes a campaign; its jobs and delivery logs stay readable
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.SetStatus(ctx, id, models.CampaignDeleted)
	return err
}

// Schedule sets the next automated occurrence. Scheduling a Draft activates it.
func (s *Store) Schedule(ctx context.Context, id string, at time.Time) (*models.Campaign, error) {
	at = at.UTC()
	if err := s.checkSchedule(at); err != nil {
		return nil, err
	}

	c, err := s.live(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignCompleted {
		return nil, models.TransitionError(c.Status, models.CampaignActive)
	}

	ok, err := s.repo.Schedule(ctx, id, at, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}

	if c.Status == models.CampaignDraft {
		if err := s.Activate(ctx, id); err != nil {
			return nil, err
		}
	}

	s.logger.Info("campaign scheduled", "campaign_id", id, "scheduled_at", at)
	return s.Get(ctx, id)
}

// Activate moves a Draft campaign to Active. Campaigns that are already past
// Draft are left as they are.
func (s *Store) Activate(ctx context.Context, id string) error {
	ok, err := s.repo.CompareAndSetStatus(ctx, id, models.CampaignDraft, models.CampaignActive, s.now())
	if err != nil {
		return err
	}
	if ok {
		s.logger.Info("campaign activated", "campaign_id", id)
		return nil
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignDeleted {
		return models.TransitionError(c.Status, models.CampaignActive)
	}
	return nil
}

// Pause moves an Active campaign to Paused on behalf of the system
func (s *Store) Pause(ctx context.Context, id string) error {
	ok, err := s.repo.CompareAndSetStatus(ctx, id, models.CampaignActive, models.CampaignPaused, s.now())
	if err != nil {
		return err
	}
	if !ok {
		c, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != models.CampaignPaused {
			return models.TransitionError(c.Status, models.CampaignPaused)
		}
	}
	return nil
}

// Complete marks an Active campaign as Completed after a non-test job.
// It is a no-op for campaigns that are already Completed.
func (s *Store) Complete(ctx context.Context, id string) error {
	ok, err := s.repo.CompareAndSetStatus(ctx, id, models.CampaignActive, models.CampaignCompleted, s.now())
	if err != nil {
		return err
	}
	if ok {
		s.logger.Info("campaign completed", "campaign_id", id)
		return nil
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignCompleted {
		return nil
	}
	return models.TransitionError(c.Status, models.CampaignCompleted)
}

// StatusCounts returns the number of campaigns per status
func (s *Store) StatusCounts(ctx context.Context) (models.CampaignStatusCounts, error) {
	return s.repo.CountByStatus(ctx)
}

// live returns a campaign that has not been deleted
func (s *Store) live(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignDeleted {
		return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}
	return c, nil
}

func (s *Store) validate(c *models.Campaign, checkSchedule bool) error {
	if c.Name == "" {
		return &models.ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(c.Message.Body) == "" {
		return &models.ValidationError{Field: "message.body", Message: "is required"}
	}
	if err := c.Segment.Validate(); err != nil {
		return err
	}

	if !checkSchedule {
		return nil
	}
	if c.Automated && c.ScheduledAt == nil {
		return &models.ValidationError{Field: "scheduled_at", Message: "is required for automated campaigns"}
	}
	if c.Automated {
		return s.checkSchedule(*c.ScheduledAt)
	}
	return nil
}

func (s *Store) checkSchedule(at time.Time) error {
	if at.Before(s.now().Add(-s.grace)) {
		return &models.ValidationError{
			Field:   "scheduled_at",
			Message: fmt.Sprintf("is more than %s in the past", s.grace),
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
