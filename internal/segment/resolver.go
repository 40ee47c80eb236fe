// Package segment evaluates audience segments against the customer directory.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/models"
)

// Directory is the read-only customer store segments are evaluated against
type Directory interface {
	CountMatching(ctx context.Context, seg models.AudienceSegment, now time.Time) (int, error)
	SampleMatching(ctx context.Context, seg models.AudienceSegment, now time.Time, limit int) ([]string, error)
	PageMatching(ctx context.Context, seg models.AudienceSegment, now time.Time, afterID string, limit int) ([]models.Recipient, error)
	GetRecipient(ctx context.Context, id string) (*models.Recipient, error)
}

// Estimate is the result of a segment preview
type Estimate struct {
	Count     int      `json:"count"`
	SampleIDs []string `json:"sample_ids"`
}

// Resolver turns segments into counts and recipient lists. It keeps no state
// of its own; every call reads the directory as it is at that moment.
type Resolver struct {
	dir        Directory
	sampleSize int
	batchSize  int
	logger     *slog.Logger

	now func() time.Time
}

func NewResolver(dir Directory, cfg config.SegmentsConfig, logger *slog.Logger) *Resolver {
	r := &Resolver{
		dir:        dir,
		sampleSize: cfg.SampleSize,
		batchSize:  cfg.BatchSize,
		logger:     logger.With("component", "segment"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if r.sampleSize <= 0 {
		r.sampleSize = 5
	}
	if r.batchSize <= 0 {
		r.batchSize = 500
	}
	return r
}

// SetClock replaces the time source used for window cutoffs
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Estimate counts the recipients matching seg and returns a few of their IDs
func (r *Resolver) Estimate(ctx context.Context, seg models.AudienceSegment) (*Estimate, error) {
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	seg = seg.Normalize()
	now := r.now()

	count, err := r.dir.CountMatching(ctx, seg, now)
	if err != nil {
		return nil, &models.ResolutionError{Err: err}
	}

	est := &Estimate{Count: count, SampleIDs: []string{}}
	if count == 0 {
		return est, nil
	}

	ids, err := r.dir.SampleMatching(ctx, seg, now, r.sampleSize)
	if err != nil {
		return nil, &models.ResolutionError{Err: err}
	}
	est.SampleIDs = ids

	return est, nil
}

// Resolve returns every recipient matching seg ordered by ID
func (r *Resolver) Resolve(ctx context.Context, seg models.AudienceSegment) ([]models.Recipient, error) {
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	seg = seg.Normalize()
	now := r.now()

	recipients := []models.Recipient{}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, &models.ResolutionError{Err: err}
		}

		batch, err := r.dir.PageMatching(ctx, seg, now, after, r.batchSize)
		if err != nil {
			return nil, &models.ResolutionError{Err: err}
		}
		recipients = append(recipients, batch...)

		if len(batch) < r.batchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}

	r.logger.Debug("segment resolved", "kind", seg.Kind, "recipients", len(recipients))
	return recipients, nil
}

// Lookup returns a single recipient from the directory
func (r *Resolver) Lookup(ctx context.Context, id string) (*models.Recipient, error) {
	rec, err := r.dir.GetRecipient(ctx, id)
	if err != nil {
		return nil, &models.ResolutionError{Err: err}
	}
	if rec == nil {
		return nil, fmt.Errorf("recipient %s: %w", id, models.ErrNotFound)
	}
	return rec, nil
}
