package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourove-a/splaro/internal/models"
)

const campaignColumns = `id, name, title, body, image_url, target_url, segment, status,
	scheduled_at, automated, last_dispatched_scheduled_at, created_at, updated_at`

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign, assigning an ID when none is set
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	segment, err := json.Marshal(c.Segment)
	if err != nil {
		return fmt.Errorf("failed to encode segment: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Message.Title, c.Message.Body, c.Message.ImageURL, c.Message.TargetURL,
		string(segment), c.Status, nullTime(c.ScheduledAt), c.Automated, nullTime(c.LastDispatchedScheduledAt),
		utc(c.CreatedAt), utc(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil if it does not exist
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Update writes the editable fields of a campaign. Status and the dispatch
// marker are owned by other writers and left alone unless clearMarker is set.
// Deleted campaigns are not touched; the returned bool reports whether a row
// was updated.
func (r *CampaignRepository) Update(ctx context.Context, c *models.Campaign, clearMarker bool) (bool, error) {
	segment, err := json.Marshal(c.Segment)
	if err != nil {
		return false, fmt.Errorf("failed to encode segment: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET name = ?, title = ?, body = ?, image_url = ?, target_url = ?, segment = ?,
			scheduled_at = ?, automated = ?, updated_at = ?,
			last_dispatched_scheduled_at = CASE WHEN ? THEN NULL ELSE last_dispatched_scheduled_at END
		WHERE id = ? AND status != ?`,
		c.Name, c.Message.Title, c.Message.Body, c.Message.ImageURL, c.Message.TargetURL, string(segment),
		nullTime(c.ScheduledAt), c.Automated, utc(c.UpdatedAt), clearMarker,
		c.ID, models.CampaignDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompareAndSetStatus moves a campaign from one status to another only if it
// is still in the expected status.
func (r *CampaignRepository) CompareAndSetStatus(ctx context.Context, id string, from, to models.CampaignStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, utc(at), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Schedule sets the schedule of a campaign and turns automation on.
// The dispatch marker is cleared so the new occurrence can fire.
func (r *CampaignRepository) Schedule(ctx context.Context, id string, scheduledAt, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET scheduled_at = ?, automated = 1, last_dispatched_scheduled_at = NULL, updated_at = ?
		WHERE id = ? AND status != ?`,
		utc(scheduledAt), utc(at), id, models.CampaignDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to schedule campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns campaigns matching the filter, most recently updated first.
// Deleted campaigns are only listed when asked for explicitly.
func (r *CampaignRepository) List(ctx context.Context, filter models.CampaignFilter, limit, offset int) ([]models.Campaign, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	} else {
		where += " AND status != ?"
		args = append(args, models.CampaignDeleted)
	}
	if filter.Query != "" {
		p := likePattern(filter.Query)
		where += ` AND (name LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`
		args = append(args, p, p, p)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + campaignColumns + " FROM campaigns" + where + " ORDER BY updated_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	campaigns, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ListDue returns active automated campaigns whose scheduled occurrence has
// passed and has not been dispatched yet.
func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = ? AND automated = 1 AND scheduled_at IS NOT NULL AND scheduled_at <= ?
			AND (last_dispatched_scheduled_at IS NULL OR last_dispatched_scheduled_at < scheduled_at)
		ORDER BY scheduled_at, id`,
		models.CampaignActive, utc(now),
	)
}

// ClaimDispatch records that the occurrence at scheduledAt is being dispatched.
// Only one caller can win the claim for a given occurrence.
func (r *CampaignRepository) ClaimDispatch(ctx context.Context, id string, scheduledAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET last_dispatched_scheduled_at = scheduled_at
		WHERE id = ? AND status = ? AND automated = 1 AND scheduled_at = ?
			AND (last_dispatched_scheduled_at IS NULL OR last_dispatched_scheduled_at < scheduled_at)`,
		id, models.CampaignActive, utc(scheduledAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim dispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseDispatch restores the previous marker if the claim for scheduledAt is
// still in place, so the occurrence is picked up again.
func (r *CampaignRepository) ReleaseDispatch(ctx context.Context, id string, scheduledAt time.Time, previous *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE campaigns SET last_dispatched_scheduled_at = ? WHERE id = ? AND last_dispatched_scheduled_at = ?",
		nullTime(previous), id, utc(scheduledAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to release dispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountByStatus returns the number of campaigns in each status
func (r *CampaignRepository) CountByStatus(ctx context.Context) (models.CampaignStatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM campaigns GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := models.CampaignStatusCounts{}
	for rows.Next() {
		var status models.CampaignStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *CampaignRepository) query(ctx context.Context, query string, args ...any) ([]models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func scanCampaign(s scanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var segment string
	var scheduledAt, marker sql.NullTime

	err := s.Scan(&c.ID, &c.Name, &c.Message.Title, &c.Message.Body, &c.Message.ImageURL, &c.Message.TargetURL,
		&segment, &c.Status, &scheduledAt, &c.Automated, &marker, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(segment), &c.Segment); err != nil {
		return nil, fmt.Errorf("campaign %s: failed to decode segment: %w", c.ID, err)
	}
	c.ScheduledAt = timePtr(scheduledAt)
	c.LastDispatchedScheduledAt = timePtr(marker)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	return c, nil
}
