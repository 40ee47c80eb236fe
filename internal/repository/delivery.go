package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourove-a/splaro/internal/models"
)

const deliveryColumns = `id, job_id, campaign_id, recipient_id, recipient_name, recipient_email, recipient_phone,
	status, error_message, sent_at, clicked_at`

// DeliveryLogRepository is the append-only store of per-recipient outcomes.
// The only mutation after insert is the SENT to CLICKED transition.
type DeliveryLogRepository struct {
	db *sql.DB
}

func NewDeliveryLogRepository(db *sql.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append inserts one entry
func (r *DeliveryLogRepository) Append(ctx context.Context, e *models.DeliveryLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_logs (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.JobID, e.CampaignID, e.RecipientID, e.RecipientName, e.RecipientEmail, e.RecipientPhone,
		e.Status, e.ErrorMessage, utc(e.SentAt), nullTime(e.ClickedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

// GetByID returns an entry by ID, or nil if it does not exist
func (r *DeliveryLogRepository) GetByID(ctx context.Context, id string) (*models.DeliveryLogEntry, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deliveryColumns+" FROM delivery_logs WHERE id = ?", id)
	e, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MarkClicked records a click on a SENT entry. A repeated click is a no-op;
// FAILED entries are terminal.
func (r *DeliveryLogRepository) MarkClicked(ctx context.Context, id string, at time.Time) (*models.DeliveryLogEntry, error) {
	_, err := r.db.ExecContext(ctx,
		"UPDATE delivery_logs SET status = ?, clicked_at = ? WHERE id = ? AND status = ?",
		models.DeliveryClicked, utc(at), id, models.DeliverySent,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark click: %w", err)
	}

	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, models.ErrNotFound
	}
	if e.Status == models.DeliveryFailed {
		return e, fmt.Errorf("%w: delivery %s failed", models.ErrInvalidTransition, id)
	}
	return e, nil
}

// List returns entries matching the filter, newest first
func (r *DeliveryLogRepository) List(ctx context.Context, filter models.DeliveryLogFilter, limit, offset int) ([]models.DeliveryLogEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.JobID != "" {
		where += " AND job_id = ?"
		args = append(args, filter.JobID)
	}
	if filter.CampaignID != "" {
		where += " AND campaign_id = ?"
		args = append(args, filter.CampaignID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + deliveryColumns + " FROM delivery_logs" + where + " ORDER BY sent_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.DeliveryLogEntry{}
	for rows.Next() {
		e, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// CountByStatus aggregates the outcomes of every job of a campaign
func (r *DeliveryLogRepository) CountByStatus(ctx context.Context, campaignID string) (*models.DeliveryStats, error) {
	return r.stats(ctx, "campaign_id", campaignID)
}

// CountByJob aggregates the outcomes of one job
func (r *DeliveryLogRepository) CountByJob(ctx context.Context, jobID string) (*models.DeliveryStats, error) {
	return r.stats(ctx, "job_id", jobID)
}

func (r *DeliveryLogRepository) stats(ctx context.Context, column, value string) (*models.DeliveryStats, error) {
	s := &models.DeliveryStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM delivery_logs WHERE `+column+` = ?`,
		models.DeliverySent, models.DeliveryClicked, models.DeliveryFailed, models.DeliveryClicked, value,
	).Scan(&s.Total, &s.Sent, &s.Failed, &s.Clicked)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanDelivery(s scanner) (*models.DeliveryLogEntry, error) {
	e := &models.DeliveryLogEntry{}
	var clickedAt sql.NullTime

	err := s.Scan(&e.ID, &e.JobID, &e.CampaignID, &e.RecipientID, &e.RecipientName, &e.RecipientEmail, &e.RecipientPhone,
		&e.Status, &e.ErrorMessage, &e.SentAt, &clickedAt)
	if err != nil {
		return nil, err
	}
	e.SentAt = e.SentAt.UTC()
	e.ClickedAt = timePtr(clickedAt)
	return e, nil
}
