package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourove-a/splaro/internal/models"
)

const recipientColumns = "c.id, c.name, c.email, c.phone, c.district, c.thana, c.subscribed, c.created_at"

// countedOrder excludes orders that never turned into a purchase
const countedOrder = "o.customer_id = c.id AND o.status NOT IN ('" + models.OrderCancelled + "', '" + models.OrderRefunded + "')"

// DirectoryRepository reads customers and their order history for segment
// evaluation. The Create methods exist for imports and fixtures.
type DirectoryRepository struct {
	db *sql.DB
}

func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// CreateCustomer inserts a customer
func (r *DirectoryRepository) CreateCustomer(ctx context.Context, c *models.Recipient) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, district, thana, subscribed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.District, c.Thana, c.Subscribed, utc(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// CreateOrder inserts an order with one item row per category
func (r *DirectoryRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = "placed"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO orders (id, customer_id, total, status, created_at) VALUES (?, ?, ?, ?, ?)",
		o.ID, o.CustomerID, o.Total, o.Status, utc(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, category := range o.Categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, category) VALUES (?, ?)", o.ID, category,
		); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecipient returns a customer by ID, or nil if it does not exist
func (r *DirectoryRepository) GetRecipient(ctx context.Context, id string) (*models.Recipient, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+recipientColumns+" FROM customers c WHERE c.id = ?", id)
	rec, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CountMatching returns the number of customers matching the segment at now
func (r *DirectoryRepository) CountMatching(ctx context.Context, seg models.AudienceSegment, now time.Time) (int, error) {
	where, args, err := segmentWhere(seg, now)
	if err != nil {
		return 0, err
	}

	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers c WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

// SampleMatching returns up to limit matching customer IDs in ID order
func (r *DirectoryRepository) SampleMatching(ctx context.Context, seg models.AudienceSegment, now time.Time, limit int) ([]string, error) {
	where, args, err := segmentWhere(seg, now)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, "SELECT c.id FROM customers c WHERE "+where+" ORDER BY c.id LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sample customers: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PageMatching returns up to limit matching customers with ID greater than
// afterID, in ID order. Passing the last ID of a page walks the whole set.
func (r *DirectoryRepository) PageMatching(ctx context.Context, seg models.AudienceSegment, now time.Time, afterID string, limit int) ([]models.Recipient, error) {
	where, args, err := segmentWhere(seg, now)
	if err != nil {
		return nil, err
	}
	args = append(args, afterID, limit)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recipientColumns+" FROM customers c WHERE "+where+" AND c.id > ? ORDER BY c.id LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}
	defer rows.Close()

	recipients := []models.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}

// segmentWhere translates a segment into a predicate over customers c
func segmentWhere(seg models.AudienceSegment, now time.Time) (string, []any, error) {
	var clauses []string
	var args []any

	cutoff := utc(now).AddDate(0, 0, -seg.WindowDays)

	switch seg.Kind {
	case models.SegmentAllUsers:
		clauses = append(clauses, "1=1")
	case models.SegmentRecentSignups:
		clauses = append(clauses, "c.created_at >= ?")
		args = append(args, cutoff)
	case models.SegmentInactive:
		clauses = append(clauses,
			"c.created_at < ?",
			"NOT EXISTS (SELECT 1 FROM orders o WHERE "+countedOrder+" AND o.created_at >= ?)",
		)
		args = append(args, cutoff, cutoff)
	case models.SegmentVIP:
		if seg.MinOrders == 0 && seg.MinSpend == 0 {
			clauses = append(clauses, "EXISTS (SELECT 1 FROM orders o WHERE "+countedOrder+")")
			break
		}
		if seg.MinOrders > 0 {
			clauses = append(clauses, "(SELECT COUNT(*) FROM orders o WHERE "+countedOrder+") >= ?")
			args = append(args, seg.MinOrders)
		}
		if seg.MinSpend > 0 {
			clauses = append(clauses, "(SELECT COALESCE(SUM(o.total), 0) FROM orders o WHERE "+countedOrder+") >= ?")
			args = append(args, seg.MinSpend)
		}
	case models.SegmentBoughtCategory:
		clauses = append(clauses, `EXISTS (SELECT 1 FROM orders o JOIN order_items i ON i.order_id = o.id
			WHERE `+countedOrder+` AND i.category = ? COLLATE NOCASE)`)
		args = append(args, strings.TrimSpace(seg.Category))
	case models.SegmentSubscribedOnly:
		clauses = append(clauses, "c.subscribed = 1")
	default:
		return "", nil, &models.ValidationError{Field: "segment.kind", Message: fmt.Sprintf("unknown segment kind %q", seg.Kind)}
	}

	if seg.District != "" {
		clauses = append(clauses, "c.district = ? COLLATE NOCASE")
		args = append(args, seg.District)
	}
	if seg.Thana != "" {
		clauses = append(clauses, "c.thana = ? COLLATE NOCASE")
		args = append(args, seg.Thana)
	}

	return strings.Join(clauses, " AND "), args, nil
}

func scanRecipient(s scanner) (*models.Recipient, error) {
	rec := &models.Recipient{}
	err := s.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &rec.District, &rec.Thana, &rec.Subscribed, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
