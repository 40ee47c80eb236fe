package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourove-a/splaro/internal/models"
)

const jobColumns = `id, campaign_id, mode, status, total_recipients, progress_count, error,
	created_at, started_at, finished_at`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in PENDING with an unknown recipient total
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = models.JobPending
	job.TotalRecipients = nil
	job.ProgressCount = 0
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, campaign_id, mode, status, progress_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		job.ID, job.CampaignID, job.Mode, job.Status, utc(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID returns a job by ID, or nil if it does not exist
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListByCampaign returns the jobs of a campaign, newest first
func (r *JobRepository) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]models.Job, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE campaign_id = ?", campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + jobColumns + " FROM jobs WHERE campaign_id = ? ORDER BY created_at DESC, id"
	args := []any{campaignID}
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

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, total, rows.Err()
}

// MarkRunning moves a pending job to RUNNING and records the resolved total
func (r *JobRepository) MarkRunning(ctx context.Context, id string, total int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, total_recipients = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		models.JobRunning, total, utc(at), id, models.JobPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return expectOne(res, id)
}

// IncrementProgress adds one attempted recipient to a running job
func (r *JobRepository) IncrementProgress(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET progress_count = progress_count + 1 WHERE id = ? AND status = ?",
		id, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// Finish moves a job to a terminal status. Terminal jobs are never rewritten.
func (r *JobRepository) Finish(ctx context.Context, id string, status models.JobStatus, errMsg string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("job status %s is not terminal", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		status, errMsg, utc(at), id, models.JobPending, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return expectOne(res, id)
}

// FailUnfinished marks every PENDING or RUNNING job as FAILED. It is used on
// startup for jobs orphaned by a previous process.
func (r *JobRepository) FailUnfinished(ctx context.Context, errMsg string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE status IN (?, ?)",
		models.JobFailed, errMsg, utc(at), models.JobPending, models.JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail unfinished jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of jobs in each status
func (r *JobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.JobStatus]int{}
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanJob(s scanner) (*models.Job, error) {
	job := &models.Job{}
	var total sql.NullInt64
	var startedAt, finishedAt sql.NullTime

	err := s.Scan(&job.ID, &job.CampaignID, &job.Mode, &job.Status, &total, &job.ProgressCount, &job.Error,
		&job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if total.Valid {
		n := int(total.Int64)
		job.TotalRecipients = &n
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)

	return job, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrInvalidTransition)
	}
	return nil
}
