package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/account-rollup/internal/models"
)

// BackfillJobRepository handles backfill job bookkeeping (one record
// per account per triggered run)
type BackfillJobRepository struct {
	pool *pgxpool.Pool
}

// NewBackfillJobRepository creates a new backfill job repository
func NewBackfillJobRepository(pool *pgxpool.Pool) *BackfillJobRepository {
	return &BackfillJobRepository{pool: pool}
}

// Create stores a new backfill job record
func (r *BackfillJobRepository) Create(ctx context.Context, job *models.BackfillJob) error {
	query := `
		INSERT INTO backfill_jobs (
			job_id, account_id, start_date, status, snapshots_recomputed, started_at, completed_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		job.JobID,
		job.AccountID,
		job.StartDate,
		job.Status,
		job.SnapshotsRecomputed,
		job.StartedAt,
		job.CompletedAt,
		job.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create backfill job: %w", err)
	}

	return nil
}

// Update stores the current state of a backfill job
func (r *BackfillJobRepository) Update(ctx context.Context, job *models.BackfillJob) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2,
			snapshots_recomputed = $3,
			completed_at = $4,
			error = $5
		WHERE job_id = $1
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		job.JobID,
		job.Status,
		job.SnapshotsRecomputed,
		job.CompletedAt,
		job.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to update backfill job: %w", err)
	}

	return nil
}

// GetByID retrieves a backfill job by ID. Returns nil when not found.
func (r *BackfillJobRepository) GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	query := `
		SELECT job_id, account_id, start_date, status, snapshots_recomputed, started_at, completed_at, error
		FROM backfill_jobs
		WHERE job_id = $1
	`

	var job models.BackfillJob
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&job.JobID,
		&job.AccountID,
		&job.StartDate,
		&job.Status,
		&job.SnapshotsRecomputed,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Error,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backfill job: %w", err)
	}

	return &job, nil
}
