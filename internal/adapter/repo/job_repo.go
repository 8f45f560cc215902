package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"radboard/internal/domain"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL. The
// one-active-job-per-post invariant is enforced by the partial unique index
// in migrations/0001_generation_jobs.sql; a violation surfaces as
// domain.ErrConflict.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const uniqueViolation = "23505"

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (id, post_id, kind, status, prompt, aspect_ratio, provider_ref, result_ref, error_detail, attempt, next_poll_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.PostID,
		job.Kind,
		job.Status,
		job.Params.Prompt,
		job.Params.AspectRatio,
		job.ProviderRef,
		job.ResultRef,
		job.ErrorDetail,
		job.Attempt,
		job.NextPollAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	return err
}

// Update persists the job's current lifecycle fields.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.GenerationJob) error {
	query := `
UPDATE generation_jobs
SET status = $2,
    provider_ref = $3,
    result_ref = $4,
    error_detail = $5,
    attempt = $6,
    next_poll_at = $7,
    updated_at = $8
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.ProviderRef,
		job.ResultRef,
		job.ErrorDetail,
		job.Attempt,
		job.NextPollAt,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	query := selectJob + ` WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// GetActiveByPost fetches the post's single non-terminal job.
func (r *JobRepositoryPG) GetActiveByPost(ctx context.Context, postID string) (*domain.GenerationJob, error) {
	query := selectJob + ` WHERE post_id = $1 AND status IN ('pending', 'submitted', 'in_progress');`
	return scanJob(r.pool.QueryRow(ctx, query, postID))
}

// ListPollable fetches jobs awaiting a provider status check.
func (r *JobRepositoryPG) ListPollable(ctx context.Context, now time.Time) ([]*domain.GenerationJob, error) {
	query := selectJob + `
WHERE status IN ('submitted', 'in_progress') AND next_poll_at <= $1
ORDER BY next_poll_at;
`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJob = `
SELECT id, post_id, kind, status, prompt, aspect_ratio, provider_ref, result_ref, error_detail, attempt, next_poll_at, created_at, updated_at
FROM generation_jobs`

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := row.Scan(
		&job.ID,
		&job.PostID,
		&job.Kind,
		&job.Status,
		&job.Params.Prompt,
		&job.Params.AspectRatio,
		&job.ProviderRef,
		&job.ResultRef,
		&job.ErrorDetail,
		&job.Attempt,
		&job.NextPollAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
