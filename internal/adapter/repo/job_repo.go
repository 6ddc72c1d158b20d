package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelgen/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new generation job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (
	id, owner_id, status, backend_id, style, aspect_ratio, risk_level, quality_tier,
	script, image_urls, requested_seconds, dispatched_seconds, cost_credits, cost_usd,
	auto_regenerate, is_regeneration, regeneration_count, regenerated_from_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.OwnerID,
		job.Status,
		job.BackendID,
		job.Style,
		job.AspectRatio,
		job.RiskLevel,
		job.QualityTier,
		job.Script,
		job.ImageURLs,
		job.RequestedSeconds,
		job.DispatchedSeconds,
		job.CostCredits,
		job.CostUSD,
		job.AutoRegenerate,
		job.IsRegeneration,
		job.RegenerationCount,
		job.RegeneratedFromID,
	)
	return err
}

// Delete removes a job row. Used only to roll back submission before any
// debit exists.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM generation_jobs WHERE id = $1;`, jobID)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID uuid.UUID) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx, selectJob+` WHERE id = $1;`, jobID)
	return scanJob(row)
}

// SetProviderTask records the provider task handle after dispatch succeeds.
func (r *JobRepositoryPG) SetProviderTask(ctx context.Context, jobID uuid.UUID, taskID string) error {
	query := `
UPDATE generation_jobs
SET provider_task_id = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, taskID)
	return err
}

// UpdateQuality records the validation verdict.
func (r *JobRepositoryPG) UpdateQuality(ctx context.Context, jobID uuid.UUID, score float64, issues []string) error {
	query := `
UPDATE generation_jobs
SET quality_score = $2, quality_issues = $3, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, score, issues)
	return err
}

// MarkCompleted finalizes a job that passed validation.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID uuid.UUID, resultURL string, storageKey *string) error {
	query := `
UPDATE generation_jobs
SET status = $2, result_url = $3, storage_key = $4, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusCompleted, resultURL, storageKey)
	return err
}

// MarkFailed finalizes a job with its failure reason.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error {
	query := `
UPDATE generation_jobs
SET status = $2, failure_reason = $3, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusFailed, reason)
	return err
}

// MarkRegenerating flags a superseded job and bumps its counter.
func (r *JobRepositoryPG) MarkRegenerating(ctx context.Context, jobID uuid.UUID) error {
	query := `
UPDATE generation_jobs
SET status = $2, regeneration_count = regeneration_count + 1, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusRegenerating)
	return err
}

// ListProcessing returns in-flight jobs oldest first.
func (r *JobRepositoryPG) ListProcessing(ctx context.Context, limit int) ([]domain.GenerationJob, error) {
	rows, err := r.pool.Query(ctx, selectJob+` WHERE status = $1 ORDER BY created_at ASC LIMIT $2;`,
		domain.JobStatusProcessing, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

const selectJob = `
SELECT id, owner_id, status, backend_id, style, aspect_ratio, risk_level, quality_tier,
	script, image_urls, requested_seconds, dispatched_seconds, cost_credits, cost_usd,
	provider_task_id, result_url, storage_key, failure_reason, quality_score, quality_issues,
	auto_regenerate, is_regeneration, regeneration_count, regenerated_from_id,
	created_at, updated_at
FROM generation_jobs`

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Status,
		&job.BackendID,
		&job.Style,
		&job.AspectRatio,
		&job.RiskLevel,
		&job.QualityTier,
		&job.Script,
		&job.ImageURLs,
		&job.RequestedSeconds,
		&job.DispatchedSeconds,
		&job.CostCredits,
		&job.CostUSD,
		&job.ProviderTaskID,
		&job.ResultURL,
		&job.StorageKey,
		&job.FailureReason,
		&job.QualityScore,
		&job.QualityIssues,
		&job.AutoRegenerate,
		&job.IsRegeneration,
		&job.RegenerationCount,
		&job.RegeneratedFromID,
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

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
