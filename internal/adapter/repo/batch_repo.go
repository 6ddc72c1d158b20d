package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelgen/internal/domain"
)

// BatchRepositoryPG implements domain.BatchRepository.
type BatchRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new batch repository backed by PostgreSQL.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepositoryPG {
	return &BatchRepositoryPG{pool: pool}
}

// CreateBatch inserts the batch and all its items in one transaction.
func (r *BatchRepositoryPG) CreateBatch(ctx context.Context, batch *domain.BatchJob, items []domain.BatchItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO batch_jobs (id, owner_id, item_count, reserved_credits, tier, auto_regenerate, status)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, batch.ID, batch.OwnerID, batch.ItemCount, batch.ReservedCredits, batch.Tier, batch.AutoRegenerate, batch.Status); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, `
INSERT INTO batch_items (id, batch_id, owner_id, position, source_url, style, seconds, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`, item.ID, item.BatchID, item.OwnerID, item.Position, item.SourceURL, item.Style, item.Seconds, item.Status); err != nil {
			return fmt.Errorf("insert batch item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetBatch fetches a batch by its identifier.
func (r *BatchRepositoryPG) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.BatchJob, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, owner_id, item_count, reserved_credits, tier, auto_regenerate, status, error_message, created_at, updated_at
FROM batch_jobs
WHERE id = $1;
`, batchID)
	var b domain.BatchJob
	if err := row.Scan(
		&b.ID, &b.OwnerID, &b.ItemCount, &b.ReservedCredits, &b.Tier, &b.AutoRegenerate,
		&b.Status, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListItems returns a batch's items in position order.
func (r *BatchRepositoryPG) ListItems(ctx context.Context, batchID uuid.UUID) ([]domain.BatchItem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, batch_id, owner_id, position, source_url, style, seconds, status, job_id, error_message, created_at, updated_at
FROM batch_items
WHERE batch_id = $1
ORDER BY position ASC;
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.BatchItem
	for rows.Next() {
		var item domain.BatchItem
		if err := rows.Scan(
			&item.ID, &item.BatchID, &item.OwnerID, &item.Position, &item.SourceURL,
			&item.Style, &item.Seconds, &item.Status, &item.JobID, &item.ErrorMessage,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkItemProcessing claims a pending item. No row affected means another
// runner already claimed it, or it was deleted.
func (r *BatchRepositoryPG) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE batch_items SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3;
`, itemID, domain.BatchItemProcessing, domain.BatchItemPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompleteItem attaches the dispatched job and marks the item completed.
// Only items still in processing transition, so a concurrent delete is
// never overwritten.
func (r *BatchRepositoryPG) CompleteItem(ctx context.Context, itemID, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
UPDATE batch_items SET status = $2, job_id = $3, updated_at = NOW() WHERE id = $1 AND status = $4;
`, itemID, domain.BatchItemCompleted, jobID, domain.BatchItemProcessing)
	return err
}

// FailItem records a per-item failure without touching siblings. The same
// processing guard as CompleteItem applies.
func (r *BatchRepositoryPG) FailItem(ctx context.Context, itemID uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE batch_items SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1 AND status = $4;
`, itemID, domain.BatchItemFailed, message, domain.BatchItemProcessing)
	return err
}

// DeleteItem marks a pending item deleted. Items that own a job carry a
// debit and stay locked until the job is terminal.
func (r *BatchRepositoryPG) DeleteItem(ctx context.Context, itemID, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE batch_items
SET status = $3, updated_at = NOW()
WHERE id = $1 AND owner_id = $2 AND job_id IS NULL AND status IN ($4, $5);
`, itemID, ownerID, domain.BatchItemDeleted, domain.BatchItemPending, domain.BatchItemProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: distinguish a locked item from a missing one.
	var jobID *uuid.UUID
	err = r.pool.QueryRow(ctx,
		`SELECT job_id FROM batch_items WHERE id = $1 AND owner_id = $2;`,
		itemID, ownerID,
	).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if jobID != nil {
		return domain.ErrItemLocked
	}
	return domain.ErrNotFound
}

// FinalizeBatch recomputes the aggregate status from item outcomes.
// Deleted items are excluded from the tally.
func (r *BatchRepositoryPG) FinalizeBatch(ctx context.Context, batchID uuid.UUID) error {
	var total, completed, failed int
	err := r.pool.QueryRow(ctx, `
SELECT
	COUNT(*) FILTER (WHERE status <> $2),
	COUNT(*) FILTER (WHERE status = $3),
	COUNT(*) FILTER (WHERE status = $4)
FROM batch_items
WHERE batch_id = $1;
`, batchID, domain.BatchItemDeleted, domain.BatchItemCompleted, domain.BatchItemFailed).Scan(&total, &completed, &failed)
	if err != nil {
		return err
	}

	status := domain.BatchStatusProcessing
	message := ""
	switch {
	case completed+failed < total:
		// Items still pending; leave the batch processing.
	case failed == 0:
		status = domain.BatchStatusCompleted
	case completed == 0:
		status = domain.BatchStatusFailed
		message = fmt.Sprintf("all %d items failed", failed)
	default:
		status = domain.BatchStatusPartialFailure
		message = fmt.Sprintf("%d of %d items failed", failed, total)
	}

	_, err = r.pool.Exec(ctx, `
UPDATE batch_jobs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1;
`, batchID, status, message)
	return err
}

// ListStalled returns processing batches created before the cutoff that
// still hold pending items. The worker resumes these after a process
// restart stranded their runner goroutine.
func (r *BatchRepositoryPG) ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]domain.BatchJob, error) {
	rows, err := r.pool.Query(ctx, `
SELECT b.id, b.owner_id, b.item_count, b.reserved_credits, b.tier, b.auto_regenerate, b.status, b.error_message, b.created_at, b.updated_at
FROM batch_jobs b
WHERE b.status = $1
  AND b.created_at < $2
  AND EXISTS (SELECT 1 FROM batch_items i WHERE i.batch_id = b.id AND i.status = $3)
ORDER BY b.created_at ASC
LIMIT $4;
`, domain.BatchStatusProcessing, cutoff, domain.BatchItemPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BatchJob
	for rows.Next() {
		var b domain.BatchJob
		if err := rows.Scan(
			&b.ID, &b.OwnerID, &b.ItemCount, &b.ReservedCredits, &b.Tier, &b.AutoRegenerate,
			&b.Status, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ domain.BatchRepository = (*BatchRepositoryPG)(nil)
