package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	// Delete removes a job row. Only valid before a debit exists; the saga
	// uses it to roll back step two when the debit insert fails.
	Delete(ctx context.Context, jobID uuid.UUID) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*GenerationJob, error)
	SetProviderTask(ctx context.Context, jobID uuid.UUID, taskID string) error
	UpdateQuality(ctx context.Context, jobID uuid.UUID, score float64, issues []string) error
	MarkCompleted(ctx context.Context, jobID uuid.UUID, resultURL string, storageKey *string) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error
	// MarkRegenerating flags the job as superseded and bumps its
	// regeneration counter in one update.
	MarkRegenerating(ctx context.Context, jobID uuid.UUID) error
	// ListProcessing returns non-terminal jobs oldest first, for the poller.
	ListProcessing(ctx context.Context, limit int) ([]GenerationJob, error)
}

// LedgerRepository defines persistence for the append-only credit ledger.
type LedgerRepository interface {
	// Balance derives the owner's balance as the sum of their entry amounts.
	Balance(ctx context.Context, ownerID uuid.UUID) (int64, error)
	// Insert appends an entry unconditionally (purchases, bonuses, refunds).
	Insert(ctx context.Context, entry *LedgerEntry) error
	// DebitIfSufficient appends a generation debit only if the derived
	// balance stays non-negative, atomically with the balance check. Returns
	// ErrInsufficientCredits otherwise.
	DebitIfSufficient(ctx context.Context, entry *LedgerEntry) error
	EntriesForJob(ctx context.Context, jobID uuid.UUID) ([]LedgerEntry, error)
}

// BatchRepository defines persistence for batches and their items.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *BatchJob, items []BatchItem) error
	GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchJob, error)
	ListItems(ctx context.Context, batchID uuid.UUID) ([]BatchItem, error)
	// MarkItemProcessing claims a pending item. ErrNotFound means another
	// runner took it, or it was deleted meanwhile.
	MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error
	// CompleteItem and FailItem only transition items still in processing,
	// so a concurrent delete is never overwritten.
	CompleteItem(ctx context.Context, itemID, jobID uuid.UUID) error
	FailItem(ctx context.Context, itemID uuid.UUID, message string) error
	// DeleteItem removes a pending item. Items that own a job are locked
	// until the job is terminal (ErrItemLocked).
	DeleteItem(ctx context.Context, itemID, ownerID uuid.UUID) error
	// FinalizeBatch recomputes the aggregate status from item outcomes.
	FinalizeBatch(ctx context.Context, batchID uuid.UUID) error
	// ListStalled returns processing batches created before the cutoff that
	// still hold pending items, oldest first, so a restarted process can
	// resume them.
	ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]BatchJob, error)
}
