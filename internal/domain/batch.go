package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus enumerates aggregate batch lifecycle states.
type BatchStatus string

const (
	BatchStatusProcessing     BatchStatus = "processing"
	BatchStatusCompleted      BatchStatus = "completed"
	BatchStatusPartialFailure BatchStatus = "completed_with_errors"
	BatchStatusFailed         BatchStatus = "failed"
)

// BatchItemStatus enumerates per-item lifecycle states.
type BatchItemStatus string

const (
	BatchItemPending    BatchItemStatus = "pending"
	BatchItemProcessing BatchItemStatus = "processing"
	BatchItemCompleted  BatchItemStatus = "completed"
	BatchItemFailed     BatchItemStatus = "failed"
	BatchItemDeleted    BatchItemStatus = "deleted"
)

// BatchJob groups items submitted together. ReservedCredits is bookkeeping
// for the UI only; nothing is debited until an item's saga runs. Tier and
// AutoRegenerate are persisted so an interrupted batch can be resumed with
// the submission's own settings.
type BatchJob struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	ItemCount       int
	ReservedCredits int64
	Tier            QualityTier
	AutoRegenerate  bool
	Status          BatchStatus
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BatchItem is a single source URL to turn into a generation. It owns at
// most one GenerationJob, created lazily when its saga dispatches.
type BatchItem struct {
	ID           uuid.UUID
	BatchID      uuid.UUID
	OwnerID      uuid.UUID
	Position     int
	SourceURL    string
	Style        string
	Seconds      int
	Status       BatchItemStatus
	JobID        *uuid.UUID
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
