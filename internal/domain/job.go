package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	// JobStatusProcessing covers every job between submission and a terminal
	// state: debited, dispatched (or about to be), awaiting provider result.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusRegenerating marks an original job that failed quality
	// validation and was superseded by a linked regeneration attempt.
	JobStatusRegenerating JobStatus = "regenerating"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions. A
// regenerating job is terminal for its own lifecycle; its outcome lives on
// the linked successor.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusRegenerating:
		return true
	}
	return false
}

// RiskLevel classifies how hard a script+image set is to render faithfully.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// QualityTier is the per-user setting that gates premium backend selection.
type QualityTier string

const (
	TierStandard QualityTier = "standard"
	TierPremium  QualityTier = "premium"
)

// GenerationJob is the durable unit of work. Rows are never deleted once a
// debit exists; failed jobs keep their metadata as the audit trail.
type GenerationJob struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Status  JobStatus

	BackendID   string
	Style       string
	AspectRatio string
	RiskLevel   RiskLevel
	QualityTier QualityTier

	Script    string
	ImageURLs []string

	RequestedSeconds  int
	DispatchedSeconds int
	CostCredits       int64
	CostUSD           float64

	ProviderTaskID *string
	ResultURL      *string
	StorageKey     *string
	FailureReason  *string

	QualityScore  *float64
	QualityIssues []string

	AutoRegenerate    bool
	IsRegeneration    bool
	RegenerationCount int
	RegeneratedFromID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}
