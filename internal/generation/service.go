// Package generation holds the transactional spine of the product: the
// debit→dispatch→(confirm|refund) saga, the completion poller, and the
// regeneration controller. Every credit an owner loses or regains passes
// through this package.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reelgen/internal/breaker"
	"reelgen/internal/cache"
	"reelgen/internal/catalog"
	"reelgen/internal/domain"
	"reelgen/internal/metrics"
	videoprovider "reelgen/internal/providers/video"
	"reelgen/internal/quality"
	"reelgen/internal/ratelimit"
	"reelgen/internal/risk"
	"reelgen/internal/storage"
)

// Options carries the billing and policy knobs the service needs.
type Options struct {
	CreditUnitUSD        float64
	QualityMinScore      float64
	MaxAutoRegenerations int
	// ProcessingTimeout bounds exposure to a provider that silently drops a
	// task: jobs older than this are force-failed and refunded.
	ProcessingTimeout time.Duration
	// SignedURLTTL controls how long result links handed to owners stay
	// valid.
	SignedURLTTL time.Duration
}

// Service runs generation sagas. It is safe for concurrent use; the
// breaker and rate limiters it holds are the only shared mutable state.
type Service struct {
	jobs     domain.JobRepository
	ledger   domain.LedgerRepository
	catalog  *catalog.Catalog
	selector *catalog.Selector
	provider videoprovider.Client
	brk      *breaker.Breaker
	limits   *ratelimit.Set
	store    storage.ObjectStore
	statuses cache.JobStatusCache
	metrics  *metrics.Set
	logger   zerolog.Logger
	scorer   quality.Scorer
	opts     Options
}

// NewService wires the saga. store may be nil (results then keep the
// provider URL); statuses may be cache.Noop{}.
func NewService(
	jobs domain.JobRepository,
	ledger domain.LedgerRepository,
	cat *catalog.Catalog,
	selector *catalog.Selector,
	provider videoprovider.Client,
	brk *breaker.Breaker,
	limits *ratelimit.Set,
	store storage.ObjectStore,
	statuses cache.JobStatusCache,
	m *metrics.Set,
	logger zerolog.Logger,
	scorer quality.Scorer,
	opts Options,
) *Service {
	if statuses == nil {
		statuses = cache.Noop{}
	}
	if scorer == nil {
		scorer = quality.HeuristicScorer{}
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 24 * time.Hour
	}
	return &Service{
		jobs:     jobs,
		ledger:   ledger,
		catalog:  cat,
		selector: selector,
		provider: provider,
		brk:      brk,
		limits:   limits,
		store:    store,
		statuses: statuses,
		metrics:  m,
		logger:   logger.With().Str("component", "generation").Logger(),
		scorer:   scorer,
		opts:     opts,
	}
}

// SubmitRequest is one script+images generation request.
type SubmitRequest struct {
	OwnerID     uuid.UUID
	Script      string
	ImageURLs   []string
	Style       string
	Seconds     int
	AspectRatio string
	Tier        domain.QualityTier
	// AutoRegenerate records the owner's opt-in to one quality retry.
	AutoRegenerate bool
}

func (r *SubmitRequest) validate() error {
	if r.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner id is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Script) == "" {
		return fmt.Errorf("%w: script is required", domain.ErrInvalidRequest)
	}
	if len(r.ImageURLs) == 0 {
		return fmt.Errorf("%w: at least one image is required", domain.ErrInvalidRequest)
	}
	if !catalog.IsValidStyle(r.Style) {
		return fmt.Errorf("%w: unknown style %q", domain.ErrInvalidRequest, r.Style)
	}
	if r.Seconds <= 0 || r.Seconds > catalog.MaxBucketSeconds {
		return fmt.Errorf("%w: duration must be within 1..%d seconds", domain.ErrInvalidRequest, catalog.MaxBucketSeconds)
	}
	if r.Tier == "" {
		r.Tier = domain.TierStandard
	}
	if r.AspectRatio == "" {
		r.AspectRatio = "9:16"
	}
	return nil
}

// Submit runs the saga: classify → select → quote → job row → debit →
// dispatch. On any failure after the debit the credits come back; the job
// row survives as the audit trail.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if err := req.validate(); err != nil {
		return uuid.Nil, err
	}

	riskLevel := risk.Classify(req.Script, len(req.ImageURLs))
	format := catalog.FormatFor(req.Style, req.Seconds)
	backend := s.selector.SelectForRisk(format, riskLevel, req.Tier)

	quote, err := catalog.QuoteSingleCall(backend, req.Seconds, s.opts.CreditUnitUSD)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	job := &domain.GenerationJob{
		ID:                uuid.New(),
		OwnerID:           req.OwnerID,
		Status:            domain.JobStatusProcessing,
		BackendID:         backend.ID,
		Style:             req.Style,
		AspectRatio:       req.AspectRatio,
		RiskLevel:         riskLevel,
		QualityTier:       req.Tier,
		Script:            req.Script,
		ImageURLs:         req.ImageURLs,
		RequestedSeconds:  req.Seconds,
		DispatchedSeconds: quote.Seconds,
		CostCredits:       quote.Credits,
		CostUSD:           quote.USD,
		AutoRegenerate:    req.AutoRegenerate,
	}

	// The job row is created before the debit so that every ledger entry
	// can reference it; if the debit fails, the row is rolled back.
	if err := s.jobs.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}

	debit := &domain.LedgerEntry{
		ID:      uuid.New(),
		OwnerID: req.OwnerID,
		Amount:  -quote.Credits,
		Kind:    domain.EntryKindDebit,
		JobID:   &job.ID,
		Note:    fmt.Sprintf("generation on %s (%ds)", backend.ID, quote.Seconds),
	}
	if err := s.ledger.DebitIfSufficient(ctx, debit); err != nil {
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("job_id", job.ID.String()).Msg("failed to roll back job row after debit failure")
		}
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("debit credits: %w", err)
	}

	if s.metrics != nil {
		s.metrics.JobsSubmitted.Inc()
		s.metrics.JobsInFlight.Inc()
	}

	if err := s.dispatch(ctx, job, backend); err != nil {
		s.failWithRefund(ctx, job, providerFailureReason(err))
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return job.ID, nil
}

// dispatch calls the provider through the rate limiter and the breaker and
// records the task handle on success.
func (s *Service) dispatch(ctx context.Context, job *domain.GenerationJob, backend catalog.Backend) error {
	if err := s.limits.Wait(ctx, ratelimit.DepProvider); err != nil {
		return err
	}

	var taskID string
	err := s.brk.Execute(ctx, func(ctx context.Context) error {
		var dispatchErr error
		taskID, dispatchErr = s.provider.Dispatch(ctx, videoprovider.DispatchRequest{
			Script:      job.Script,
			ImageURLs:   job.ImageURLs,
			AspectRatio: job.AspectRatio,
			Seconds:     job.DispatchedSeconds,
			BackendName: s.backendProviderName(job.BackendID),
			RiskHint:    string(job.RiskLevel),
			TierHint:    string(job.QualityTier),
			RequestID:   job.ID.String(),
		})
		return dispatchErr
	})
	s.countProviderCall("dispatch", err)
	if err != nil {
		if breaker.IsOpen(err) {
			// Distinguish systemic outages from one-off call failures.
			s.logger.Warn().Str("job_id", job.ID.String()).Msg("dispatch rejected: upstream known-unhealthy")
		} else {
			s.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("dispatch failed: upstream call failed")
		}
		return err
	}

	if err := s.jobs.SetProviderTask(ctx, job.ID, taskID); err != nil {
		return fmt.Errorf("record provider task: %w", err)
	}
	job.ProviderTaskID = &taskID
	return nil
}

func (s *Service) backendProviderName(backendID string) string {
	if b, ok := s.catalog.ByID(backendID); ok {
		return b.ProviderName
	}
	return backendID
}

// failWithRefund moves the job to failed and restores the owner's credits.
// The refund targets the job that carries the debit, which for a
// regeneration attempt is the original job.
func (s *Service) failWithRefund(ctx context.Context, job *domain.GenerationJob, reason string) {
	if err := s.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to mark job failed")
	}
	s.setCachedStatus(ctx, job.OwnerID, job.ID, domain.JobStatusFailed)
	if s.metrics != nil {
		s.metrics.JobsFailed.Inc()
		s.metrics.JobsInFlight.Dec()
	}
	s.refund(ctx, job, reason)
}

// refund issues exactly one offsetting refund entry for the debit behind
// this job (or behind the job it regenerates).
func (s *Service) refund(ctx context.Context, job *domain.GenerationJob, reason string) {
	debitedJobID := job.ID
	amount := job.CostCredits
	if job.IsRegeneration && job.RegeneratedFromID != nil {
		// Regenerations are not debited; the credits to restore sit on the
		// original job.
		original, err := s.jobs.GetByID(ctx, *job.RegeneratedFromID)
		if err != nil {
			s.accountingDefect(ctx, job.ID, fmt.Errorf("resolve original job for refund: %w", err))
			return
		}
		debitedJobID = original.ID
		amount = original.CostCredits
	}
	if amount <= 0 {
		return
	}

	entry := &domain.LedgerEntry{
		ID:      uuid.New(),
		OwnerID: job.OwnerID,
		Amount:  amount,
		Kind:    domain.EntryKindRefund,
		JobID:   &debitedJobID,
		Note:    reason,
	}
	if err := s.ledger.Insert(ctx, entry); err != nil {
		s.accountingDefect(ctx, debitedJobID, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RefundsIssued.Inc()
	}
}

// accountingDefect records the one failure class the system cannot
// self-heal: a refund that should exist but does not. Credits are lost
// until a human reconciles the ledger, so this logs above ordinary errors.
func (s *Service) accountingDefect(ctx context.Context, jobID uuid.UUID, err error) {
	s.logger.Error().
		Err(err).
		Bool("accounting_defect", true).
		Str("job_id", jobID.String()).
		Msg("refund insert failed after successful debit; manual reconciliation required")
	if s.metrics != nil {
		s.metrics.AccountingDefects.Inc()
	}
}

func (s *Service) setCachedStatus(ctx context.Context, ownerID, jobID uuid.UUID, status domain.JobStatus) {
	if err := s.statuses.SetJobStatus(ctx, ownerID, jobID, string(status), time.Hour); err != nil {
		s.logger.Debug().Err(err).Str("job_id", jobID.String()).Msg("job status cache write failed")
	}
}

func (s *Service) countProviderCall(call string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case breaker.IsOpen(err):
		outcome = "breaker_open"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ProviderCalls.WithLabelValues(call, outcome).Inc()
}

func providerFailureReason(err error) string {
	if breaker.IsOpen(err) {
		return fmt.Sprintf("upstream known-unhealthy: %v", err)
	}
	return fmt.Sprintf("provider dispatch failed: %v", err)
}

// Balance returns the owner's derived credit balance.
func (s *Service) Balance(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return s.ledger.Balance(ctx, ownerID)
}

// GrantCredits appends a purchase or bonus entry and returns the new
// balance.
func (s *Service) GrantCredits(ctx context.Context, ownerID uuid.UUID, amount int64, kind domain.LedgerEntryKind, note string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant amount must be positive", domain.ErrInvalidRequest)
	}
	if kind != domain.EntryKindPurchase && kind != domain.EntryKindBonus {
		return 0, fmt.Errorf("%w: unsupported grant kind %q", domain.ErrInvalidRequest, kind)
	}
	entry := &domain.LedgerEntry{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Amount:  amount,
		Kind:    kind,
		Note:    note,
	}
	if err := s.ledger.Insert(ctx, entry); err != nil {
		return 0, fmt.Errorf("insert grant: %w", err)
	}
	return s.ledger.Balance(ctx, ownerID)
}

// Job fetches a job with its result link signed if the render was copied
// into object storage.
func (s *Service) Job(ctx context.Context, jobID uuid.UUID) (*domain.GenerationJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.StorageKey != nil && s.store != nil {
		if signed, err := s.store.Sign(*job.StorageKey, s.opts.SignedURLTTL); err == nil {
			job.ResultURL = &signed
		}
	}
	return job, nil
}

// CachedStatus serves the status endpoint: cache first, database second.
// The cache key carries the owner, so a hit is already ownership-checked;
// on a miss the job row's owner is compared and a mismatch reads as not
// found.
func (s *Service) CachedStatus(ctx context.Context, ownerID, jobID uuid.UUID) (domain.JobStatus, error) {
	if status, ok, err := s.statuses.GetJobStatus(ctx, ownerID, jobID); err == nil && ok {
		return domain.JobStatus(status), nil
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.OwnerID != ownerID {
		return "", domain.ErrNotFound
	}
	return job.Status, nil
}
