package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelgen/internal/breaker"
	"reelgen/internal/catalog"
	"reelgen/internal/domain"
	videoprovider "reelgen/internal/providers/video"
	"reelgen/internal/quality"
	"reelgen/internal/ratelimit"
	"reelgen/internal/risk"
)

const pollBatchSize = 100

// Poller drives every in-flight job toward a terminal state: it polls
// provider status, enforces the processing timeout, gates completions
// through quality validation and runs the regeneration controller.
type Poller struct {
	svc      *Service
	interval time.Duration
}

// NewPoller builds a poller over the service.
func NewPoller(svc *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{svc: svc, interval: interval}
}

// Run loops until the context is cancelled. Completion notifications may
// arrive in any order; each job is advanced independently.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.svc.logger.Error().Err(err).Msg("poll tick failed")
			}
		}
	}
}

// Tick advances every processing job once.
func (p *Poller) Tick(ctx context.Context) error {
	jobs, err := p.svc.jobs.ListProcessing(ctx, pollBatchSize)
	if err != nil {
		return fmt.Errorf("list processing jobs: %w", err)
	}
	for i := range jobs {
		p.svc.Advance(ctx, &jobs[i])
	}
	return nil
}

// Advance moves one processing job forward. Transient poll errors leave
// the job untouched; the timeout rule bounds how long that can go on.
func (s *Service) Advance(ctx context.Context, job *domain.GenerationJob) {
	if job.Status != domain.JobStatusProcessing {
		return
	}

	if age := time.Since(job.CreatedAt); age > s.opts.ProcessingTimeout {
		// Unconditional: independent of provider state, so a provider that
		// silently drops tasks cannot hold credits hostage.
		s.failWithRefund(ctx, job, fmt.Sprintf("generation timed out after %s", s.opts.ProcessingTimeout))
		return
	}

	if job.ProviderTaskID == nil {
		// Dispatch never recorded a handle; submit already failed the job
		// unless the process died mid-saga. Leave it to the timeout rule.
		return
	}

	status, err := s.pollStatus(ctx, *job.ProviderTaskID)
	if err != nil {
		if breaker.IsOpen(err) {
			s.logger.Debug().Str("job_id", job.ID.String()).Msg("status poll skipped: upstream known-unhealthy")
		} else {
			s.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("status poll failed")
		}
		return
	}

	switch status.State {
	case videoprovider.TaskProcessing:
		// Still rendering.
	case videoprovider.TaskFailed:
		reason := status.Message
		if reason == "" {
			reason = "provider reported failure"
		}
		s.failWithRefund(ctx, job, reason)
	case videoprovider.TaskSucceeded:
		s.validateAndFinish(ctx, job, status.ResultURL)
	}
}

func (s *Service) pollStatus(ctx context.Context, taskID string) (videoprovider.TaskStatus, error) {
	if err := s.limits.Wait(ctx, ratelimit.DepProvider); err != nil {
		return videoprovider.TaskStatus{}, err
	}
	var status videoprovider.TaskStatus
	err := s.brk.Execute(ctx, func(ctx context.Context) error {
		var pollErr error
		status, pollErr = s.provider.PollStatus(ctx, taskID)
		return pollErr
	})
	s.countProviderCall("poll", err)
	return status, err
}

// validateAndFinish runs the quality gate on a provider success and either
// completes the job, dispatches one regeneration, or refunds.
func (s *Service) validateAndFinish(ctx context.Context, job *domain.GenerationJob, resultURL string) {
	backend, _ := s.catalog.ByID(job.BackendID)
	validator := quality.NewValidator(s.scorer, s.opts.QualityMinScore)
	verdict, err := validator.Validate(ctx, quality.Input{
		Script:            job.Script,
		RiskLevel:         job.RiskLevel,
		BackendTags:       backend.Tags,
		RequestedSeconds:  job.RequestedSeconds,
		DispatchedSeconds: job.DispatchedSeconds,
		ResultURL:         resultURL,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("quality validation errored")
		return
	}

	if err := s.jobs.UpdateQuality(ctx, job.ID, verdict.Score, verdict.Issues); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to record quality score")
	}

	if verdict.Pass {
		s.complete(ctx, job, resultURL)
		return
	}

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Float64("score", verdict.Score).
		Strs("issues", verdict.Issues).
		Msg("quality validation failed")
	s.handleQualityFailure(ctx, job, verdict)
}

func (s *Service) complete(ctx context.Context, job *domain.GenerationJob, resultURL string) {
	var storageKey *string
	if s.store != nil {
		key, err := s.store.Store(ctx, resultURL, job.OwnerID, job.ID)
		if err != nil {
			// Non-fatal: the provider URL keeps working for a while.
			s.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("object storage copy failed, keeping provider url")
		} else {
			storageKey = &key
		}
	}
	if err := s.jobs.MarkCompleted(ctx, job.ID, resultURL, storageKey); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to mark job completed")
		return
	}
	s.setCachedStatus(ctx, job.OwnerID, job.ID, domain.JobStatusCompleted)
	if s.metrics != nil {
		s.metrics.JobsCompleted.Inc()
		s.metrics.JobsInFlight.Dec()
	}
}

// handleQualityFailure decides between one auto-regeneration and a refund.
// The cap is strict: a regeneration that itself fails quality goes straight
// to refund.
func (s *Service) handleQualityFailure(ctx context.Context, job *domain.GenerationJob, verdict quality.Result) {
	reason := qualityFailureReason(verdict)

	eligible := job.AutoRegenerate &&
		!job.IsRegeneration &&
		job.RegenerationCount < s.opts.MaxAutoRegenerations
	if !eligible {
		s.failWithRefund(ctx, job, reason)
		return
	}

	if err := s.dispatchRegeneration(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("regeneration dispatch failed, refunding instead")
		s.failWithRefund(ctx, job, reason)
	}
}

// dispatchRegeneration re-runs selection forced to the premium tier with
// freshly classified risk and dispatches a new linked job. The owner is
// not re-debited: the retry exists because the first result was
// substandard, so the platform absorbs its cost. The original debit stays
// on the original job and is refunded only if this attempt also fails.
func (s *Service) dispatchRegeneration(ctx context.Context, original *domain.GenerationJob) error {
	riskLevel := risk.Classify(original.Script, len(original.ImageURLs))
	format := catalog.FormatFor(original.Style, original.RequestedSeconds)
	backend := s.selector.SelectForRisk(format, riskLevel, domain.TierPremium)

	quote, err := catalog.QuoteSingleCall(backend, original.RequestedSeconds, s.opts.CreditUnitUSD)
	if err != nil {
		return fmt.Errorf("quote regeneration: %w", err)
	}

	regen := &domain.GenerationJob{
		ID:                uuid.New(),
		OwnerID:           original.OwnerID,
		Status:            domain.JobStatusProcessing,
		BackendID:         backend.ID,
		Style:             original.Style,
		AspectRatio:       original.AspectRatio,
		RiskLevel:         riskLevel,
		QualityTier:       domain.TierPremium,
		Script:            original.Script,
		ImageURLs:         original.ImageURLs,
		RequestedSeconds:  original.RequestedSeconds,
		DispatchedSeconds: quote.Seconds,
		// CostUSD tracks what the retry costs the platform; CostCredits is
		// zero because the owner is never billed for it.
		CostCredits:       0,
		CostUSD:           quote.USD,
		IsRegeneration:    true,
		RegeneratedFromID: &original.ID,
	}
	if err := s.jobs.Create(ctx, regen); err != nil {
		return fmt.Errorf("create regeneration job: %w", err)
	}

	if err := s.dispatch(ctx, regen, backend); err != nil {
		if delErr := s.jobs.Delete(ctx, regen.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("job_id", regen.ID.String()).Msg("failed to roll back regeneration job row")
		}
		return err
	}

	if err := s.jobs.MarkRegenerating(ctx, original.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", original.ID.String()).Msg("failed to mark original job regenerating")
	}
	s.setCachedStatus(ctx, original.OwnerID, original.ID, domain.JobStatusRegenerating)
	if s.metrics != nil {
		s.metrics.JobsRegenerated.Inc()
	}
	s.logger.Info().
		Str("job_id", original.ID.String()).
		Str("regen_job_id", regen.ID.String()).
		Str("backend", backend.ID).
		Msg("dispatched auto-regeneration")
	return nil
}

func qualityFailureReason(verdict quality.Result) string {
	if len(verdict.Issues) == 0 {
		return fmt.Sprintf("quality score %.2f below threshold", verdict.Score)
	}
	return fmt.Sprintf("quality score %.2f below threshold: %s", verdict.Score, strings.Join(verdict.Issues, "; "))
}
