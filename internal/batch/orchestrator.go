// Package batch fans out many independent generation sagas with bounded
// concurrency. One item's failure never touches its siblings; backpressure
// comes in two layers, per-call rate limits and inter-window delays.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reelgen/internal/catalog"
	"reelgen/internal/domain"
	"reelgen/internal/generation"
	"reelgen/internal/metrics"
	"reelgen/internal/providers/scrape"
	"reelgen/internal/providers/script"
	"reelgen/internal/ratelimit"
)

// Options tunes orchestration concurrency.
type Options struct {
	// WindowSize is the number of items processed concurrently.
	WindowSize int
	// ItemStagger spreads the starts within a window so the scraper and
	// provider never see a simultaneous burst.
	ItemStagger time.Duration
	// WindowDelay is enforced between windows, independent of per-call
	// rate limiting.
	WindowDelay time.Duration
	// CreditUnitUSD prices the reserved-credit estimate on submission.
	CreditUnitUSD float64
}

// Orchestrator runs batches. Items share the saga service and the
// process-wide limiters; nothing else is shared between them.
type Orchestrator struct {
	svc      *generation.Service
	batches  domain.BatchRepository
	scraper  scrape.Client
	scripts  script.Client
	selector *catalog.Selector
	limits   *ratelimit.Set
	metrics  *metrics.Set
	logger   zerolog.Logger
	opts     Options
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(
	svc *generation.Service,
	batches domain.BatchRepository,
	scraper scrape.Client,
	scripts script.Client,
	selector *catalog.Selector,
	limits *ratelimit.Set,
	m *metrics.Set,
	logger zerolog.Logger,
	opts Options,
) *Orchestrator {
	if opts.WindowSize < 1 {
		opts.WindowSize = 5
	}
	return &Orchestrator{
		svc:      svc,
		batches:  batches,
		scraper:  scraper,
		scripts:  scripts,
		selector: selector,
		limits:   limits,
		metrics:  m,
		logger:   logger.With().Str("component", "batch").Logger(),
		opts:     opts,
	}
}

// ItemRequest is one row of a batch submission. Tier and AutoRegenerate
// apply batch-wide; the values from the first item are persisted on the
// batch so a resumed run keeps the submission's settings.
type ItemRequest struct {
	SourceURL      string
	Style          string
	Seconds        int
	Tier           domain.QualityTier
	AutoRegenerate bool
}

// Create validates and persists a batch with its items in the pending
// state, reserving an estimated credit total for the UI. Nothing is
// debited here.
func (o *Orchestrator) Create(ctx context.Context, ownerID uuid.UUID, items []ItemRequest) (*domain.BatchJob, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidRequest)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch needs at least one item", domain.ErrInvalidRequest)
	}

	var reserved int64
	rows := make([]domain.BatchItem, 0, len(items))
	batchID := uuid.New()
	for i, item := range items {
		if item.SourceURL == "" {
			return nil, fmt.Errorf("%w: item %d has no source url", domain.ErrInvalidRequest, i)
		}
		if !catalog.IsValidStyle(item.Style) {
			return nil, fmt.Errorf("%w: item %d has unknown style %q", domain.ErrInvalidRequest, i, item.Style)
		}
		if item.Seconds <= 0 || item.Seconds > catalog.MaxBucketSeconds {
			return nil, fmt.Errorf("%w: item %d duration out of range", domain.ErrInvalidRequest, i)
		}

		backend := o.selector.Select(catalog.FormatFor(item.Style, item.Seconds))
		quote, err := catalog.QuoteSingleCall(backend, item.Seconds, o.opts.CreditUnitUSD)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", domain.ErrInvalidRequest, i, err)
		}
		reserved += quote.Credits

		rows = append(rows, domain.BatchItem{
			ID:        uuid.New(),
			BatchID:   batchID,
			OwnerID:   ownerID,
			Position:  i,
			SourceURL: item.SourceURL,
			Style:     item.Style,
			Seconds:   item.Seconds,
			Status:    domain.BatchItemPending,
		})
	}

	tier := items[0].Tier
	if tier == "" {
		tier = domain.TierStandard
	}
	batch := &domain.BatchJob{
		ID:              batchID,
		OwnerID:         ownerID,
		ItemCount:       len(rows),
		ReservedCredits: reserved,
		Tier:            tier,
		AutoRegenerate:  items[0].AutoRegenerate,
		Status:          domain.BatchStatusProcessing,
	}
	if err := o.batches.CreateBatch(ctx, batch, rows); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return batch, nil
}

// Run processes every pending item of the batch in fixed-size windows and
// finalizes the aggregate status. Tier and auto-regeneration come from the
// batch row, so a resumed run behaves exactly like the original one.
// Errors from individual items are recorded on the items, never returned.
func (o *Orchestrator) Run(ctx context.Context, batchID uuid.UUID) error {
	b, err := o.batches.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	tier, autoRegenerate := b.Tier, b.AutoRegenerate

	items, err := o.batches.ListItems(ctx, batchID)
	if err != nil {
		return fmt.Errorf("list batch items: %w", err)
	}

	pending := items[:0]
	for _, item := range items {
		if item.Status == domain.BatchItemPending {
			pending = append(pending, item)
		}
	}

	for start := 0; start < len(pending); start += o.opts.WindowSize {
		end := start + o.opts.WindowSize
		if end > len(pending) {
			end = len(pending)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i, item := range pending[start:end] {
			item := item
			stagger := time.Duration(i) * o.opts.ItemStagger
			g.Go(func() error {
				if err := sleepCtx(gctx, stagger); err != nil {
					return err
				}
				o.processItem(gctx, item, tier, autoRegenerate)
				// Item errors are recorded on the item; only context
				// cancellation aborts the window.
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if end < len(pending) {
			if err := sleepCtx(ctx, o.opts.WindowDelay); err != nil {
				return err
			}
		}
	}

	if err := o.batches.FinalizeBatch(ctx, batchID); err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	return nil
}

// processItem runs one item end to end: scrape, script, saga. Every
// failure is caught here and recorded on the item alone.
func (o *Orchestrator) processItem(ctx context.Context, item domain.BatchItem, tier domain.QualityTier, autoRegenerate bool) {
	logger := o.logger.With().
		Str("batch_id", item.BatchID.String()).
		Str("item_id", item.ID.String()).
		Logger()

	if err := o.batches.MarkItemProcessing(ctx, item.ID); err != nil {
		// Claimed by another runner or deleted since listing; skip.
		logger.Debug().Err(err).Msg("item not claimable")
		return
	}

	jobID, err := o.runItem(ctx, item, tier, autoRegenerate)
	if err != nil {
		logger.Warn().Err(err).Msg("batch item failed")
		if failErr := o.batches.FailItem(ctx, item.ID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to record item failure")
		}
		o.countItem("failed")
		return
	}

	if err := o.batches.CompleteItem(ctx, item.ID, jobID); err != nil {
		logger.Error().Err(err).Msg("failed to record item completion")
		return
	}
	o.countItem("completed")
	logger.Info().Str("job_id", jobID.String()).Msg("batch item dispatched")
}

func (o *Orchestrator) runItem(ctx context.Context, item domain.BatchItem, tier domain.QualityTier, autoRegenerate bool) (uuid.UUID, error) {
	if err := o.limits.Wait(ctx, ratelimit.DepScrape); err != nil {
		return uuid.Nil, err
	}
	page, err := o.scraper.Fetch(ctx, item.SourceURL)
	if err != nil {
		return uuid.Nil, fmt.Errorf("scrape: %w", err)
	}
	if len(page.Images) == 0 {
		return uuid.Nil, fmt.Errorf("scrape: no images found at %s", item.SourceURL)
	}

	if err := o.limits.Wait(ctx, ratelimit.DepScript); err != nil {
		return uuid.Nil, err
	}
	text, err := o.scripts.Generate(ctx, script.Request{
		Title:       page.Title,
		Description: page.Description,
		Style:       item.Style,
		Seconds:     item.Seconds,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("script generation: %w", err)
	}

	jobID, err := o.svc.Submit(ctx, generation.SubmitRequest{
		OwnerID:        item.OwnerID,
		Script:         text,
		ImageURLs:      page.Images,
		Style:          item.Style,
		Seconds:        item.Seconds,
		Tier:           tier,
		AutoRegenerate: autoRegenerate,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return jobID, nil
}

func (o *Orchestrator) countItem(outcome string) {
	if o.metrics != nil {
		o.metrics.BatchItems.WithLabelValues(outcome).Inc()
	}
}

// Get fetches a batch.
func (o *Orchestrator) Get(ctx context.Context, batchID uuid.UUID) (*domain.BatchJob, error) {
	return o.batches.GetBatch(ctx, batchID)
}

// Items lists a batch's items in position order.
func (o *Orchestrator) Items(ctx context.Context, batchID uuid.UUID) ([]domain.BatchItem, error) {
	return o.batches.ListItems(ctx, batchID)
}

// ReclaimStalled resumes batches whose runner died before finishing, the
// usual cause being a process restart. Returns how many batches were
// resumed.
func (o *Orchestrator) ReclaimStalled(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stalled, err := o.batches.ListStalled(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stalled batches: %w", err)
	}
	for i, b := range stalled {
		o.logger.Info().Str("batch_id", b.ID.String()).Msg("resuming stalled batch")
		if err := o.Run(ctx, b.ID); err != nil {
			return i, err
		}
	}
	return len(stalled), nil
}

// DeleteItem removes a not-yet-dispatched item. The ledger is untouched:
// nothing was debited for a pending item, so deletion only releases its
// reservation. Items that own a job are locked until the job is terminal.
func (o *Orchestrator) DeleteItem(ctx context.Context, itemID, ownerID uuid.UUID) error {
	return o.batches.DeleteItem(ctx, itemID, ownerID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
