package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelgen/internal/breaker"
	"reelgen/internal/catalog"
	"reelgen/internal/domain"
	"reelgen/internal/generation"
	"reelgen/internal/providers/scrape"
	"reelgen/internal/providers/script"
	videoprovider "reelgen/internal/providers/video"
	"reelgen/internal/ratelimit"
)

// memBatches is an in-memory BatchRepository.
type memBatches struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*domain.BatchJob
	items   map[uuid.UUID]*domain.BatchItem
}

func newMemBatches() *memBatches {
	return &memBatches{
		batches: make(map[uuid.UUID]*domain.BatchJob),
		items:   make(map[uuid.UUID]*domain.BatchItem),
	}
}

func (m *memBatches) CreateBatch(_ context.Context, batch *domain.BatchJob, items []domain.BatchItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *batch
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.batches[batch.ID] = &cp
	for i := range items {
		item := items[i]
		m.items[item.ID] = &item
	}
	return nil
}

func (m *memBatches) GetBatch(_ context.Context, batchID uuid.UUID) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBatches) ListItems(_ context.Context, batchID uuid.UUID) ([]domain.BatchItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BatchItem
	for _, item := range m.items {
		if item.BatchID == batchID {
			out = append(out, *item)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Position < out[i].Position {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memBatches) MarkItemProcessing(_ context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.Status != domain.BatchItemPending {
		return domain.ErrNotFound
	}
	item.Status = domain.BatchItemProcessing
	return nil
}

func (m *memBatches) CompleteItem(_ context.Context, itemID, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.Status != domain.BatchItemProcessing {
		return nil
	}
	item.Status = domain.BatchItemCompleted
	item.JobID = &jobID
	return nil
}

func (m *memBatches) FailItem(_ context.Context, itemID uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.Status != domain.BatchItemProcessing {
		return nil
	}
	item.Status = domain.BatchItemFailed
	item.ErrorMessage = message
	return nil
}

func (m *memBatches) DeleteItem(_ context.Context, itemID, ownerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	if item.JobID != nil {
		return domain.ErrItemLocked
	}
	item.Status = domain.BatchItemDeleted
	return nil
}

func (m *memBatches) FinalizeBatch(_ context.Context, batchID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	var total, completed, failed int
	for _, item := range m.items {
		if item.BatchID != batchID || item.Status == domain.BatchItemDeleted {
			continue
		}
		total++
		switch item.Status {
		case domain.BatchItemCompleted:
			completed++
		case domain.BatchItemFailed:
			failed++
		}
	}
	switch {
	case completed+failed < total:
	case failed == 0:
		b.Status = domain.BatchStatusCompleted
	case completed == 0:
		b.Status = domain.BatchStatusFailed
	default:
		b.Status = domain.BatchStatusPartialFailure
	}
	return nil
}

func (m *memBatches) ListStalled(_ context.Context, cutoff time.Time, limit int) ([]domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BatchJob
	for _, b := range m.batches {
		if b.Status != domain.BatchStatusProcessing || !b.CreatedAt.Before(cutoff) {
			continue
		}
		for _, item := range m.items {
			if item.BatchID == b.ID && item.Status == domain.BatchItemPending {
				out = append(out, *b)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeScraper serves canned pages; URLs in failing error out.
type fakeScraper struct {
	failing map[string]bool
}

func (f *fakeScraper) Fetch(_ context.Context, pageURL string) (*scrape.Page, error) {
	if f.failing[pageURL] {
		return nil, fmt.Errorf("scrape: service error 500 for %s", pageURL)
	}
	return &scrape.Page{
		Title:       "Handmade Ceramic Mug",
		Description: "A mug.",
		Images:      []string{"https://img/a.jpg", "https://img/b.jpg"},
	}, nil
}

type fakeScripter struct{}

func (fakeScripter) Generate(_ context.Context, req script.Request) (string, error) {
	return fmt.Sprintf("A %d second tour of %s.", req.Seconds, req.Title), nil
}

// failOnceProvider rejects exactly one dispatch, then behaves.
type failOnceProvider struct {
	mu     sync.Mutex
	failed bool
	next   int
}

func (p *failOnceProvider) Dispatch(context.Context, videoprovider.DispatchRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.failed {
		p.failed = true
		return "", fmt.Errorf("provider 503: no capacity")
	}
	p.next++
	return fmt.Sprintf("task-%d", p.next), nil
}

func (p *failOnceProvider) PollStatus(context.Context, string) (videoprovider.TaskStatus, error) {
	return videoprovider.TaskStatus{State: videoprovider.TaskProcessing}, nil
}

// memJobs / memLedger: the minimum JobRepository and LedgerRepository the
// saga needs for orchestrator tests.
type memJobs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.GenerationJob
}

func (m *memJobs) Create(_ context.Context, job *domain.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.rows[job.ID] = &cp
	return nil
}

func (m *memJobs) Delete(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, jobID)
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID uuid.UUID) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) SetProviderTask(_ context.Context, jobID uuid.UUID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.rows[jobID]; ok {
		job.ProviderTaskID = &taskID
	}
	return nil
}

func (m *memJobs) UpdateQuality(context.Context, uuid.UUID, float64, []string) error { return nil }
func (m *memJobs) MarkCompleted(context.Context, uuid.UUID, string, *string) error   { return nil }

func (m *memJobs) MarkFailed(_ context.Context, jobID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.rows[jobID]; ok {
		job.Status = domain.JobStatusFailed
		job.FailureReason = &reason
	}
	return nil
}

func (m *memJobs) MarkRegenerating(context.Context, uuid.UUID) error { return nil }
func (m *memJobs) ListProcessing(context.Context, int) ([]domain.GenerationJob, error) {
	return nil, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
}

func (m *memLedger) Balance(_ context.Context, ownerID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *memLedger) Insert(_ context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) DebitIfSufficient(ctx context.Context, entry *domain.LedgerEntry) error {
	balance, _ := m.Balance(ctx, entry.OwnerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if balance+entry.Amount < 0 {
		return domain.ErrInsufficientCredits
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) EntriesForJob(context.Context, uuid.UUID) ([]domain.LedgerEntry, error) {
	return nil, nil
}

func (m *memLedger) entriesOfKind(kind domain.LedgerEntryKind) []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type orchestratorRig struct {
	orch    *Orchestrator
	batches *memBatches
	jobs    *memJobs
	ledger  *memLedger
	scraper *fakeScraper
}

func newOrchestratorRig(t *testing.T) *orchestratorRig {
	t.Helper()
	return newOrchestratorRigWith(t, videoprovider.NewStub(time.Hour))
}

func newOrchestratorRigWith(t *testing.T, provider videoprovider.Client) *orchestratorRig {
	t.Helper()
	jobs := &memJobs{rows: make(map[uuid.UUID]*domain.GenerationJob)}
	ledger := &memLedger{}
	batches := newMemBatches()
	scraper := &fakeScraper{failing: make(map[string]bool)}

	cat := catalog.NewCatalog()
	selector := catalog.NewSelector(cat, zerolog.Nop())
	limits := ratelimit.NewSet(100000, 100000, 100000)

	svc := generation.NewService(
		jobs, ledger, cat, selector,
		provider,
		breaker.New(5, time.Minute, zerolog.Nop()),
		limits, nil, nil, nil, zerolog.Nop(), nil,
		generation.Options{
			CreditUnitUSD:        0.005,
			QualityMinScore:      0.70,
			MaxAutoRegenerations: 1,
			ProcessingTimeout:    time.Hour,
		},
	)

	orch := NewOrchestrator(svc, batches, scraper, fakeScripter{}, selector, limits, nil, zerolog.Nop(), Options{
		WindowSize:    2,
		ItemStagger:   time.Millisecond,
		WindowDelay:   time.Millisecond,
		CreditUnitUSD: 0.005,
	})
	return &orchestratorRig{orch: orch, batches: batches, jobs: jobs, ledger: ledger, scraper: scraper}
}

func (r *orchestratorRig) fund(t *testing.T, ownerID uuid.UUID, amount int64) {
	t.Helper()
	require.NoError(t, r.ledger.Insert(context.Background(), &domain.LedgerEntry{
		ID: uuid.New(), OwnerID: ownerID, Amount: amount, Kind: domain.EntryKindPurchase,
	}))
}

func itemRequests(urls ...string) []ItemRequest {
	out := make([]ItemRequest, 0, len(urls))
	for _, u := range urls {
		out = append(out, ItemRequest{
			SourceURL: u,
			Style:     catalog.StyleCinematic,
			Seconds:   10,
			Tier:      domain.TierStandard,
		})
	}
	return out
}

func TestCreateReservesCredits(t *testing.T) {
	rig := newOrchestratorRig(t)
	owner := uuid.New()

	batch, err := rig.orch.Create(context.Background(), owner, itemRequests(
		"https://shop/a", "https://shop/b", "https://shop/c",
	))
	require.NoError(t, err)
	assert.Equal(t, 3, batch.ItemCount)
	// Three cinematic:short items on kling-std at 140 credits each.
	assert.Equal(t, int64(420), batch.ReservedCredits)
	assert.Equal(t, domain.BatchStatusProcessing, batch.Status)

	items, err := rig.batches.ListItems(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i, item.Position)
		assert.Equal(t, domain.BatchItemPending, item.Status)
	}
}

func TestCreateValidation(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := rig.orch.Create(ctx, uuid.Nil, itemRequests("https://shop/a"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = rig.orch.Create(ctx, owner, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	bad := itemRequests("https://shop/a")
	bad[0].Style = "noir"
	_, err = rig.orch.Create(ctx, owner, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	bad = itemRequests("https://shop/a")
	bad[0].Seconds = 0
	_, err = rig.orch.Create(ctx, owner, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	bad = itemRequests("")
	_, err = rig.orch.Create(ctx, owner, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()
	rig.fund(t, owner, 10000)
	rig.scraper.failing["https://shop/broken"] = true

	batch, err := rig.orch.Create(ctx, owner, itemRequests(
		"https://shop/a", "https://shop/broken", "https://shop/b", "https://shop/c",
	))
	require.NoError(t, err)

	require.NoError(t, rig.orch.Run(ctx, batch.ID))

	items, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)

	var completed, failed int
	for _, item := range items {
		switch item.Status {
		case domain.BatchItemCompleted:
			completed++
			assert.NotNil(t, item.JobID)
		case domain.BatchItemFailed:
			failed++
			assert.Contains(t, item.ErrorMessage, "scrape")
		}
	}
	assert.Equal(t, 3, completed)
	assert.Equal(t, 1, failed)

	got, err := rig.batches.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPartialFailure, got.Status)

	// Three sagas debited; the failed scrape never reached the ledger.
	balance, err := rig.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10000-3*140), balance)
}

func TestRunProviderFailureRefundsOnlyThatItem(t *testing.T) {
	rig := newOrchestratorRigWith(t, &failOnceProvider{})
	ctx := context.Background()
	owner := uuid.New()
	rig.fund(t, owner, 10000)

	batch, err := rig.orch.Create(ctx, owner, itemRequests(
		"https://shop/a", "https://shop/b", "https://shop/c",
	))
	require.NoError(t, err)
	require.NoError(t, rig.orch.Run(ctx, batch.ID))

	items, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)

	var completed, failed int
	for _, item := range items {
		switch item.Status {
		case domain.BatchItemCompleted:
			completed++
			assert.NotNil(t, item.JobID)
		case domain.BatchItemFailed:
			failed++
			assert.Contains(t, item.ErrorMessage, "provider")
		}
	}
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)

	got, err := rig.batches.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPartialFailure, got.Status)

	// The rejected item was debited and then refunded in full; only the
	// two dispatched sagas hold debits.
	debits := rig.ledger.entriesOfKind(domain.EntryKindDebit)
	refunds := rig.ledger.entriesOfKind(domain.EntryKindRefund)
	assert.Len(t, debits, 3)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(140), refunds[0].Amount)

	balance, err := rig.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10000-2*140), balance)
}

func TestRunAllItemsSucceed(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()
	rig.fund(t, owner, 10000)

	batch, err := rig.orch.Create(ctx, owner, itemRequests("https://shop/a", "https://shop/b"))
	require.NoError(t, err)
	require.NoError(t, rig.orch.Run(ctx, batch.ID))

	got, err := rig.batches.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
}

func TestRunInsufficientCreditsFailsItems(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()
	rig.fund(t, owner, 150) // enough for one 140-credit item

	batch, err := rig.orch.Create(ctx, owner, itemRequests("https://shop/a", "https://shop/b"))
	require.NoError(t, err)
	require.NoError(t, rig.orch.Run(ctx, batch.ID))

	items, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)

	var completed, failed int
	for _, item := range items {
		switch item.Status {
		case domain.BatchItemCompleted:
			completed++
		case domain.BatchItemFailed:
			failed++
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)

	balance, err := rig.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestRunCancelledContext(t *testing.T) {
	rig := newOrchestratorRig(t)
	owner := uuid.New()
	rig.fund(t, owner, 10000)

	batch, err := rig.orch.Create(context.Background(), owner, itemRequests("https://shop/a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rig.orch.Run(ctx, batch.ID), context.Canceled)
}

func TestDeleteItemSemantics(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()
	rig.fund(t, owner, 10000)

	batch, err := rig.orch.Create(ctx, owner, itemRequests("https://shop/a", "https://shop/b"))
	require.NoError(t, err)
	items, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)

	// Pending items delete freely; nothing was debited for them.
	require.NoError(t, rig.orch.DeleteItem(ctx, items[0].ID, owner))
	balance, err := rig.ledger.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)

	// Another owner cannot delete.
	assert.ErrorIs(t, rig.orch.DeleteItem(ctx, items[1].ID, uuid.New()), domain.ErrNotFound)

	// After the run, the surviving item owns a job and is locked.
	require.NoError(t, rig.orch.Run(ctx, batch.ID))
	assert.ErrorIs(t, rig.orch.DeleteItem(ctx, items[1].ID, owner), domain.ErrItemLocked)

	// The deleted item was skipped entirely.
	refreshed, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)
	for _, item := range refreshed {
		if item.ID == items[0].ID {
			assert.Equal(t, domain.BatchItemDeleted, item.Status)
			assert.Nil(t, item.JobID)
		}
	}
}

func TestReclaimStalledResumesBatch(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()
	rig.fund(t, owner, 10000)

	// Create only; the runner that would have processed it never started,
	// as happens when the API process dies right after accepting the batch.
	batch, err := rig.orch.Create(ctx, owner, itemRequests("https://shop/a", "https://shop/b"))
	require.NoError(t, err)

	resumed, err := rig.orch.ReclaimStalled(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	got, err := rig.batches.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)

	items, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, domain.BatchItemCompleted, item.Status)
		assert.NotNil(t, item.JobID)
	}

	// A second pass finds nothing left to resume.
	resumed, err = rig.orch.ReclaimStalled(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, resumed)
}

func TestCompletionNeverResurrectsDeletedItem(t *testing.T) {
	rig := newOrchestratorRig(t)
	ctx := context.Background()
	owner := uuid.New()

	batch, err := rig.orch.Create(ctx, owner, itemRequests("https://shop/a"))
	require.NoError(t, err)
	items, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)
	itemID := items[0].ID

	require.NoError(t, rig.orch.DeleteItem(ctx, itemID, owner))

	// A racing runner that already held the item reports its outcome after
	// the delete. Neither transition may undo the deletion.
	require.NoError(t, rig.batches.CompleteItem(ctx, itemID, uuid.New()))
	require.NoError(t, rig.batches.FailItem(ctx, itemID, "late failure"))

	refreshed, err := rig.batches.ListItems(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, refreshed, 1)
	assert.Equal(t, domain.BatchItemDeleted, refreshed[0].Status)
	assert.Nil(t, refreshed[0].JobID)
	assert.Empty(t, refreshed[0].ErrorMessage)
}
