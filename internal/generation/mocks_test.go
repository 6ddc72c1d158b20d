package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelgen/internal/domain"
	videoprovider "reelgen/internal/providers/video"
)

// memJobs is an in-memory JobRepository.
type memJobs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.GenerationJob

	createErr error
}

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[uuid.UUID]*domain.GenerationJob)}
}

func (m *memJobs) Create(_ context.Context, job *domain.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
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
	job, ok := m.rows[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.ProviderTaskID = &taskID
	return nil
}

func (m *memJobs) UpdateQuality(_ context.Context, jobID uuid.UUID, score float64, issues []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.QualityScore = &score
	job.QualityIssues = issues
	return nil
}

func (m *memJobs) MarkCompleted(_ context.Context, jobID uuid.UUID, resultURL string, storageKey *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusCompleted
	job.ResultURL = &resultURL
	job.StorageKey = storageKey
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, jobID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusFailed
	job.FailureReason = &reason
	return nil
}

func (m *memJobs) MarkRegenerating(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusRegenerating
	job.RegenerationCount++
	return nil
}

func (m *memJobs) ListProcessing(_ context.Context, limit int) ([]domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationJob
	for _, job := range m.rows {
		if job.Status == domain.JobStatusProcessing && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobs) get(jobID uuid.UUID) domain.GenerationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[jobID]
}

// memLedger is an in-memory, append-only LedgerRepository.
type memLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry

	insertErr error
}

func (m *memLedger) Balance(_ context.Context, ownerID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(ownerID), nil
}

func (m *memLedger) balanceLocked(ownerID uuid.UUID) int64 {
	var sum int64
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			sum += e.Amount
		}
	}
	return sum
}

func (m *memLedger) Insert(_ context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) DebitIfSufficient(_ context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative, got %d", entry.Amount)
	}
	if m.balanceLocked(entry.OwnerID)+entry.Amount < 0 {
		return domain.ErrInsufficientCredits
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) EntriesForJob(_ context.Context, jobID uuid.UUID) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.JobID != nil && *e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
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

// fakeProvider scripts dispatch and poll outcomes.
type fakeProvider struct {
	mu          sync.Mutex
	dispatched  []videoprovider.DispatchRequest
	dispatchErr error
	nextTaskID  int
	statuses    map[string]videoprovider.TaskStatus
	pollErr     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{statuses: make(map[string]videoprovider.TaskStatus)}
}

func (p *fakeProvider) Dispatch(_ context.Context, req videoprovider.DispatchRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatchErr != nil {
		return "", p.dispatchErr
	}
	p.nextTaskID++
	taskID := fmt.Sprintf("task-%d", p.nextTaskID)
	p.dispatched = append(p.dispatched, req)
	p.statuses[taskID] = videoprovider.TaskStatus{State: videoprovider.TaskProcessing}
	return taskID, nil
}

func (p *fakeProvider) PollStatus(_ context.Context, taskID string) (videoprovider.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pollErr != nil {
		return videoprovider.TaskStatus{}, p.pollErr
	}
	status, ok := p.statuses[taskID]
	if !ok {
		return videoprovider.TaskStatus{}, fmt.Errorf("unknown task %s", taskID)
	}
	return status, nil
}

func (p *fakeProvider) setStatus(taskID string, status videoprovider.TaskStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[taskID] = status
}

func (p *fakeProvider) lastDispatch() videoprovider.DispatchRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatched[len(p.dispatched)-1]
}

// recordingCache captures status writes for assertions. Keys pair owner
// and job the way the Redis cache does.
type recordingCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: make(map[string]string)}
}

func cacheKey(ownerID, jobID uuid.UUID) string {
	return ownerID.String() + ":" + jobID.String()
}

func (c *recordingCache) SetJobStatus(_ context.Context, ownerID, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[cacheKey(ownerID, jobID)] = status
	return nil
}

func (c *recordingCache) GetJobStatus(_ context.Context, ownerID, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[cacheKey(ownerID, jobID)]
	return v, ok, nil
}

func (c *recordingCache) Ping(context.Context) error { return nil }

var _ domain.JobRepository = (*memJobs)(nil)
var _ domain.LedgerRepository = (*memLedger)(nil)
var _ videoprovider.Client = (*fakeProvider)(nil)
