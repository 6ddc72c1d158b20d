package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelgen/internal/domain"
)

// LedgerRepositoryPG implements domain.LedgerRepository over an
// append-only ledger_entries table.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new ledger repository backed by PostgreSQL.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

// Balance derives the owner's balance as the sum of their entry amounts.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE owner_id = $1;`,
		ownerID,
	).Scan(&balance)
	return balance, err
}

// Insert appends an entry unconditionally.
func (r *LedgerRepositoryPG) Insert(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
INSERT INTO ledger_entries (id, owner_id, amount, kind, job_id, note)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.OwnerID, entry.Amount, entry.Kind, entry.JobID, entry.Note)
	return err
}

// DebitIfSufficient appends a generation debit only if the derived balance
// stays non-negative. The check and the insert run under a per-owner
// advisory lock so two concurrent debits can never both pass against an
// insufficient balance.
func (r *LedgerRepositoryPG) DebitIfSufficient(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative, got %d", entry.Amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0));`,
		entry.OwnerID,
	); err != nil {
		return fmt.Errorf("acquire owner lock: %w", err)
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO ledger_entries (id, owner_id, amount, kind, job_id, note)
SELECT $1, $2, $3, $4, $5, $6
WHERE (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE owner_id = $2) + $3 >= 0;
`,
		entry.ID, entry.OwnerID, entry.Amount, entry.Kind, entry.JobID, entry.Note)
	if err != nil {
		return fmt.Errorf("insert debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientCredits
	}
	return tx.Commit(ctx)
}

// EntriesForJob lists the entries linked to a job, oldest first.
func (r *LedgerRepositoryPG) EntriesForJob(ctx context.Context, jobID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, owner_id, amount, kind, job_id, note, created_at
FROM ledger_entries
WHERE job_id = $1
ORDER BY created_at ASC;
`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Amount, &e.Kind, &e.JobID, &e.Note, &e.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
