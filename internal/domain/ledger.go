package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntryKind enumerates the ways an owner's credit balance can change.
type LedgerEntryKind string

const (
	EntryKindPurchase LedgerEntryKind = "purchase"
	EntryKindDebit    LedgerEntryKind = "generation_debit"
	EntryKindRefund   LedgerEntryKind = "refund"
	EntryKindBonus    LedgerEntryKind = "bonus"
)

// LedgerEntry is an immutable, append-only record of a balance change.
// An owner's balance is the sum of their entry amounts; debits are negative.
type LedgerEntry struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Amount  int64
	Kind    LedgerEntryKind
	// JobID links debits and refunds back to the generation they paid for.
	// Purchases and bonuses carry no job reference.
	JobID     *uuid.UUID
	Note      string
	CreatedAt time.Time
}
