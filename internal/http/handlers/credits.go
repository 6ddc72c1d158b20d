package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"reelgen/internal/domain"
	"reelgen/internal/middleware"
)

func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Svc.Balance(r.Context(), ownerID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"owner_id": ownerID, "balance": balance})
}

type creditGrantRequest struct {
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
	Note   string `json:"note"`
}

// CreditsGrant records a purchase or bonus. Payment capture happens
// upstream; this endpoint only appends the ledger entry.
func (a *App) CreditsGrant(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req creditGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind := domain.LedgerEntryKind(req.Kind)
	if kind == "" {
		kind = domain.EntryKindPurchase
	}
	balance, err := a.Svc.GrantCredits(r.Context(), ownerID, req.Amount, kind, req.Note)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"owner_id": ownerID, "balance": balance})
}
