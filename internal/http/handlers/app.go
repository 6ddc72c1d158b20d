package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"reelgen/internal/batch"
	"reelgen/internal/domain"
	"reelgen/internal/generation"
	"reelgen/internal/storage"
)

// App carries the handler dependencies. Files may be nil when no local
// object store is configured; the static route is then not mounted.
type App struct {
	Svc     *generation.Service
	Batches *batch.Orchestrator
	Files   *storage.FileStore
	Logger  zerolog.Logger
}

func NewApp(svc *generation.Service, batches *batch.Orchestrator, files *storage.FileStore, logger zerolog.Logger) *App {
	return &App{Svc: svc, Batches: batches, Files: files, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// domainError translates service errors into HTTP responses so every
// handler maps them the same way.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "credit balance too low for this generation")
	case errors.Is(err, domain.ErrItemLocked):
		a.error(w, http.StatusConflict, "item_locked", "item already dispatched a generation job")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_failure", "video provider rejected the request; credits were refunded")
	default:
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
