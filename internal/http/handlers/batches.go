package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reelgen/internal/batch"
	"reelgen/internal/domain"
	"reelgen/internal/middleware"
)

type batchItemRequest struct {
	SourceURL string `json:"source_url"`
	Style     string `json:"style"`
	Seconds   int    `json:"seconds"`
}

type batchCreateRequest struct {
	Items          []batchItemRequest `json:"items"`
	Tier           string             `json:"tier"`
	AutoRegenerate bool               `json:"auto_regenerate"`
}

func (a *App) BatchesCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	tier := domain.QualityTier(req.Tier)
	if tier == "" {
		tier = domain.TierStandard
	}

	items := make([]batch.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, batch.ItemRequest{
			SourceURL:      item.SourceURL,
			Style:          item.Style,
			Seconds:        item.Seconds,
			Tier:           tier,
			AutoRegenerate: req.AutoRegenerate,
		})
	}

	created, err := a.Batches.Create(r.Context(), ownerID, items)
	if err != nil {
		a.domainError(w, err)
		return
	}

	// Processing outlives the request; the run gets its own context bounded
	// only by a generous ceiling. If this process dies mid-run, the worker's
	// reclaim loop resumes the batch from its persisted settings.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Hour)
		defer cancel()
		if err := a.Batches.Run(ctx, created.ID); err != nil {
			a.Logger.Error().Err(err).Str("batch_id", created.ID.String()).Msg("batch run aborted")
		}
	}()

	a.json(w, http.StatusAccepted, map[string]any{
		"batch_id":         created.ID,
		"status":           created.Status,
		"item_count":       created.ItemCount,
		"reserved_credits": created.ReservedCredits,
	})
}

func (a *App) BatchGet(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	batchID, err := uuid.Parse(chi.URLParam(r, "batch_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "batch_id must be a uuid")
		return
	}
	b, err := a.Batches.Get(r.Context(), batchID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if b.OwnerID != ownerID {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	items, err := a.Batches.Items(r.Context(), batchID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]any{
			"id":            item.ID,
			"position":      item.Position,
			"source_url":    item.SourceURL,
			"style":         item.Style,
			"seconds":       item.Seconds,
			"status":        item.Status,
			"job_id":        item.JobID,
			"error_message": item.ErrorMessage,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":               b.ID,
		"status":           b.Status,
		"item_count":       b.ItemCount,
		"reserved_credits": b.ReservedCredits,
		"error_message":    b.ErrorMessage,
		"created_at":       b.CreatedAt,
		"items":            rows,
	})
}

func (a *App) BatchItemDelete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	itemID, err := uuid.Parse(chi.URLParam(r, "item_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "item_id must be a uuid")
		return
	}
	if err := a.Batches.DeleteItem(r.Context(), itemID, ownerID); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
