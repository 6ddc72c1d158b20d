package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reelgen/internal/domain"
	"reelgen/internal/generation"
	"reelgen/internal/middleware"
)

type generationCreateRequest struct {
	Script         string   `json:"script"`
	ImageURLs      []string `json:"image_urls"`
	Style          string   `json:"style"`
	Seconds        int      `json:"seconds"`
	AspectRatio    string   `json:"aspect_ratio"`
	Tier           string   `json:"tier"`
	AutoRegenerate bool     `json:"auto_regenerate"`
}

type generationResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	jobID, err := a.Svc.Submit(r.Context(), generation.SubmitRequest{
		OwnerID:        ownerID,
		Script:         req.Script,
		ImageURLs:      req.ImageURLs,
		Style:          req.Style,
		Seconds:        req.Seconds,
		AspectRatio:    req.AspectRatio,
		Tier:           domain.QualityTier(req.Tier),
		AutoRegenerate: req.AutoRegenerate,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, generationResponse{JobID: jobID.String(), Status: string(domain.JobStatusProcessing)})
}

func (a *App) GenerationGet(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id must be a uuid")
		return
	}
	job, err := a.Svc.Job(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if job.OwnerID != ownerID {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":                 job.ID,
		"status":             job.Status,
		"backend_id":         job.BackendID,
		"style":              job.Style,
		"aspect_ratio":       job.AspectRatio,
		"risk_level":         job.RiskLevel,
		"quality_tier":       job.QualityTier,
		"requested_seconds":  job.RequestedSeconds,
		"dispatched_seconds": job.DispatchedSeconds,
		"cost_credits":       job.CostCredits,
		"result_url":         job.ResultURL,
		"failure_reason":     job.FailureReason,
		"quality_score":      job.QualityScore,
		"quality_issues":     job.QualityIssues,
		"is_regeneration":    job.IsRegeneration,
		"created_at":         job.CreatedAt,
		"updated_at":         job.UpdatedAt,
	})
}

// GenerationStatus is the hot polling endpoint; it reads through the
// status cache and skips the full row. The cache key carries the owner,
// so other owners' jobs read as not found.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id must be a uuid")
		return
	}
	status, err := a.Svc.CachedStatus(r.Context(), ownerID, jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"id": jobID.String(), "status": string(status)})
}
