package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"radboard/internal/domain"
)

type requestGenerationRequest struct {
	PostID      string `json:"post_id"`
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// RequestGeneration submits a generation job for an existing post. The call
// returns 202 as soon as the job record exists; provider progress arrives as
// job_updated events.
func (a *App) RequestGeneration(w http.ResponseWriter, r *http.Request) {
	var req requestGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind, ok := parseJobKind(req.Kind)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported generation kind")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}
	if _, err := a.Content.GetPost(r.Context(), req.PostID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "post not found")
		return
	}

	job, err := a.Jobs.Submit(r.Context(), req.PostID, kind, domain.GenerationParams{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			a.error(w, http.StatusConflict, "conflict", "an active generation job already exists for this post")
			return
		}
		a.Logger.Error().Err(err).Str("post_id", req.PostID).Msg("handlers: submit generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to submit generation")
		return
	}
	a.json(w, http.StatusAccepted, job.Snapshot())
}

// GetGeneration returns a job snapshot.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, job.Snapshot())
}

// CancelGeneration cancels the post's active generation job.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	err := a.Jobs.CancelForPost(r.Context(), postID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "no active generation job for post")
	case errors.Is(err, domain.ErrTerminal):
		a.error(w, http.StatusConflict, "conflict", "job already finished")
	default:
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel generation")
	}
}
