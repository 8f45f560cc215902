package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"radboard/internal/content"
	"radboard/internal/domain"
)

type generateSpecRequest struct {
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

type createPostRequest struct {
	Author   string               `json:"author"`
	Content  string               `json:"content"`
	Tags     []string             `json:"tags"`
	Generate *generateSpecRequest `json:"generate"`
}

type createPostResponse struct {
	Post domain.Post         `json:"post"`
	Job  *domain.JobSnapshot `json:"job,omitempty"`
}

// CreatePost stores a post and, when asked, submits a generation job for its
// media slot. The post is returned immediately; media arrives later over the
// realtime channel.
func (a *App) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" && req.Generate == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "post needs content or generated media")
		return
	}

	var spec *content.GenerateSpec
	if req.Generate != nil {
		kind, ok := parseJobKind(req.Generate.Kind)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unsupported generation kind")
			return
		}
		if strings.TrimSpace(req.Generate.Prompt) == "" {
			a.error(w, http.StatusBadRequest, "bad_request", "generation prompt required")
			return
		}
		spec = &content.GenerateSpec{
			Kind: kind,
			Params: domain.GenerationParams{
				Prompt:      req.Generate.Prompt,
				AspectRatio: req.Generate.AspectRatio,
			},
		}
	}

	post, job, err := a.Content.CreatePost(r.Context(), req.Author, req.Content, req.Tags, spec)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: create post failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create post")
		return
	}
	resp := createPostResponse{Post: post}
	if job != nil {
		snap := job.Snapshot()
		resp.Job = &snap
	}
	a.json(w, http.StatusCreated, resp)
}

// ListPosts returns every post, newest first.
func (a *App) ListPosts(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"posts": a.Content.ListPosts(r.Context())})
}

// GetPost returns one post with its comments.
func (a *App) GetPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	post, err := a.Content.GetPost(r.Context(), postID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	comments, _ := a.Content.ListComments(r.Context(), postID)
	a.json(w, http.StatusOK, map[string]any{"post": post, "comments": comments})
}

// DeletePost removes a post and cancels its outstanding generation, if any.
func (a *App) DeletePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	if err := a.Content.DeletePost(r.Context(), postID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addCommentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// AddComment appends a comment to the post.
func (a *App) AddComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "comment content required")
		return
	}
	comment, err := a.Content.AddComment(r.Context(), postID, req.Author, req.Content)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "post not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to add comment")
		return
	}
	a.json(w, http.StatusCreated, comment)
}

// AddReaction bumps a reaction tally and returns the full counts.
func (a *App) AddReaction(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	reaction := chi.URLParam(r, "reaction")
	tally, err := a.Content.AddReaction(r.Context(), postID, reaction)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	a.json(w, http.StatusOK, tally)
}

func parseJobKind(raw string) (domain.JobKind, bool) {
	switch domain.JobKind(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.JobKindImage:
		return domain.JobKindImage, true
	case domain.JobKindVideo:
		return domain.JobKindVideo, true
	}
	return "", false
}
