package content

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"radboard/internal/domain"
	"radboard/internal/eventbus"
	"radboard/internal/infra"
)

// Generator is the slice of the orchestrator the content layer depends on.
type Generator interface {
	Submit(ctx context.Context, postID string, kind domain.JobKind, params domain.GenerationParams) (*domain.GenerationJob, error)
	CancelForPost(ctx context.Context, postID string) error
}

// GenerateSpec asks for AI media to be attached to a new post.
type GenerateSpec struct {
	Kind   domain.JobKind
	Params domain.GenerationParams
}

// Service is the content collaborator around the generation/realtime core.
// It keeps posts, comments, and reaction tallies in memory (the durable
// schema for non-generation entities is out of scope here), publishes
// content events onto the bus, and applies job_updated events back onto the
// owning post so a finished artifact becomes visible.
type Service struct {
	bus    *eventbus.Bus
	gen    Generator
	logger infra.Logger
	sub    *eventbus.Subscription

	mu       sync.RWMutex
	posts    map[string]*domain.Post
	comments map[string][]domain.Comment
}

// NewService wires the content layer and subscribes it to job updates.
func NewService(bus *eventbus.Bus, gen Generator, logger infra.Logger) *Service {
	s := &Service{
		bus:      bus,
		gen:      gen,
		logger:   logger,
		posts:    make(map[string]*domain.Post),
		comments: make(map[string][]domain.Comment),
	}
	s.sub = bus.Subscribe([]domain.Topic{domain.TopicJobUpdated}, "", s.applyJobUpdate)
	return s
}

// Close stops the job-update subscription.
func (s *Service) Close() {
	if s.sub != nil {
		s.sub.Cancel()
	}
}

// CreatePost stores a new post, optionally submitting a generation job for
// its media slot, and publishes post_created. The post is created even when
// generation is requested; the media slot fills in (or fails) later.
func (s *Service) CreatePost(ctx context.Context, author, body string, tags []string, gen *GenerateSpec) (domain.Post, *domain.GenerationJob, error) {
	post := &domain.Post{
		ID:        uuid.NewString(),
		Author:    author,
		Content:   body,
		Tags:      normalizeTags(tags),
		Reactions: map[string]int{},
		CreatedAt: time.Now(),
	}
	if gen != nil {
		post.MediaKind = gen.Kind
		post.MediaState = domain.MediaStateGenerating
	}

	// Insert before submitting: a provider that rejects instantly publishes
	// job_updated(failed) before Submit returns, and applyJobUpdate must find
	// the post to mark its media slot.
	s.mu.Lock()
	s.posts[post.ID] = post
	s.mu.Unlock()

	var job *domain.GenerationJob
	if gen != nil {
		submitted, err := s.gen.Submit(ctx, post.ID, gen.Kind, gen.Params)
		if err != nil {
			s.mu.Lock()
			delete(s.posts, post.ID)
			s.mu.Unlock()
			return domain.Post{}, nil, err
		}
		job = submitted
	}

	// Re-read under the lock so the snapshot reflects any job update that
	// already landed.
	s.mu.Lock()
	snapshot := snapshotPost(post)
	s.mu.Unlock()

	s.bus.Publish(domain.Event{Topic: domain.TopicPostCreated, Payload: snapshot})
	return snapshot, job, nil
}

// GetPost returns a snapshot of the post.
func (s *Service) GetPost(ctx context.Context, postID string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[postID]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return snapshotPost(post), nil
}

// ListPosts returns snapshots of every post, newest first.
func (s *Service) ListPosts(ctx context.Context) []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Post, 0, len(s.posts))
	for _, post := range s.posts {
		out = append(out, snapshotPost(post))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// DeletePost removes the post and cancels any outstanding generation job.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	s.mu.Lock()
	_, ok := s.posts[postID]
	delete(s.posts, postID)
	delete(s.comments, postID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.gen.CancelForPost(ctx, postID); err != nil && err != domain.ErrNotFound && err != domain.ErrTerminal {
		s.logger.Warn().Err(err).Str("post_id", postID).Msg("content: cancel generation on delete failed")
	}
	return nil
}

// AddComment stores a comment and publishes comment_added scoped to the
// post's room.
func (s *Service) AddComment(ctx context.Context, postID, author, body string) (domain.Comment, error) {
	s.mu.Lock()
	if _, ok := s.posts[postID]; !ok {
		s.mu.Unlock()
		return domain.Comment{}, domain.ErrNotFound
	}
	comment := domain.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Author:    author,
		Content:   body,
		CreatedAt: time.Now(),
	}
	s.comments[postID] = append(s.comments[postID], comment)
	s.mu.Unlock()

	s.bus.Publish(domain.Event{
		Topic:   domain.TopicCommentAdded,
		Scope:   domain.PostScope(postID),
		Payload: comment,
	})
	return comment, nil
}

// ListComments returns the post's comments in insertion order.
func (s *Service) ListComments(ctx context.Context, postID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.posts[postID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Comment(nil), s.comments[postID]...), nil
}

// AddReaction bumps the tally for the reaction and publishes the full
// per-post counts (snapshot, not delta, so redelivery is idempotent).
func (s *Service) AddReaction(ctx context.Context, postID, reaction string) (domain.ReactionTally, error) {
	reaction = strings.TrimSpace(reaction)
	if reaction == "" {
		return domain.ReactionTally{}, domain.ErrNotFound
	}
	s.mu.Lock()
	post, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		return domain.ReactionTally{}, domain.ErrNotFound
	}
	post.Reactions[reaction]++
	tally := domain.ReactionTally{PostID: postID, Reactions: copyCounts(post.Reactions)}
	s.mu.Unlock()

	s.bus.Publish(domain.Event{
		Topic:   domain.TopicReactionAdded,
		Scope:   domain.PostScope(postID),
		Payload: tally,
	})
	return tally, nil
}

// applyJobUpdate attaches a finished artifact to its owning post, or marks
// the media slot failed. A failed generation leaves the post visible with
// the failure indicator; it never removes the post.
func (s *Service) applyJobUpdate(evt domain.Event) {
	snap, ok := evt.Payload.(domain.JobSnapshot)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[snap.PostID]
	if !ok {
		return
	}
	switch snap.Status {
	case domain.JobStatusSucceeded:
		post.MediaRef = snap.ResultRef
		post.MediaState = domain.MediaStateReady
	case domain.JobStatusFailed:
		post.MediaState = domain.MediaStateFailed
	case domain.JobStatusCancelled:
		post.MediaKind = ""
		post.MediaState = domain.MediaStateNone
	}
}

func snapshotPost(post *domain.Post) domain.Post {
	out := *post
	out.Tags = append([]string(nil), post.Tags...)
	out.Reactions = copyCounts(post.Reactions)
	return out
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
