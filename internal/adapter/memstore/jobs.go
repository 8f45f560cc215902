package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"radboard/internal/domain"
)

// JobStore keeps generation jobs in process memory. It backs development
// runs without a database and the test suite; the pgx-backed repository is
// the durable implementation.
type JobStore struct {
	mu           sync.RWMutex
	jobs         map[string]domain.GenerationJob
	activeByPost map[string]string
}

// NewJobStore constructs an empty store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:         make(map[string]domain.GenerationJob),
		activeByPost: make(map[string]string),
	}
}

// Create inserts the job, refusing while the post already has a non-terminal
// job.
func (s *JobStore) Create(ctx context.Context, job *domain.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activeByPost[job.PostID]; exists {
		return domain.ErrConflict
	}
	s.jobs[job.ID] = *job
	if job.Status.Active() {
		s.activeByPost[job.PostID] = job.ID
	}
	return nil
}

// Update replaces the stored job and maintains the active-per-post index.
func (s *JobStore) Update(ctx context.Context, job *domain.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	s.jobs[job.ID] = *job
	if job.Status.Terminal() {
		if s.activeByPost[job.PostID] == job.ID {
			delete(s.activeByPost, job.PostID)
		}
	} else {
		s.activeByPost[job.PostID] = job.ID
	}
	return nil
}

// GetByID returns a copy of the job.
func (s *JobStore) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

// GetActiveByPost returns the post's single non-terminal job.
func (s *JobStore) GetActiveByPost(ctx context.Context, postID string) (*domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobID, ok := s.activeByPost[postID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

// ListPollable returns poll-eligible jobs ordered by eligibility time.
func (s *JobStore) ListPollable(ctx context.Context, now time.Time) ([]*domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.GenerationJob
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusSubmitted && job.Status != domain.JobStatusInProgress {
			continue
		}
		if job.NextPollAt.After(now) {
			continue
		}
		j := job
		out = append(out, &j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].NextPollAt.Before(out[k].NextPollAt) })
	return out, nil
}

var _ domain.JobStore = (*JobStore)(nil)
