package domain

import (
	"context"
	"time"
)

// JobStore defines persistence for generation jobs. Implementations must
// refuse to create a job while another non-terminal job exists for the same
// post, returning ErrConflict.
type JobStore interface {
	Create(ctx context.Context, job *GenerationJob) error
	Update(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	// GetActiveByPost returns the single non-terminal job for the post, or
	// ErrNotFound when none exists.
	GetActiveByPost(ctx context.Context, postID string) (*GenerationJob, error)
	// ListPollable returns jobs in submitted/in_progress whose NextPollAt is
	// not after now.
	ListPollable(ctx context.Context, now time.Time) ([]*GenerationJob, error)
}
