package domain

import "time"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Active reports whether a job in this status counts against the
// one-outstanding-job-per-post rule.
func (s JobStatus) Active() bool {
	return !s.Terminal()
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Cancellation is allowed from any non-terminal state; everything else
// follows pending -> submitted -> in_progress -> succeeded|failed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case JobStatusCancelled:
		return true
	case JobStatusSubmitted:
		return s == JobStatusPending
	case JobStatusInProgress:
		return s == JobStatusSubmitted || s == JobStatusInProgress
	case JobStatusSucceeded, JobStatusFailed:
		return s == JobStatusPending || s == JobStatusSubmitted || s == JobStatusInProgress
	}
	return false
}

// GenerationParams is the normalized request passed to any provider.
type GenerationParams struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// GenerationJob tracks one request to an external provider to produce an
// image or video artifact for a post.
type GenerationJob struct {
	ID          string
	PostID      string
	Kind        JobKind
	Status      JobStatus
	Params      GenerationParams
	ProviderRef string
	ResultRef   string
	ErrorDetail string
	// Attempt counts provider calls since the last healthy provider
	// response; it drives the poll backoff and the failure ceiling.
	Attempt int
	// NextPollAt is the job's next poll eligibility under backoff.
	NextPollAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobSnapshot is the wire representation pushed to clients on every
// transition. Full snapshot, never a diff, so redelivery is idempotent.
type JobSnapshot struct {
	ID          string    `json:"id"`
	PostID      string    `json:"post_id"`
	Kind        JobKind   `json:"kind"`
	Status      JobStatus `json:"status"`
	ResultRef   string    `json:"result_ref,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	Attempt     int       `json:"attempt"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot copies the client-visible fields of the job.
func (j *GenerationJob) Snapshot() JobSnapshot {
	return JobSnapshot{
		ID:          j.ID,
		PostID:      j.PostID,
		Kind:        j.Kind,
		Status:      j.Status,
		ResultRef:   j.ResultRef,
		ErrorDetail: j.ErrorDetail,
		Attempt:     j.Attempt,
		UpdatedAt:   j.UpdatedAt,
	}
}
