package domain

import "testing"

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusSubmitted, false},
		{JobStatusInProgress, false},
		{JobStatusSucceeded, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}
	for _, tc := range tests {
		if got := tc.status.Terminal(); got != tc.want {
			t.Fatalf("Terminal(%s) = %v, want %v", tc.status, got, tc.want)
		}
		if got := tc.status.Active(); got == tc.want {
			t.Fatalf("Active(%s) = %v, want %v", tc.status, got, !tc.want)
		}
	}
}

func TestJobStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{"pending to submitted", JobStatusPending, JobStatusSubmitted, true},
		{"pending to failed", JobStatusPending, JobStatusFailed, true},
		{"pending to cancelled", JobStatusPending, JobStatusCancelled, true},
		{"pending skips to in_progress", JobStatusPending, JobStatusInProgress, false},
		{"submitted to in_progress", JobStatusSubmitted, JobStatusInProgress, true},
		{"submitted to succeeded", JobStatusSubmitted, JobStatusSucceeded, true},
		{"in_progress refresh", JobStatusInProgress, JobStatusInProgress, true},
		{"in_progress to succeeded", JobStatusInProgress, JobStatusSucceeded, true},
		{"in_progress to cancelled", JobStatusInProgress, JobStatusCancelled, true},
		{"succeeded is terminal", JobStatusSucceeded, JobStatusCancelled, false},
		{"failed is terminal", JobStatusFailed, JobStatusSubmitted, false},
		{"cancelled stays cancelled", JobStatusCancelled, JobStatusSucceeded, false},
		{"no transition back to pending", JobStatusSubmitted, JobStatusPending, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestSnapshotCopiesClientVisibleFields(t *testing.T) {
	job := &GenerationJob{
		ID:          "job-1",
		PostID:      "post-1",
		Kind:        JobKindImage,
		Status:      JobStatusSucceeded,
		ResultRef:   "generated/images/a.png",
		ErrorDetail: "",
		Attempt:     2,
	}
	snap := job.Snapshot()
	if snap.ID != job.ID || snap.PostID != job.PostID || snap.Kind != job.Kind {
		t.Fatalf("snapshot identity mismatch: %+v", snap)
	}
	if snap.Status != JobStatusSucceeded || snap.ResultRef != job.ResultRef || snap.Attempt != 2 {
		t.Fatalf("snapshot state mismatch: %+v", snap)
	}
}

func TestPostScope(t *testing.T) {
	if got := PostScope("abc"); got != "post:abc" {
		t.Fatalf("PostScope = %q, want %q", got, "post:abc")
	}
}
