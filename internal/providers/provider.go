package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"radboard/internal/domain"
)

// StatusKind is the provider-side view of a remote generation.
type StatusKind string

const (
	StatusInProgress StatusKind = "in_progress"
	StatusSucceeded  StatusKind = "succeeded"
	StatusFailed     StatusKind = "failed"
)

// Status is the result of polling a remote job.
type Status struct {
	Kind StatusKind
	// ResultRef locates the produced artifact; set only when Kind is
	// StatusSucceeded.
	ResultRef string
	// Reason carries the provider's failure description when Kind is
	// StatusFailed.
	Reason string
}

// Client is the contract implemented by all generation providers.
type Client interface {
	// Create submits a generation request and returns an opaque token
	// identifying the remote job.
	Create(ctx context.Context, params domain.GenerationParams) (providerRef string, err error)
	// StatusOf reports the remote job's progress.
	StatusOf(ctx context.Context, providerRef string) (Status, error)
	// Cancel is best effort; callers proceed with their own transition
	// regardless of the outcome.
	Cancel(ctx context.Context, providerRef string) error
}

// Error classifies a provider failure. Transient failures (network errors,
// timeouts, 5xx) are retried with backoff; permanent failures (4xx, content
// policy rejections) fail the job immediately.
type Error struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	mode := "permanent"
	if e.Transient {
		mode = "transient"
	}
	return fmt.Sprintf("%s: %s provider error: %v", e.Provider, mode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable provider failure.
func NewTransient(provider string, err error) *Error {
	return &Error{Provider: provider, Transient: true, Err: err}
}

// NewPermanent wraps err as a non-retryable provider failure.
func NewPermanent(provider string, err error) *Error {
	return &Error{Provider: provider, Transient: false, Err: err}
}

// IsTransient reports whether err is a provider failure worth retrying.
// Unclassified errors (cancelled contexts, plain network errors) are treated
// as transient so a flaky link never permanently fails a job.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}

// FromHTTPStatus maps an HTTP response code to the transient/permanent split:
// 5xx and 429 are transient, other 4xx are permanent.
func FromHTTPStatus(provider string, code int, body string) *Error {
	err := fmt.Errorf("http %d: %s", code, body)
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return NewTransient(provider, err)
	}
	return NewPermanent(provider, err)
}
