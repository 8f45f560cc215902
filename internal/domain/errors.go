package domain

import "errors"

var (
	// ErrNotFound indicates an unknown job or post identifier.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an active generation job already exists for the
	// post. At most one non-terminal job may exist per post.
	ErrConflict = errors.New("active generation job exists for post")
	// ErrTerminal indicates an attempted transition out of a terminal state.
	ErrTerminal = errors.New("job is in a terminal state")
)
