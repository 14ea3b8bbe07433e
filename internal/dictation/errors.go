package dictation

import "errors"

var (
	// ErrContainerMissing means the exercise container is not on the page yet.
	// The loop retries it according to its RetryPolicy.
	ErrContainerMissing = errors.New("exercise container not found")
	// ErrContainerTimeout ends a run whose RetryPolicy has a ceiling.
	ErrContainerTimeout = errors.New("exercise container did not appear")
	// ErrNoNavigationControl ends a run when no strategy finds a way forward.
	ErrNoNavigationControl = errors.New("navigation control not found")
)
