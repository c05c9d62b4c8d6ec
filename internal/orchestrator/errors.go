package orchestrator

import "errors"

var (
	// ErrValidation marks malformed requests rejected before any state is
	// touched. Callers wrap it with detail via fmt.Errorf and %w.
	ErrValidation = errors.New("validation error")

	// ErrJobActive is returned by Delete while the job is still in a
	// non-terminal state.
	ErrJobActive = errors.New("job is not in a terminal state")
)
