package job

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusLaunching     Status = "launching"
	StatusQueued        Status = "queued"
	StatusDispatched    Status = "dispatched"
	StatusRunning       Status = "running"
	StatusStopRequested Status = "stop_requested"
	StatusStopped       Status = "stopped"
	StatusFinished      Status = "finished"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"

	// Query-only answers. Never stored on a job.
	StatusNotFound Status = "not_found"
	StatusUnknown  Status = "unknown"
)

// transitions maps each persistable status to the statuses it may move to.
// A status mapping to an empty set is terminal.
var transitions = map[Status][]Status{
	StatusLaunching:     {StatusQueued, StatusCanceled},
	StatusQueued:        {StatusDispatched, StatusCanceled},
	StatusDispatched:    {StatusRunning, StatusQueued, StatusStopRequested},
	StatusRunning:       {StatusFinished, StatusFailed, StatusStopRequested},
	StatusStopRequested: {StatusStopped, StatusFailed},
	StatusStopped:       {},
	StatusFinished:      {},
	StatusFailed:        {},
	StatusCanceled:      {},
}

// ErrInvalidTransition matches any TransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a rejected status change. The state it refers to
// is left untouched.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ParseStatus returns the Status named by s, including the query-only
// statuses.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; ok {
		return st, nil
	}
	if st == StatusNotFound || st == StatusUnknown {
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Persistable reports whether s may be stored on a job.
func (s Status) Persistable() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether from -> to is a legal edge. Re-applying the
// current status is always legal so that repeated reports stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Persistable()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a TransitionError when from -> to is not a
// legal edge. override skips the edge check entirely; it is reserved for
// operator corrections.
func ValidateTransition(from, to Status, override bool) error {
	if override || CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
