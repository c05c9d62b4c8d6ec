package job

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	legal := []struct{ from, to Status }{
		{StatusLaunching, StatusQueued},
		{StatusLaunching, StatusCanceled},
		{StatusQueued, StatusDispatched},
		{StatusQueued, StatusCanceled},
		{StatusDispatched, StatusRunning},
		{StatusDispatched, StatusQueued},
		{StatusDispatched, StatusStopRequested},
		{StatusRunning, StatusFinished},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusStopRequested},
		{StatusStopRequested, StatusStopped},
		{StatusStopRequested, StatusFailed},
	}
	for _, tt := range legal {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("%s -> %s should be legal", tt.from, tt.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusLaunching, StatusRunning},
		{StatusLaunching, StatusDispatched},
		{StatusQueued, StatusRunning},
		{StatusQueued, StatusFinished},
		{StatusDispatched, StatusFinished},
		{StatusDispatched, StatusCanceled},
		{StatusRunning, StatusQueued},
		{StatusRunning, StatusCanceled},
		{StatusStopRequested, StatusRunning},
		{StatusFinished, StatusQueued},
		{StatusFailed, StatusRunning},
		{StatusCanceled, StatusQueued},
		{StatusStopped, StatusFinished},
	}
	for _, tt := range illegal {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("%s -> %s should be illegal", tt.from, tt.to)
		}
	}
}

func TestCanTransitionSameStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusLaunching, StatusQueued, StatusDispatched, StatusRunning, StatusStopRequested} {
		if !CanTransition(s, s) {
			t.Errorf("re-applying %s should be legal", s)
		}
	}
	if CanTransition(StatusUnknown, StatusUnknown) {
		t.Error("query-only statuses must not self-transition")
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusStopped, StatusFinished, StatusFailed, StatusCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []Status{StatusLaunching, StatusQueued, StatusDispatched, StatusRunning, StatusStopRequested}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if StatusNotFound.Terminal() || StatusUnknown.Terminal() {
		t.Error("query-only statuses are not terminal")
	}
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	err := ValidateTransition(StatusQueued, StatusFinished, false)
	if err == nil {
		t.Fatal("expected error for queued -> finished")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error should match ErrInvalidTransition, got %v", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error should be a *TransitionError, got %T", err)
	}
	if te.From != StatusQueued || te.To != StatusFinished {
		t.Fatalf("unexpected edge recorded: %s -> %s", te.From, te.To)
	}

	if err := ValidateTransition(StatusQueued, StatusFinished, true); err != nil {
		t.Fatalf("override should bypass the edge check: %v", err)
	}
	if err := ValidateTransition(StatusRunning, StatusRunning, false); err != nil {
		t.Fatalf("same-status report should validate: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"launching", "queued", "dispatched", "running", "stop_requested", "stopped", "finished", "failed", "canceled", "not_found", "unknown"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("sleeping"); err == nil {
		t.Error("ParseStatus should reject unknown names")
	}
}

func TestPersistable(t *testing.T) {
	t.Parallel()

	if StatusNotFound.Persistable() || StatusUnknown.Persistable() {
		t.Error("query-only statuses must not be persistable")
	}
	if !StatusFailed.Persistable() {
		t.Error("failed is persistable")
	}
}

func TestSlugName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"demo-exp run 1", "demo-exp_run_1"},
		{"plain_name.v2", "plain_name.v2"},
		{"weird/chars:here", "weird_chars_here"},
		{"", "job"},
	}
	for _, tt := range tests {
		if got := SlugName(tt.in); got != tt.want {
			t.Errorf("SlugName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueueEntryEligibleFor(t *testing.T) {
	t.Parallel()

	open := QueueEntry{JobID: "a"}
	if !open.EligibleFor("anyone") {
		t.Error("entry without a host requirement is eligible for every worker")
	}
	pinned := QueueEntry{JobID: "b", PreferredHost: "w2", RequireHost: true}
	if pinned.EligibleFor("w1") {
		t.Error("pinned entry must not be eligible for other workers")
	}
	if !pinned.EligibleFor("w2") {
		t.Error("pinned entry is eligible for its preferred host")
	}
}
