package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
)

func testAgent(serverURL string) *Agent {
	return &Agent{
		client:            NewClient(serverURL),
		workerID:          "w1",
		pollInterval:      time.Millisecond,
		heartbeatInterval: time.Millisecond,
		reportInterval:    time.Millisecond,
	}
}

func TestReportTerminalBuffersOnTransportFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "status": "finished"})
	}))
	defer srv.Close()

	a := testAgent(srv.URL)
	lg := log.With().Str("job_id", "j1").Logger()

	a.reportTerminal(context.Background(), StatusReport{JobID: "j1", Status: "finished", WorkerID: "w1"}, &lg)
	if len(a.pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(a.pending))
	}

	a.flushPending(context.Background())
	if len(a.pending) != 0 {
		t.Fatalf("pending = %d after flush, want 0", len(a.pending))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestReportTerminalDropsConflicts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid transition"})
	}))
	defer srv.Close()

	a := testAgent(srv.URL)
	lg := log.With().Str("job_id", "j1").Logger()

	a.reportTerminal(context.Background(), StatusReport{JobID: "j1", Status: "finished"}, &lg)
	if len(a.pending) != 0 {
		t.Fatalf("conflict was buffered: %+v", a.pending)
	}
}

func TestFlushPendingStopsAtTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := testAgent(srv.URL)
	a.pending = []StatusReport{
		{JobID: "j1", Status: "finished"},
		{JobID: "j2", Status: "failed"},
	}

	a.flushPending(context.Background())
	if len(a.pending) != 2 {
		t.Fatalf("pending = %d, want 2 (nothing delivered)", len(a.pending))
	}
	if a.pending[0].JobID != "j1" {
		t.Errorf("order changed: %+v", a.pending)
	}
}

func TestFlushPendingDropsSettledJobs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rep StatusReport
		json.NewDecoder(r.Body).Decode(&rep)
		if rep.JobID == "gone" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "status": rep.Status})
	}))
	defer srv.Close()

	a := testAgent(srv.URL)
	a.pending = []StatusReport{
		{JobID: "gone", Status: "finished"},
		{JobID: "j2", Status: "failed"},
	}

	a.flushPending(context.Background())
	if len(a.pending) != 0 {
		t.Fatalf("pending = %d, want 0", len(a.pending))
	}
}
