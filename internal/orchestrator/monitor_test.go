package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
)

func TestSweepRequeuesStaleDispatched(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	env.backdateStatus(t, j.ID, 2*time.Minute)

	result := m.Sweep(ctx)
	if result.Requeued != 1 || result.Failed != 0 {
		t.Fatalf("sweep = %+v, want one requeue", result)
	}

	stored, err := env.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != job.StatusQueued || stored.WorkerID != "" {
		t.Fatalf("after sweep: status=%s worker=%q", stored.Status, stored.WorkerID)
	}
	if entries, _ := env.store.QueueEntries(ctx); len(entries) != 1 || entries[0].JobID != j.ID {
		t.Fatalf("queue entries = %+v", entries)
	}
	if markers, _ := env.store.ClaimMarkers(ctx); len(markers) != 0 {
		t.Error("claim marker survived the requeue")
	}

	// The job is claimable again after the correction.
	p := env.dispatch(t, "w2")
	if p.JobID != j.ID {
		t.Fatalf("re-dispatch = %s, want %s", p.JobID, j.ID)
	}
}

func TestSweepFailsStaleRunning(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusRunning, WorkerID: "w1"})
	env.backdateStatus(t, j.ID, 2*time.Minute)

	result := m.Sweep(ctx)
	if result.Failed != 1 {
		t.Fatalf("sweep = %+v, want one failure", result)
	}

	stored, err := env.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != job.StatusFailed || stored.Error != ReasonStaleStatus {
		t.Fatalf("after sweep: status=%s error=%q", stored.Status, stored.Error)
	}
}

func TestSweepFailsStaleStopRequested(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusRunning, WorkerID: "w1"})
	if _, _, err := env.svc.Stop(ctx, j.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	env.backdateStatus(t, j.ID, 2*time.Minute)

	if result := m.Sweep(ctx); result.Failed != 1 {
		t.Fatalf("sweep = %+v, want one failure", result)
	}
	stored, _ := env.store.GetJob(ctx, j.ID)
	if stored.Status != job.StatusFailed || stored.Error != ReasonStaleStatus {
		t.Fatalf("after sweep: status=%s error=%q", stored.Status, stored.Error)
	}
}

func TestSweepFailsRunningJobOfOfflineWorker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusRunning, WorkerID: "w1"})

	// Status is fresh but the worker's heartbeats dried up long ago.
	if _, err := env.store.UpsertHost(ctx, "w1", time.Now().UTC().Add(-10*time.Minute), nil); err != nil {
		t.Fatalf("seed host: %v", err)
	}

	result := m.Sweep(ctx)
	if result.Failed != 1 {
		t.Fatalf("sweep = %+v, want one failure", result)
	}
	stored, _ := env.store.GetJob(ctx, j.ID)
	if stored.Status != job.StatusFailed || stored.Error != ReasonWorkerOffline {
		t.Fatalf("after sweep: status=%s error=%q", stored.Status, stored.Error)
	}
}

func TestSweepRequeuesDispatchedJobOfOfflineWorker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	if _, err := env.store.UpsertHost(ctx, "w1", time.Now().UTC().Add(-10*time.Minute), nil); err != nil {
		t.Fatalf("seed host: %v", err)
	}

	result := m.Sweep(ctx)
	if result.Requeued != 1 || result.Failed != 0 {
		t.Fatalf("sweep = %+v, want one requeue", result)
	}
	if got := env.jobStatus(t, j.ID); got != job.StatusQueued {
		t.Fatalf("status = %s, want queued", got)
	}
}

func TestSweepLeavesFreshJobsAlone(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusRunning, WorkerID: "w1"})
	if err := env.svc.Heartbeat(ctx, "w1", nil); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	result := m.Sweep(ctx)
	if result.Requeued != 0 || result.Failed != 0 {
		t.Fatalf("sweep = %+v, want no corrections", result)
	}
	if got := env.jobStatus(t, j.ID); got != job.StatusRunning {
		t.Fatalf("status = %s, want running", got)
	}
}

func TestSweepIgnoresWorkerWithoutHostRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	// The worker never heartbeated; only the job-status TTL may judge it.
	j := env.submit(t)
	env.dispatch(t, "w1")
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusRunning, WorkerID: "w1"})

	result := m.Sweep(ctx)
	if result.Requeued != 0 || result.Failed != 0 {
		t.Fatalf("sweep = %+v, want no corrections", result)
	}
}

func TestSweepExpiresAbandonedClaims(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	if err := env.store.Claim(ctx, j.ID, "w1", time.Now().UTC().Add(-10*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Keep the job itself fresh so only the marker is overdue.
	env.backdateStatus(t, j.ID, 0)

	result := m.Sweep(ctx)
	if result.ClaimsExpired != 1 {
		t.Fatalf("sweep = %+v, want one expired claim", result)
	}
	if markers, _ := env.store.ClaimMarkers(ctx); len(markers) != 0 {
		t.Fatalf("markers = %+v, want none", markers)
	}
	if got := env.jobStatus(t, j.ID); got != job.StatusDispatched {
		t.Fatalf("status = %s, want dispatched untouched", got)
	}
}

func TestSweepDropsCorrectionWhenJobMovedOn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	env.dispatch(t, "w1")
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusRunning, WorkerID: "w1"})

	// Snapshot taken by a sweep scan, then the agent reports first.
	snapshot, err := env.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	env.report(t, StatusReport{JobID: j.ID, Status: job.StatusFinished, WorkerID: "w1"})

	if m.failJob(ctx, snapshot, ReasonStaleStatus) {
		t.Fatal("correction applied over a fresher agent report")
	}
	if got := env.jobStatus(t, j.ID); got != job.StatusFinished {
		t.Fatalf("status = %s, want finished", got)
	}
}

func TestSweepValidatesTransitions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	m := NewMonitor(env.svc, time.Second)

	j := env.submit(t)
	snapshot, err := env.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}

	// queued -> failed is not a legal monitor correction.
	if m.failJob(ctx, snapshot, ReasonStaleStatus) {
		t.Fatal("monitor failed a queued job")
	}
	if got := env.jobStatus(t, j.ID); got != job.StatusQueued {
		t.Fatalf("status = %s, want queued", got)
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	m := NewMonitor(env.svc, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor kept running after context cancellation")
	}
}
