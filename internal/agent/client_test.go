package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
)

func TestNextJobDecodesPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agent/next-job" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			WorkerID string `json:"worker_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.WorkerID != "gpu-server-1" {
			t.Errorf("worker_id = %q", req.WorkerID)
		}
		json.NewEncoder(w).Encode(job.Payload{
			JobID:         "j1",
			JobName:       "lstm-baseline",
			Image:         "calof/opeva_simulator:latest",
			Command:       "--config /data/configs/a.yaml --job_id j1",
			ContainerName: "opeva_sim_j1_lstm-baseline",
			Volumes:       []job.VolumeMount{{Host: "/opt/opeva_shared_data", Container: "/data", Mode: "rw"}},
			Env:           map[string]string{"MLFLOW_TRACKING_URI": "http://mlflow:5000"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	p, err := c.NextJob(context.Background(), "gpu-server-1")
	if err != nil {
		t.Fatalf("NextJob: %v", err)
	}
	if p == nil {
		t.Fatal("payload is nil")
	}
	if p.JobID != "j1" || p.ContainerName != "opeva_sim_j1_lstm-baseline" {
		t.Errorf("payload = %+v", p)
	}
	if len(p.Volumes) != 1 || p.Volumes[0].Container != "/data" {
		t.Errorf("volumes = %+v", p.Volumes)
	}
}

func TestNextJobEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).NextJob(context.Background(), "w1")
	if err != nil {
		t.Fatalf("NextJob: %v", err)
	}
	if p != nil {
		t.Errorf("payload = %+v, want nil", p)
	}
}

func TestReportStatusEchoesPersistedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rep StatusReport
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if rep.JobID != "j1" || rep.Status != "running" || rep.ContainerID != "c1" {
			t.Errorf("report = %+v", rep)
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "status": "running"})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).ReportStatus(context.Background(), StatusReport{
		JobID:       "j1",
		Status:      "running",
		WorkerID:    "w1",
		ContainerID: "c1",
	})
	if err != nil {
		t.Fatalf("ReportStatus: %v", err)
	}
	if status != "running" {
		t.Errorf("status = %q", status)
	}
}

func TestReportStatusErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code int
		body string
		want error
	}{
		{"conflict", http.StatusConflict, `{"error":"invalid transition"}`, ErrConflict},
		{"not found", http.StatusNotFound, `{"error":"job not found"}`, ErrNotFound},
		{"bad request", http.StatusBadRequest, `{"error":"status is required"}`, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).ReportStatus(context.Background(), StatusReport{JobID: "j1", Status: "running"})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReportStatusServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ReportStatus(context.Background(), StatusReport{JobID: "j1", Status: "finished"})
	if err == nil {
		t.Fatal("want error")
	}
	// 5xx must not look like a rejection, so the caller retries it.
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		t.Errorf("5xx mapped to a drop: %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			WorkerID string         `json:"worker_id"`
			Info     map[string]any `json:"info"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode heartbeat: %v", err)
		}
		if req.WorkerID != "w1" {
			t.Errorf("worker_id = %q", req.WorkerID)
		}
		if req.Info["hostname"] != "gpu-box" {
			t.Errorf("info = %v", req.Info)
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Heartbeat(context.Background(), "w1", map[string]any{"hostname": "gpu-box"})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}

func TestJobStatusQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status/j1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"job_id": "j1", "status": "stop_requested"})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).JobStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if status != "stop_requested" {
		t.Errorf("status = %q", status)
	}
}
