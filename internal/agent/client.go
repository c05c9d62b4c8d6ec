package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
)

var (
	// ErrConflict means the orchestrator rejected the transition; the
	// agent's view of the job is stale and must be reconciled.
	ErrConflict = errors.New("status report conflict")
	// ErrNotFound means the orchestrator no longer knows the job.
	ErrNotFound = errors.New("job not found")
	// ErrRejected covers other 4xx replies; the report is dropped.
	ErrRejected = errors.New("report rejected")
)

// Client speaks the agent protocol: next-job, job-status, heartbeat and
// the status query used to reconcile after a conflict.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusReport is the wire form of a job-status post.
type StatusReport struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	WorkerID      string `json:"worker_id,omitempty"`
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	ExitCode      *int64 `json:"exit_code,omitempty"`
	Error         string `json:"error,omitempty"`
	Details       string `json:"details,omitempty"`
}

// NextJob polls for work. A nil payload with nil error means the queue
// had nothing for this worker.
func (c *Client) NextJob(ctx context.Context, workerID string) (*job.Payload, error) {
	resp, err := c.post(ctx, "/api/agent/next-job", map[string]string{"worker_id": workerID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var p job.Payload
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &p, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, responseError(resp)
	}
}

// ReportStatus posts a status report and returns the status the
// orchestrator persisted.
func (c *Client) ReportStatus(ctx context.Context, rep StatusReport) (string, error) {
	resp, err := c.post(ctx, "/api/agent/job-status", rep)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var ack struct {
			OK     bool   `json:"ok"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return "", fmt.Errorf("decode ack: %w", err)
		}
		return ack.Status, nil
	case http.StatusConflict:
		return "", fmt.Errorf("%w: %s", ErrConflict, responseMessage(resp))
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, rep.JobID)
	default:
		return "", responseError(resp)
	}
}

// Heartbeat reports liveness and telemetry.
func (c *Client) Heartbeat(ctx context.Context, workerID string, info map[string]any) error {
	resp, err := c.post(ctx, "/api/agent/heartbeat", map[string]any{
		"worker_id": workerID,
		"info":      info,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// JobStatus fetches the authoritative status of a job. Unknown jobs
// come back as the utility status "not_found".
func (c *Client) JobStatus(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/status/"+jobID, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}
	var body struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	return body.Status, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func responseError(resp *http.Response) error {
	msg := responseMessage(resp)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: %d: %s", ErrRejected, resp.StatusCode, msg)
}

func responseMessage(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}
