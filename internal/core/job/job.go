package job

import (
	"regexp"
	"time"
)

// Job is one unit of orchestrated simulation work.
type Job struct {
	ID            string     `json:"job_id"`
	Name          string     `json:"job_name"`
	Status        Status     `json:"status"`
	WorkerID      string     `json:"worker_id,omitempty"`
	PreferredHost string     `json:"preferred_host,omitempty"`
	RequireHost   bool       `json:"require_host"`
	Descriptor    Descriptor `json:"descriptor"`

	// Runtime fields reported back by the worker.
	ContainerID string `json:"container_id,omitempty"`
	ExitCode    *int64 `json:"exit_code,omitempty"`
	Error       string `json:"error,omitempty"`
	Details     string `json:"details,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	StatusUpdatedAt time.Time `json:"status_updated_at"`
}

// Descriptor is the execution payload handed to the worker. It is built and
// validated once at submission and returned verbatim at dispatch.
type Descriptor struct {
	Image         string            `json:"image"`
	Command       string            `json:"command"`
	ContainerName string            `json:"container_name"`
	ConfigPath    string            `json:"config_path"`
	Volumes       []VolumeMount     `json:"volumes"`
	Env           map[string]string `json:"env"`
}

// VolumeMount maps a host path into the worker's container.
type VolumeMount struct {
	Host      string `json:"host"`
	Container string `json:"container"`
	Mode      string `json:"mode"`
}

// Payload is the wire form of a dispatched job, as served to a polling
// worker.
type Payload struct {
	JobID         string            `json:"job_id"`
	JobName       string            `json:"job_name"`
	ConfigPath    string            `json:"config_path"`
	PreferredHost string            `json:"preferred_host"`
	Image         string            `json:"image"`
	Command       string            `json:"command"`
	ContainerName string            `json:"container_name"`
	Volumes       []VolumeMount     `json:"volumes"`
	Env           map[string]string `json:"env"`
}

// Payload assembles the dispatch payload for j.
func (j *Job) Payload() *Payload {
	return &Payload{
		JobID:         j.ID,
		JobName:       j.Name,
		ConfigPath:    j.Descriptor.ConfigPath,
		PreferredHost: j.PreferredHost,
		Image:         j.Descriptor.Image,
		Command:       j.Descriptor.Command,
		ContainerName: j.Descriptor.ContainerName,
		Volumes:       j.Descriptor.Volumes,
		Env:           j.Descriptor.Env,
	}
}

// QueueEntry is the pending-dispatch record for a job in status queued. Seq
// is the store's monotonic insertion sequence and breaks FIFO ties between
// entries enqueued at the same instant.
type QueueEntry struct {
	Seq           int64     `json:"-"`
	JobID         string    `json:"job_id"`
	PreferredHost string    `json:"preferred_host,omitempty"`
	RequireHost   bool      `json:"require_host"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// EligibleFor reports whether workerID may claim this entry.
func (e QueueEntry) EligibleFor(workerID string) bool {
	return !e.RequireHost || e.PreferredHost == workerID
}

// ClaimMarker is the short-lived lease recorded while a claim is in flight.
// It is released on the bound worker's first accepted status report, or
// swept once older than the claim TTL.
type ClaimMarker struct {
	JobID     string
	WorkerID  string
	ClaimedAt time.Time
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SlugName sanitizes a config-derived name for container use. Every rune
// outside [a-zA-Z0-9_.-] becomes an underscore.
func SlugName(s string) string {
	if s == "" {
		return "job"
	}
	return slugPattern.ReplaceAllString(s, "_")
}
