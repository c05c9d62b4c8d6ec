package event

import "time"

type EventType string

const (
	// Job lifecycle
	EventJobSubmitted     EventType = "job.submitted"
	EventJobDispatched    EventType = "job.dispatched"
	EventJobStatusChanged EventType = "job.status_changed"
	EventJobRequeued      EventType = "job.requeued"
	EventJobDeleted       EventType = "job.deleted"

	// Queue maintenance
	EventQueueCleaned EventType = "queue.cleaned"

	// Workers
	EventWorkerSeen EventType = "worker.seen"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// JobEvent accompanies every job lifecycle event. From and To are empty for
// events that do not change status.
type JobEvent struct {
	JobID    string
	Name     string
	WorkerID string
	From     string
	To       string
	Reason   string
}

// WorkerEvent marks the first heartbeat of a previously unseen worker.
type WorkerEvent struct {
	WorkerID string
}

// QueueEvent reports queue entries removed by a cleanup pass.
type QueueEvent struct {
	Removed []string
}
