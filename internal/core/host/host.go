// Package host tracks worker liveness derived from heartbeats.
package host

import "time"

// Record is the last heartbeat seen from a worker, with whatever telemetry
// the worker chose to attach.
type Record struct {
	WorkerID        string
	LastHeartbeatAt time.Time
	Info            map[string]any
}

// Online reports whether the record's heartbeat is fresh at now.
func (r *Record) Online(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.LastHeartbeatAt) < ttl
}

// OfflineSince returns how long the worker has been past its heartbeat TTL
// at now, or zero if it is still online.
func (r *Record) OfflineSince(now time.Time, ttl time.Duration) time.Duration {
	d := now.Sub(r.LastHeartbeatAt)
	if d < ttl {
		return 0
	}
	return d - ttl
}
