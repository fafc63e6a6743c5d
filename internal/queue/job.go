package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job is one unit of generation work. It is owned by the queue from Enqueue
// until the worker acknowledges it; delivery is at-least-once.
type Job struct {
	UUID      string `json:"uuid"`
	Query     string `json:"query"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix seconds; 0 = no TTL
}

// Encode marshals the job for the wire.
func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// Valid reports whether the job carries the fields the worker requires.
func (j Job) Valid() bool { return j.UUID != "" && j.Query != "" }

// Expired reports whether the job's TTL has passed.
func (j Job) Expired(now time.Time) bool {
	return j.ExpiresAt > 0 && j.ExpiresAt < now.Unix()
}

// ErrQueueUnavailable reports that the broker cannot accept or deliver jobs.
var ErrQueueUnavailable = errors.New("queue: unavailable")

// Enqueuer submits jobs for processing. Enqueue is durable fire-and-forget:
// the broker persists the job until it is consumed and acknowledged.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Delivery is one received job plus its acknowledgement handle. The handler
// must settle every delivery with Ack or Reject; rejecting with requeue=false
// discards a poison message instead of looping it forever.
type Delivery interface {
	// Job returns the decoded job, or a decode error for a malformed payload.
	Job() (Job, error)
	// Redelivered reports whether the broker delivered this job before.
	Redelivered() bool
	Ack() error
	Reject(requeue bool) error
}

// Consumer drives the consume loop, invoking fn for each delivery until ctx
// is cancelled or the broker connection drops.
type Consumer interface {
	Consume(ctx context.Context, fn func(context.Context, Delivery)) error
}
