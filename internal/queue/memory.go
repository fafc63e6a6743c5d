package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

var (
	_ Enqueuer = (*Memory)(nil)
	_ Consumer = (*Memory)(nil)
)

// Memory is an in-process queue with at-least-once semantics matching the
// AMQP adapter: rejected-with-requeue jobs come back flagged as redelivered.
// It backs tests and single-process development setups.
type Memory struct {
	mu    sync.Mutex
	down  bool
	items chan memItem

	acked    int
	rejected int
}

type memItem struct {
	body        []byte
	redelivered bool
}

// NewMemory creates an in-process queue.
func NewMemory() *Memory {
	return &Memory{items: make(chan memItem, 1024)}
}

// SetDown toggles simulated broker loss. While down, Enqueue fails with
// ErrQueueUnavailable.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

// Acked reports how many deliveries were acknowledged.
func (m *Memory) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// Rejected reports how many deliveries were rejected without requeue.
func (m *Memory) Rejected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}

// Enqueue appends a job to the queue.
func (m *Memory) Enqueue(_ context.Context, job Job) error {
	body, err := job.Encode()
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return m.push(memItem{body: body})
}

// EnqueueRaw appends an arbitrary payload, decoded (or not) at delivery time.
// Tests use it to inject poison messages.
func (m *Memory) EnqueueRaw(body []byte) error {
	return m.push(memItem{body: body})
}

func (m *Memory) push(it memItem) error {
	m.mu.Lock()
	down := m.down
	m.mu.Unlock()
	if down {
		return ErrQueueUnavailable
	}
	select {
	case m.items <- it:
		return nil
	default:
		return fmt.Errorf("%w: queue full", ErrQueueUnavailable)
	}
}

// Consume delivers queued jobs to fn until ctx is cancelled.
func (m *Memory) Consume(ctx context.Context, fn func(context.Context, Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-m.items:
			fn(ctx, &memoryDelivery{q: m, it: it})
		}
	}
}

type memoryDelivery struct {
	q    *Memory
	it   memItem
	once sync.Once
}

func (d *memoryDelivery) Job() (Job, error) {
	var j Job
	if err := json.Unmarshal(d.it.body, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

func (d *memoryDelivery) Redelivered() bool { return d.it.redelivered }

func (d *memoryDelivery) Ack() error {
	d.once.Do(func() {
		d.q.mu.Lock()
		d.q.acked++
		d.q.mu.Unlock()
	})
	return nil
}

func (d *memoryDelivery) Reject(requeue bool) error {
	d.once.Do(func() {
		if requeue {
			_ = d.q.push(memItem{body: d.it.body, redelivered: true})
			return
		}
		d.q.mu.Lock()
		d.q.rejected++
		d.q.mu.Unlock()
	})
	return nil
}
