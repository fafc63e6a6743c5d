package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

var (
	_ Enqueuer = (*AMQP)(nil)
	_ Consumer = (*AMQP)(nil)
)

// AMQP is the production queue adapter over RabbitMQ. The connection is owned
// by the caller; the adapter opens its own channel and declares the durable
// work queue on construction, so enqueue and consume sides agree on topology.
type AMQP struct {
	ch       *amqp.Channel
	name     string
	prefetch int
	logger   logpkg.Logger
}

// NewAMQP opens a channel on conn and declares the durable queue.
func NewAMQP(conn *amqp.Connection, name string, prefetch int, logger logpkg.Logger) (*AMQP, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: declare %s: %v", ErrQueueUnavailable, name, err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &AMQP{ch: ch, name: name, prefetch: prefetch, logger: logger.With(logpkg.Component("queue"))}, nil
}

// Close releases the adapter's channel. The shared connection stays open.
func (q *AMQP) Close() error { return q.ch.Close() }

// Enqueue publishes a persistent job to the work queue.
func (q *AMQP) Enqueue(ctx context.Context, job Job) error {
	body, err := job.Encode()
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	err = q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Consume delivers jobs to fn until ctx is cancelled or the broker drops the
// channel. Deliveries are manual-ack with the configured prefetch, so unacked
// jobs return to the queue when the process dies mid-job.
func (q *AMQP) Consume(ctx context.Context, fn func(context.Context, Delivery)) error {
	if err := q.ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("%w: qos: %v", ErrQueueUnavailable, err)
	}
	deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume: %v", ErrQueueUnavailable, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: delivery channel closed", ErrQueueUnavailable)
			}
			fn(ctx, amqpDelivery{d: d})
		}
	}
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Job() (Job, error) {
	var j Job
	if err := json.Unmarshal(a.d.Body, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

func (a amqpDelivery) Redelivered() bool { return a.d.Redelivered }

func (a amqpDelivery) Ack() error { return a.d.Ack(false) }

func (a amqpDelivery) Reject(requeue bool) error { return a.d.Reject(requeue) }
