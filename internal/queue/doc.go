// Package queue is the work queue adapter: durable enqueue of generation jobs
// and a manual-ack consume loop.
//
// # Overview
//
// Jobs flow through a single durable queue with FIFO consumption; there is no
// per-correlation routing. The broker persists a job from Enqueue until a
// consumer acknowledges it, and redelivers on consumer failure, so handlers
// see at-least-once delivery and must settle every delivery with Ack or
// Reject. Rejecting with requeue=false is the poison-message escape hatch:
// a malformed job must never loop back into the queue.
//
// # Implementations
//
//   - AMQP: production adapter over RabbitMQ with persistent publishing and
//     prefetch-bounded manual acks.
//   - Memory: in-process queue with the same settle semantics, used by tests.
package queue
