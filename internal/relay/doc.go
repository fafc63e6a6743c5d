// Package relay implements the streaming relay core: the mapping between a
// client request, a queued job, a pub/sub channel, and one long-lived push
// stream.
//
// # Overview
//
// SubmitAndStream validates the request, derives a correlation id, subscribes
// to events:{id} before enqueuing the job (the subscription must exist before
// the worker can publish, or early tokens are lost), then pumps received
// events into the caller's Sink as ordered frames until a terminal event, an
// idle timeout, or caller cancellation.
//
// # Session lifecycle
//
//	Idle → Subscribed → Streaming → {Completed | TimedOut | Cancelled | UpstreamError}
//
// All terminal states are observed by the caller exactly once. A cancelled
// caller gets no final frame (its transport is gone); every other terminal
// state emits one closing frame. The subscription is released on every path,
// including pre-stream failures.
//
// Each open stream runs as an independent goroutine-per-request pump; one
// slow consumer cannot stall another session's delivery. Adapter errors are
// surfaced as a terminal state, never retried internally; resubmission is the
// caller's decision.
package relay
