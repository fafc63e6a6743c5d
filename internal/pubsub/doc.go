// Package pubsub is the token channel adapter: a thin publish/subscribe layer
// that carries token events and terminal markers between the worker and the
// streaming relay.
//
// # Overview
//
// Each in-flight request owns one channel, named events:{correlation_id}.
// Events on a channel are delivered to current subscribers in publish order;
// there is no backlog or replay, so a subscriber attached after publication
// misses earlier events. The relay therefore subscribes before it enqueues
// work.
//
// # Implementations
//
//   - Redis: production bus over Redis pub/sub. One shared client serves all
//     sessions concurrently.
//   - Memory: in-process bus with identical semantics, used by tests and
//     single-process setups.
package pubsub
