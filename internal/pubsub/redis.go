package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

// Ensure Redis implements Bus.
var _ Bus = (*Redis)(nil)

// Redis is the production Bus backed by Redis pub/sub. A single *redis.Client
// is shared by all sessions; go-redis multiplexes over its internal pool, so
// no session holds a connection for its lifetime.
type Redis struct {
	client *redis.Client
	logger logpkg.Logger

	// Per-subscription channel buffer. Guards one slow consumer from
	// stalling the shared receive loop inside go-redis.
	buf int
}

// NewRedis wraps an already-connected client. The client's lifecycle is owned
// by the caller (opened at process start, closed at shutdown).
func NewRedis(client *redis.Client, logger logpkg.Logger) *Redis {
	return &Redis{client: client, logger: logger.With(logpkg.Component("pubsub")), buf: 64}
}

// Publish sends one event to a channel. Subscribers attached before the call
// receive it; there is no backlog for later subscribers.
func (r *Redis) Publish(ctx context.Context, channel string, ev Event) error {
	b, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return nil
}

// Subscribe attaches to a channel and confirms the subscription with the
// server before returning, so events published after Subscribe returns are
// never missed.
func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	sub := &redisSubscription{ps: ps, ch: make(chan Event, r.buf), done: make(chan struct{})}
	go sub.run(r.logger, channel)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) C() <-chan Event { return s.ch }

// Close unsubscribes and releases the connection. Safe to call twice.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// run forwards decoded events until the underlying PubSub channel closes
// (on Close or connection loss). An undecodable payload is skipped; workers
// only publish well-formed events, so this covers stray publishers.
func (s *redisSubscription) run(logger logpkg.Logger, channel string) {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		ev, err := Decode([]byte(msg.Payload))
		if err != nil {
			logger.Warn("dropping undecodable event", logpkg.Str("channel", channel), logpkg.Err(err))
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}
