package pubsub

import (
	"context"
	"sync"
)

// Ensure Memory implements Bus.
var _ Bus = (*Memory)(nil)

// Memory is an in-process Bus with the same no-backlog semantics as the Redis
// implementation. It backs tests and single-process development setups.
type Memory struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
	down bool
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memorySubscription)}
}

// SetDown toggles simulated connection loss. While down, Publish and
// Subscribe fail with ErrChannelUnavailable.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

// Publish delivers ev to every current subscriber of channel in call order.
// With no subscribers the event is silently dropped. A subscriber whose
// buffer is full is skipped rather than blocking unrelated sessions.
func (m *Memory) Publish(_ context.Context, channel string, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrChannelUnavailable
	}
	for _, sub := range m.subs[channel] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe attaches to a channel; only events published afterwards are seen.
func (m *Memory) Subscribe(_ context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, ErrChannelUnavailable
	}
	sub := &memorySubscription{
		bus:     m,
		channel: channel,
		ch:      make(chan Event, 256),
	}
	m.subs[channel] = append(m.subs[channel], sub)
	return sub, nil
}

// DropChannel force-closes every subscription on a channel, simulating
// connection loss towards those subscribers.
func (m *Memory) DropChannel(channel string) {
	m.mu.Lock()
	subs := append([]*memorySubscription(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

// SubscriberCount reports how many subscriptions are open on a channel.
func (m *Memory) SubscriberCount(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

type memorySubscription struct {
	bus     *Memory
	channel string
	ch      chan Event
	once    sync.Once
}

func (s *memorySubscription) C() <-chan Event { return s.ch }

// Close detaches from the bus and closes C. Safe to call twice; the channel
// is closed under the bus lock so in-flight publishes cannot race it.
func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		subs := s.bus.subs[s.channel]
		for i, other := range subs {
			if other == s {
				s.bus.subs[s.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.bus.subs[s.channel]) == 0 {
			delete(s.bus.subs, s.channel)
		}
		close(s.ch)
		s.bus.mu.Unlock()
	})
	return nil
}
