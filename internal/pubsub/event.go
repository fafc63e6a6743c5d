package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// Event kinds published on a correlation channel. Exactly one terminal kind
// (anything other than KindToken) ends a stream.
const (
	KindToken   = "token"
	KindDone    = "done"
	KindError   = "error"
	KindTimeout = "timeout"
	KindExpired = "expired"
)

// Event is a single message on a correlation channel: either a token fragment
// or a terminal marker. Events are ephemeral; a late subscriber misses
// everything published before it attached.
type Event struct {
	Event string `json:"event"`
	Data  string `json:"data,omitempty"`
}

// Token builds a token event carrying one generated fragment.
func Token(data string) Event { return Event{Event: KindToken, Data: data} }

// Done builds the normal completion sentinel.
func Done() Event { return Event{Event: KindDone} }

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool { return e.Event != KindToken }

// Encode marshals the event for the wire.
func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }

// Decode unmarshals a wire payload into an Event.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Channel returns the pub/sub channel name for a correlation id.
func Channel(correlationID string) string { return "events:" + correlationID }

// ErrChannelUnavailable reports that the underlying pub/sub connection is
// down. The caller decides the retry policy.
var ErrChannelUnavailable = errors.New("pubsub: channel unavailable")

// Bus is the token channel adapter contract: fire-and-forget publish plus
// subscription to a named channel. Implementations must be safe for
// concurrent use by many sessions.
type Bus interface {
	Publish(ctx context.Context, channel string, ev Event) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription yields events for one channel in publish order. C is closed
// when the subscription ends; Close is idempotent and releases all resources
// tied to the subscription.
type Subscription interface {
	C() <-chan Event
	Close() error
}
