package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/uemerson/tokenrelay/internal/pubsub"
	"github.com/uemerson/tokenrelay/internal/queue"
	"github.com/uemerson/tokenrelay/pkg/id"
	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

// ErrInvalidRequest rejects a submission before any side effect: empty
// prompt, a correlation id unusable as a channel name, or an id already
// in flight.
var ErrInvalidRequest = errors.New("relay: invalid request")

// Request is one client submission.
type Request struct {
	Query string
	// CorrelationID is optional; the relay assigns one when empty.
	CorrelationID string
}

// Frame is one unit pushed to the caller-facing stream.
type Frame struct {
	// Kind is "message" for token frames, otherwise the terminal marker
	// name (done, timeout, error, expired).
	Kind string
	// Data carries the token fragment for message frames.
	Data string
}

// Frame kinds.
const (
	FrameMessage = "message"
	FrameDone    = pubsub.KindDone
	FrameTimeout = pubsub.KindTimeout
	FrameError   = pubsub.KindError
	FrameExpired = pubsub.KindExpired
)

// Sink is implemented by transports to receive streamed frames.
type Sink interface {
	Send(Frame) error
	Flush() error
}

// Options holds relay tunables.
type Options struct {
	// IdleTimeout closes a session when no event arrives within the window.
	IdleTimeout time.Duration
	// JobTTL stamps enqueued jobs with an expiry; 0 disables.
	JobTTL time.Duration
}

// Service is the streaming relay core. It maps one request to one queued job
// and one pub/sub channel, and pumps that channel into the caller's sink
// until a terminal event, idle timeout, or cancellation.
type Service struct {
	bus    pubsub.Bus
	jobs   queue.Enqueuer
	opts   Options
	logger logpkg.Logger

	mu     sync.Mutex
	active map[string]*session
}

// New creates the relay service over the given adapters.
func New(bus pubsub.Bus, jobs queue.Enqueuer, opts Options, logger logpkg.Logger) *Service {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	return &Service{
		bus:    bus,
		jobs:   jobs,
		opts:   opts,
		logger: logger.With(logpkg.Component("relay")),
		active: make(map[string]*session),
	}
}

// ActiveSessions reports how many streams are currently open.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// SubmitAndStream validates the request, subscribes to the correlation
// channel, enqueues the job, and streams frames into sink until the stream
// ends. It returns the terminal state, or an error when the submission was
// rejected before anything was streamed (ErrInvalidRequest,
// queue.ErrQueueUnavailable, pubsub.ErrChannelUnavailable).
//
// Exactly one of the following happens per call: a terminal frame is sent
// (Completed/TimedOut/UpstreamError), the context is cancelled and no further
// frame is sent (Cancelled), or a pre-stream error is returned.
func (s *Service) SubmitAndStream(ctx context.Context, req Request, sink Sink) (State, error) {
	cid := strings.TrimSpace(req.CorrelationID)
	if strings.TrimSpace(req.Query) == "" {
		return StateIdle, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	if cid == "" {
		cid = id.New()
	} else if err := id.Validate(cid); err != nil {
		return StateIdle, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	sess, err := s.register(cid)
	if err != nil {
		return StateIdle, err
	}
	defer s.release(cid)

	// Subscribe before enqueue: a worker may pick the job up immediately,
	// and events published before the subscription attaches are lost.
	sub, err := s.bus.Subscribe(ctx, pubsub.Channel(cid))
	if err != nil {
		return StateIdle, err
	}
	defer func() { _ = sub.Close() }()
	sess.advance(StateSubscribed)

	job := queue.Job{UUID: cid, Query: req.Query}
	if s.opts.JobTTL > 0 {
		job.ExpiresAt = time.Now().Add(s.opts.JobTTL).Unix()
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.logger.Warn("enqueue failed", logpkg.Str("correlation_id", cid), logpkg.Err(err))
		return StateIdle, err
	}
	s.logger.Debug("job enqueued", logpkg.Str("correlation_id", cid))

	return s.pump(ctx, sess, sub, sink), nil
}

// pump reads the subscription until a terminal condition and reports the
// terminal state. The idle timer restarts on every received event.
func (s *Service) pump(ctx context.Context, sess *session, sub pubsub.Subscription, sink Sink) State {
	timer := time.NewTimer(s.opts.IdleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Caller disconnected; the transport is gone, so no frame.
			return s.finish(sess, StateCancelled, nil, sink)
		case <-timer.C:
			return s.finish(sess, StateTimedOut, &Frame{Kind: FrameTimeout}, sink)
		case ev, ok := <-sub.C():
			if !ok {
				return s.finish(sess, StateUpstreamError, &Frame{Kind: FrameError}, sink)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.opts.IdleTimeout)

			if ev.Event == pubsub.KindToken {
				sess.advance(StateStreaming)
				if err := sink.Send(Frame{Kind: FrameMessage, Data: ev.Data}); err != nil {
					return s.finish(sess, StateCancelled, nil, sink)
				}
				if err := sink.Flush(); err != nil {
					return s.finish(sess, StateCancelled, nil, sink)
				}
				continue
			}
			return s.finish(sess, stateFor(ev.Event), &Frame{Kind: ev.Event}, sink)
		}
	}
}

// finish marks the session terminal and emits the final frame, if any.
func (s *Service) finish(sess *session, st State, frame *Frame, sink Sink) State {
	sess.advance(st)
	if frame != nil {
		if err := sink.Send(*frame); err == nil {
			_ = sink.Flush()
		}
	}
	s.logger.Debug("session closed",
		logpkg.Str("correlation_id", sess.correlationID),
		logpkg.Str("state", st.String()),
	)
	return st
}

// stateFor maps a terminal event kind to the session's terminal state.
func stateFor(kind string) State {
	switch kind {
	case pubsub.KindDone:
		return StateCompleted
	case pubsub.KindTimeout:
		return StateTimedOut
	default:
		// error, expired, and any unknown terminal marker.
		return StateUpstreamError
	}
}

func (s *Service) register(cid string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[cid]; exists {
		return nil, fmt.Errorf("%w: correlation id %s already in flight", ErrInvalidRequest, cid)
	}
	sess := newSession(cid)
	s.active[cid] = sess
	return sess, nil
}

func (s *Service) release(cid string) {
	s.mu.Lock()
	delete(s.active, cid)
	s.mu.Unlock()
}
