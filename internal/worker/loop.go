package worker

import (
	"context"
	"errors"
	"time"

	"github.com/uemerson/tokenrelay/internal/pubsub"
	"github.com/uemerson/tokenrelay/internal/queue"
	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

// Options holds worker tunables.
type Options struct {
	// Timeout bounds total processing of one job; on expiry a timeout
	// marker is published instead of the completion sentinel.
	Timeout time.Duration
	// TokenDelay is the simulated inter-token generation delay.
	TokenDelay time.Duration
}

// Loop consumes jobs and streams simulated tokens to each job's correlation
// channel, always ending with exactly one terminal marker.
type Loop struct {
	src    queue.Consumer
	bus    pubsub.Bus
	opts   Options
	logger logpkg.Logger
}

// New creates a worker loop over the given adapters.
func New(src queue.Consumer, bus pubsub.Bus, opts Options, logger logpkg.Logger) *Loop {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Loop{src: src, bus: bus, opts: opts, logger: logger.With(logpkg.Component("worker"))}
}

// Run consumes jobs until ctx is cancelled or the queue connection drops.
// One job is handled end-to-end per consume cycle; per-job token order is
// preserved by construction.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("worker started, waiting for jobs")
	return l.src.Consume(ctx, l.handle)
}

func (l *Loop) handle(ctx context.Context, d queue.Delivery) {
	job, err := d.Job()
	if err != nil || !job.Valid() {
		// Poison message: requeueing would loop it forever.
		l.logger.Warn("rejecting malformed job", logpkg.Err(err))
		_ = d.Reject(false)
		return
	}
	channel := pubsub.Channel(job.UUID)
	jlog := l.logger.With(logpkg.Str("correlation_id", job.UUID))

	if job.Expired(time.Now()) {
		jlog.Warn("job expired, discarding")
		l.settle(ctx, d, channel, pubsub.Event{Event: pubsub.KindExpired}, jlog)
		return
	}
	if d.Redelivered() {
		// At-least-once delivery: reprocessing is safe, a duplicate
		// sentinel is a no-op for any still-open subscriber.
		jlog.Warn("reprocessing redelivered job")
	}

	genCtx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	err = l.generate(genCtx, job, channel)
	cancel()

	switch {
	case err == nil:
		l.settle(ctx, d, channel, pubsub.Done(), jlog)
	case ctx.Err() != nil:
		// Worker shutdown, not a job failure. No marker; the unacked job
		// goes back to the queue and the next worker restarts the stream.
		jlog.Info("shutdown mid-job, requeueing")
		_ = d.Reject(true)
	case errors.Is(err, context.DeadlineExceeded):
		jlog.Error("processing timeout reached")
		l.settle(ctx, d, channel, pubsub.Event{Event: pubsub.KindTimeout}, jlog)
	default:
		jlog.Error("generation failed", logpkg.Err(err))
		l.settle(ctx, d, channel, pubsub.Event{Event: pubsub.KindError}, jlog)
	}
}

// generate publishes the job's tokens in order with the configured delay.
func (l *Loop) generate(ctx context.Context, job queue.Job, channel string) error {
	for _, tok := range Tokens(job.Query, job.UUID) {
		if l.opts.TokenDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.opts.TokenDelay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.bus.Publish(ctx, channel, pubsub.Token(tok)); err != nil {
			return err
		}
	}
	return nil
}

// settle publishes the terminal marker and acknowledges the job only once
// the marker is out, so a crash in between redelivers rather than losing the
// stream's ending. If even the marker cannot be published, the job goes back
// to the queue once; a second failed attempt is dropped to bound redelivery.
func (l *Loop) settle(ctx context.Context, d queue.Delivery, channel string, marker pubsub.Event, jlog logpkg.Logger) {
	if err := l.bus.Publish(ctx, channel, marker); err != nil {
		jlog.Error("terminal marker publish failed", logpkg.Err(err))
		_ = d.Reject(!d.Redelivered())
		return
	}
	if err := d.Ack(); err != nil {
		jlog.Error("ack failed", logpkg.Err(err))
	}
}
