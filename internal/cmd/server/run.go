package serverrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/uemerson/tokenrelay/internal/config"
	"github.com/uemerson/tokenrelay/internal/pubsub"
	"github.com/uemerson/tokenrelay/internal/queue"
	"github.com/uemerson/tokenrelay/internal/relay"
	httpserver "github.com/uemerson/tokenrelay/internal/server/http"
	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

// Options configures the relay server process.
type Options struct {
	Config cfgpkg.Config
}

// Run connects the shared broker clients, wires the relay over them, and
// serves HTTP until ctx is cancelled. Broker connections are opened here and
// closed on return; they are shared by all sessions.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := opts.Config

	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		logger = logpkg.NewLogger()
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(sctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	jobs, err := queue.NewAMQP(conn, cfg.QueueName, cfg.Prefetch, logger)
	if err != nil {
		return err
	}
	defer func() { _ = jobs.Close() }()

	bus := pubsub.NewRedis(rdb, logger)
	relaySvc := relay.New(bus, jobs, relay.Options{
		IdleTimeout: cfg.IdleTimeout(),
		JobTTL:      cfg.JobTTL(),
	}, logger)

	health := func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		if conn.IsClosed() {
			return errors.New("amqp connection closed")
		}
		return nil
	}

	logger.Info("starting relay server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("redis", cfg.RedisAddr),
		logpkg.Str("queue", cfg.QueueName),
		logpkg.Dur("idle_timeout", cfg.IdleTimeout()),
	)
	return httpserver.New(relaySvc, health, logger).ListenAndServe(sctx, cfg.HTTPAddr)
}
