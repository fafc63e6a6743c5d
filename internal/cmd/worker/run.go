package workerrun

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
	"github.com/uemerson/tokenrelay/internal/worker"
	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

// Options configures the worker process.
type Options struct {
	Config cfgpkg.Config
}

// Run connects the brokers and consumes jobs until ctx is cancelled. Jobs
// in flight at shutdown stay unacked and are redelivered by the broker.
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

	loop := worker.New(jobs, pubsub.NewRedis(rdb, logger), worker.Options{
		Timeout:    cfg.WorkerTimeout(),
		TokenDelay: cfg.TokenDelay(),
	}, logger)

	if err := loop.Run(sctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker shut down")
	return nil
}
