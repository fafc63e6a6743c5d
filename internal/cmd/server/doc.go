// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the relay server, handling broker lifecycle and graceful shutdown.
//
// Example:
//
//	cfg := config.Default()
//	config.FromEnv(&cfg)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
