package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/uemerson/tokenrelay/internal/cmd/client"
	serverrun "github.com/uemerson/tokenrelay/internal/cmd/server"
	workerrun "github.com/uemerson/tokenrelay/internal/cmd/worker"
	cfgpkg "github.com/uemerson/tokenrelay/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tokenrelay",
		Short: "Token streaming relay CLI",
		Long:  "tokenrelay relays LLM worker output to web clients over SSE, via a durable work queue and per-request pub/sub channels.",
	}

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(clientcmd.NewAskCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the relay server (HTTP/SSE gateway)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	addCommonFlags(startCmd)
	startCmd.Flags().String("http", "", "HTTP listen address (default from config)")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newWorkerCommand() *cobra.Command {
	workerCmd := &cobra.Command{Use: "worker", Short: "Worker commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the token-generating worker",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if err := workerrun.Run(cmd.Context(), workerrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			return nil
		},
	}
	addCommonFlags(startCmd)
	workerCmd.AddCommand(startCmd)
	return workerCmd
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Config file (JSON or YAML)")
	cmd.Flags().String("redis", "", "Redis address, host:port")
	cmd.Flags().String("amqp", "", "AMQP broker URL")
	cmd.Flags().String("queue", "", "Work queue name")
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "Log format: text|json")
}

// resolveConfig layers file, env, and flags (flags win).
func resolveConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("http"); v != "" {
		cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.RedisAddr = v
	}
	if v, _ := cmd.Flags().GetString("amqp"); v != "" {
		cfg.AMQPURL = v
	}
	if v, _ := cmd.Flags().GetString("queue"); v != "" {
		cfg.QueueName = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, nil
}

func apiURL() string {
	if v := os.Getenv("RELAY_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
