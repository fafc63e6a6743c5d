package config

import (
	"os"
	"strconv"
)

// FromEnv overlays RELAY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("RELAY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("RELAY_AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("RELAY_QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("RELAY_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeoutSeconds = n
		}
	}
	if v := os.Getenv("RELAY_WORKER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerTimeoutSeconds = n
		}
	}
	if v := os.Getenv("RELAY_TOKEN_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TokenDelayMs = n
		}
	}
	if v := os.Getenv("RELAY_PREFETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Prefetch = n
		}
	}
	if v := os.Getenv("RELAY_JOB_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JobTTLSeconds = n
		}
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RELAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}
