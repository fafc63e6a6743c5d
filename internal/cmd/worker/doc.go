// Package workerrun exposes a shared Run entrypoint used by the CLI to start
// the token-generating worker against the configured brokers.
package workerrun
