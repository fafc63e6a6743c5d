// Package log provides tokenrelay's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. It is backed by Go's standard
// library slog with text or JSON handlers, so components depend on the facade
// rather than on a concrete handler configuration.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat("text"),
//	)
//	l = l.With(log.Component("relay"))
//	l.Info("server started", log.Str("http", ":8080"))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config with a level
// name and format. Loggers are passed explicitly via dependency injection;
// there is no package-level default.
package log
