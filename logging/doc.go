// Package logging provides a minimal logging interface and adapters for taskmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, the tool registry and the stores use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - TaskMeshLogger with component/task context and tool/compaction helpers
//   - ZerologAdapter for deployments standardised on zerolog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := taskmesh.New(func(o *taskmesh.Options) { o.Logger = logger })
//
// The interface is intentionally minimal to avoid vendor lock-in while
// supporting structured logging where available.
package logging
