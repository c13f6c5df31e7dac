// Package service holds the business logic between the HTTP handlers and the
// repositories: canvas CRUD, the RFC 6902 graph mutation flow, and run
// admission in front of the scheduler.
package service

import "errors"

// Logger is the narrow logging surface the services need
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Sentinel errors handlers map to 4xx responses.
var (
	// ErrInvalidPatch covers malformed or disallowed patch operations,
	// including patches that fail to apply.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrInvalidGraph covers patched documents that break a structural
	// invariant of the canvas graph.
	ErrInvalidGraph = errors.New("invalid graph")
)
