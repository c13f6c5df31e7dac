package scheduler

import "errors"

// Failure reasons recorded on task rows. Tasks store the rendered message;
// the sentinels exist so tests and callers can match with errors.Is.
var (
	// ErrNodeRemovedBeforeProcessing means the node row vanished between
	// snapshot load and execution.
	ErrNodeRemovedBeforeProcessing = errors.New("node removed before processing")

	// ErrNoProcessorForType means the registry carries no processor for the
	// node's type.
	ErrNoProcessorForType = errors.New("no processor registered for node type")

	// ErrDependencyCycleOrDeadlock marks tasks still queued after the
	// generation loop drained. Only a snapshot that violates acyclicity can
	// produce it.
	ErrDependencyCycleOrDeadlock = errors.New("dependency cycle or deadlock detected")

	// ErrCancelled marks tasks aborted because the run's context ended.
	ErrCancelled = errors.New("cancelled")

	// ErrResultPersistence means the node row write failed for a reason other
	// than the row being gone.
	ErrResultPersistence = errors.New("failed to persist node result")
)
