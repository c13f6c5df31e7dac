package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle of one node execution within a batch.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskExecuting TaskStatus = "EXECUTING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// Resolved reports whether the status is terminal.
func (s TaskStatus) Resolved() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is the per-run record of a single node's execution. Created QUEUED
// when the batch is assembled, EXECUTING when its generation starts, then
// COMPLETED or FAILED exactly once. Transient nodes persist their output on
// Result here instead of on the node row.
// Maps to: task table
type Task struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	NodeID     uuid.UUID   `db:"node_id" json:"nodeId"`
	BatchID    uuid.UUID   `db:"batch_id" json:"batchId"`
	Status     TaskStatus  `db:"status" json:"status"`
	StartedAt  *time.Time  `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt *time.Time  `db:"finished_at" json:"finishedAt,omitempty"`
	DurationMS *int64      `db:"duration_ms" json:"durationMs,omitempty"`
	Error      *string     `db:"error" json:"error,omitempty"`
	Result     *NodeResult `db:"result" json:"result,omitempty"`
}

// Batch groups the tasks produced by one run request. FinishedAt is stamped
// once every task has resolved; a batch never fails as a whole.
// Maps to: batch table
type Batch struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CanvasID   uuid.UUID  `db:"canvas_id" json:"canvasId"`
	UserID     string     `db:"user_id" json:"userId"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}
