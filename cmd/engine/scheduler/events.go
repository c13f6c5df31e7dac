package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
)

// EventsTopic is the queue topic progress events go out on. The fanout
// service subscribes to it and relays per-user payloads over websockets.
const EventsTopic = "canvas:events"

// Progress event types.
const (
	EventBatchStarted   = "batch_started"
	EventBatchCompleted = "batch_completed"
	EventNodeStarted    = "node_started"
	EventNodeCompleted  = "node_completed"
	EventNodeFailed     = "node_failed"
)

// EventPublisher is the slice of the queue interface the scheduler needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
}

// ProgressEvent is one scheduler transition, shaped for the websocket fanout.
type ProgressEvent struct {
	Type      string            `json:"type"`
	BatchID   uuid.UUID         `json:"batchId"`
	CanvasID  uuid.UUID         `json:"canvasId"`
	NodeID    *uuid.UUID        `json:"nodeId,omitempty"`
	Status    models.TaskStatus `json:"status,omitempty"`
	Error     *string           `json:"error,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// publishEvent sends a progress event keyed by the batch's user. Events are
// best-effort: failures are logged and never affect the run.
func (s *Scheduler) publishEvent(ctx context.Context, run *runState, event *ProgressEvent) {
	if s.events == nil {
		return
	}

	event.BatchID = run.batch.ID
	event.CanvasID = run.batch.CanvasID
	event.Timestamp = time.Now().Unix()

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal progress event", "type", event.Type, "error", err)
		return
	}

	if err := s.events.Publish(ctx, EventsTopic, run.batch.UserID, payload); err != nil {
		s.logger.Warn("failed to publish progress event",
			"type", event.Type,
			"batch_id", run.batch.ID,
			"error", err)
	}
}

func (s *Scheduler) publishNodeEvent(ctx context.Context, run *runState, eventType string, task *models.Task) {
	nodeID := task.NodeID
	s.publishEvent(ctx, run, &ProgressEvent{
		Type:   eventType,
		NodeID: &nodeID,
		Status: task.Status,
		Error:  task.Error,
	})
}
