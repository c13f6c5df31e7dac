package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is a durable conversational session consumed by agent processors.
// State is the fold of every event's stateDelta in append order.
type Session struct {
	ID             string                 `json:"id"`
	AppName        string                 `json:"appName"`
	UserID         string                 `json:"userId"`
	State          map[string]interface{} `json:"state"`
	Events         []Event                `json:"events"`
	LastUpdateTime float64                `json:"lastUpdateTime"`
}

// SessionSummary is the identity-only view returned by List
type SessionSummary struct {
	ID             string  `json:"id"`
	AppName        string  `json:"appName"`
	UserID         string  `json:"userId"`
	LastUpdateTime float64 `json:"lastUpdateTime"`
}

// Event is a single append-only session record. Timestamp is epoch seconds.
type Event struct {
	ID           string                 `json:"id"`
	InvocationID string                 `json:"invocationId,omitempty"`
	Author       string                 `json:"author"`
	Timestamp    float64                `json:"timestamp"`
	Content      map[string]interface{} `json:"content,omitempty"`
	Actions      EventActions           `json:"actions"`
}

// EventActions carries the side effects an event applies to the session
type EventActions struct {
	StateDelta map[string]interface{} `json:"stateDelta,omitempty"`
}

// NewEvent creates an event with a generated ID and current timestamp
func NewEvent(author string) Event {
	return Event{
		ID:        uuid.NewString(),
		Author:    author,
		Timestamp: nowTimestamp(),
	}
}

const tombstoneKey = "__del__"

// Tombstone returns the delta value that deletes a state key
func Tombstone() map[string]interface{} {
	return map[string]interface{}{tombstoneKey: true}
}

func isTombstone(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	del, ok := m[tombstoneKey].(bool)
	return ok && del
}

// applyDelta folds a stateDelta into state, tombstones deleting keys
func applyDelta(state map[string]interface{}, delta map[string]interface{}) {
	for k, v := range delta {
		if isTombstone(v) {
			delete(state, k)
		} else {
			state[k] = v
		}
	}
}

func nowTimestamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
