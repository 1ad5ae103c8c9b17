// Package events defines event types for workflow execution and resource
// processing notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single event stream shared by the API and the worker.
const Topic = "macadamia.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow run lifecycle events.
	WorkflowRunRequestedEvent EventType = "workflow.run.requested"
	WorkflowRunCompletedEvent EventType = "workflow.run.completed"
	WorkflowRunFailedEvent    EventType = "workflow.run.failed"

	// Resource processing events.
	ResourceProcessRequestedEvent EventType = "resource.process.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowRunRequested asks the worker to execute a workflow. RunID is chosen
// by the publisher so redelivered requests can be deduplicated.
type WorkflowRunRequested struct {
	BaseEvent

	RunID       string   `json:"run_id"`
	UserID      string   `json:"user_id,omitempty"`
	ResourceIDs []string `json:"resource_ids,omitempty"`
}

func (w WorkflowRunRequested) GetType() EventType {
	return WorkflowRunRequestedEvent
}

type WorkflowRunCompleted struct {
	BaseEvent

	RunID      string `json:"run_id"`
	Result     string `json:"result,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (w WorkflowRunCompleted) GetType() EventType {
	return WorkflowRunCompletedEvent
}

type WorkflowRunFailed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (w WorkflowRunFailed) GetType() EventType {
	return WorkflowRunFailedEvent
}

// ResourceProcessRequested asks the worker to extract text content from an
// uploaded resource.
type ResourceProcessRequested struct {
	BaseEvent

	ResourceID string `json:"resource_id"`
}

func (r ResourceProcessRequested) GetType() EventType {
	return ResourceProcessRequestedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
