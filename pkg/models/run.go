package models

import "time"

// RunStatus represents the state of a single execution attempt.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusError      RunStatus = "error"
)

// IsTerminal reports whether the run has finished, successfully or not.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// WorkflowRun is one execution attempt of a workflow, persisted independently
// of the workflow's current state for history purposes. The resource IDs are
// snapshotted at enqueue time so later attach/detach operations do not rewrite
// history.
type WorkflowRun struct {
	ID               string     `json:"id"          validate:"required"`
	WorkflowID       string     `json:"workflow_id" validate:"required"`
	UserID           string     `json:"user_id"`
	ResourceIDs      []string   `json:"resource_ids"`
	Status           RunStatus  `json:"status"`
	StatusMessage    string     `json:"status_message,omitempty"`
	Result           string     `json:"result,omitempty"`
	OutputResourceID *string    `json:"output_resource_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}
