// Package models defines the core domain models for Macadamia workflows,
// runs, and engineering resources.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, never executed
	WorkflowStatusActive    WorkflowStatus = "active"    // Executable
	WorkflowStatusRunning   WorkflowStatus = "running"   // An execution is in flight
	WorkflowStatusCompleted WorkflowStatus = "completed" // Last execution succeeded
	WorkflowStatusFailed    WorkflowStatus = "failed"    // Last execution failed
)

// IsExecutable reports whether an execution request may be accepted for a
// workflow in this status. Running workflows are rejected; completed and
// failed workflows may be re-run.
func (s WorkflowStatus) IsExecutable() bool {
	return s != WorkflowStatusRunning
}

// Workflow is a user-authored graph of typed engineering nodes plus attached
// resources and free-text instructions, executable to produce a generated
// analysis result.
type Workflow struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"        validate:"required,min=3"`
	Description  string         `json:"description"  validate:"required"`
	Instructions string         `json:"instructions"`
	Status       WorkflowStatus `json:"status"       validate:"required"`
	Nodes        []*Node        `json:"nodes"`
	Edges        []*Edge        `json:"edges"`
	ResourceIDs  []string       `json:"resource_ids,omitempty"` // Attached resources (join table)
	Owner        string         `json:"owner"`
	Schedule     string         `json:"schedule,omitempty"` // Optional cron spec for recurring runs
	Version      int64          `json:"version"`            // Bumped on every update; checked on writes
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastRun      *time.Time     `json:"last_run,omitempty"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// NodeIDs returns the IDs of all nodes in declaration order.
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		ids = append(ids, n.ID)
	}

	return ids
}
