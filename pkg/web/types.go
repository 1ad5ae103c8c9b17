// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/macadamia-hq/macadamia/pkg/models"

// NodeRequest carries one node of a workflow graph.
type NodeRequest struct {
	ID        string         `json:"id"         validate:"required"`
	Type      string         `json:"type"       validate:"required"`
	Label     string         `json:"label"      validate:"required"`
	Payload   map[string]any `json:"payload,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// EdgeRequest carries one directed edge of a workflow graph.
type EdgeRequest struct {
	ID     string `json:"id"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// CreateWorkflowRequest represents the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Title        string        `json:"title"        validate:"required,min=3"`
	Description  string        `json:"description"  validate:"required"`
	Instructions string        `json:"instructions"`
	Owner        string        `json:"owner"        validate:"required"`
	Schedule     string        `json:"schedule"`
	Nodes        []NodeRequest `json:"nodes"`
	Edges        []EdgeRequest `json:"edges"`
}

// UpdateWorkflowRequest represents the request body for updating a workflow.
// Fields are optional for partial updates; Version must match the stored
// workflow or the update is rejected as a conflict.
type UpdateWorkflowRequest struct {
	Title        *string       `json:"title,omitempty"        validate:"omitempty,min=3"`
	Description  *string       `json:"description,omitempty"`
	Instructions *string       `json:"instructions,omitempty"`
	Schedule     *string       `json:"schedule,omitempty"`
	Nodes        []NodeRequest `json:"nodes,omitempty"`
	Edges        []EdgeRequest `json:"edges,omitempty"`
	Version      int64         `json:"version"                validate:"required,min=1"`
}

// ExecuteWorkflowRequest asks for a workflow run.
type ExecuteWorkflowRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	UserID     string `json:"user_id"`
}

// ExecuteWorkflowResponse acknowledges an enqueued run.
type ExecuteWorkflowResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

// CreateResourceRequest registers a context document. Content carries the raw
// text; the worker extracts content_as_text from it asynchronously.
type CreateResourceRequest struct {
	Title       string `json:"title"       validate:"required"`
	Description string `json:"description"`
	Content     string `json:"content"`
	FileType    string `json:"file_type"`
	Owner       string `json:"owner"`
}

// ReprocessRequest asks for a resource's content to be re-extracted.
type ReprocessRequest struct {
	ResourceID string `json:"resource_id" validate:"required"`
}

// toNodes converts request nodes into model nodes. New nodes start pending.
func toNodes(reqs []NodeRequest) []*models.Node {
	nodes := make([]*models.Node, 0, len(reqs))

	for _, req := range reqs {
		nodes = append(nodes, &models.Node{
			ID:        req.ID,
			Type:      models.NodeType(req.Type),
			Label:     req.Label,
			Status:    models.NodeStatusPending,
			Payload:   req.Payload,
			PositionX: req.PositionX,
			PositionY: req.PositionY,
		})
	}

	return nodes
}

func toEdges(reqs []EdgeRequest) []*models.Edge {
	edges := make([]*models.Edge, 0, len(reqs))

	for _, req := range reqs {
		edges = append(edges, &models.Edge{
			ID:     req.ID,
			Source: req.Source,
			Target: req.Target,
		})
	}

	return edges
}
