package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/nodes"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

type Workflow struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	OwnerID string
	Status  *models.WorkflowStatus
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, err
	}

	result, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		Limit:   req.Limit,
		Offset:  req.Offset,
		OwnerID: req.OwnerID,
		Status:  req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusActive,
			models.WorkflowStatusRunning,
			models.WorkflowStatusCompleted,
			models.WorkflowStatusFailed,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	if req.OwnerID != "" {
		req.OwnerID = strings.TrimSpace(req.OwnerID)
		if req.OwnerID == "" {
			return ErrEmptyOwnerID
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow to the repository.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.Version = 1

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := w.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing workflow by its ID. The expected version guards
// against concurrent edits: stale writers get ErrStaleWorkflow instead of
// silently clobbering each other.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
	expectedVersion int64,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.Owner = existing.Owner
	workflow.UpdatedAt = time.Now().UTC()

	if workflow.Status == "" {
		workflow.Status = existing.Status
	}

	if err := w.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Update(ctx, workflow, expectedVersion); err != nil {
		if persistence.IsVersionConflict(err) {
			return nil, NewValidationError(
				"Update",
				"STALE_WORKFLOW",
				fmt.Sprintf("workflow %s was modified concurrently, expected version %d", workflowID, expectedVersion),
				ErrStaleWorkflow,
			)
		}

		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// AttachResource links a resource to a workflow. Both sides must exist.
func (w *Workflow) AttachResource(ctx context.Context, workflowID, resourceID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	if _, err := w.persistence.ResourceRepository().GetByID(ctx, resourceID); err != nil {
		return err
	}

	return w.persistence.WorkflowRepository().AttachResource(ctx, workflowID, resourceID)
}

// DetachResource removes a resource link from a workflow.
func (w *Workflow) DetachResource(ctx context.Context, workflowID, resourceID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	return w.persistence.WorkflowRepository().DetachResource(ctx, workflowID, resourceID)
}

// validateWorkflow checks struct tags, node types, node ID uniqueness and
// per-type payload schemas. Edges referencing unknown nodes are tolerated
// here; the dependency map builder skips them at execution time.
func (w *Workflow) validateWorkflow(workflow *models.Workflow) error {
	if err := w.validator.Struct(workflow); err != nil {
		return NewValidationError("validateWorkflow", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if !slices.Contains(models.NodeTypes(), node.Type) {
			return NewValidationError(
				"validateWorkflow",
				"INVALID_NODE_TYPE",
				fmt.Sprintf("node %s has unknown type '%s'", node.ID, node.Type),
				ErrInvalidNodeType,
			)
		}

		if _, dup := seen[node.ID]; dup {
			return NewValidationError(
				"validateWorkflow",
				"DUPLICATE_NODE_ID",
				fmt.Sprintf("node ID %s appears more than once", node.ID),
				ErrDuplicateNodeID,
			)
		}

		seen[node.ID] = struct{}{}

		if err := nodes.ValidatePayload(node.Type, node.Payload); err != nil {
			return NewValidationError(
				"validateWorkflow",
				"INVALID_NODE_PAYLOAD",
				fmt.Sprintf("node %s: %v", node.ID, err),
				ErrInvalidNodePayload,
			)
		}
	}

	return nil
}
