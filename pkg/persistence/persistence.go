// Package persistence provides the data storage abstraction for workflows,
// runs, and resources.
package persistence

import (
	"context"
	"time"

	"github.com/macadamia-hq/macadamia/pkg/models"
)

// Persistence bundles the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	ResourceRepository() ResourceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions controls filtering and pagination of workflow listing.
type ListWorkflowsOptions struct {
	Limit   int
	Offset  int
	OwnerID string
	Status  *models.WorkflowStatus
}

// WorkflowPage is one page of workflows plus paging metadata.
type WorkflowPage struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// WorkflowRepository stores workflow graphs and their resource attachments.
type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowPage, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error

	// Update replaces the stored workflow if its version still equals
	// expectedVersion, bumping the version on success. A mismatch returns
	// ErrVersionConflict: two racing editors never silently clobber each
	// other.
	Update(ctx context.Context, workflow *models.Workflow, expectedVersion int64) error

	// UpdateStatus transitions only the status column (plus last_run when
	// non-nil). The execution job uses it so status flips do not contend
	// with user edits on the version counter.
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, lastRun *time.Time) error

	Delete(ctx context.Context, id string) error

	AttachResource(ctx context.Context, workflowID, resourceID string) error
	DetachResource(ctx context.Context, workflowID, resourceID string) error
}

// RunRepository stores execution history.
type RunRepository interface {
	// Create inserts a run record. A run with the same ID already present
	// returns ErrRunAlreadyExists; the worker relies on this for
	// effectively-once execution under at-least-once delivery.
	Create(ctx context.Context, run *models.WorkflowRun) error

	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	Update(ctx context.Context, run *models.WorkflowRun) error
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error)
	LatestByWorkflow(ctx context.Context, workflowID string) (*models.WorkflowRun, error)
}

// ResourceRepository stores uploaded documents and their extracted text.
type ResourceRepository interface {
	List(ctx context.Context, ownerID string) ([]*models.Resource, error)
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Resource, error)
	Save(ctx context.Context, resource *models.Resource) error
	UpdateContent(ctx context.Context, id, contentAsText string, status models.ResourceStatus) error
	Delete(ctx context.Context, id string) error
}
