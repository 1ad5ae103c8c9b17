package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

const dirPerm = 0o755

// WorkflowRepository stores each workflow as workflows/<id>.json.
type WorkflowRepository struct {
	root string
	mu   *sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string, mu *sync.Mutex) *WorkflowRepository {
	return &WorkflowRepository{root: root, mu: mu}
}

func (wr *WorkflowRepository) dir() string {
	return filepath.Join(wr.root, "workflows")
}

func (wr *WorkflowRepository) path(id string) string {
	return filepath.Join(wr.dir(), id+".json")
}

func (wr *WorkflowRepository) read(id string) (*models.Workflow, error) {
	data, err := os.ReadFile(wr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) write(workflow *models.Workflow) error {
	if err := os.MkdirAll(wr.dir(), dirPerm); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	if err := os.WriteFile(wr.path(workflow.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write workflow file: %w", err)
	}

	return nil
}

func (wr *WorkflowRepository) all(ctx context.Context) ([]*models.Workflow, error) {
	root := os.DirFS(wr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := wr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if workflow.DeletedAt == nil {
			workflows = append(workflows, workflow)
		}
	}

	_ = ctx

	return workflows, nil
}

// List returns a filtered, paginated page of workflows.
func (wr *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowPage, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	all, err := wr.all(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if opts.OwnerID != "" && workflow.Owner != opts.OwnerID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	total := int64(len(filtered))

	start := opts.Offset
	if start > len(filtered) {
		start = len(filtered)
	}

	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &persistence.WorkflowPage{
		Workflows:   filtered[start:end],
		TotalCount:  total,
		HasNextPage: int64(end) < total,
	}, nil
}

// GetByID returns a workflow by its ID.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.read(id)
	if err != nil {
		return nil, err
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Save inserts a workflow, generating an ID and timestamps when absent.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.Version == 0 {
		workflow.Version = 1
	}

	return wr.write(workflow)
}

// Update replaces a workflow when the stored version matches expectedVersion.
func (wr *WorkflowRepository) Update(_ context.Context, workflow *models.Workflow, expectedVersion int64) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	stored, err := wr.read(workflow.ID)
	if err != nil {
		return err
	}

	if stored.DeletedAt != nil {
		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	if stored.Version != expectedVersion {
		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrVersionConflict)
	}

	workflow.Version = expectedVersion + 1
	workflow.CreatedAt = stored.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	return wr.write(workflow)
}

// UpdateStatus transitions only the status (and last_run when non-nil).
func (wr *WorkflowRepository) UpdateStatus(_ context.Context, id string, status models.WorkflowStatus, lastRun *time.Time) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	stored, err := wr.read(id)
	if err != nil {
		return err
	}

	if stored.DeletedAt != nil {
		return persistence.NewWorkflowError("UpdateStatus", id, persistence.ErrWorkflowNotFound)
	}

	stored.Status = status

	if lastRun != nil {
		stored.LastRun = lastRun
	}

	stored.UpdatedAt = time.Now().UTC()

	return wr.write(stored)
}

// Delete soft deletes a workflow.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	stored, err := wr.read(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored.DeletedAt = &now
	stored.UpdatedAt = now

	return wr.write(stored)
}

// AttachResource links a resource to a workflow. Attaching twice is a no-op.
func (wr *WorkflowRepository) AttachResource(_ context.Context, workflowID, resourceID string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	stored, err := wr.read(workflowID)
	if err != nil {
		return err
	}

	if slices.Contains(stored.ResourceIDs, resourceID) {
		return nil
	}

	stored.ResourceIDs = append(stored.ResourceIDs, resourceID)

	return wr.write(stored)
}

// DetachResource removes a resource link from a workflow.
func (wr *WorkflowRepository) DetachResource(_ context.Context, workflowID, resourceID string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	stored, err := wr.read(workflowID)
	if err != nil {
		return err
	}

	index := slices.Index(stored.ResourceIDs, resourceID)
	if index < 0 {
		return persistence.NewWorkflowError("DetachResource", workflowID, persistence.ErrResourceNotAttached)
	}

	stored.ResourceIDs = slices.Delete(stored.ResourceIDs, index, index+1)

	return wr.write(stored)
}
