package services

import (
	"context"
	"fmt"

	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// ErrRunNotFound is returned when a run is not found.
var ErrRunNotFound = persistence.ErrRunNotFound

// Run exposes workflow run history.
type Run struct {
	persistence persistence.Persistence
}

// NewRun creates a new run service.
func NewRun(persistence persistence.Persistence) *Run {
	return &Run{persistence: persistence}
}

// FetchByID retrieves a run by its ID.
func (r *Run) FetchByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return r.persistence.RunRepository().GetByID(ctx, id)
}

// History returns the most recent runs for a workflow, newest first.
// The workflow must exist; a workflow with no runs yields an empty slice.
func (r *Run) History(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	if _, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	runs, err := r.persistence.RunRepository().ListByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// Latest returns the most recent run for a workflow, or ErrRunNotFound when
// the workflow has never been executed.
func (r *Run) Latest(ctx context.Context, workflowID string) (*models.WorkflowRun, error) {
	if _, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return r.persistence.RunRepository().LatestByWorkflow(ctx, workflowID)
}
