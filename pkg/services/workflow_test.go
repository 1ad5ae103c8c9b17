package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence/file"
)

func newTestWorkflowService(t *testing.T) (*Workflow, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewWorkflow(p), p
}

func validWorkflow() *models.Workflow {
	return &models.Workflow{
		Title:       "Heat sink study",
		Description: "Thermal analysis of the rev-B heat sink",
		Owner:       "user-1",
		Nodes: []*models.Node{
			{ID: "spec", Type: models.NodeTypeSpecs, Label: "Requirements"},
			{ID: "sim", Type: models.NodeTypeSimulation, Label: "Thermal sim"},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "spec", Target: "sim"},
		},
	}
}

func TestWorkflowService_Create(t *testing.T) {
	svc, _ := newTestWorkflowService(t)

	created, err := svc.Create(context.Background(), validWorkflow())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, int64(1), created.Version)
}

func TestWorkflowService_Create_ValidationFailures(t *testing.T) {
	svc, _ := newTestWorkflowService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(w *models.Workflow)
	}{
		{
			name:   "title too short",
			mutate: func(w *models.Workflow) { w.Title = "ab" },
		},
		{
			name:   "missing description",
			mutate: func(w *models.Workflow) { w.Description = "" },
		},
		{
			name: "unknown node type",
			mutate: func(w *models.Workflow) {
				w.Nodes[0].Type = models.NodeType("mystery")
			},
		},
		{
			name: "duplicate node IDs",
			mutate: func(w *models.Workflow) {
				w.Nodes[1].ID = w.Nodes[0].ID
			},
		},
		{
			name: "payload violates node schema",
			mutate: func(w *models.Workflow) {
				w.Nodes[1].Payload = map[string]any{"simulationType": 42}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := validWorkflow()
			tt.mutate(workflow)

			_, err := svc.Create(ctx, workflow)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestWorkflowService_Update_StaleVersion(t *testing.T) {
	svc, _ := newTestWorkflowService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validWorkflow())
	require.NoError(t, err)

	edit := validWorkflow()
	edit.Title = "Heat sink study v2"

	updated, err := svc.Update(ctx, created.ID, edit, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	stale := validWorkflow()
	stale.Title = "Stale edit"

	_, err = svc.Update(ctx, created.ID, stale, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleWorkflow)
	assert.True(t, IsConflictError(err))
}

func TestWorkflowService_Update_NotFound(t *testing.T) {
	svc, _ := newTestWorkflowService(t)

	_, err := svc.Update(context.Background(), "missing", validWorkflow(), 1)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflowService_AttachResource_RequiresBothSides(t *testing.T) {
	svc, p := newTestWorkflowService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validWorkflow())
	require.NoError(t, err)

	err = svc.AttachResource(ctx, created.ID, "missing-resource")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	resource := &models.Resource{ID: "res-1", Title: "Datasheet"}
	require.NoError(t, p.ResourceRepository().Save(ctx, resource))

	require.NoError(t, svc.AttachResource(ctx, created.ID, "res-1"))

	loaded, err := svc.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"res-1"}, loaded.ResourceIDs)

	require.NoError(t, svc.DetachResource(ctx, created.ID, "res-1"))
}

func TestWorkflowService_Delete(t *testing.T) {
	svc, _ := newTestWorkflowService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validWorkflow())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.FetchByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, created.ID), ErrWorkflowNotFound)
}

func TestWorkflowService_HealthCheck(t *testing.T) {
	svc, _ := newTestWorkflowService(t)

	message, healthy := svc.HealthCheck(context.Background())
	assert.True(t, healthy)
	assert.Contains(t, message, "healthy")
}
