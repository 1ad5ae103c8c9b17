package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func sampleWorkflow(title string) *models.Workflow {
	return &models.Workflow{
		Title:       title,
		Description: "A test workflow",
		Status:      models.WorkflowStatusDraft,
		Owner:       "user-1",
		Nodes: []*models.Node{
			{ID: "spec", Type: models.NodeTypeSpecs, Label: "Specs", Status: models.NodeStatusPending},
			{ID: "sim", Type: models.NodeTypeSimulation, Label: "Simulation", Status: models.NodeStatusPending},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "spec", Target: "sim"},
		},
	}
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := sampleWorkflow("Bracket analysis")

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, int64(1), workflow.Version)

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bracket analysis", loaded.Title)
	assert.Len(t, loaded.Nodes, 2)
	assert.Len(t, loaded.Edges, 1)
}

func TestWorkflowRepository_GetByID_NotFound(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.WorkflowRepository().GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_Update_VersionConflict(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := sampleWorkflow("Versioned")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	workflow.Title = "Versioned v2"
	require.NoError(t, p.WorkflowRepository().Update(ctx, workflow, 1))
	assert.Equal(t, int64(2), workflow.Version)

	stale := sampleWorkflow("Stale edit")
	stale.ID = workflow.ID

	err := p.WorkflowRepository().Update(ctx, stale, 1)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestWorkflowRepository_UpdateStatus_DoesNotBumpVersion(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := sampleWorkflow("Status only")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	now := time.Now().UTC()
	require.NoError(t, p.WorkflowRepository().UpdateStatus(ctx, workflow.ID, models.WorkflowStatusRunning, &now))

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRunning, loaded.Status)
	assert.Equal(t, int64(1), loaded.Version)
	require.NotNil(t, loaded.LastRun)
}

func TestWorkflowRepository_Delete_IsSoft(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := sampleWorkflow("Doomed")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))
	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	page, err := p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Workflows)
}

func TestWorkflowRepository_List_FiltersAndPaginates(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	for i, owner := range []string{"user-1", "user-1", "user-2"} {
		workflow := sampleWorkflow("Workflow " + string(rune('A'+i)))
		workflow.Owner = owner
		require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))
	}

	page, err := p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalCount)
	assert.Len(t, page.Workflows, 2)
	assert.False(t, page.HasNextPage)

	page, err = p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.Len(t, page.Workflows, 2)
	assert.True(t, page.HasNextPage)
}

func TestWorkflowRepository_AttachDetachResource(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := sampleWorkflow("With resources")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	require.NoError(t, p.WorkflowRepository().AttachResource(ctx, workflow.ID, "res-1"))
	require.NoError(t, p.WorkflowRepository().AttachResource(ctx, workflow.ID, "res-1"))

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"res-1"}, loaded.ResourceIDs)

	require.NoError(t, p.WorkflowRepository().DetachResource(ctx, workflow.ID, "res-1"))

	err = p.WorkflowRepository().DetachResource(ctx, workflow.ID, "res-1")
	assert.ErrorIs(t, err, persistence.ErrResourceNotAttached)
}

func TestRunRepository_CreateRejectsDuplicateID(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	run := &models.WorkflowRun{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Status:     models.RunStatusProcessing,
	}

	require.NoError(t, p.RunRepository().Create(ctx, run))

	err := p.RunRepository().Create(ctx, &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1"})
	assert.True(t, persistence.IsRunAlreadyExists(err))
}

func TestRunRepository_UpdateAndLatest(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	first := &models.WorkflowRun{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Status:     models.RunStatusProcessing,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	second := &models.WorkflowRun{
		ID:         "run-2",
		WorkflowID: "wf-1",
		Status:     models.RunStatusProcessing,
	}

	require.NoError(t, p.RunRepository().Create(ctx, first))
	require.NoError(t, p.RunRepository().Create(ctx, second))

	completed := time.Now().UTC()
	second.Status = models.RunStatusCompleted
	second.Result = "done"
	second.CompletedAt = &completed
	require.NoError(t, p.RunRepository().Update(ctx, second))

	latest, err := p.RunRepository().LatestByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	assert.Equal(t, models.RunStatusCompleted, latest.Status)

	runs, err := p.RunRepository().ListByWorkflow(ctx, "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestRunRepository_LatestByWorkflow_NotFound(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.RunRepository().LatestByWorkflow(context.Background(), "wf-none")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestResourceRepository_SaveListAndUpdateContent(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	resource := &models.Resource{
		Title:    "Datasheet",
		FileType: "application/pdf",
		Owner:    "user-1",
	}

	require.NoError(t, p.ResourceRepository().Save(ctx, resource))
	assert.NotEmpty(t, resource.ID)
	assert.Equal(t, models.ResourceStatusProcessing, resource.Status)

	require.NoError(t, p.ResourceRepository().UpdateContent(ctx, resource.ID, "extracted text", models.ResourceStatusCompleted))

	loaded, err := p.ResourceRepository().GetByID(ctx, resource.ID)
	require.NoError(t, err)
	assert.Equal(t, "extracted text", loaded.ContentAsText)
	assert.Equal(t, models.ResourceStatusCompleted, loaded.Status)

	listed, err := p.ResourceRepository().List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	listed, err = p.ResourceRepository().List(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestResourceRepository_GetByIDs_SkipsMissing(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	resource := &models.Resource{ID: "res-1", Title: "Known"}
	require.NoError(t, p.ResourceRepository().Save(ctx, resource))

	found, err := p.ResourceRepository().GetByIDs(ctx, []string{"res-1", "res-missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "res-1", found[0].ID)
}

func TestResourceRepository_Delete(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	resource := &models.Resource{ID: "res-1", Title: "Ephemeral"}
	require.NoError(t, p.ResourceRepository().Save(ctx, resource))
	require.NoError(t, p.ResourceRepository().Delete(ctx, "res-1"))

	err := p.ResourceRepository().Delete(ctx, "res-1")
	assert.ErrorIs(t, err, persistence.ErrResourceNotFound)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/definitely/not/here")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
