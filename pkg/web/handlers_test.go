package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence/file"
	"github.com/macadamia-hq/macadamia/pkg/rungate"
	"github.com/macadamia-hq/macadamia/pkg/services"
	"github.com/macadamia-hq/macadamia/pkg/web"
)

type capturedPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
	err    error
}

func (p *capturedPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.events = append(p.events, event)

	return nil
}

type testEnv struct {
	app         *fiber.App
	persistence *file.Persistence
	publisher   *capturedPublisher
	gate        rungate.Gate
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	publisher := &capturedPublisher{}
	gate := rungate.NewMemoryGate()

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(p),
		services.NewRun(p),
		services.NewResource(p),
		publisher,
		gate,
		validator.New(),
	)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testEnv{app: app, persistence: p, publisher: publisher, gate: gate}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (e *testEnv) createWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	resp, body := e.request(t, http.MethodPost, "/api/workflows", web.CreateWorkflowRequest{
		Title:       "Bracket stress check",
		Description: "Static stress analysis",
		Owner:       "user-1",
		Nodes: []web.NodeRequest{
			{ID: "spec", Type: "specs", Label: "Load cases"},
			{ID: "sim", Type: "simulation", Label: "FEM run"},
		},
		Edges: []web.EdgeRequest{
			{ID: "e1", Source: "spec", Target: "sim"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	return &workflow
}

func TestCreateWorkflow(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
	assert.Equal(t, int64(1), workflow.Version)
	assert.Len(t, workflow.Nodes, 2)
}

func TestCreateWorkflow_Invalid(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.request(t, http.MethodPost, "/api/workflows", web.CreateWorkflowRequest{
		Title: "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "validation_error")
}

func TestUpdateWorkflow_VersionConflict(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	title := "Bracket stress check v2"
	resp, body := env.request(t, http.MethodPatch, "/api/workflows/"+workflow.ID, web.UpdateWorkflowRequest{
		Title:   &title,
		Version: 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Same version again: someone else already bumped it.
	resp, body = env.request(t, http.MethodPatch, "/api/workflows/"+workflow.ID, web.UpdateWorkflowRequest{
		Title:   &title,
		Version: 1,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "conflict")
}

func TestExecuteWorkflow(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	resp, body := env.request(t, http.MethodPost, "/api/execute-workflow", web.ExecuteWorkflowRequest{
		WorkflowID: workflow.ID,
		UserID:     "user-1",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var ack web.ExecuteWorkflowResponse
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.NotEmpty(t, ack.RunID)
	assert.Equal(t, "Workflow execution started", ack.Message)

	env.publisher.mu.Lock()
	defer env.publisher.mu.Unlock()
	require.Len(t, env.publisher.events, 1)

	requested, ok := env.publisher.events[0].(events.WorkflowRunRequested)
	require.True(t, ok)
	assert.Equal(t, ack.RunID, requested.RunID)
	assert.Equal(t, workflow.ID, requested.WorkflowID)
}

func TestExecuteWorkflow_NotFound(t *testing.T) {
	env := setupTestApp(t)

	resp, _ := env.request(t, http.MethodPost, "/api/execute-workflow", web.ExecuteWorkflowRequest{
		WorkflowID: "ghost",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteWorkflow_AlreadyRunning(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	workflow := env.createWorkflow(t)

	require.NoError(t, env.persistence.WorkflowRepository().UpdateStatus(ctx, workflow.ID, models.WorkflowStatusRunning, nil))

	resp, body := env.request(t, http.MethodPost, "/api/execute-workflow", web.ExecuteWorkflowRequest{
		WorkflowID: workflow.ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "already running")
}

func TestExecuteWorkflow_GateHeld(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	workflow := env.createWorkflow(t)

	acquired, err := env.gate.Acquire(ctx, workflow.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	resp, _ := env.request(t, http.MethodPost, "/api/execute-workflow", web.ExecuteWorkflowRequest{
		WorkflowID: workflow.ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkflowExecutions(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	workflow := env.createWorkflow(t)

	resp, _ := env.request(t, http.MethodGet, "/api/workflow-executions?workflowId="+workflow.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no executions yet")

	run := &models.WorkflowRun{
		ID:         "run-1",
		WorkflowID: workflow.ID,
		Status:     models.RunStatusCompleted,
		Result:     "all load cases pass",
	}
	require.NoError(t, env.persistence.RunRepository().Create(ctx, run))

	resp, body := env.request(t, http.MethodGet, "/api/workflow-executions?workflowId="+workflow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var latest models.WorkflowRun
	require.NoError(t, json.Unmarshal(body, &latest))
	assert.Equal(t, "run-1", latest.ID)
	assert.Equal(t, "all load cases pass", latest.Result)

	resp, _ = env.request(t, http.MethodGet, "/api/workflow-executions", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowRuns(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	workflow := env.createWorkflow(t)

	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, env.persistence.RunRepository().Create(ctx, &models.WorkflowRun{
			ID:         id,
			WorkflowID: workflow.ID,
			Status:     models.RunStatusCompleted,
		}))
	}

	resp, body := env.request(t, http.MethodGet, "/api/workflows/"+workflow.ID+"/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Runs []*models.WorkflowRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Len(t, parsed.Runs, 2)
}

func TestGetWorkflowGraph(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	resp, body := env.request(t, http.MethodGet, "/api/workflows/"+workflow.ID+"/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Dependencies map[string][]string `json:"dependencies"`
		Executable   []string            `json:"executable"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, []string{"spec"}, parsed.Dependencies["sim"])
	assert.Equal(t, []string{"spec"}, parsed.Executable)
}

func TestAttachDetachResource(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	resp, body := env.request(t, http.MethodPost, "/api/resources", web.CreateResourceRequest{
		Title: "Datasheet",
		Owner: "user-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var resource models.Resource
	require.NoError(t, json.Unmarshal(body, &resource))

	resp, _ = env.request(t, http.MethodPost, "/api/workflows/"+workflow.ID+"/resources/"+resource.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.request(t, http.MethodGet, "/api/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.Workflow
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, []string{resource.ID}, loaded.ResourceIDs)

	resp, _ = env.request(t, http.MethodDelete, "/api/workflows/"+workflow.ID+"/resources/"+resource.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.request(t, http.MethodDelete, "/api/workflows/"+workflow.ID+"/resources/"+resource.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAttachResource_MissingResource(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	resp, _ := env.request(t, http.MethodPost, "/api/workflows/"+workflow.ID+"/resources/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateResource_PublishesProcessRequest(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.request(t, http.MethodPost, "/api/resources", web.CreateResourceRequest{
		Title: "Datasheet",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var resource models.Resource
	require.NoError(t, json.Unmarshal(body, &resource))
	assert.Equal(t, models.ResourceStatusProcessing, resource.Status)

	env.publisher.mu.Lock()
	defer env.publisher.mu.Unlock()
	require.Len(t, env.publisher.events, 1)

	requested, ok := env.publisher.events[0].(events.ResourceProcessRequested)
	require.True(t, ok)
	assert.Equal(t, resource.ID, requested.ResourceID)
}

func TestReprocess(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	resource := &models.Resource{
		ID:     "res-1",
		Title:  "Datasheet",
		Status: models.ResourceStatusError,
	}
	require.NoError(t, env.persistence.ResourceRepository().Save(ctx, resource))

	resp, body := env.request(t, http.MethodPost, "/api/reprocess", web.ReprocessRequest{ResourceID: "res-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var parsed models.Resource
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, models.ResourceStatusProcessing, parsed.Status)

	resp, _ = env.request(t, http.MethodPost, "/api/reprocess", web.ReprocessRequest{ResourceID: "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflow(t *testing.T) {
	env := setupTestApp(t)

	workflow := env.createWorkflow(t)

	resp, _ := env.request(t, http.MethodDelete, "/api/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/api/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWorkflows(t *testing.T) {
	env := setupTestApp(t)

	env.createWorkflow(t)

	resp, body := env.request(t, http.MethodGet, "/api/workflows?owner_id=user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int64              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, int64(1), parsed.TotalCount)

	resp, body = env.request(t, http.MethodGet, "/api/workflows?owner_id=user-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, int64(0), parsed.TotalCount)
}

func TestHealthCheck(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}
