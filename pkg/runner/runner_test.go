package runner

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/llm"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
	"github.com/macadamia-hq/macadamia/pkg/persistence/file"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []llm.GenerateRequest
	text    string
	err     error
}

func (f *fakeGenerator) GenerateText(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.prompts = append(f.prompts, req)

	if f.err != nil {
		return nil, f.err
	}

	return &llm.GenerateResponse{Text: f.text, Model: "fake"}, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (c *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	return nil
}

func (c *capturingPublisher) last(t *testing.T) eventbus.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	require.NotEmpty(t, c.events)

	return c.events[len(c.events)-1]
}

func setupWorkflow(t *testing.T, p persistence.Persistence, mutate func(w *models.Workflow)) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		Title:        "Bracket stress check",
		Description:  "Static stress analysis of the mounting bracket",
		Instructions: "Check the bracket against the load cases.",
		Status:       models.WorkflowStatusActive,
		Owner:        "user-1",
		Nodes: []*models.Node{
			{ID: "spec", Type: models.NodeTypeSpecs, Label: "Load cases"},
			{ID: "geo", Type: models.NodeTypeGeometry, Label: "Bracket geometry"},
			{ID: "sim", Type: models.NodeTypeSimulation, Label: "FEM run"},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "spec", Target: "sim"},
			{ID: "e2", Source: "geo", Target: "sim"},
		},
	}

	if mutate != nil {
		mutate(workflow)
	}

	require.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func newTestRunner(p persistence.Persistence, gen *fakeGenerator, pub *capturingPublisher) *Runner {
	var publisher eventbus.EventPublisher
	if pub != nil {
		publisher = pub
	}

	return NewRunner(p, gen, publisher, nil, "worker-test", slog.Default())
}

func TestRunner_Run_Success(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{text: "The bracket holds with a safety factor of 2.1."}
	pub := &capturingPublisher{}
	ctx := context.Background()

	workflow := setupWorkflow(t, p, nil)

	runner := newTestRunner(p, gen, pub)

	err := runner.Run(ctx, RunRequest{RunID: "run-1", WorkflowID: workflow.ID, UserID: "user-1"})
	require.NoError(t, err)

	run, err := p.RunRepository().GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "The bracket holds with a safety factor of 2.1.", run.Result)
	require.NotNil(t, run.CompletedAt)

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.LastRun)

	completed, ok := pub.last(t).(events.WorkflowRunCompleted)
	require.True(t, ok)
	assert.Equal(t, "run-1", completed.RunID)
	assert.Equal(t, workflow.ID, completed.WorkflowID)

	assert.Equal(t, 1, gen.calls, "exactly one model call per run")
}

func TestRunner_Run_IdempotentOnRedelivery(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{text: "result"}
	ctx := context.Background()

	workflow := setupWorkflow(t, p, nil)
	runner := newTestRunner(p, gen, nil)

	req := RunRequest{RunID: "run-1", WorkflowID: workflow.ID}

	require.NoError(t, runner.Run(ctx, req))
	require.NoError(t, runner.Run(ctx, req), "redelivered request must be a no-op")

	assert.Equal(t, 1, gen.calls, "the model must not be called again for a known run ID")

	runs, err := p.RunRepository().ListByWorkflow(ctx, workflow.ID, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunner_Run_MissingWorkflow(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{text: "unused"}
	ctx := context.Background()

	runner := newTestRunner(p, gen, nil)

	err := runner.Run(ctx, RunRequest{RunID: "run-1", WorkflowID: "ghost"})
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	run, err := p.RunRepository().GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Contains(t, run.StatusMessage, "not found")

	assert.Zero(t, gen.calls)
}

func TestRunner_Run_ModelFailureMarksRunErrored(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{err: assert.AnError}
	pub := &capturingPublisher{}
	ctx := context.Background()

	workflow := setupWorkflow(t, p, nil)
	runner := newTestRunner(p, gen, pub)

	err := runner.Run(ctx, RunRequest{RunID: "run-1", WorkflowID: workflow.ID})
	require.Error(t, err)

	run, err := p.RunRepository().GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Contains(t, run.StatusMessage, "model call failed")

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusFailed, loaded.Status)

	failed, ok := pub.last(t).(events.WorkflowRunFailed)
	require.True(t, ok)
	assert.Equal(t, "run-1", failed.RunID)
}

func TestRunner_Run_ZeroResourcesSucceeds(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{text: "analysis without documents"}
	ctx := context.Background()

	workflow := setupWorkflow(t, p, nil)
	runner := newTestRunner(p, gen, nil)

	require.NoError(t, runner.Run(ctx, RunRequest{RunID: "run-1", WorkflowID: workflow.ID}))

	require.Len(t, gen.prompts, 1)
	assert.NotContains(t, gen.prompts[0].Prompt, "Context documents",
		"empty resource set must produce an empty context section")
}

func TestRunner_Run_ResourceContextInPrompt(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{text: "done"}
	ctx := context.Background()

	resource := &models.Resource{
		ID:            "res-1",
		Title:         "Aluminium datasheet",
		ContentAsText: "Yield strength 276 MPa",
		Status:        models.ResourceStatusCompleted,
	}
	require.NoError(t, p.ResourceRepository().Save(ctx, resource))

	workflow := setupWorkflow(t, p, func(w *models.Workflow) {
		w.ResourceIDs = []string{"res-1"}
	})

	runner := newTestRunner(p, gen, nil)

	require.NoError(t, runner.Run(ctx, RunRequest{RunID: "run-1", WorkflowID: workflow.ID}))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0].Prompt, "Yield strength 276 MPa")
	assert.Contains(t, gen.prompts[0].Prompt, "Aluminium datasheet")

	run, err := p.RunRepository().GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"res-1"}, run.ResourceIDs, "run must snapshot the attached resources")
}

func TestRunner_Run_StarvedNodesReported(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	gen := &fakeGenerator{text: "partial analysis"}
	ctx := context.Background()

	workflow := setupWorkflow(t, p, func(w *models.Workflow) {
		// The geometry step already failed; the simulation can never run.
		w.Nodes[1].Status = models.NodeStatusFailed
	})

	runner := newTestRunner(p, gen, nil)

	require.NoError(t, runner.Run(ctx, RunRequest{RunID: "run-1", WorkflowID: workflow.ID}))

	run, err := p.RunRepository().GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Contains(t, run.StatusMessage, "sim")
}
