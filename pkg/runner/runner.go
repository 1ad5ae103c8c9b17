// Package runner implements the workflow execution job: it walks the node
// graph, gathers resource context, performs the model call and records the
// run outcome.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/graph"
	"github.com/macadamia-hq/macadamia/pkg/llm"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/otelhelper"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

const systemPrompt = "You are an engineering copilot. Execute the workflow " +
	"described by the user: reason through each node in dependency order and " +
	"produce a single consolidated analysis."

// RunRequest identifies one execution of a workflow. The RunID is chosen by
// the publisher so redelivered requests collapse into a single run.
type RunRequest struct {
	RunID      string
	WorkflowID string
	UserID     string
}

// Runner executes workflow runs end to end.
type Runner struct {
	persistence persistence.Persistence
	generator   llm.Generator
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	workerID    string
	logger      *slog.Logger
}

// NewRunner creates a runner. The publisher may be nil when lifecycle events
// are not wanted (tests, one-shot tools); the tracer may be nil as well.
func NewRunner(
	p persistence.Persistence,
	generator llm.Generator,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	workerID string,
	logger *slog.Logger,
) *Runner {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("runner")
	}

	return &Runner{
		persistence: p,
		generator:   generator,
		publisher:   publisher,
		tracer:      tracer,
		workerID:    workerID,
		logger:      logger.With("module", "runner"),
	}
}

// Run executes one workflow run. Re-running an already recorded RunID is a
// no-op; any other failure marks the run errored and is returned so the bus
// can retry or dead-letter.
func (r *Runner) Run(ctx context.Context, req RunRequest) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.RunIDKey, req.RunID),
		attribute.String(otelhelper.WorkerIDKey, r.workerID),
	)
	defer span.End()

	logger := r.logger.With("workflow_id", req.WorkflowID, "run_id", req.RunID)
	started := time.Now().UTC()

	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			r.recordMissingWorkflow(ctx, req)
		}

		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}

	run := &models.WorkflowRun{
		ID:            req.RunID,
		WorkflowID:    req.WorkflowID,
		UserID:        req.UserID,
		ResourceIDs:   workflow.ResourceIDs,
		Status:        models.RunStatusProcessing,
		StatusMessage: "Workflow execution started",
	}

	if err := r.persistence.RunRepository().Create(ctx, run); err != nil {
		if persistence.IsRunAlreadyExists(err) {
			logger.Info("Run already recorded, skipping re-execution")

			return nil
		}

		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to record run: %w", err)
	}

	if err := r.persistence.WorkflowRepository().UpdateStatus(ctx, workflow.ID, models.WorkflowStatusRunning, nil); err != nil {
		return r.fail(ctx, run, started, fmt.Errorf("failed to mark workflow running: %w", err), span)
	}

	failedNodes := r.walkGraph(workflow, logger)

	resources, err := r.persistence.ResourceRepository().GetByIDs(ctx, workflow.ResourceIDs)
	if err != nil {
		return r.fail(ctx, run, started, fmt.Errorf("failed to load resources: %w", err), span)
	}

	response, err := r.generator.GenerateText(ctx, llm.GenerateRequest{
		System: systemPrompt,
		Prompt: buildPrompt(workflow, resources),
	})
	if err != nil {
		return r.fail(ctx, run, started, fmt.Errorf("model call failed: %w", err), span)
	}

	now := time.Now().UTC()

	run.Status = models.RunStatusCompleted
	run.Result = response.Text
	run.CompletedAt = &now
	run.StatusMessage = "Workflow executed successfully"

	if len(failedNodes) > 0 {
		run.StatusMessage = fmt.Sprintf(
			"Workflow executed with unsatisfiable nodes marked failed: %s",
			strings.Join(failedNodes, ", "),
		)
	}

	if err := r.persistence.RunRepository().Update(ctx, run); err != nil {
		return r.fail(ctx, run, started, fmt.Errorf("failed to record run result: %w", err), span)
	}

	if err := r.persistence.WorkflowRepository().UpdateStatus(ctx, workflow.ID, models.WorkflowStatusCompleted, &now); err != nil {
		return r.fail(ctx, run, started, fmt.Errorf("failed to mark workflow completed: %w", err), span)
	}

	r.publish(ctx, events.WorkflowRunCompleted{
		BaseEvent:  r.baseEvent(events.WorkflowRunCompletedEvent, workflow.ID),
		RunID:      run.ID,
		Result:     run.Result,
		DurationMs: time.Since(started).Milliseconds(),
	})

	logger.Info("Workflow run completed",
		"duration_ms", time.Since(started).Milliseconds(),
		"output_tokens", response.OutputTokens)

	return nil
}

// walkGraph marks nodes completed in dependency order and returns the IDs of
// nodes that could never run. Node execution is bookkeeping: the analytical
// work happens in the single model call afterwards.
func (r *Runner) walkGraph(workflow *models.Workflow, logger *slog.Logger) []string {
	depMap := graph.BuildDependencyMap(workflow.Nodes, workflow.Edges)

	status := make(graph.StatusByNode, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		if node.Status != "" {
			status[node.ID] = node.Status
		}
	}

	for {
		executable := graph.ExecutableNodes(depMap, status)
		if len(executable) == 0 {
			break
		}

		for _, nodeID := range executable {
			status[nodeID] = models.NodeStatusCompleted

			if node := workflow.NodeByID(nodeID); node != nil {
				node.Status = models.NodeStatusCompleted
				node.Progress = 100
			}
		}
	}

	starved := graph.StarvedNodes(depMap, status)

	for _, nodeID := range starved {
		status[nodeID] = models.NodeStatusFailed

		if node := workflow.NodeByID(nodeID); node != nil {
			node.Status = models.NodeStatusFailed
		}

		logger.Warn("Node can never become executable, marking failed", "node_id", nodeID)
	}

	return starved
}

// fail records the error on the run and the workflow, emits the failure event
// and hands the error back to the caller.
func (r *Runner) fail(ctx context.Context, run *models.WorkflowRun, started time.Time, cause error, span trace.Span) error {
	otelhelper.SetError(span, cause)

	now := time.Now().UTC()

	run.Status = models.RunStatusError
	run.StatusMessage = cause.Error()
	run.CompletedAt = &now

	if err := r.persistence.RunRepository().Update(ctx, run); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record run failure", "run_id", run.ID, "error", err)
	}

	if err := r.persistence.WorkflowRepository().UpdateStatus(ctx, run.WorkflowID, models.WorkflowStatusFailed, nil); err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark workflow failed", "workflow_id", run.WorkflowID, "error", err)
	}

	r.publish(ctx, events.WorkflowRunFailed{
		BaseEvent:  r.baseEvent(events.WorkflowRunFailedEvent, run.WorkflowID),
		RunID:      run.ID,
		Error:      cause.Error(),
		DurationMs: time.Since(started).Milliseconds(),
	})

	return cause
}

// recordMissingWorkflow leaves an errored run behind so the request is not
// retried forever against a workflow that no longer exists.
func (r *Runner) recordMissingWorkflow(ctx context.Context, req RunRequest) {
	now := time.Now().UTC()

	run := &models.WorkflowRun{
		ID:            req.RunID,
		WorkflowID:    req.WorkflowID,
		UserID:        req.UserID,
		Status:        models.RunStatusError,
		StatusMessage: fmt.Sprintf("workflow %s not found", req.WorkflowID),
		CompletedAt:   &now,
	}

	if err := r.persistence.RunRepository().Create(ctx, run); err != nil && !persistence.IsRunAlreadyExists(err) {
		r.logger.ErrorContext(ctx, "Failed to record missing-workflow run", "run_id", req.RunID, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	var workflowID string

	switch e := event.(type) {
	case events.WorkflowRunCompleted:
		workflowID = e.WorkflowID
	case events.WorkflowRunFailed:
		workflowID = e.WorkflowID
	}

	if err := r.publisher.Publish(ctx, workflowID, event); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}

func (r *Runner) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = r.workerID

	return base
}

// buildPrompt assembles the model prompt from the workflow definition and the
// attached resources' extracted text. Zero resources yields an empty context
// section, which is valid.
func buildPrompt(workflow *models.Workflow, resources []*models.Resource) string {
	var b strings.Builder

	b.WriteString("Workflow: " + workflow.Title + "\n")

	if workflow.Description != "" {
		b.WriteString("Description: " + workflow.Description + "\n")
	}

	if workflow.Instructions != "" {
		b.WriteString("\nInstructions:\n" + workflow.Instructions + "\n")
	}

	b.WriteString("\nNodes:\n")

	for _, node := range workflow.Nodes {
		b.WriteString(fmt.Sprintf("- [%s] %s (%s)\n", node.Type, node.Label, node.Status))
	}

	var blobs []string

	for _, resource := range resources {
		if resource.ContentAsText == "" {
			continue
		}

		blobs = append(blobs, fmt.Sprintf("--- %s ---\n%s", resource.Title, resource.ContentAsText))
	}

	if len(blobs) > 0 {
		b.WriteString("\nContext documents:\n" + strings.Join(blobs, "\n\n") + "\n")
	}

	return b.String()
}
