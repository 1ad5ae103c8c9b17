package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/llm"
	"github.com/macadamia-hq/macadamia/pkg/otelhelper"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
	"github.com/macadamia-hq/macadamia/pkg/runner"
	"github.com/macadamia-hq/macadamia/pkg/schedule"
	"github.com/macadamia-hq/macadamia/pkg/services"
)

// Worker consumes run requests and resource processing requests from the event
// bus. One worker handles both concerns; the run ID chosen by the publisher
// keeps redeliveries idempotent across workers.
type Worker struct {
	id           string
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	generator    llm.Generator
	useScheduler bool
	logger       *slog.Logger
}

func NewWorker(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	generator llm.Generator,
	useScheduler bool,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:           id,
		persistence:  p,
		eventBus:     eventBus,
		generator:    generator,
		useScheduler: useScheduler,
		logger:       logger,
	}
}

// Start registers the event handlers, begins consuming and blocks until the
// process receives SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := otelhelper.NewTracer(ctx, "macadamia-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled, exporter unavailable", "error", err)

		tracer = nil
	}

	run := runner.NewRunner(w.persistence, w.generator, w.eventBus, tracer, w.id, w.logger)
	resourceService := services.NewResource(w.persistence)

	if err := w.eventBus.Handle(events.WorkflowRunRequestedEvent, w.handleRunRequested(run)); err != nil {
		return fmt.Errorf("failed to register run handler: %w", err)
	}

	if err := w.eventBus.Handle(events.ResourceProcessRequestedEvent, w.handleResourceProcess(resourceService)); err != nil {
		return fmt.Errorf("failed to register resource handler: %w", err)
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	if w.useScheduler {
		scheduler := schedule.NewScheduler(w.persistence, w.eventBus, w.logger)

		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		defer scheduler.Stop()
	}

	w.logger.InfoContext(ctx, "Worker started, waiting for events")

	<-ctx.Done()

	w.logger.Info("Shutting down worker")

	return nil
}

func (w *Worker) handleRunRequested(run *runner.Runner) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		requested, ok := event.(*events.WorkflowRunRequested)
		if !ok {
			w.logger.WarnContext(ctx, "Discarding event with unexpected payload type")

			return nil
		}

		return run.Run(ctx, runner.RunRequest{
			RunID:      requested.RunID,
			WorkflowID: requested.WorkflowID,
			UserID:     requested.UserID,
		})
	}
}

// handleResourceProcess extracts the text content of a newly registered
// resource. A missing resource is logged and acked rather than retried, since
// it will never reappear.
func (w *Worker) handleResourceProcess(resources *services.Resource) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		requested, ok := event.(*events.ResourceProcessRequested)
		if !ok {
			w.logger.WarnContext(ctx, "Discarding event with unexpected payload type")

			return nil
		}

		logger := w.logger.With("resource_id", requested.ResourceID)

		resource, err := w.persistence.ResourceRepository().GetByID(ctx, requested.ResourceID)
		if err != nil {
			if persistence.IsResourceNotFound(err) {
				logger.WarnContext(ctx, "Resource no longer exists, skipping processing")

				return nil
			}

			return fmt.Errorf("failed to load resource %s: %w", requested.ResourceID, err)
		}

		content, extractErr := extractText(resource.ContentAsText)

		if err := resources.StoreContent(ctx, resource.ID, content, extractErr); err != nil {
			return fmt.Errorf("failed to store resource content: %w", err)
		}

		logger.InfoContext(ctx, "Resource processed", "content_length", len(content))

		return nil
	}
}

// extractText normalizes the raw uploaded text into the form the runner feeds
// to the model. Binary formats would be converted here.
func extractText(raw string) (string, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("resource has no extractable text content")
	}

	return text, nil
}
