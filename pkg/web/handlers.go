// Package web provides HTTP handlers and REST API endpoints for workflow
// management and execution.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/graph"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
	"github.com/macadamia-hq/macadamia/pkg/rungate"
	"github.com/macadamia-hq/macadamia/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	runService      *services.Run
	resourceService *services.Resource
	publisher       eventbus.EventPublisher
	gate            rungate.Gate
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	runService *services.Run,
	resourceService *services.Resource,
	publisher eventbus.EventPublisher,
	gate rungate.Gate,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		runService:      runService,
		resourceService: resourceService,
		publisher:       publisher,
		gate:            gate,
		validator:       validator,
	}
}

// RegisterRoutes wires every endpoint onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	api := app.Group("/api")

	api.Post("/execute-workflow", h.ExecuteWorkflow)
	api.Get("/workflow-executions", h.GetWorkflowExecutions)

	api.Get("/workflows", h.GetWorkflows)
	api.Post("/workflows", h.CreateWorkflow)
	api.Get("/workflows/:id", h.GetWorkflow)
	api.Patch("/workflows/:id", h.UpdateWorkflow)
	api.Delete("/workflows/:id", h.DeleteWorkflow)
	api.Get("/workflows/:id/runs", h.GetWorkflowRuns)
	api.Get("/workflows/:id/graph", h.GetWorkflowGraph)
	api.Post("/workflows/:id/resources/:resourceId", h.AttachResource)
	api.Delete("/workflows/:id/resources/:resourceId", h.DetachResource)

	api.Get("/resources", h.GetResources)
	api.Post("/resources", h.CreateResource)
	api.Get("/resources/:id", h.GetResource)
	api.Delete("/resources/:id", h.DeleteResource)
	api.Post("/reprocess", h.Reprocess)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Macadamia API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Macadamia API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// ExecuteWorkflow enqueues a workflow run and returns immediately. The gate
// guards the publish window; the durable workflow status guards the rest.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), req.WorkflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !workflow.Status.IsExecutable() {
		return conflict(c, "workflow is already running")
	}

	acquired, err := h.gate.Acquire(c.Context(), workflow.ID)
	if err != nil {
		return internalError(c, err)
	}

	if !acquired {
		return conflict(c, "workflow execution already requested")
	}

	defer func() {
		_ = h.gate.Release(c.Context(), workflow.ID)
	}()

	runID := uuid.New().String()

	event := events.WorkflowRunRequested{
		BaseEvent: events.NewBaseEvent(events.WorkflowRunRequestedEvent, workflow.ID),
		RunID:     runID,
		UserID:    req.UserID,
	}

	if err := h.publisher.Publish(c.Context(), workflow.ID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecuteWorkflowResponse{
		Message: "Workflow execution started",
		RunID:   runID,
	})
}

// GetWorkflowExecutions returns the most recent run for a workflow.
func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		return badRequest(c, "workflowId query parameter is required")
	}

	run, err := h.runService.Latest(c.Context(), workflowID)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return notFound(c, "workflow has no executions")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.OwnerID = c.Query("owner_id")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Title:        req.Title,
		Description:  req.Description,
		Instructions: req.Instructions,
		Owner:        req.Owner,
		Schedule:     req.Schedule,
		Nodes:        toNodes(req.Nodes),
		Edges:        toEdges(req.Edges),
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Title != nil {
		existing.Title = *req.Title
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Instructions != nil {
		existing.Instructions = *req.Instructions
	}

	if req.Schedule != nil {
		existing.Schedule = *req.Schedule
	}

	if req.Nodes != nil {
		existing.Nodes = toNodes(req.Nodes)
	}

	if req.Edges != nil {
		existing.Edges = toEdges(req.Edges)
	}

	updated, err := h.workflowService.Update(c.Context(), id, existing, req.Version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	runs, err := h.runService.History(c.Context(), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

// GetWorkflowGraph returns the dependency map, the currently executable
// nodes and the edge styles for the workflow diagram.
func (h *APIHandlers) GetWorkflowGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	depMap := graph.BuildDependencyMap(workflow.Nodes, workflow.Edges)

	status := make(graph.StatusByNode, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		if node.Status != "" {
			status[node.ID] = node.Status
		}
	}

	return c.JSON(fiber.Map{
		"dependencies": depMap,
		"executable":   graph.ExecutableNodes(depMap, status),
		"edge_styles":  graph.ProjectEdgeStyles(workflow.Edges, status),
	})
}

func (h *APIHandlers) AttachResource(c fiber.Ctx) error {
	workflowID := c.Params("id")
	resourceID := c.Params("resourceId")

	if workflowID == "" || resourceID == "" {
		return badRequest(c, "Workflow ID and resource ID are required")
	}

	if err := h.workflowService.AttachResource(c.Context(), workflowID, resourceID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DetachResource(c fiber.Ctx) error {
	workflowID := c.Params("id")
	resourceID := c.Params("resourceId")

	if workflowID == "" || resourceID == "" {
		return badRequest(c, "Workflow ID and resource ID are required")
	}

	err := h.workflowService.DetachResource(c.Context(), workflowID, resourceID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "workflow not found")
		}

		return notFound(c, "resource not attached")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetResources(c fiber.Ctx) error {
	resources, err := h.resourceService.List(c.Context(), c.Query("owner_id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"resources": resources})
}

func (h *APIHandlers) GetResource(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Resource ID is required")
	}

	resource, err := h.resourceService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resource)
}

func (h *APIHandlers) CreateResource(c fiber.Ctx) error {
	var req CreateResourceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	resource := &models.Resource{
		Title:         req.Title,
		Description:   req.Description,
		ContentAsText: req.Content,
		FileType:      req.FileType,
		Owner:         req.Owner,
	}

	created, err := h.resourceService.Create(c.Context(), resource)
	if err != nil {
		return handleServiceError(c, err)
	}

	event := events.ResourceProcessRequested{
		BaseEvent:  events.NewBaseEvent(events.ResourceProcessRequestedEvent, ""),
		ResourceID: created.ID,
	}

	if err := h.publisher.Publish(c.Context(), created.ID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteResource(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Resource ID is required")
	}

	if err := h.resourceService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Reprocess resets a resource and asks the worker to extract its content
// again.
func (h *APIHandlers) Reprocess(c fiber.Ctx) error {
	var req ReprocessRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	resource, err := h.resourceService.Reprocess(c.Context(), req.ResourceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	event := events.ResourceProcessRequested{
		BaseEvent:  events.NewBaseEvent(events.ResourceProcessRequestedEvent, ""),
		ResourceID: resource.ID,
	}

	if err := h.publisher.Publish(c.Context(), resource.ID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(resource)
}
