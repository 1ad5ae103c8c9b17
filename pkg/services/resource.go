package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// ErrResourceNotFound is returned when a resource is not found.
var ErrResourceNotFound = persistence.ErrResourceNotFound

// Resource manages workflow context documents.
type Resource struct {
	persistence persistence.Persistence
}

// NewResource creates a new resource service.
func NewResource(persistence persistence.Persistence) *Resource {
	return &Resource{persistence: persistence}
}

// List returns resources, optionally filtered by owner.
func (r *Resource) List(ctx context.Context, ownerID string) ([]*models.Resource, error) {
	return r.persistence.ResourceRepository().List(ctx, ownerID)
}

// FetchByID retrieves a resource by its ID.
func (r *Resource) FetchByID(ctx context.Context, id string) (*models.Resource, error) {
	return r.persistence.ResourceRepository().GetByID(ctx, id)
}

// Create registers a new resource. It starts in processing status until its
// text content has been extracted.
func (r *Resource) Create(ctx context.Context, resource *models.Resource) (*models.Resource, error) {
	if strings.TrimSpace(resource.Title) == "" {
		return nil, NewValidationError("Create", "INVALID_RESOURCE", "resource title is required", ErrInvalidRequest)
	}

	now := time.Now().UTC()
	resource.ID = uuid.New().String()
	resource.CreatedAt = now
	resource.UpdatedAt = now
	resource.Status = models.ResourceStatusProcessing

	if err := r.persistence.ResourceRepository().Save(ctx, resource); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return resource, nil
}

// StoreContent records the extracted text and marks the resource completed,
// or records the failure reason and marks it errored.
func (r *Resource) StoreContent(ctx context.Context, id, contentAsText string, extractErr error) error {
	status := models.ResourceStatusCompleted

	if extractErr != nil {
		status = models.ResourceStatusError
		contentAsText = ""
	}

	return r.persistence.ResourceRepository().UpdateContent(ctx, id, contentAsText, status)
}

// Reprocess resets a resource to processing so content extraction runs again.
func (r *Resource) Reprocess(ctx context.Context, id string) (*models.Resource, error) {
	resource, err := r.persistence.ResourceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.persistence.ResourceRepository().UpdateContent(ctx, id, resource.ContentAsText, models.ResourceStatusProcessing); err != nil {
		return nil, err
	}

	resource.Status = models.ResourceStatusProcessing

	return resource, nil
}

// Delete removes a resource.
func (r *Resource) Delete(ctx context.Context, id string) error {
	return r.persistence.ResourceRepository().Delete(ctx, id)
}
