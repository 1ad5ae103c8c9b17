package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// ResourceRepository stores each resource as resources/<id>.json.
type ResourceRepository struct {
	root string
	mu   *sync.Mutex
}

// NewResourceRepository creates a new resource repository.
func NewResourceRepository(root string, mu *sync.Mutex) *ResourceRepository {
	return &ResourceRepository{root: root, mu: mu}
}

func (rr *ResourceRepository) dir() string {
	return filepath.Join(rr.root, "resources")
}

func (rr *ResourceRepository) path(id string) string {
	return filepath.Join(rr.dir(), id+".json")
}

func (rr *ResourceRepository) read(id string) (*models.Resource, error) {
	data, err := os.ReadFile(rr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrResourceNotFound
		}

		return nil, fmt.Errorf("failed to read resource file: %w", err)
	}

	var resource models.Resource

	if err := json.Unmarshal(data, &resource); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource %s: %w", id, err)
	}

	return &resource, nil
}

func (rr *ResourceRepository) write(resource *models.Resource) error {
	if err := os.MkdirAll(rr.dir(), dirPerm); err != nil {
		return fmt.Errorf("failed to create resources directory: %w", err)
	}

	data, err := json.MarshalIndent(resource, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resource %s: %w", resource.ID, err)
	}

	if err := os.WriteFile(rr.path(resource.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write resource file: %w", err)
	}

	return nil
}

// List returns resources, optionally filtered by owner, newest first.
func (rr *ResourceRepository) List(_ context.Context, ownerID string) ([]*models.Resource, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	root := os.DirFS(rr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list resource files: %w", err)
	}

	resources := make([]*models.Resource, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		resource, err := rr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if ownerID != "" && resource.Owner != ownerID {
			continue
		}

		resources = append(resources, resource)
	}

	sort.Slice(resources, func(i, j int) bool {
		return resources[i].CreatedAt.After(resources[j].CreatedAt)
	})

	return resources, nil
}

// GetByID returns a resource by its ID.
func (rr *ResourceRepository) GetByID(_ context.Context, id string) (*models.Resource, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.read(id)
}

// GetByIDs returns the resources for the given IDs. Missing IDs are skipped.
func (rr *ResourceRepository) GetByIDs(_ context.Context, ids []string) ([]*models.Resource, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	resources := make([]*models.Resource, 0, len(ids))

	for _, id := range ids {
		resource, err := rr.read(id)
		if err != nil {
			if errors.Is(err, persistence.ErrResourceNotFound) {
				continue
			}

			return nil, err
		}

		resources = append(resources, resource)
	}

	sort.Slice(resources, func(i, j int) bool {
		return resources[i].CreatedAt.Before(resources[j].CreatedAt)
	})

	return resources, nil
}

// Save inserts or replaces a resource.
func (rr *ResourceRepository) Save(_ context.Context, resource *models.Resource) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	now := time.Now().UTC()

	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}

	resource.UpdatedAt = now

	if resource.ID == "" {
		resource.ID = uuid.New().String()
	}

	if resource.Status == "" {
		resource.Status = models.ResourceStatusProcessing
	}

	return rr.write(resource)
}

// UpdateContent stores freshly extracted text and the processing outcome.
func (rr *ResourceRepository) UpdateContent(_ context.Context, id, contentAsText string, status models.ResourceStatus) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	resource, err := rr.read(id)
	if err != nil {
		return err
	}

	resource.ContentAsText = contentAsText
	resource.Status = status
	resource.UpdatedAt = time.Now().UTC()

	return rr.write(resource)
}

// Delete removes a resource file.
func (rr *ResourceRepository) Delete(_ context.Context, id string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if err := os.Remove(rr.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrResourceNotFound
		}

		return fmt.Errorf("failed to delete resource file: %w", err)
	}

	return nil
}
