// Package file provides file-based persistence for development and tests.
// Each entity is one JSON document under the root directory.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	resourceRepo *ResourceRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" prefix is stripped so database-url style flags work.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	// One lock serializes read-modify-write cycles across all repositories;
	// the file backend has no transactions to lean on.
	mu := &sync.Mutex{}

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot, mu),
		runRepo:      NewRunRepository(cleanRoot, mu),
		resourceRepo: NewResourceRepository(cleanRoot, mu),
	}
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// WorkflowRepository returns the workflow repository.
func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

// RunRepository returns the run repository.
func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

// ResourceRepository returns the resource repository.
func (fp *Persistence) ResourceRepository() persistence.ResourceRepository {
	return fp.resourceRepo
}
