package storage

import (
	"context"
	"errors"

	"github.com/z-wentao/tubenotes/pkg/models"
)

var ErrNotFound = errors.New("job not found")

// Store persists analysis jobs.
type Store interface {
	Save(ctx context.Context, job *models.AnalysisJob) error

	// Get returns a copy; mutate through Update.
	Get(ctx context.Context, jobID string) (*models.AnalysisJob, error)

	// Update applies fn to the stored job and saves the result.
	Update(ctx context.Context, jobID string, fn func(*models.AnalysisJob)) error

	// List returns jobs newest first.
	List(ctx context.Context) ([]*models.AnalysisJob, error)

	Delete(ctx context.Context, jobID string) error

	Close() error
}
