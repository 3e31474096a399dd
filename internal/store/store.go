// Package store persists enrichment jobs.
package store

import (
	"context"
	"time"

	"github.com/sells-group/bom-cli/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// JobInfo describes a stored job without its results.
type JobInfo struct {
	ID        string             `json:"id"`
	Summary   model.BatchSummary `json:"summary"`
	CreatedAt time.Time          `json:"created_at"`
}

// Store defines the persistence interface for enrichment jobs. Writes to an
// existing ID replace the previous job; readers never see a partial job.
type Store interface {
	// PutJob stores job under job.ID.
	PutJob(ctx context.Context, job *model.Job) error
	// GetJob returns nil, nil when the ID is unknown.
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]JobInfo, error)
	DeleteJob(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

func (f JobFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
