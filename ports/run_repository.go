package ports

import (
	"context"

	"kickchoice/domain/core"
	"kickchoice/domain/run"
)

// RunFilters narrows a run listing
type RunFilters struct {
	ModelName string
	Limit     int
	Offset    int
}

// RunRepository stores estimation runs and their parameter estimates
type RunRepository interface {
	Save(ctx context.Context, r *run.Run) error
	// Get returns errors.ErrNotFound for unknown ids.
	Get(ctx context.Context, id core.RunID) (*run.Run, error)
	// List returns summaries, newest first.
	List(ctx context.Context, filters RunFilters) ([]run.Summary, error)
}
