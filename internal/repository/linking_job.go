package repository

import (
	"context"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// LinkingJobRepository persists linking jobs so their state survives restarts.
type LinkingJobRepository interface {
	Create(ctx context.Context, job *entity.LinkingJob) error
	Get(ctx context.Context, id string) (*entity.LinkingJob, error)
	// Finish moves a PROCESSING job to a terminal state. It fails with entity.ErrJobFinished when
	// the job already left PROCESSING.
	Finish(ctx context.Context, id string, state entity.LinkingState, message string, result []entity.SenseLink) error
	ListPending(ctx context.Context) ([]*entity.LinkingJob, error)
}
