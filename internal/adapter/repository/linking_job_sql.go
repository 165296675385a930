package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/repository"
)

// LinkingJobSQLRepository persists linking jobs as JSON documents with their state lifted into a
// column, so Finish can be a conditional update.
type LinkingJobSQLRepository struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewLinkingJobSQLRepository constructs a job store over a migrated database.
func NewLinkingJobSQLRepository(db *sql.DB, driver string) *LinkingJobSQLRepository {
	return &LinkingJobSQLRepository{db: db, sb: statementBuilder(driver), now: time.Now}
}

var _ repository.LinkingJobRepository = (*LinkingJobSQLRepository)(nil)

func (r *LinkingJobSQLRepository) Create(ctx context.Context, job *entity.LinkingJob) error {
	doc, err := encodeDoc(job)
	if err != nil {
		return err
	}
	_, err = r.sb.Insert("linking_jobs").
		Columns("id", "state", "doc", "created_at", "updated_at").
		Values(job.ID, string(job.State), doc, formatTimestamp(job.CreatedAt), formatTimestamp(job.UpdatedAt)).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("create linking job: %w", err)
	}
	return nil
}

func (r *LinkingJobSQLRepository) Get(ctx context.Context, id string) (*entity.LinkingJob, error) {
	var doc string
	err := r.sb.Select("doc").From("linking_jobs").
		Where(sq.Eq{"id": id}).
		RunWith(r.db).QueryRowContext(ctx).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrJobNotFound
		}
		return nil, fmt.Errorf("get linking job: %w", err)
	}
	var job entity.LinkingJob
	if err := decodeDoc(doc, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *LinkingJobSQLRepository) Finish(ctx context.Context, id string, state entity.LinkingState, message string, result []entity.SenseLink) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State != entity.LinkingProcessing {
		return entity.ErrJobFinished
	}
	job.State = state
	job.Message = message
	job.Result = result
	job.UpdatedAt = r.now().UTC()
	doc, err := encodeDoc(job)
	if err != nil {
		return err
	}

	res, err := r.sb.Update("linking_jobs").
		Set("state", string(state)).
		Set("doc", doc).
		Set("updated_at", formatTimestamp(job.UpdatedAt)).
		Where(sq.Eq{"id": id, "state": string(entity.LinkingProcessing)}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("finish linking job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish linking job: %w", err)
	}
	if affected == 0 {
		return entity.ErrJobFinished
	}
	return nil
}

func (r *LinkingJobSQLRepository) ListPending(ctx context.Context) ([]*entity.LinkingJob, error) {
	rows, err := r.sb.Select("doc").From("linking_jobs").
		Where(sq.Eq{"state": string(entity.LinkingProcessing)}).
		OrderBy("created_at", "id").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending linking jobs: %w", err)
	}
	defer rows.Close()
	jobs := []*entity.LinkingJob{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan linking job: %w", err)
		}
		var job entity.LinkingJob
		if err := decodeDoc(doc, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
