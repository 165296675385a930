package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/worker"
	"github.com/eslsoft/lexmatrix/internal/repository"
)

// Linker aligns the senses of two dictionaries.
type Linker interface {
	Link(ctx context.Context, job *entity.LinkingJob) ([]entity.SenseLink, error)
}

// JobQueue accepts background work without blocking.
type JobQueue interface {
	Submit(job worker.Job) error
}

// LinkingRequest is a new linking job as submitted by a client.
type LinkingRequest struct {
	Source entity.LinkingSource
	Target entity.LinkingSource
	Config map[string]any
}

// LinkingUsecase runs asynchronous linking jobs.
type LinkingUsecase interface {
	Submit(ctx context.Context, req *LinkingRequest) (string, error)
	Status(ctx context.Context, id string) (*entity.LinkingStatus, error)
	// Result fails with entity.ErrNotReady while the job runs and with *entity.LinkingFailure
	// when it failed.
	Result(ctx context.Context, id string) ([]entity.LinkingOneResult, error)
	Resume(ctx context.Context) (int, error)
}

const _defaultLinkingTimeout = time.Hour

type linkingUsecase struct {
	jobs    repository.LinkingJobRepository
	dicts   repository.DictionaryRepository
	linker  Linker
	queue   JobQueue
	logger  logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

// LinkingOption customizes the linking usecase.
type LinkingOption func(*linkingUsecase)

// WithLinkingTimeout bounds a single engine run.
func WithLinkingTimeout(d time.Duration) LinkingOption {
	return func(u *linkingUsecase) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithLinkingClock overrides the job timestamp source.
func WithLinkingClock(now func() time.Time) LinkingOption {
	return func(u *linkingUsecase) {
		if now != nil {
			u.now = now
		}
	}
}

func NewLinkingUsecase(jobs repository.LinkingJobRepository, dicts repository.DictionaryRepository, linker Linker, queue JobQueue, logger logrus.FieldLogger, opts ...LinkingOption) LinkingUsecase {
	u := &linkingUsecase{
		jobs:    jobs,
		dicts:   dicts,
		linker:  linker,
		queue:   queue,
		logger:  logger.WithField("component", "linking"),
		timeout: _defaultLinkingTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *linkingUsecase) Submit(ctx context.Context, req *LinkingRequest) (string, error) {
	if req == nil {
		return "", &entity.ValidationError{Msg: "linking request is required"}
	}
	if req.Source.ID == entity.BabelNetID {
		return "", &entity.ValidationError{Field: "source.id", Msg: "babelnet cannot be a linking source"}
	}
	if err := u.validateSide(ctx, req.Source, "source"); err != nil {
		return "", err
	}
	if err := u.validateSide(ctx, req.Target, "target"); err != nil {
		return "", err
	}

	now := u.now().UTC()
	job := &entity.LinkingJob{
		ID:        entity.NewID(),
		Source:    req.Source,
		Target:    req.Target,
		Config:    req.Config,
		State:     entity.LinkingProcessing,
		Message:   entity.DefaultLinkingMessage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create linking job: %w", err)
	}

	log := u.logger.WithFields(logrus.Fields{"job": job.ID, "source": job.Source.ID, "target": job.Target.ID})
	if err := u.queue.Submit(u.task(job.ID)); err != nil {
		// The client still gets an id; the job reports why it never ran.
		log.WithError(err).Warn("linking job rejected by the queue")
		if ferr := u.jobs.Finish(ctx, job.ID, entity.LinkingFailed, "Could not schedule linking job: "+err.Error(), nil); ferr != nil {
			log.WithError(ferr).Error("failed to record rejected linking job")
		}
		return job.ID, nil
	}
	log.Info("linking job submitted")
	return job.ID, nil
}

func (u *linkingUsecase) validateSide(ctx context.Context, side entity.LinkingSource, field string) error {
	if err := side.Validate(field); err != nil {
		return err
	}
	if side.Remote() {
		return nil
	}
	if side.ID == entity.BabelNetID {
		return &entity.ValidationError{Field: field + ".endpoint", Msg: "babelnet requires an endpoint"}
	}
	for _, id := range side.Entries {
		if !entity.ValidID(id) {
			return &entity.ValidationError{Field: field + ".entries", Msg: fmt.Sprintf("malformed entry id %q", id)}
		}
	}
	if _, err := u.dicts.Get(ctx, side.ID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return &entity.ValidationError{Field: field + ".id", Msg: fmt.Sprintf("dictionary %s does not exist", side.ID)}
		}
		return err
	}
	return nil
}

// task runs one job to completion. A job interrupted by shutdown stays PROCESSING for Resume.
func (u *linkingUsecase) task(id string) worker.Job {
	return func(ctx context.Context) error {
		log := u.logger.WithField("job", id)
		job, err := u.jobs.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("load linking job %s: %w", id, err)
		}
		if job.State.Terminal() {
			return nil
		}

		runCtx, cancel := context.WithTimeout(ctx, u.timeout)
		defer cancel()
		start := u.now()
		links, err := u.link(runCtx, job)

		state, message := entity.LinkingCompleted, fmt.Sprintf("Completed with %d links", len(links))
		switch {
		case err == nil:
		case ctx.Err() != nil:
			log.WithError(err).Warn("linking interrupted, job left for resume")
			return nil
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
			state, message, links = entity.LinkingFailed, fmt.Sprintf("Linking timed out after %s", u.timeout), nil
		default:
			state, message, links = entity.LinkingFailed, err.Error(), nil
		}

		if err := u.jobs.Finish(ctx, id, state, message, links); err != nil {
			if errors.Is(err, entity.ErrJobFinished) {
				log.Warn("linking job was already finished")
				return nil
			}
			return fmt.Errorf("finish linking job %s: %w", id, err)
		}
		log.WithFields(logrus.Fields{
			"state":    state,
			"links":    len(links),
			"duration": u.now().Sub(start),
		}).Info("linking job finished")
		return nil
	}
}

// link runs the linker. A panic fails this job only.
func (u *linkingUsecase) link(ctx context.Context, job *entity.LinkingJob) (links []entity.SenseLink, err error) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.WithFields(logrus.Fields{"job": job.ID, "panic": r}).Error("linker panicked")
			links, err = nil, fmt.Errorf("linking panicked: %v", r)
		}
	}()
	return u.linker.Link(ctx, job)
}

func (u *linkingUsecase) Status(ctx context.Context, id string) (*entity.LinkingStatus, error) {
	job, err := u.get(ctx, id)
	if err != nil {
		return nil, err
	}
	status := job.Status()
	return &status, nil
}

func (u *linkingUsecase) Result(ctx context.Context, id string) ([]entity.LinkingOneResult, error) {
	job, err := u.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case entity.LinkingCompleted:
		return entity.GroupLinks(job.Result), nil
	case entity.LinkingFailed:
		return nil, &entity.LinkingFailure{Msg: job.Message}
	default:
		return nil, fmt.Errorf("linking job %s: %w", id, entity.ErrNotReady)
	}
}

func (u *linkingUsecase) get(ctx context.Context, id string) (*entity.LinkingJob, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return u.jobs.Get(ctx, id)
}

// Resume re-enqueues every job still PROCESSING, typically after a restart.
func (u *linkingUsecase) Resume(ctx context.Context) (int, error) {
	pending, err := u.jobs.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending linking jobs: %w", err)
	}
	resumed := 0
	for _, job := range pending {
		if err := u.queue.Submit(u.task(job.ID)); err != nil {
			u.logger.WithField("job", job.ID).WithError(err).Warn("could not resume linking job")
			continue
		}
		resumed++
	}
	if resumed > 0 {
		u.logger.WithField("jobs", resumed).Info("resumed pending linking jobs")
	}
	return resumed, nil
}
