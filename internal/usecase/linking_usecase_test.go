package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/lexmatrix/internal/adapter/repository"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/worker"
)

type fakeLinker struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	links []entity.SenseLink
	err   error
	panic any
}

func (f *fakeLinker) Link(ctx context.Context, job *entity.LinkingJob) ([]entity.SenseLink, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panic != nil {
		panic(f.panic)
	}
	return f.links, f.err
}

func (f *fakeLinker) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// manualQueue holds submitted jobs until the test runs them.
type manualQueue struct {
	jobs []worker.Job
	err  error
}

func (q *manualQueue) Submit(job worker.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *manualQueue) runAll(t *testing.T) {
	t.Helper()
	for _, job := range q.jobs {
		require.NoError(t, job(context.Background()))
	}
	q.jobs = nil
}

type linkingFixture struct {
	uc     LinkingUsecase
	jobs   *repository.LinkingJobMemoryRepository
	linker *fakeLinker
	queue  *manualQueue
	source string
	target string
}

func newLinkingFixture(t *testing.T, linker *fakeLinker, opts ...LinkingOption) *linkingFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dicts := repository.NewDictionaryMemoryRepository()
	jobs := repository.NewLinkingJobMemoryRepository()
	f := &linkingFixture{jobs: jobs, linker: linker, queue: &manualQueue{}, source: entity.NewID(), target: entity.NewID()}
	for _, id := range []string{f.source, f.target} {
		require.NoError(t, dicts.Replace(context.Background(), &entity.Dictionary{ID: id, Release: entity.ReleasePublic, SourceLanguage: "en"}, nil))
	}
	f.uc = NewLinkingUsecase(jobs, dicts, linker, f.queue, logger, opts...)
	return f
}

func (f *linkingFixture) request() *LinkingRequest {
	return &LinkingRequest{Source: entity.LinkingSource{ID: f.source}, Target: entity.LinkingSource{ID: f.target}}
}

func TestLinking_Completes(t *testing.T) {
	links := []entity.SenseLink{
		{SourceEntry: "e1", SourceSense: "s1", TargetEntry: "t1", TargetSense: "u1", Type: entity.LinkExact, Score: 0.9},
		{SourceEntry: "e1", SourceSense: "s2", TargetEntry: "t1", TargetSense: "u2", Type: entity.LinkRelated, Score: 0.4},
		{SourceEntry: "e2", SourceSense: "s3", TargetEntry: "t2", TargetSense: "u3", Type: entity.LinkBroader, Score: 0.7},
	}
	f := newLinkingFixture(t, &fakeLinker{links: links})
	ctx := context.Background()

	id, err := f.uc.Submit(ctx, f.request())
	require.NoError(t, err)
	assert.True(t, entity.ValidID(id))

	status, err := f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingStatus{State: entity.LinkingProcessing, Message: entity.DefaultLinkingMessage}, *status)

	_, err = f.uc.Result(ctx, id)
	assert.ErrorIs(t, err, entity.ErrNotReady)

	f.queue.runAll(t)

	status, err = f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingCompleted, status.State)

	grouped, err := f.uc.Result(ctx, id)
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Equal(t, "e1", grouped[0].SourceEntry)
	assert.Len(t, grouped[0].Linking, 2)
	assert.Equal(t, "t2", grouped[1].TargetEntry)
}

func TestLinking_Failure(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{err: &entity.LinkingFailure{Msg: "linking engine exited with code 1"}})
	ctx := context.Background()

	id, err := f.uc.Submit(ctx, f.request())
	require.NoError(t, err)
	f.queue.runAll(t)

	status, err := f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingFailed, status.State)
	assert.Equal(t, "linking engine exited with code 1", status.Message)

	_, err = f.uc.Result(ctx, id)
	var failure *entity.LinkingFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "linking engine exited with code 1", failure.Msg)
}

func TestLinking_PanicFailsJob(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{panic: "index out of range"})
	ctx := context.Background()

	id, err := f.uc.Submit(ctx, f.request())
	require.NoError(t, err)
	f.queue.runAll(t)

	status, err := f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingFailed, status.State)
	assert.Equal(t, "linking panicked: index out of range", status.Message)
}

func TestLinking_Timeout(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{gate: make(chan struct{})}, WithLinkingTimeout(20*time.Millisecond))
	ctx := context.Background()

	id, err := f.uc.Submit(ctx, f.request())
	require.NoError(t, err)
	f.queue.runAll(t)

	status, err := f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingFailed, status.State)
	assert.Contains(t, status.Message, "timed out")
}

func TestLinking_InterruptedJobStaysPending(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{gate: make(chan struct{})})
	id, err := f.uc.Submit(context.Background(), f.request())
	require.NoError(t, err)

	require.Len(t, f.queue.jobs, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.queue.jobs[0](ctx) }()
	require.Eventually(t, func() bool { return f.linker.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	f.queue.jobs = nil

	status, err := f.uc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingProcessing, status.State)

	close(f.linker.gate)
	resumed, err := f.uc.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	f.queue.runAll(t)

	status, err = f.uc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingCompleted, status.State)
}

func TestLinking_Monotone(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{})
	ctx := context.Background()

	id, err := f.uc.Submit(ctx, f.request())
	require.NoError(t, err)
	job := f.queue.jobs[0]
	f.queue.runAll(t)
	require.Equal(t, 1, f.linker.Calls())

	// A second delivery of the same job is a no-op.
	require.NoError(t, job(ctx))
	assert.Equal(t, 1, f.linker.Calls())

	err = f.jobs.Finish(ctx, id, entity.LinkingFailed, "late", nil)
	assert.ErrorIs(t, err, entity.ErrJobFinished)

	status, err := f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingCompleted, status.State)
}

func TestLinking_QueueFull(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{})
	f.queue.err = worker.ErrQueueFull
	ctx := context.Background()

	id, err := f.uc.Submit(ctx, f.request())
	require.NoError(t, err)

	status, err := f.uc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingFailed, status.State)
	assert.Contains(t, status.Message, "queue full")
	assert.Zero(t, f.linker.Calls())
}

func TestLinking_SubmitValidation(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{})

	tests := []struct {
		name  string
		req   func() *LinkingRequest
		field string
	}{
		{"missing source id", func() *LinkingRequest {
			r := f.request()
			r.Source.ID = ""
			return r
		}, "source.id"},
		{"unknown source", func() *LinkingRequest {
			r := f.request()
			r.Source.ID = entity.NewID()
			return r
		}, "source.id"},
		{"babelnet source", func() *LinkingRequest {
			r := f.request()
			r.Source.ID = entity.BabelNetID
			return r
		}, "source.id"},
		{"babelnet target without endpoint", func() *LinkingRequest {
			r := f.request()
			r.Target.ID = entity.BabelNetID
			return r
		}, "target.endpoint"},
		{"malformed entry id", func() *LinkingRequest {
			r := f.request()
			r.Target.Entries = []string{"cat"}
			return r
		}, "target.entries"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.Submit(context.Background(), tc.req())
			var ve *entity.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
	assert.Empty(t, f.queue.jobs)
}

func TestLinking_RemoteSidesSkipLocalCheck(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{})
	req := &LinkingRequest{
		Source: entity.LinkingSource{ID: f.source},
		Target: entity.LinkingSource{Endpoint: "https://babelnet.example.org", ID: entity.BabelNetID},
	}
	_, err := f.uc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, f.queue.jobs, 1)
}

func TestLinking_UnknownAndMalformedIDs(t *testing.T) {
	f := newLinkingFixture(t, &fakeLinker{})
	ctx := context.Background()

	_, err := f.uc.Status(ctx, "not-an-id")
	assert.ErrorIs(t, err, entity.ErrInvalidID)

	_, err = f.uc.Result(ctx, entity.NewID())
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestLinking_WorkerPool(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dicts := repository.NewDictionaryMemoryRepository()
	src, tgt := entity.NewID(), entity.NewID()
	for _, id := range []string{src, tgt} {
		require.NoError(t, dicts.Replace(context.Background(), &entity.Dictionary{ID: id, Release: entity.ReleasePublic, SourceLanguage: "en"}, nil))
	}
	pool := worker.NewPool(2, 8, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Close()

	linker := &fakeLinker{links: []entity.SenseLink{{SourceEntry: "a", SourceSense: "a-0", TargetEntry: "b", TargetSense: "b-0", Type: entity.LinkExact, Score: 1}}}
	uc := NewLinkingUsecase(repository.NewLinkingJobMemoryRepository(), dicts, linker, pool, logger)

	id, err := uc.Submit(ctx, &LinkingRequest{Source: entity.LinkingSource{ID: src}, Target: entity.LinkingSource{ID: tgt}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		status, err := uc.Status(ctx, id)
		return err == nil && status.State == entity.LinkingCompleted
	}, 2*time.Second, 10*time.Millisecond)

	grouped, err := uc.Result(ctx, id)
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, "b", grouped[0].TargetEntry)
}
