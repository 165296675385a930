package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Job is a unit of work submitted to the Pool. The returned error is only logged; jobs record
// their outcome themselves.
type Job func(ctx context.Context) error

var (
	// ErrPoolClosed is returned if a Submit is attempted after Close.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned when the queue has no free slot. Submit never blocks.
	ErrQueueFull = errors.New("worker pool queue full")
)

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers int
	logger  logrus.FieldLogger

	closeMu sync.RWMutex
	closed  bool
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queue int, logger logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &Pool{
		jobs:    make(chan Job, queue),
		workers: workers,
		logger:  logger.WithField("component", "worker_pool"),
	}
}

// Start launches the workers. They stop when ctx is done or after Close drains the queue.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					p.run(ctx, id, job)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("worker", id).Errorf("job panicked: %v", r)
		}
	}()
	if err := job(ctx); err != nil {
		p.logger.WithField("worker", id).WithError(err).Warn("job failed")
	}
}

// Submit enqueues a job without waiting for a free slot.
func (p *Pool) Submit(job Job) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, cap(p.jobs))
	}
}

// Close stops accepting new jobs and waits for the workers to finish the queued ones.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.closeMu.Unlock()
	p.wg.Wait()
}
