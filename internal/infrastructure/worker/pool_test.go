package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestPoolRunsJobs(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPool(4, 128, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var ran int32
	jobs := 100
	for i := 0; i < jobs; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	p.Close()

	if got := atomic.LoadInt32(&ran); int(got) != jobs {
		t.Fatalf("expected %d jobs executed, got %d", jobs, got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPool(1, 2, logger)
	p.Start(context.Background())
	p.Close()
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestSubmitDoesNotBlockOnFullQueue(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPool(1, 1, logger)
	// workers not started, so the queue fills up
	if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("setup submit failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Submit(func(ctx context.Context) error { return nil }) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full queue")
	}
}

func TestPanickingJobIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewPool(1, 4, logger)
	p.Start(context.Background())

	var after int32
	_ = p.Submit(func(ctx context.Context) error { panic("boom") })
	_ = p.Submit(func(ctx context.Context) error {
		atomic.StoreInt32(&after, 1)
		return errors.New("soft failure")
	})
	p.Close()

	if atomic.LoadInt32(&after) != 1 {
		t.Fatal("worker did not survive a panicking job")
	}
	if len(hook.AllEntries()) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(hook.AllEntries()))
	}
}

func TestContextCancellationStopsWorkers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPool(2, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after context cancellation")
	}
}
