package worker

import (
	"context"
	"sync"

	"github.com/radio-control/ranger/internal/channel"
)

// op is one unit of serial work. It receives a context that is canceled
// when the worker closes.
type op func(ctx context.Context)

// executor serializes ops onto a single goroutine. Enqueued ops always run,
// including those still queued when close is called.
type executor struct {
	mu     sync.RWMutex
	closed bool
	ch     chan op

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func newExecutor(depth int) *executor {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &executor{ch: make(chan op, depth), ctx: ctx, cancel: cancel}
}

// start begins the executor goroutine. Safe to call multiple times.
func (e *executor) start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for o := range e.ch {
			o(e.ctx)
		}
	}()
}

// tryEnqueue adds o without blocking.
func (e *executor) tryEnqueue(o op) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return channel.ErrWorkerClosed
	}
	select {
	case e.ch <- o:
		return nil
	default:
		return channel.ErrQueueFull
	}
}

// submit adds o, waiting for room until ctx is done.
func (e *executor) submit(ctx context.Context, o op) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return channel.ErrWorkerClosed
	}
	select {
	case e.ch <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close rejects further ops, waits for the queue to drain and then runs
// final on the calling goroutine. An executor that was never started runs
// its backlog here as well.
func (e *executor) close(final op) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.closed = true
	close(e.ch)
	started := e.started
	e.mu.Unlock()

	if started {
		e.wg.Wait()
	} else {
		for o := range e.ch {
			o(e.ctx)
		}
	}

	if final != nil {
		final(e.ctx)
	}
	e.cancel()
}
