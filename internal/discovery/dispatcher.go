package discovery

import (
	"context"
	"errors"
	"sync"
)

// ErrDispatcherClosed is returned by Post after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs posted functions one at a time, in post order, on a single
// goroutine. It is the fixed delivery context for listener callbacks.
//
// The backlog is unbounded so that Post never blocks the goroutine raising
// advertisements. Call Start once, and Close when done.
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	started bool
	closed  bool
	done    chan struct{}
}

// NewDispatcher creates a dispatcher. Functions posted before Start run once
// it is started.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start begins the delivery goroutine. Safe to call multiple times.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		d.mu.Unlock()

		fn()
	}
}

// Post schedules fn behind everything posted before it.
func (d *Dispatcher) Post(fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.pending = append(d.pending, fn)
	d.cond.Signal()
	return nil
}

// Pending returns the number of functions waiting to run.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Sync waits until everything posted before the call has run.
func (d *Dispatcher) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if err := d.Post(func() { close(reached) }); err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further posts, runs the backlog and waits for the delivery
// goroutine to exit. A dispatcher that was never started drops its backlog.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		if d.started {
			<-d.done
		}
		return
	}
	d.closed = true
	started := d.started
	if !started {
		d.pending = nil
	}
	d.cond.Broadcast()
	d.mu.Unlock()

	if started {
		<-d.done
	}
}
