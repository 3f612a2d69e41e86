package session

import (
	"context"

	"github.com/radio-control/ranger/internal/channel"
	"github.com/radio-control/ranger/internal/discovery"
	"github.com/radio-control/ranger/internal/worker"
)

// Sender is the manager's end of a bound command channel.
type Sender interface {
	Send(cmd channel.Command) error
	Unbind()
}

// Binding is a granted bind handshake.
type Binding interface {
	ID() string
	// Configure hands the staged listener to the worker. It is called once,
	// before any command is sent.
	Configure(listener discovery.Listener) error
	Channel() Sender
}

// Binder performs the bind handshake with a worker.
type Binder interface {
	Bind(ctx context.Context) (Binding, error)
}

// BindFunc adapts a function to Binder.
type BindFunc func(ctx context.Context) (Binding, error)

// Bind calls f(ctx).
func (f BindFunc) Bind(ctx context.Context) (Binding, error) {
	return f(ctx)
}

// ForWorker returns a Binder for an in-process worker.
func ForWorker(w *worker.Worker) Binder {
	return BindFunc(func(ctx context.Context) (Binding, error) {
		b, err := w.Bind(ctx)
		if err != nil {
			return nil, err
		}
		return workerBinding{b}, nil
	})
}

type workerBinding struct {
	b *worker.Binding
}

func (wb workerBinding) ID() string {
	return wb.b.ID()
}

func (wb workerBinding) Configure(listener discovery.Listener) error {
	return wb.b.SetConfiguration(worker.Configuration{Listener: listener})
}

func (wb workerBinding) Channel() Sender {
	return wb.b.Channel()
}
