package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/radio-control/ranger/internal/channel"
	"github.com/radio-control/ranger/internal/discovery"
)

// Configuration is the state a session manager hands to the worker at bind
// time.
type Configuration struct {
	Listener discovery.Listener
}

// DefaultConfiguration returns the configuration with the null listener.
func DefaultConfiguration() Configuration {
	return Configuration{Listener: discovery.NopListener}
}

// Binding is a granted bind request.
type Binding struct {
	id      string
	token   string
	worker  *Worker
	channel *channel.Channel

	mu       sync.Mutex
	consumed bool
}

// ID returns the binding ID.
func (b *Binding) ID() string {
	return b.id
}

// Token returns the bind token carried by every command on this binding.
func (b *Binding) Token() string {
	return b.token
}

// Channel returns the command channel of this binding.
func (b *Binding) Channel() *channel.Channel {
	return b.channel
}

// SetConfiguration hands cfg to the worker. It may be called once per
// binding. The configuration is applied ahead of any command sent after
// the call returns.
func (b *Binding) SetConfiguration(cfg Configuration) error {
	b.mu.Lock()
	if b.consumed {
		b.mu.Unlock()
		return ErrConfigurationConsumed
	}
	b.consumed = true
	b.mu.Unlock()

	if cfg.Listener == nil {
		cfg.Listener = discovery.NopListener
	}

	w := b.worker
	err := w.exec.submit(context.Background(), func(context.Context) {
		if w.binding != b {
			w.logger.WithBinding(b.id).Warn("configuration for inactive binding ignored")
			return
		}
		w.config = cfg
	})
	if err != nil {
		return fmt.Errorf("failed to hand over configuration: %w", err)
	}
	return nil
}
