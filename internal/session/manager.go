package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/channel"
	"github.com/radio-control/ranger/internal/discovery"
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/telemetry"
)

// Configuration is staged by the caller and moved to the worker when a bind
// handshake succeeds.
type Configuration struct {
	Listener discovery.Listener
}

// DefaultConfiguration returns the configuration with the null listener.
func DefaultConfiguration() Configuration {
	return Configuration{Listener: discovery.NopListener}
}

// Manager is the client-facing entry point for ranging. It is safe for
// concurrent use.
type Manager struct {
	binder  Binder
	adapter adapter.HardwareAdapter
	logger  *logging.Logger
	hub     Publisher
	fatal   func(error)

	// sendMu keeps channel sends in the order of their state changes.
	// Lock order is sendMu then mu; only sendMu is held across Send.
	sendMu sync.Mutex

	mu         sync.Mutex
	state      State
	pending    Configuration
	staged     uint64
	sender     Sender
	bindingID  string
	connecting bool
	// closed when the last disconnect has unbound its channel
	teardown chan struct{}
}

// NewManager creates a disconnected manager. adapter answers the radio
// capability queries and may be nil.
func NewManager(binder Binder, hw adapter.HardwareAdapter, opts ...Option) *Manager {
	m := &Manager{
		binder:  binder,
		adapter: hw,
		state:   Disconnected,
		pending: DefaultConfiguration(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NopLogger()
	}
	m.logger = m.logger.WithComponent("session")
	if m.fatal == nil {
		m.fatal = func(err error) { panic(err) }
	}
	return m
}

// SetDiscoveryListener stages listener for the next successful Connect.
func (m *Manager) SetDiscoveryListener(listener discovery.Listener) error {
	if listener == nil {
		return ErrNilListener
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Listener = listener
	m.staged++
	return nil
}

// Connect performs the bind handshake. On success the staged configuration
// is handed to the worker and reset, the manager becomes ConnectedIdle and
// onBound runs once. A bind failure is returned and never retried. An
// error from onBound goes to the fatal handler.
func (m *Manager) Connect(ctx context.Context, onBound func() error) error {
	m.mu.Lock()
	if _, ok := next(m.state, opConnect); !ok || m.connecting {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.connecting = true
	teardown := m.teardown
	m.mu.Unlock()

	binding, err := m.bind(ctx, teardown)
	if err != nil {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		m.logger.Warn("bind failed", "error", err)
		return err
	}

	m.mu.Lock()
	to, _ := next(m.state, opConnect)
	m.state = to
	m.sender = binding.Channel()
	m.bindingID = binding.ID()
	m.connecting = false
	m.mu.Unlock()

	logger := m.logger.WithBinding(binding.ID())
	logger.Info("connected")
	m.publish(binding.ID(), telemetry.TypeConnected, nil)

	if onBound != nil {
		if err := onBound(); err != nil {
			err = fmt.Errorf("%w: %w", ErrBoundCallback, err)
			logger.Error("bound callback failed", "error", err)
			m.fatal(err)
		}
	}
	return nil
}

// bind waits for any previous teardown, binds and moves the staged
// configuration to the worker.
func (m *Manager) bind(ctx context.Context, teardown <-chan struct{}) (Binding, error) {
	if teardown != nil {
		select {
		case <-teardown:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for previous session teardown: %w", ctx.Err())
		}
	}

	binding, err := m.binder.Bind(ctx)
	if err != nil {
		return nil, fmt.Errorf("bind failed: %w", err)
	}

	m.mu.Lock()
	cfg, staged := m.pending, m.staged
	m.pending = DefaultConfiguration()
	m.mu.Unlock()

	if err := binding.Configure(cfg.Listener); err != nil {
		binding.Channel().Unbind()
		// Put the staged configuration back unless the caller staged a
		// newer one meanwhile.
		m.mu.Lock()
		if m.staged == staged {
			m.pending = cfg
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("configuration hand-off failed: %w", err)
	}
	return binding, nil
}

// IsConnected reports whether a channel is held.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Connected()
}

// Disconnect sends a best-effort Disconnect command and releases the
// channel. Teardown completes even when the send fails. Disconnecting while
// disconnected is a no-op.
func (m *Manager) Disconnect() {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	to, ok := next(m.state, opDisconnect)
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("already disconnected")
		return
	}
	sender, id := m.sender, m.bindingID
	m.state = to
	m.sender = nil
	m.bindingID = ""
	m.pending = DefaultConfiguration()
	done := make(chan struct{})
	m.teardown = done
	m.mu.Unlock()

	logger := m.logger.WithBinding(id)
	if err := sender.Send(channel.Disconnect); err != nil {
		logger.Warn("failed to send disconnect", "error", err)
	}
	sender.Unbind()
	close(done)

	logger.Info("disconnected")
	m.publish(id, telemetry.TypeDisconnected, nil)
}

// StartRanging sends StartRanging when connected and idle. In any other
// state it is a no-op. A send failure is returned and leaves the state
// unchanged. Ranging operations and Disconnect reach the worker in the
// order their state changes were made.
func (m *Manager) StartRanging() error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	from := m.state
	to, ok := next(from, opStartRanging)
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("either disconnected or already ranging", "state", from.String())
		return nil
	}
	sender, id := m.sender, m.bindingID
	m.state = to
	m.mu.Unlock()

	if err := sender.Send(channel.StartRanging); err != nil {
		m.revert(sender, to, from)
		return err
	}

	m.logger.WithBinding(id).Info("ranging started")
	m.publish(id, telemetry.TypeRangingStarted, nil)
	return nil
}

// StopRanging sends StopRanging. It fails with ErrNotConnected while
// disconnected. When connected but not ranging the command is still sent.
func (m *Manager) StopRanging() error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	from := m.state
	to, ok := next(from, opStopRanging)
	if !ok {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if !from.Ranging() {
		m.logger.Debug("not ranging", "state", from.String())
	}
	sender, id := m.sender, m.bindingID
	m.state = to
	m.mu.Unlock()

	if err := sender.Send(channel.StopRanging); err != nil {
		m.revert(sender, to, from)
		return err
	}

	m.logger.WithBinding(id).Info("ranging stopped")
	m.publish(id, telemetry.TypeRangingStopped, map[string]interface{}{
		"was_ranging": from.Ranging(),
	})
	return nil
}

// revert restores from after a failed send, unless another operation has
// changed the state or channel meanwhile.
func (m *Manager) revert(sender Sender, to, from State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sender == sender && m.state == to {
		m.state = from
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsIdle reports whether the manager is not ranging.
func (m *Manager) IsIdle() bool {
	return !m.IsRanging()
}

// IsRanging reports whether the manager is ranging.
func (m *Manager) IsRanging() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Ranging()
}

// IsScanSupported reports whether the radio can scan.
func (m *Manager) IsScanSupported() bool {
	return m.adapter != nil && m.adapter.IsScanSupported()
}

// IsRadioEnabled reports whether the radio is powered on.
func (m *Manager) IsRadioEnabled() bool {
	return m.adapter != nil && m.adapter.IsEnabled()
}

func (m *Manager) publish(bindingID, eventType string, data map[string]interface{}) {
	if m.hub == nil {
		return
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	data["ts"] = time.Now().UTC().Format(time.RFC3339)
	if err := m.hub.PublishSession(bindingID, telemetry.Event{Type: eventType, Data: data}); err != nil {
		m.logger.Debug("telemetry publish failed", "type", eventType, "error", err)
	}
}
