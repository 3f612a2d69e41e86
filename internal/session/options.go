package session

import (
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/telemetry"
)

// Publisher receives manager telemetry.
type Publisher interface {
	PublishSession(sessionID string, event telemetry.Event) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithPublisher sets the telemetry publisher.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.hub = p }
}

// WithFatalHandler sets the handler for unrecoverable failures. The default
// panics.
func WithFatalHandler(fn func(error)) Option {
	return func(m *Manager) { m.fatal = fn }
}
