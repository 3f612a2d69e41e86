package worker

import (
	"context"
	"time"

	"github.com/radio-control/ranger/internal/auth"
	"github.com/radio-control/ranger/internal/discovery"
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/telemetry"
)

// DefaultQueueDepth bounds commands waiting for the worker.
const DefaultQueueDepth = 16

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, bindingID string, result string, latency time.Duration)
}

// Publisher receives worker telemetry.
type Publisher interface {
	PublishSession(sessionID string, event telemetry.Event) error
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithPublisher sets the telemetry publisher.
func WithPublisher(p Publisher) Option {
	return func(w *Worker) { w.hub = p }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a AuditLogger) Option {
	return func(w *Worker) { w.auditLogger = a }
}

// WithTokenIssuer sets the bind token issuer. Without one the worker uses a
// random per-process secret.
func WithTokenIssuer(i *auth.TokenIssuer) Option {
	return func(w *Worker) { w.issuer = i }
}

// WithCacheCapacity sets the per-session device cache capacity.
func WithCacheCapacity(n int) Option {
	return func(w *Worker) { w.capacity = n }
}

// WithQueueDepth sets the command queue depth.
func WithQueueDepth(n int) Option {
	return func(w *Worker) { w.queueDepth = n }
}

// WithDispatcher delivers discoveries through d instead of a dispatcher
// owned by the worker. The caller starts and closes d.
func WithDispatcher(d *discovery.Dispatcher) Option {
	return func(w *Worker) { w.dispatcher = d }
}

// WithFatalHandler sets the handler for protocol violations. The default
// panics.
func WithFatalHandler(fn func(error)) Option {
	return func(w *Worker) { w.fatal = fn }
}
