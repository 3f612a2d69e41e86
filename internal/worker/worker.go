package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/audit"
	"github.com/radio-control/ranger/internal/auth"
	"github.com/radio-control/ranger/internal/channel"
	"github.com/radio-control/ranger/internal/discovery"
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/telemetry"
)

// Status is a point-in-time view of the worker.
type Status struct {
	BindingID string
	Ranging   bool
	Devices   int
}

// Worker owns the scanning hardware and executes commands serially.
type Worker struct {
	adapter     adapter.HardwareAdapter
	logger      *logging.Logger
	hub         Publisher
	auditLogger AuditLogger
	issuer      *auth.TokenIssuer
	capacity    int
	queueDepth  int
	fatal       func(error)

	dispatcher     *discovery.Dispatcher
	ownsDispatcher bool

	exec *executor

	// Owned by the executor goroutine
	binding  *Binding
	config   Configuration
	session  *discovery.Session
	released bool
}

// Compile-time assertion that Worker accepts channel envelopes
var _ channel.Sink = (*Worker)(nil)

// New creates a worker for hw. Call Start before binding.
func New(hw adapter.HardwareAdapter, opts ...Option) (*Worker, error) {
	if hw == nil {
		return nil, fmt.Errorf("hardware adapter cannot be nil")
	}

	w := &Worker{
		adapter:  hw,
		capacity: discovery.DefaultCapacity,
		config:   DefaultConfiguration(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logging.NopLogger()
	}
	w.logger = w.logger.WithComponent("worker")
	if w.fatal == nil {
		w.fatal = func(err error) { panic(err) }
	}
	if w.issuer == nil {
		secret, err := auth.NewRandomSecret()
		if err != nil {
			return nil, err
		}
		issuer, err := auth.NewTokenIssuer(secret, 0)
		if err != nil {
			return nil, err
		}
		w.issuer = issuer
	}
	if w.dispatcher == nil {
		w.dispatcher = discovery.NewDispatcher()
		w.ownsDispatcher = true
	}
	w.exec = newExecutor(w.queueDepth)

	return w, nil
}

// Start begins serial execution and discovery delivery.
func (w *Worker) Start() {
	if w.ownsDispatcher {
		w.dispatcher.Start()
	}
	w.exec.start()
	w.logger.Info("worker started", "adapter", fmt.Sprintf("%T", w.adapter))
}

// Close drains queued work, stops any active scan, releases the active
// binding and stops discovery delivery.
func (w *Worker) Close() {
	w.exec.close(func(ctx context.Context) {
		if w.binding != nil {
			if !w.released {
				w.release(ctx, w.logger.WithBinding(w.binding.id), "worker closed")
			}
			w.binding = nil
		}
	})
	if w.ownsDispatcher {
		w.dispatcher.Close()
	}
	w.logger.Info("worker closed")
}

// Bind requests a binding. The request is queued behind pending work; it is
// rejected while another binding is active or after Close.
func (w *Worker) Bind(ctx context.Context) (*Binding, error) {
	type result struct {
		b   *Binding
		err error
	}
	res := make(chan result, 1)

	err := w.exec.submit(ctx, func(context.Context) {
		b, err := w.grant()
		res <- result{b, err}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBindRejected, err)
	}

	select {
	case r := <-res:
		return r.b, r.err
	case <-ctx.Done():
		// The request is queued and will still be answered; drop the grant.
		go func() {
			if r := <-res; r.b != nil {
				r.b.channel.Unbind()
			}
		}()
		return nil, fmt.Errorf("%w: %w", ErrBindRejected, ctx.Err())
	}
}

// grant runs on the executor goroutine.
func (w *Worker) grant() (*Binding, error) {
	start := time.Now()

	if w.binding != nil {
		w.logger.Warn("bind rejected", "active_binding", w.binding.id)
		w.logAudit(context.Background(), "Bind", "", audit.OutcomeRejected, time.Since(start))
		return nil, fmt.Errorf("%w: binding %s is active", ErrBindRejected, w.binding.id)
	}

	id := uuid.NewString()
	token, err := w.issuer.Issue(id, "session-manager")
	if err != nil {
		w.logAudit(context.Background(), "Bind", id, audit.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrBindRejected, err)
	}

	b := &Binding{id: id, token: token, worker: w}
	b.channel = channel.New(id, token, w, func() { w.unbind(id) })

	w.binding = b
	w.config = DefaultConfiguration()
	w.released = false

	w.logger.WithBinding(id).Info("binding granted")
	w.logAudit(context.Background(), "Bind", id, audit.OutcomeSuccess, time.Since(start))
	return b, nil
}

// unbind queues the release of binding id. It blocks only while the queue
// is full, so the release stays ordered behind commands already sent.
func (w *Worker) unbind(id string) {
	err := w.exec.submit(context.Background(), func(ctx context.Context) {
		start := time.Now()
		if w.binding == nil || w.binding.id != id {
			return
		}
		logger := w.logger.WithBinding(id)
		if !w.released {
			w.release(ctx, logger, "unbind")
		}
		w.binding = nil
		logger.Info("binding released")
		w.logAudit(ctx, "Unbind", id, audit.OutcomeSuccess, time.Since(start))
	})
	if err != nil {
		w.logger.WithBinding(id).Debug("unbind after close", "error", err)
	}
}

// Enqueue implements channel.Sink.
func (w *Worker) Enqueue(env channel.Envelope) error {
	return w.exec.tryEnqueue(func(ctx context.Context) {
		w.handle(ctx, env)
	})
}

// Status reports the worker state as seen by the executor.
func (w *Worker) Status(ctx context.Context) (Status, error) {
	res := make(chan Status, 1)
	err := w.exec.submit(ctx, func(context.Context) {
		var st Status
		if w.binding != nil {
			st.BindingID = w.binding.id
		}
		if w.session != nil {
			st.Ranging = true
			st.Devices = w.session.Len()
		}
		res <- st
	})
	if err != nil {
		return Status{}, err
	}
	select {
	case st := <-res:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// handle runs one command on the executor goroutine.
func (w *Worker) handle(ctx context.Context, env channel.Envelope) {
	start := time.Now()
	action := env.Command.String()
	logger := w.logger.WithBinding(env.BindingID).With("command", action)

	if err := w.authorize(env); err != nil {
		logger.Warn("command rejected", "error", err)
		w.logAudit(ctx, action, env.BindingID, audit.OutcomeRejected, time.Since(start))
		return
	}

	var err error
	switch env.Command {
	case channel.StartRanging:
		err = w.startRanging(logger)
	case channel.StopRanging:
		err = w.stopRanging(logger)
	case channel.Disconnect:
		w.release(ctx, logger, "disconnect")
	default:
		fatal := fmt.Errorf("%w: %s", ErrUnsupportedCommand, env.Command)
		logger.Error("unsupported command", "code", int(env.Command))
		w.logAudit(ctx, action, env.BindingID, adapter.ErrInternal.Error(), time.Since(start))
		w.publishFault(env.BindingID, fatal, "unsupported command")
		w.fatal(fatal)
		return
	}

	w.logAudit(ctx, action, env.BindingID, adapter.Code(err), time.Since(start))
	if err != nil {
		logger.Warn("command failed", "error", err, "code", adapter.Code(err))
		w.publishFault(env.BindingID, err, fmt.Sprintf("%s failed", action))
		return
	}
	logger.Debug("command executed", "latency", time.Since(start))
}

// authorize checks the envelope token and that its binding is active.
func (w *Worker) authorize(env channel.Envelope) error {
	if _, err := w.issuer.VerifyBinding(env.Token, env.BindingID); err != nil {
		return err
	}
	if w.binding == nil || w.binding.id != env.BindingID {
		return ErrStaleBinding
	}
	return nil
}

func (w *Worker) startRanging(logger *logging.Logger) error {
	created := false
	if w.session == nil {
		w.session = discovery.NewSession(
			w.config.Listener,
			w.dispatcher,
			w.capacity,
			w.logger.WithComponent("discovery").WithBinding(w.binding.id),
		)
		created = true
	}

	if err := w.adapter.StartScan(w.session); err != nil {
		if created {
			w.session.Close()
			w.session = nil
		}
		return err
	}

	w.released = false
	logger.Info("scan started")
	w.publish(telemetry.TypeScanStarted, map[string]interface{}{
		"capacity": w.capacity,
	})
	return nil
}

func (w *Worker) stopRanging(logger *logging.Logger) error {
	if w.session == nil {
		logger.Info("no active scan to stop")
		return nil
	}

	err := w.adapter.StopScan(w.session)
	w.session.Close()
	stats := w.session.Stats()
	w.session = nil

	logger.Info("scan stopped", "sightings", stats.Sightings, "devices", stats.Size, "evictions", stats.Evictions)
	w.publish(telemetry.TypeScanStopped, map[string]interface{}{
		"sightings": stats.Sightings,
		"devices":   stats.Size,
		"evictions": stats.Evictions,
	})
	if errors.Is(err, adapter.ErrNotScanning) {
		return nil
	}
	return err
}

// release stops any active scan and drops session resources, resetting the
// configuration to its default. Unbind and Close skip it when a Disconnect
// already released the binding and no scan was started since.
func (w *Worker) release(ctx context.Context, logger *logging.Logger, reason string) {
	if w.session != nil {
		if err := w.adapter.StopScan(w.session); err != nil && !errors.Is(err, adapter.ErrNotScanning) {
			logger.Warn("failed to stop scan during release", "error", err)
		}
		w.session.Close()
		w.session = nil
	}
	w.config = DefaultConfiguration()
	w.released = true

	logger.Debug("session resources released", "reason", reason)
	w.publish(telemetry.TypeWorkerReleased, map[string]interface{}{
		"reason": reason,
	})
}

// publish sends an event for the active binding.
func (w *Worker) publish(eventType string, data map[string]interface{}) {
	if w.hub == nil {
		return
	}
	session := ""
	if w.binding != nil {
		session = w.binding.id
	}
	data["ts"] = time.Now().UTC().Format(time.RFC3339)
	if err := w.hub.PublishSession(session, telemetry.Event{Type: eventType, Data: data}); err != nil {
		w.logger.Debug("telemetry publish failed", "type", eventType, "error", err)
	}
}

// publishFault publishes a fault event.
func (w *Worker) publishFault(bindingID string, err error, message string) {
	if w.hub == nil {
		return
	}
	event := telemetry.Event{
		Type: telemetry.TypeFault,
		Data: map[string]interface{}{
			"code":    adapter.Code(err),
			"error":   err.Error(),
			"message": message,
			"ts":      time.Now().UTC().Format(time.RFC3339),
		},
	}
	// This is a fault event itself, so a failure is not republished
	_ = w.hub.PublishSession(bindingID, event)
}

// logAudit logs an audit record for a command action.
func (w *Worker) logAudit(ctx context.Context, action, bindingID, result string, latency time.Duration) {
	if w.auditLogger != nil {
		w.auditLogger.LogAction(ctx, action, bindingID, result, latency)
	}
}
