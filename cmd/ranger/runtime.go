package main

import (
	"fmt"
	"io"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/adapter/bluez"
	"github.com/radio-control/ranger/internal/adapter/fake"
	"github.com/radio-control/ranger/internal/adapter/tinygo"
	"github.com/radio-control/ranger/internal/audit"
	"github.com/radio-control/ranger/internal/auth"
	"github.com/radio-control/ranger/internal/config"
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/session"
	"github.com/radio-control/ranger/internal/telemetry"
	"github.com/radio-control/ranger/internal/worker"
)

// runtime is the wired process: logger, audit trail, telemetry hub, radio
// adapter, scan worker and session manager.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	audit   *audit.Logger
	hub     *telemetry.Hub
	adapter adapter.HardwareAdapter
	worker  *worker.Worker
	manager *session.Manager

	closers []func() error
}

// newLogger builds the process logger. Without a log file, output goes to
// stderr.
func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	if cfg.Logging.File != "" {
		return logging.NewLogger(cfg.LoggingOptions())
	}
	return logging.NewWriterLogger(stderr, cfg.Logging.Level), nil
}

// openAdapter opens the configured scanning backend.
func openAdapter(cfg *config.Config, logger *logging.Logger) (adapter.HardwareAdapter, func() error, error) {
	switch cfg.Adapter.Backend {
	case "fake":
		a := fake.NewFakeAdapter(cfg.Adapter.Device)
		if cfg.Adapter.ScenarioFile != "" {
			scenario, err := fake.LoadScenario(cfg.Adapter.ScenarioFile)
			if err != nil {
				return nil, nil, err
			}
			a.LoadScenario(scenario)
			logger.Info("scenario loaded", "name", scenario.Name, "steps", len(scenario.Advertisements))
		}
		return a, nil, nil
	case "bluez":
		a, err := bluez.New(cfg.Adapter.Device, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	case "tinygo":
		return tinygo.New(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter backend %q", cfg.Adapter.Backend)
	}
}

// newRuntime wires the full stack from cfg. The worker is started.
func newRuntime(cfg *config.Config, stderr io.Writer) (*runtime, error) {
	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, logger.Close)

	if cfg.Audit.File != "" {
		auditLogger, err := audit.NewLogger(cfg.AuditOptions())
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		rt.audit = auditLogger
		rt.closers = append(rt.closers, auditLogger.Close)
		logger.Debug("audit logger initialized", "file", auditLogger.GetFilePath())
	}

	rt.hub = telemetry.NewHub(cfg.TelemetryOptions())
	rt.closers = append(rt.closers, func() error { rt.hub.Stop(); return nil })

	secret := []byte(cfg.Auth.BindSecret)
	if len(secret) == 0 {
		if secret, err = auth.NewRandomSecret(); err != nil {
			rt.Close()
			return nil, err
		}
	}
	issuer, err := auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	hw, closeAdapter, err := openAdapter(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open %s adapter: %w", cfg.Adapter.Backend, err)
	}
	rt.adapter = hw
	if closeAdapter != nil {
		rt.closers = append(rt.closers, closeAdapter)
	}

	opts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithPublisher(rt.hub),
		worker.WithTokenIssuer(issuer),
		worker.WithCacheCapacity(cfg.Ranging.CacheCapacity),
		worker.WithQueueDepth(cfg.Ranging.CommandQueueDepth),
	}
	if rt.audit != nil {
		opts = append(opts, worker.WithAuditLogger(rt.audit))
	}
	w, err := worker.New(hw, opts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}
	w.Start()
	rt.worker = w
	rt.closers = append(rt.closers, func() error { w.Close(); return nil })

	rt.manager = session.NewManager(session.ForWorker(w), hw,
		session.WithLogger(logger),
		session.WithPublisher(rt.hub),
	)

	logger.Info("runtime initialized",
		"backend", cfg.Adapter.Backend,
		"device", cfg.Adapter.Device,
		"cache_capacity", cfg.Ranging.CacheCapacity)
	return rt, nil
}

// Close releases everything in reverse order of creation. The logger is
// created first, so it closes last and records the other failures.
func (rt *runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err := rt.closers[i]()
		if err == nil {
			continue
		}
		if i > 0 {
			rt.logger.Warn("shutdown error", "error", err)
		}
		if first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
