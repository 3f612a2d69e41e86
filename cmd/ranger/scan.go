package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radio-control/ranger/internal/config"
	"github.com/radio-control/ranger/internal/device"
	"github.com/radio-control/ranger/internal/discovery"
)

// lockedWriter serializes writes from the delivery goroutine and the
// command goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newScanCmd(opts *options) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Range for nearby devices",
		Long: `Connect to the scan worker, range for the given duration and print
every discovered device. Repeated sightings of a device update its signal
strength in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, duration)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "how long to range")
	cmd.Flags().String("scenario", "", "scenario file replayed by the fake backend")
	_ = opts.loader.Viper().BindPFlag("adapter.scenario_file", cmd.Flags().Lookup("scenario"))

	return cmd
}

func runScan(cmd *cobra.Command, opts *options, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", duration)
	}

	rt, err := newRuntime(opts.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.configFile != "" {
		opts.loader.Watch(func(cfg *config.Config, err error) {
			if err != nil {
				rt.logger.Warn("configuration reload rejected", "error", err)
				return
			}
			rt.logger.SetLevel(cfg.Logging.Level)
			rt.logger.Info("configuration reloaded", "log_level", cfg.Logging.Level)
		})
	}

	if !rt.manager.IsRadioEnabled() {
		return errors.New("radio is not enabled")
	}
	if !rt.manager.IsScanSupported() {
		return errors.New("radio does not support scanning")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	eventsCtx, cancelEvents := context.WithCancel(ctx)
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		logEvents(eventsCtx, rt)
	}()
	stopEvents := func() {
		cancelEvents()
		<-eventsDone
	}
	defer stopEvents()

	listener := discovery.ListenerFunc(func(rec device.Record) {
		fmt.Fprintln(out, rec.String())
	})
	if err := rt.manager.SetDiscoveryListener(listener); err != nil {
		return err
	}

	bindCtx, cancel := context.WithTimeout(ctx, opts.cfg.Ranging.BindTimeout)
	defer cancel()
	err = rt.manager.Connect(bindCtx, func() error {
		fmt.Fprintf(out, "connected to %s radio %s\n", opts.cfg.Adapter.Backend, opts.cfg.Adapter.Device)
		return nil
	})
	if err != nil {
		return err
	}

	if err := rt.manager.StartRanging(); err != nil {
		rt.manager.Disconnect()
		return err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		rt.logger.Info("scan interrupted")
	}

	statusCtx, statusCancel := context.WithTimeout(context.Background(), time.Second)
	defer statusCancel()
	status, err := rt.worker.Status(statusCtx)
	if err != nil {
		rt.logger.Warn("failed to read worker status", "error", err)
	}

	stopErr := rt.manager.StopRanging()
	rt.manager.Disconnect()
	if stopErr != nil {
		return stopErr
	}

	stopEvents()
	// Closing drains queued commands and pending deliveries before the
	// summary is printed. Close logs its own failures while the logger is
	// still open.
	closeErr := rt.Close()
	fmt.Fprintf(out, "%d devices in cache\n", status.Devices)
	if closeErr != nil {
		return fmt.Errorf("shutdown: %w", closeErr)
	}
	return nil
}

// logEvents writes telemetry to the debug log until ctx is done or the hub
// stops.
func logEvents(ctx context.Context, rt *runtime) {
	sub, err := rt.hub.Subscribe(ctx, "", -1)
	if err != nil {
		return
	}
	defer sub.Close()
	for event := range sub.Events {
		rt.logger.Debug("telemetry", "type", event.Type, "session", event.Session, "id", event.ID)
	}
}
