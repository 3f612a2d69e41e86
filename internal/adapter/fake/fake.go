// Package fake provides an in-memory scanning adapter for tests and demos.
//
// Advertisements are injected with Emit, or replayed from a Scenario while a
// scan is active.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radio-control/ranger/internal/adapter"
)

// FakeAdapter implements HardwareAdapter for testing purposes.
type FakeAdapter struct {
	adapter.Base

	mu sync.Mutex

	enabled       bool
	scanSupported bool
	scanning      bool
	startCalls    int
	stopCalls     int

	// Error simulation
	simulateErrors bool
	errorType      string

	// Scenario playback, active while scanning
	scenario *Scenario
	cancel   context.CancelFunc
	playback sync.WaitGroup
}

// Compile-time assertion that FakeAdapter implements HardwareAdapter
var _ adapter.HardwareAdapter = (*FakeAdapter)(nil)

// NewFakeAdapter creates a new fake adapter with the radio enabled.
func NewFakeAdapter(name string) *FakeAdapter {
	return &FakeAdapter{
		Base: adapter.Base{
			Name:    name,
			Backend: "fake",
		},
		enabled:       true,
		scanSupported: true,
	}
}

// IsEnabled reports the simulated power state.
func (f *FakeAdapter) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// IsScanSupported reports the simulated scan capability.
func (f *FakeAdapter) IsScanSupported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanSupported
}

// StartScan registers cb. The first registration starts scenario playback.
func (f *FakeAdapter) StartScan(cb adapter.ScanCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.startCalls++

	if f.simulateErrors {
		return adapter.NormalizeBackendError(f.getSimulatedError(), nil)
	}
	if !f.enabled {
		return adapter.ErrUnavailable
	}
	if !f.scanSupported {
		return adapter.ErrNotSupported
	}

	first, err := f.Register(cb)
	if err != nil {
		return err
	}
	if first {
		f.scanning = true
		f.startPlaybackLocked()
	}
	return nil
}

// StopScan unregisters cb. The last removal stops scenario playback.
func (f *FakeAdapter) StopScan(cb adapter.ScanCallback) error {
	f.mu.Lock()
	f.stopCalls++

	if f.simulateErrors {
		f.mu.Unlock()
		return adapter.NormalizeBackendError(f.getSimulatedError(), nil)
	}

	last, err := f.Unregister(cb)
	if err != nil {
		f.mu.Unlock()
		return err
	}

	cancel := f.cancel
	if last {
		f.scanning = false
		f.cancel = nil
	}
	f.mu.Unlock()

	if last && cancel != nil {
		cancel()
		f.playback.Wait()
	}
	return nil
}

// Emit delivers adv to all registered callbacks on the calling goroutine and
// returns the number of callbacks reached.
func (f *FakeAdapter) Emit(adv adapter.Advertisement) int {
	return f.Dispatch(adv)
}

// Helper methods for testing

// SetEnabled sets the simulated power state.
func (f *FakeAdapter) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

// SetScanSupported sets the simulated scan capability.
func (f *FakeAdapter) SetScanSupported(supported bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanSupported = supported
}

// SetErrorSimulation makes StartScan and StopScan fail with errorType.
func (f *FakeAdapter) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
}

// DisableErrorSimulation disables error simulation.
func (f *FakeAdapter) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
}

// LoadScenario sets the scenario replayed on the next scan start.
func (f *FakeAdapter) LoadScenario(s *Scenario) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenario = s
}

// Scanning reports whether at least one callback is registered.
func (f *FakeAdapter) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

// StartCalls returns the number of StartScan invocations.
func (f *FakeAdapter) StartCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

// StopCalls returns the number of StopScan invocations.
func (f *FakeAdapter) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// startPlaybackLocked replays the loaded scenario on its own goroutine, which
// stands in for the hardware callback context. Caller must hold f.mu.
func (f *FakeAdapter) startPlaybackLocked() {
	if f.scenario == nil || len(f.scenario.Advertisements) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	scenario := f.scenario

	f.playback.Add(1)
	go func() {
		defer f.playback.Done()
		_ = scenario.Play(ctx, f.Emit)
	}()
}

// getSimulatedError returns a simulated error based on the configured error type.
func (f *FakeAdapter) getSimulatedError() error {
	switch f.errorType {
	case "BUSY":
		return fmt.Errorf("BUSY: simulated busy error")
	case "UNAVAILABLE":
		return fmt.Errorf("UNAVAILABLE: simulated unavailable error")
	case "NOT_SUPPORTED":
		return fmt.Errorf("NOT_SUPPORTED: simulated unsupported error")
	default:
		return fmt.Errorf("INTERNAL: unknown simulated error")
	}
}

// playbackTick bounds the wait between looped scenario passes.
const playbackTick = 10 * time.Millisecond
