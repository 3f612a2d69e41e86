// Package adaptertest provides backend-agnostic conformance testing for
// scanning adapters.
package adaptertest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/device"
)

// Emitter injects an advertisement into the adapter under test as if it had
// been received over the air. Backends that cannot inject pass nil.
type Emitter func(a adapter.HardwareAdapter, adv adapter.Advertisement)

// Options tunes the conformance run.
type Options struct {
	// Emit enables the delivery tests when non-nil.
	Emit Emitter

	// DeliveryTimeout bounds the wait for an emitted advertisement.
	DeliveryTimeout time.Duration
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	AdapterName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance suite. newAdapter must return
// a fresh, enabled adapter that supports scanning.
func RunConformance(t *testing.T, newAdapter func() adapter.HardwareAdapter, opts Options) {
	t.Helper()
	startTime := time.Now()

	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = time.Second
	}

	report := &ConformanceReport{
		AdapterName:   adapterName(newAdapter()),
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runCapabilityTests(newAdapter, report)
	runLifecycleTests(newAdapter, report)
	runRegistrationTests(newAdapter, report)
	if opts.Emit != nil {
		runDeliveryTests(newAdapter, opts, report)
	}

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Adapter conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// Probe is a comparable callback that records what it receives.
type Probe struct {
	mu   sync.Mutex
	seen []adapter.Advertisement
	ch   chan struct{}
}

// NewProbe returns an empty probe.
func NewProbe() *Probe {
	return &Probe{ch: make(chan struct{}, 64)}
}

// OnAdvertisement implements adapter.ScanCallback.
func (p *Probe) OnAdvertisement(adv adapter.Advertisement) {
	p.mu.Lock()
	p.seen = append(p.seen, adv)
	p.mu.Unlock()

	select {
	case p.ch <- struct{}{}:
	default:
	}
}

// Seen returns a copy of the received advertisements.
func (p *Probe) Seen() []adapter.Advertisement {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]adapter.Advertisement, len(p.seen))
	copy(out, p.seen)
	return out
}

// Wait blocks until at least n advertisements arrived or timeout elapses.
func (p *Probe) Wait(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(p.Seen()) >= n {
			return true
		}
		select {
		case <-p.ch:
		case <-deadline:
			return len(p.Seen()) >= n
		}
	}
}

func runCapabilityTests(newAdapter func() adapter.HardwareAdapter, report *ConformanceReport) {
	a := newAdapter()

	result := ConformanceResult{
		TestName: "Capabilities_Probe",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	enabled := a.IsEnabled()
	supported := a.IsScanSupported()
	result.Duration = time.Since(start)

	result.Details["enabled"] = enabled
	result.Details["scanSupported"] = supported
	if !enabled || !supported {
		result.Error = "adapter under test must be enabled and support scanning"
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func runLifecycleTests(newAdapter func() adapter.HardwareAdapter, report *ConformanceReport) {
	a := newAdapter()
	probe := NewProbe()

	result := ConformanceResult{
		TestName: "Scan_StartStop",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	err := a.StartScan(probe)
	if err == nil {
		err = a.StopScan(probe)
	}
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("start/stop failed: %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)

	// A second stop for the same callback is reported, not ignored.
	result = ConformanceResult{
		TestName: "Scan_StopTwice",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	err = a.StopScan(probe)
	result.Duration = time.Since(start)
	result.Details["code"] = adapter.Code(err)
	if !errors.Is(err, adapter.ErrNotScanning) {
		result.Error = fmt.Sprintf("expected NOT_SCANNING, got %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)

	// Restart after a full stop.
	result = ConformanceResult{
		TestName: "Scan_Restart",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	err = a.StartScan(probe)
	if err == nil {
		err = a.StopScan(probe)
	}
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("restart failed: %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func runRegistrationTests(newAdapter func() adapter.HardwareAdapter, report *ConformanceReport) {
	a := newAdapter()

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "Register_Nil",
			run:  func() error { return a.StartScan(nil) },
			want: adapter.ErrInvalidCallback,
		},
		{
			name: "Unregister_Unknown",
			run:  func() error { return a.StopScan(NewProbe()) },
			want: adapter.ErrNotScanning,
		},
		{
			name: "Register_Duplicate",
			run: func() error {
				p := NewProbe()
				if err := a.StartScan(p); err != nil {
					return err
				}
				defer func() { _ = a.StopScan(p) }()
				return a.StartScan(p)
			},
			want: adapter.ErrBusy,
		},
	}

	for _, tc := range cases {
		result := ConformanceResult{
			TestName: tc.name,
			Details:  make(map[string]interface{}),
		}
		start := time.Now()
		err := tc.run()
		result.Duration = time.Since(start)
		result.Details["code"] = adapter.Code(err)
		if !errors.Is(err, tc.want) {
			result.Error = fmt.Sprintf("expected %v, got %v", tc.want, err)
		} else {
			result.Passed = true
		}
		report.addResult(result)
	}

	// Two callbacks share one hardware scan; removing one keeps the other.
	result := ConformanceResult{
		TestName: "Register_Shared",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	first, second := NewProbe(), NewProbe()
	err := a.StartScan(first)
	if err == nil {
		err = a.StartScan(second)
	}
	if err == nil {
		err = a.StopScan(first)
	}
	if err == nil {
		err = a.StopScan(second)
	}
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("shared registration failed: %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func runDeliveryTests(newAdapter func() adapter.HardwareAdapter, opts Options, report *ConformanceReport) {
	a := newAdapter()
	probe := NewProbe()

	adv := adapter.Advertisement{
		Identity: device.Identity{
			Address: "C0:FF:EE:00:00:01",
			Name:    "conformance",
			Kind:    device.KindLE,
		},
		RSSI:    -42,
		Payload: []byte{0x02, 0x01, 0x06},
	}

	result := ConformanceResult{
		TestName: "Delivery_WhileScanning",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	if err := a.StartScan(probe); err != nil {
		result.Error = fmt.Sprintf("start failed: %v", err)
		report.addResult(result)
		return
	}
	opts.Emit(a, adv)
	delivered := probe.Wait(1, opts.DeliveryTimeout)
	result.Duration = time.Since(start)
	if !delivered {
		result.Error = "advertisement not delivered"
	} else if got := probe.Seen()[0]; got.Identity != adv.Identity || got.RSSI != adv.RSSI {
		result.Error = fmt.Sprintf("delivered %+v, want %+v", got, adv)
	} else {
		result.Passed = true
	}
	report.addResult(result)

	result = ConformanceResult{
		TestName: "Delivery_AfterStop",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	if err := a.StopScan(probe); err != nil {
		result.Error = fmt.Sprintf("stop failed: %v", err)
		report.addResult(result)
		return
	}
	before := len(probe.Seen())
	opts.Emit(a, adv)
	late := probe.Wait(before+1, opts.DeliveryTimeout/10)
	result.Duration = time.Since(start)
	if late {
		result.Error = "advertisement delivered after StopScan"
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

func adapterName(a adapter.HardwareAdapter) string {
	type named interface {
		GetName() string
		GetBackend() string
	}
	if n, ok := a.(named); ok {
		return fmt.Sprintf("%s (%s)", n.GetName(), n.GetBackend())
	}
	return "Unknown Adapter"
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("ADAPTER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Adapter: %s", report.AdapterName)
	t.Logf("Total: %d  Passed: %d  Failed: %d  Overall: %s",
		report.TotalTests, report.PassedTests, report.FailedTests,
		map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	t.Logf("%-30s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := result.Error
		if details == "" && len(result.Details) > 0 {
			var parts []string
			for k, v := range result.Details {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(parts, ", ")
		}

		t.Logf("%-30s %-8s %-12s %-s", result.TestName, status, result.Duration.String(), details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
