package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/adapter/fake"
	"github.com/radio-control/ranger/internal/channel"
	"github.com/radio-control/ranger/internal/device"
	"github.com/radio-control/ranger/internal/discovery"
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/telemetry"
)

type auditRecord struct {
	action    string
	bindingID string
	result    string
}

type recordingAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *recordingAudit) LogAction(_ context.Context, action, bindingID, result string, _ time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{action, bindingID, result})
}

func (a *recordingAudit) find(action, result string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		if r.action == action && r.result == result {
			return true
		}
	}
	return false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (p *recordingPublisher) PublishSession(sessionID string, event telemetry.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.Session = sessionID
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingListener struct {
	mu      sync.Mutex
	records []device.Record
}

func (l *recordingListener) OnDeviceFound(rec device.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

type harness struct {
	worker     *Worker
	adapter    *fake.FakeAdapter
	dispatcher *discovery.Dispatcher
	audit      *recordingAudit
	publisher  *recordingPublisher
	capture    *logging.Capture
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		adapter:    fake.NewFakeAdapter("hci0"),
		dispatcher: discovery.NewDispatcher(),
		audit:      &recordingAudit{},
		publisher:  &recordingPublisher{},
	}
	h.dispatcher.Start()
	t.Cleanup(h.dispatcher.Close)

	logger, capture := logging.NewCaptureLogger(logging.LevelDebug)
	h.capture = capture

	base := []Option{
		WithLogger(logger),
		WithAuditLogger(h.audit),
		WithPublisher(h.publisher),
		WithDispatcher(h.dispatcher),
	}
	w, err := New(h.adapter, append(base, opts...)...)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Close)
	h.worker = w
	return h
}

func (h *harness) bind(t *testing.T, listener discovery.Listener) *Binding {
	t.Helper()
	b, err := h.worker.Bind(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.SetConfiguration(Configuration{Listener: listener}))
	return b
}

// settle waits for queued commands and pending discovery deliveries.
func (h *harness) settle(t *testing.T) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := h.worker.Status(ctx)
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.Sync(ctx))
	return st
}

func advertisement(i, rssi int) adapter.Advertisement {
	return adapter.Advertisement{
		Identity: device.Identity{
			Address: fmt.Sprintf("AA:BB:CC:00:00:%02X", i),
			Name:    fmt.Sprintf("dev-%d", i),
			Kind:    device.KindLE,
		},
		RSSI:    rssi,
		Payload: []byte{0x02, 0x01, 0x06},
	}
}

func TestNewRequiresAdapter(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestRangeTwentyDevices(t *testing.T) {
	h := newHarness(t)
	listener := &recordingListener{}
	b := h.bind(t, listener)

	require.NoError(t, b.Channel().Send(channel.StartRanging))
	st := h.settle(t)
	require.True(t, st.Ranging)
	assert.Equal(t, b.ID(), st.BindingID)
	assert.True(t, h.adapter.Scanning())

	for i := 0; i < 20; i++ {
		assert.Equal(t, 1, h.adapter.Emit(advertisement(i, -50)))
	}
	st = h.settle(t)

	assert.Equal(t, 20, st.Devices)
	assert.Equal(t, 20, listener.count())
	assert.True(t, h.audit.find("StartRanging", "SUCCESS"))
	assert.Contains(t, h.publisher.types(), telemetry.TypeScanStarted)
}

func TestRangeTwentyFiveDevicesEvictsOldest(t *testing.T) {
	h := newHarness(t)
	listener := &recordingListener{}
	b := h.bind(t, listener)

	require.NoError(t, b.Channel().Send(channel.StartRanging))
	h.settle(t)
	for i := 0; i < 25; i++ {
		h.adapter.Emit(advertisement(i, -60))
	}
	st := h.settle(t)

	assert.Equal(t, 20, st.Devices)
	assert.Equal(t, 25, listener.count())

	require.NoError(t, b.Channel().Send(channel.StopRanging))
	st = h.settle(t)
	assert.False(t, st.Ranging)
	assert.False(t, h.adapter.Scanning())
	assert.Contains(t, h.publisher.types(), telemetry.TypeScanStopped)
}

func TestBindRejectedWhileBound(t *testing.T) {
	h := newHarness(t)
	h.bind(t, nil)

	_, err := h.worker.Bind(context.Background())
	assert.ErrorIs(t, err, ErrBindRejected)
	assert.True(t, h.audit.find("Bind", "REJECTED"))
}

func TestUnbindReleasesAndAllowsRebind(t *testing.T) {
	h := newHarness(t)
	first := h.bind(t, &recordingListener{})

	require.NoError(t, first.Channel().Send(channel.StartRanging))
	first.Channel().Unbind()
	st := h.settle(t)
	assert.Empty(t, st.BindingID)
	assert.False(t, st.Ranging)
	assert.False(t, h.adapter.Scanning())
	assert.True(t, h.audit.find("Unbind", "SUCCESS"))

	err := first.Channel().Send(channel.StartRanging)
	assert.ErrorIs(t, err, channel.ErrSendFailed)
	assert.ErrorIs(t, err, channel.ErrReleased)

	second := h.bind(t, nil)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestStaleTokenRejected(t *testing.T) {
	h := newHarness(t)
	first := h.bind(t, nil)
	first.Channel().Unbind()
	h.bind(t, nil)

	// Forge a command from the released binding straight into the queue.
	require.NoError(t, h.worker.Enqueue(channel.Envelope{
		Command:   channel.StartRanging,
		BindingID: first.ID(),
		Token:     first.Token(),
	}))
	st := h.settle(t)

	assert.False(t, st.Ranging)
	assert.Zero(t, h.adapter.StartCalls())
	assert.True(t, h.audit.find("StartRanging", "REJECTED"))
	assert.True(t, h.capture.Contains(logging.LevelWarn, "command rejected"))
}

func TestInvalidTokenRejected(t *testing.T) {
	h := newHarness(t)
	b := h.bind(t, nil)

	require.NoError(t, h.worker.Enqueue(channel.Envelope{
		Command:   channel.StartRanging,
		BindingID: b.ID(),
		Token:     "not-a-token",
	}))
	h.settle(t)

	assert.Zero(t, h.adapter.StartCalls())
	assert.True(t, h.audit.find("StartRanging", "REJECTED"))
}

func TestStartScanFailureReportsCode(t *testing.T) {
	h := newHarness(t)
	b := h.bind(t, nil)
	h.adapter.SetErrorSimulation("BUSY")

	require.NoError(t, b.Channel().Send(channel.StartRanging))
	st := h.settle(t)

	assert.False(t, st.Ranging)
	assert.True(t, h.audit.find("StartRanging", "BUSY"))
	assert.Contains(t, h.publisher.types(), telemetry.TypeFault)

	h.adapter.DisableErrorSimulation()
	require.NoError(t, b.Channel().Send(channel.StartRanging))
	assert.True(t, h.settle(t).Ranging)
}

func TestStopWithoutScanSkipsHardware(t *testing.T) {
	h := newHarness(t)
	b := h.bind(t, nil)

	require.NoError(t, b.Channel().Send(channel.StopRanging))
	h.settle(t)

	assert.Zero(t, h.adapter.StopCalls())
	assert.True(t, h.audit.find("StopRanging", "SUCCESS"))
	assert.True(t, h.capture.Contains(logging.LevelInfo, "no active scan to stop"))
}

func TestDisconnectStopsScan(t *testing.T) {
	h := newHarness(t)
	b := h.bind(t, &recordingListener{})

	require.NoError(t, b.Channel().Send(channel.StartRanging))
	require.NoError(t, b.Channel().Send(channel.Disconnect))
	st := h.settle(t)

	assert.False(t, st.Ranging)
	assert.Equal(t, b.ID(), st.BindingID)
	assert.False(t, h.adapter.Scanning())
	assert.Equal(t, 1, h.adapter.StopCalls())
	assert.Contains(t, h.publisher.types(), telemetry.TypeWorkerReleased)
}

func TestDisconnectThenUnbindReleasesOnce(t *testing.T) {
	h := newHarness(t)
	b := h.bind(t, &recordingListener{})

	require.NoError(t, b.Channel().Send(channel.StartRanging))
	require.NoError(t, b.Channel().Send(channel.Disconnect))
	b.Channel().Unbind()
	st := h.settle(t)

	assert.Empty(t, st.BindingID)
	assert.Equal(t, 1, h.adapter.StopCalls())

	released := 0
	for _, typ := range h.publisher.types() {
		if typ == telemetry.TypeWorkerReleased {
			released++
		}
	}
	assert.Equal(t, 1, released)
	assert.True(t, h.audit.find("Unbind", "SUCCESS"))
}

func TestUnbindWithoutDisconnectStillReleases(t *testing.T) {
	h := newHarness(t)
	b := h.bind(t, &recordingListener{})

	require.NoError(t, b.Channel().Send(channel.StartRanging))
	b.Channel().Unbind()
	h.settle(t)

	assert.False(t, h.adapter.Scanning())
	assert.Contains(t, h.publisher.types(), telemetry.TypeWorkerReleased)
}

func TestUnsupportedCommandIsFatal(t *testing.T) {
	var (
		mu    sync.Mutex
		fatal error
	)
	h := newHarness(t, WithFatalHandler(func(err error) {
		mu.Lock()
		fatal = err
		mu.Unlock()
	}))
	b := h.bind(t, nil)

	require.NoError(t, h.worker.Enqueue(channel.Envelope{
		Command:   channel.Command(42),
		BindingID: b.ID(),
		Token:     b.Token(),
	}))
	h.settle(t)

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, fatal)
	assert.True(t, errors.Is(fatal, ErrUnsupportedCommand))
	assert.Contains(t, fatal.Error(), "Command(42)")
}

func TestSetConfigurationOnce(t *testing.T) {
	h := newHarness(t)
	b, err := h.worker.Bind(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.SetConfiguration(Configuration{}))
	assert.ErrorIs(t, b.SetConfiguration(Configuration{}), ErrConfigurationConsumed)
}

func TestQueueFullFailsSend(t *testing.T) {
	h := newHarness(t, WithQueueDepth(1))
	b := h.bind(t, nil)

	// Park the executor so the queue cannot drain.
	release := make(chan struct{})
	parked := make(chan struct{})
	require.NoError(t, h.worker.exec.submit(context.Background(), func(context.Context) {
		close(parked)
		<-release
	}))
	<-parked

	require.NoError(t, b.Channel().Send(channel.StopRanging))
	err := b.Channel().Send(channel.StopRanging)
	assert.ErrorIs(t, err, channel.ErrQueueFull)

	close(release)
	h.settle(t)
}

func TestBindCanceledDropsLateGrant(t *testing.T) {
	a := fake.NewFakeAdapter("hci0")
	w, err := New(a)
	require.NoError(t, err)
	defer w.Close()

	// Not started yet, so the bind request waits in the queue.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = w.Bind(ctx)
	assert.ErrorIs(t, err, ErrBindRejected)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	w.Start()
	assert.Eventually(t, func() bool {
		st, err := w.Status(context.Background())
		return err == nil && st.BindingID == ""
	}, time.Second, 10*time.Millisecond)

	b, err := w.Bind(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID())
}

func TestCloseReleasesActiveBinding(t *testing.T) {
	a := fake.NewFakeAdapter("hci0")
	w, err := New(a)
	require.NoError(t, err)
	w.Start()

	b, err := w.Bind(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Channel().Send(channel.StartRanging))

	w.Close()
	assert.False(t, a.Scanning())

	_, err = w.Bind(context.Background())
	assert.ErrorIs(t, err, ErrBindRejected)
	assert.ErrorIs(t, b.Channel().Send(channel.StopRanging), channel.ErrWorkerClosed)

	// Unbinding after close does not block.
	b.Channel().Unbind()
}
