package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/device"
	"github.com/radio-control/ranger/internal/logging"
)

type recordingListener struct {
	mu      sync.Mutex
	records []device.Record
}

func (l *recordingListener) OnDeviceFound(rec device.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

func (l *recordingListener) all() []device.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]device.Record, len(l.records))
	copy(out, l.records)
	return out
}

func newTestSession(t *testing.T, listener Listener) (*Session, *Dispatcher) {
	t.Helper()
	d := NewDispatcher()
	d.Start()
	t.Cleanup(d.Close)
	return NewSession(listener, d, DefaultCapacity, logging.NopLogger()), d
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Sync(ctx))
}

func advertisement(i, rssi int) adapter.Advertisement {
	return adapter.Advertisement{Identity: identity(i), RSSI: rssi, Payload: payload}
}

func TestSessionTwentyDistinctDevices(t *testing.T) {
	listener := &recordingListener{}
	s, d := newTestSession(t, listener)

	for i := 0; i < 20; i++ {
		s.OnAdvertisement(advertisement(i, -50))
	}
	drain(t, d)

	assert.Equal(t, 20, s.Len())
	stats := s.Stats()
	assert.Zero(t, stats.Evictions)
	assert.Equal(t, 20, stats.Created)
	assert.Len(t, listener.all(), 20)
}

func TestSessionRepeatsUpdateSignalStrength(t *testing.T) {
	listener := &recordingListener{}
	s, d := newTestSession(t, listener)

	for i := 0; i < 20; i++ {
		s.OnAdvertisement(advertisement(i, -90))
	}
	for _, rssi := range []int{-80, -75, -70, -65, -60} {
		s.OnAdvertisement(advertisement(7, rssi))
	}
	drain(t, d)

	assert.Equal(t, 20, s.Len())
	assert.Zero(t, s.Stats().Evictions)

	fp := device.ComputeFingerprint(identity(7), payload)
	var found *device.Record
	for _, rec := range s.Snapshot() {
		if rec.Fingerprint == fp {
			r := rec
			found = &r
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, -60, found.RSSI)
	assert.Equal(t, fp, s.Snapshot()[7].Fingerprint)

	// Each sighting is delivered as its own snapshot, in discovery order.
	delivered := listener.all()
	require.Len(t, delivered, 25)
	for i, want := range []int{-80, -75, -70, -65, -60} {
		assert.Equal(t, fp, delivered[20+i].Fingerprint)
		assert.Equal(t, want, delivered[20+i].RSSI)
	}
}

func TestSessionDeliversOnDispatcherGoroutine(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Close()

	var mu sync.Mutex
	concurrent, active := 0, 0
	listener := ListenerFunc(func(device.Record) {
		mu.Lock()
		active++
		if active > 1 {
			concurrent++
		}
		mu.Unlock()
		time.Sleep(50 * time.Microsecond)
		mu.Lock()
		active--
		mu.Unlock()
	})
	s := NewSession(listener, d, DefaultCapacity, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.OnAdvertisement(advertisement(g*25+i, -40))
			}
		}(g)
	}
	wg.Wait()
	drain(t, d)

	assert.Zero(t, concurrent)
	stats := s.Stats()
	assert.Equal(t, 200, stats.Sightings)
	assert.Equal(t, DefaultCapacity, stats.Size)
	assert.Equal(t, 180, stats.Evictions)
}

func TestSessionCloseDropsLateAdvertisements(t *testing.T) {
	listener := &recordingListener{}
	s, d := newTestSession(t, listener)

	s.OnAdvertisement(advertisement(0, -50))
	s.Close()
	s.Close()
	s.OnAdvertisement(advertisement(1, -50))
	drain(t, d)

	assert.Len(t, listener.all(), 1)
	assert.Zero(t, s.Len())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 1, stats.Size)
}

func TestSessionClosedDispatcherDropsDelivery(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	d.Close()

	logger, capture := logging.NewCaptureLogger(logging.LevelDebug)
	s := NewSession(nil, d, 0, logger)
	s.OnAdvertisement(advertisement(0, -50))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Stats().Dropped)
	assert.True(t, capture.Contains(logging.LevelWarn, "delivery dropped"))
}

func TestListenerFuncAndNop(t *testing.T) {
	var got device.Record
	ListenerFunc(func(rec device.Record) { got = rec }).OnDeviceFound(device.Record{RSSI: -1})
	assert.Equal(t, -1, got.RSSI)

	NopListener.OnDeviceFound(device.Record{})
}
