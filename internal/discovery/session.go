package discovery

import (
	"sync"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/device"
	"github.com/radio-control/ranger/internal/logging"
)

// Stats summarizes a session's cache activity.
type Stats struct {
	Sightings int
	Created   int
	Evictions int
	Size      int
	Dropped   int
}

// Session is the scan callback of one ranging session. It dedups sightings
// into its own Cache and delivers each resulting record to the listener
// through the dispatcher.
//
// Session is safe for concurrent use: advertisements raised from different
// goroutines are serialized, and their deliveries are posted in that order.
type Session struct {
	listener   Listener
	dispatcher *Dispatcher
	logger     *logging.Logger

	mu     sync.Mutex
	cache  *Cache
	stats  Stats
	closed bool
}

// Compile-time assertion that Session can be registered with an adapter
var _ adapter.ScanCallback = (*Session)(nil)

// NewSession creates a session with a fresh cache of the given capacity.
// A nil listener is replaced by NopListener.
func NewSession(listener Listener, dispatcher *Dispatcher, capacity int, logger *logging.Logger) *Session {
	if listener == nil {
		listener = NopListener
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Session{
		listener:   listener,
		dispatcher: dispatcher,
		logger:     logger,
		cache:      NewCache(capacity),
	}
}

// OnAdvertisement implements adapter.ScanCallback.
func (s *Session) OnAdvertisement(adv adapter.Advertisement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.stats.Dropped++
		return
	}

	rec, created, evicted := s.cache.Observe(adv.Identity, adv.RSSI, adv.Payload)
	s.stats.Sightings++
	if created {
		s.stats.Created++
		s.logger.Debug("device found", "device", rec.String())
	}
	if evicted != nil {
		s.logger.Debug("device evicted", "device", evicted.String())
	}

	snapshot := *rec
	listener := s.listener
	if err := s.dispatcher.Post(func() { listener.OnDeviceFound(snapshot) }); err != nil {
		s.stats.Dropped++
		s.logger.Warn("delivery dropped", "device", snapshot.String(), "error", err)
	}
}

// Close stops the session. Advertisements arriving afterwards are dropped and
// the cache is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.logger.Debug("discovery session closed",
		"sightings", s.stats.Sightings,
		"devices", s.cache.Len(),
		"evictions", s.cache.Evictions())
	s.stats.Evictions = s.cache.Evictions()
	s.stats.Size = s.cache.Len()
	s.cache = NewCache(s.cache.Capacity())
}

// Len returns the number of cached records.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Snapshot returns copies of the cached records, oldest insertion first.
func (s *Session) Snapshot() []device.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Records()
}

// Stats returns the session counters. After Close, Size and Evictions
// describe the cache at the moment it was discarded.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if !s.closed {
		st.Evictions = s.cache.Evictions()
		st.Size = s.cache.Len()
	}
	return st
}
