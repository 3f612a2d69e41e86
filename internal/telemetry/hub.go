package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types published by the session manager and the worker.
const (
	TypeConnected      = "connected"
	TypeDisconnected   = "disconnected"
	TypeRangingStarted = "rangingStarted"
	TypeRangingStopped = "rangingStopped"
	TypeScanStarted    = "scanStarted"
	TypeScanStopped    = "scanStopped"
	TypeWorkerReleased = "workerReleased"
	TypeFault          = "fault"
)

// Defaults applied by NewHub for zero option values.
const (
	DefaultEventBufferSize       = 50
	DefaultSubscriberBuffer      = 100
	DefaultSlowSubscriberTimeout = 100 * time.Millisecond
)

// ErrHubStopped is returned by Subscribe and Publish after Stop.
var ErrHubStopped = errors.New("telemetry hub stopped")

// Event is one telemetry record. Session is the binding ID the event
// belongs to; empty for process-wide events.
type Event struct {
	ID      int64                  `json:"id,omitempty"`
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data"`
	Session string                 `json:"session,omitempty"`
}

// Options configures a Hub.
type Options struct {
	EventBufferSize       int
	SubscriberBuffer      int
	SlowSubscriberTimeout time.Duration
}

// Subscription receives events until it is closed, its context is done, or
// the hub stops. Events is closed at that point.
type Subscription struct {
	ID      string
	Session string
	Events  <-chan Event

	events  chan Event
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	dropped int64
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

// Dropped returns how many events were skipped because the subscriber was slow.
func (s *Subscription) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *Subscription) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Hub manages telemetry distribution with per-session buffering.
//
// LOCK ORDERING:
// 1. h.mu - protects subscribers, sessionIDs, buffers maps
// 2. Subscription.mu - serializes sends against close of the events channel
// 3. EventBuffer.mu - protects individual buffer state
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	sessionIDs  map[string]*int64 // Monotonic event IDs per session (atomic counters)
	buffers     map[string]*EventBuffer

	opts Options

	done    chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// EventBuffer keeps the most recent events of one session.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	nextID   int64
	created  time.Time
}

// NewHub creates a new telemetry hub.
func NewHub(opts Options) *Hub {
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = DefaultEventBufferSize
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.SlowSubscriberTimeout <= 0 {
		opts.SlowSubscriberTimeout = DefaultSlowSubscriberTimeout
	}

	return &Hub{
		subscribers: make(map[string]*Subscription),
		sessionIDs:  make(map[string]*int64),
		buffers:     make(map[string]*EventBuffer),
		opts:        opts,
		done:        make(chan struct{}),
	}
}

// Subscribe registers a subscriber. A non-empty session limits delivery to
// that session's events plus process-wide events. Buffered events of the
// session with an ID greater than lastID are replayed first.
func (h *Hub) Subscribe(ctx context.Context, session string, lastID int64) (*Subscription, error) {
	if h.stopped.Load() {
		return nil, ErrHubStopped
	}

	var replay []Event
	if session != "" && lastID >= 0 {
		h.mu.RLock()
		buffer, exists := h.buffers[session]
		h.mu.RUnlock()
		if exists {
			replay = buffer.GetEventsAfter(lastID)
		}
	}

	size := h.opts.SubscriberBuffer
	if len(replay) > size {
		size = len(replay)
	}

	subCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, size)
	sub := &Subscription{
		ID:      uuid.NewString(),
		Session: session,
		Events:  events,
		events:  events,
		cancel:  cancel,
	}
	for _, event := range replay {
		sub.events <- event
	}

	h.mu.Lock()
	if h.stopped.Load() {
		h.mu.Unlock()
		cancel()
		return nil, ErrHubStopped
	}
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-subCtx.Done():
		case <-h.done:
			cancel()
		}
		h.unregister(sub.ID)
		sub.closeEvents()
	}()

	return sub, nil
}

// Publish assigns an ID, buffers the event for its session and delivers it
// to every matching subscriber. Subscribers that stay full for longer than
// the slow-subscriber timeout miss the event.
func (h *Hub) Publish(event Event) error {
	if h.stopped.Load() {
		return ErrHubStopped
	}

	if event.ID == 0 {
		event.ID = h.getNextEventID(event.Session)
	}
	if event.Session != "" {
		h.bufferEvent(event)
	}

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if sub.Session != "" && event.Session != "" && sub.Session != event.Session {
			continue
		}
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.deliver(sub, event)
	}
	return nil
}

// PublishSession publishes an event for a specific session.
func (h *Hub) PublishSession(sessionID string, event Event) error {
	event.Session = sessionID
	return h.Publish(event)
}

func (h *Hub) deliver(sub *Subscription, event Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	select {
	case sub.events <- event:
		return
	default:
	}

	timer := time.NewTimer(h.opts.SlowSubscriberTimeout)
	defer timer.Stop()
	select {
	case sub.events <- event:
	case <-h.done:
	case <-timer.C:
		atomic.AddInt64(&sub.dropped, 1)
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Buffer returns the event buffer of a session, if one exists.
func (h *Hub) Buffer(sessionID string) (*EventBuffer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.buffers[sessionID]
	return b, ok
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// getNextEventID returns the next monotonic event ID for a session.
func (h *Hub) getNextEventID(sessionID string) int64 {
	if sessionID == "" {
		sessionID = "global"
	}

	h.mu.RLock()
	counter, exists := h.sessionIDs[sessionID]
	h.mu.RUnlock()

	if exists {
		return atomic.AddInt64(counter, 1)
	}

	h.mu.Lock()
	// Another goroutine might have created it
	counter, exists = h.sessionIDs[sessionID]
	if !exists {
		var initial int64
		counter = &initial
		h.sessionIDs[sessionID] = counter
	}
	h.mu.Unlock()

	return atomic.AddInt64(counter, 1)
}

// bufferEvent adds an event to the per-session buffer. Buffers are never
// removed from h.buffers, so a reference stays valid after h.mu is released.
func (h *Hub) bufferEvent(event Event) {
	h.mu.Lock()
	buffer, exists := h.buffers[event.Session]
	if !exists {
		buffer = NewEventBuffer(h.opts.EventBufferSize)
		h.buffers[event.Session] = buffer
	}
	h.mu.Unlock()

	buffer.AddEvent(event)
}

// Stop closes every subscription and rejects further use of the hub.
func (h *Hub) Stop() {
	if !h.stopped.CompareAndSwap(false, true) {
		return
	}
	close(h.done)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// Force cleanup after timeout
	}

	h.mu.Lock()
	for _, sub := range h.subscribers {
		sub.cancel()
		sub.closeEvents()
	}
	h.subscribers = make(map[string]*Subscription)
	h.mu.Unlock()
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		nextID:   1,
		created:  time.Now(),
	}
}

// AddEvent adds an event to the buffer, dropping the oldest beyond capacity.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event.ID == 0 {
		event.ID = b.nextID
		b.nextID++
	}

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events after the specified ID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
