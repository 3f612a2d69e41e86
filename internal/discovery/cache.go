package discovery

import (
	"container/list"

	"github.com/radio-control/ranger/internal/device"
)

// DefaultCapacity is the number of records a ranging session retains.
const DefaultCapacity = 20

// Cache is a bounded map from fingerprint to record that evicts the
// oldest-inserted entry when full. Re-sighting a record does not move it.
//
// Cache is not safe for concurrent use; Session serializes access.
type Cache struct {
	capacity  int
	index     map[device.Fingerprint]*list.Element
	order     *list.List // front is oldest
	evictions int
}

// NewCache creates a cache holding at most capacity records. Non-positive
// capacities fall back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		index:    make(map[device.Fingerprint]*list.Element, capacity),
		order:    list.New(),
	}
}

// Observe records a sighting. It returns the record for the sighting's
// fingerprint with its RSSI set to rssi, whether the record was created by
// this call, and the record evicted to make room, if any.
func (c *Cache) Observe(id device.Identity, rssi int, payload []byte) (rec *device.Record, created bool, evicted *device.Record) {
	fp := device.ComputeFingerprint(id, payload)

	if elem, ok := c.index[fp]; ok {
		rec = elem.Value.(*device.Record)
	} else {
		rec = device.NewRecord(id, payload)
		evicted = c.Put(rec)
		created = true
	}

	rec.RSSI = rssi
	return rec, created, evicted
}

// Put inserts rec under its fingerprint and returns the evicted record, if
// any. Replacing an existing fingerprint keeps its insertion position.
func (c *Cache) Put(rec *device.Record) (evicted *device.Record) {
	if elem, ok := c.index[rec.Fingerprint]; ok {
		elem.Value = rec
		return nil
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		evicted = c.order.Remove(oldest).(*device.Record)
		delete(c.index, evicted.Fingerprint)
		c.evictions++
	}

	c.index[rec.Fingerprint] = c.order.PushBack(rec)
	return evicted
}

// Get returns a copy of the record stored under fp.
func (c *Cache) Get(fp device.Fingerprint) (device.Record, bool) {
	elem, ok := c.index[fp]
	if !ok {
		return device.Record{}, false
	}
	return *elem.Value.(*device.Record), true
}

// Contains reports whether fp is cached.
func (c *Cache) Contains(fp device.Fingerprint) bool {
	_, ok := c.index[fp]
	return ok
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	return c.order.Len()
}

// Capacity returns the maximum number of cached records.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Evictions returns how many records capacity pressure has removed.
func (c *Cache) Evictions() int {
	return c.evictions
}

// Keys returns the cached fingerprints, oldest insertion first.
func (c *Cache) Keys() []device.Fingerprint {
	keys := make([]device.Fingerprint, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*device.Record).Fingerprint)
	}
	return keys
}

// Records returns copies of the cached records, oldest insertion first.
func (c *Cache) Records() []device.Record {
	out := make([]device.Record, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		out = append(out, *e.Value.(*device.Record))
	}
	return out
}
