package discovery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/ranger/internal/device"
)

func identity(i int) device.Identity {
	return device.Identity{
		Address: fmt.Sprintf("AA:BB:CC:00:00:%02X", i),
		Name:    fmt.Sprintf("dev-%d", i),
		Kind:    device.KindLE,
	}
}

var payload = []byte{0x02, 0x01, 0x06}

func TestCacheEvictsFirstInserted(t *testing.T) {
	c := NewCache(DefaultCapacity)

	var first device.Fingerprint
	for i := 0; i < DefaultCapacity; i++ {
		rec, created, evicted := c.Observe(identity(i), -50, payload)
		require.True(t, created)
		require.Nil(t, evicted)
		if i == 0 {
			first = rec.Fingerprint
		}
	}
	require.Equal(t, DefaultCapacity, c.Len())
	assert.Zero(t, c.Evictions())

	_, created, evicted := c.Observe(identity(DefaultCapacity), -50, payload)
	assert.True(t, created)
	require.NotNil(t, evicted)
	assert.Equal(t, first, evicted.Fingerprint)
	assert.Equal(t, DefaultCapacity, c.Len())
	assert.Equal(t, 1, c.Evictions())
	assert.False(t, c.Contains(first))

	keys := c.Keys()
	require.Len(t, keys, DefaultCapacity)
	assert.Equal(t, device.ComputeFingerprint(identity(1), payload), keys[0])
	assert.Equal(t, device.ComputeFingerprint(identity(DefaultCapacity), payload), keys[len(keys)-1])
}

func TestCacheRepeatKeepsPositionAndTakesLastRSSI(t *testing.T) {
	c := NewCache(3)

	c.Observe(identity(0), -90, payload)
	c.Observe(identity(1), -90, payload)

	var rec *device.Record
	for _, rssi := range []int{-80, -75, -70, -65, -60} {
		var created bool
		rec, created, _ = c.Observe(identity(0), rssi, payload)
		assert.False(t, created)
	}
	assert.Equal(t, -60, rec.RSSI)
	assert.Equal(t, 2, c.Len())

	got, ok := c.Get(rec.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, -60, got.RSSI)
	assert.Equal(t, rec.Fingerprint, c.Keys()[0])

	// The re-sighted record is still the oldest insertion, so it goes first.
	c.Observe(identity(2), -50, payload)
	_, _, evicted := c.Observe(identity(3), -50, payload)
	require.NotNil(t, evicted)
	assert.Equal(t, rec.Fingerprint, evicted.Fingerprint)
}

func TestCacheDistinguishesPayload(t *testing.T) {
	c := NewCache(DefaultCapacity)
	c.Observe(identity(0), -50, []byte{0x01})
	c.Observe(identity(0), -50, []byte{0x02})
	assert.Equal(t, 2, c.Len())
}

func TestCachePutReplaceKeepsPosition(t *testing.T) {
	c := NewCache(2)
	a := device.NewRecord(identity(0), payload)
	b := device.NewRecord(identity(1), payload)
	assert.Nil(t, c.Put(a))
	assert.Nil(t, c.Put(b))

	replacement := *a
	replacement.RSSI = -10
	assert.Nil(t, c.Put(&replacement))
	assert.Equal(t, []device.Fingerprint{a.Fingerprint, b.Fingerprint}, c.Keys())

	got, ok := c.Get(a.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, -10, got.RSSI)

	_, ok = c.Get(device.Fingerprint(1))
	assert.False(t, ok)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c := NewCache(1)
	rec, _, _ := c.Observe(identity(0), -50, payload)

	got, _ := c.Get(rec.Fingerprint)
	got.RSSI = 0
	again, _ := c.Get(rec.Fingerprint)
	assert.Equal(t, -50, again.RSSI)
}

func TestNewCacheDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewCache(0).Capacity())
	assert.Equal(t, DefaultCapacity, NewCache(-3).Capacity())
	assert.Equal(t, 5, NewCache(5).Capacity())
}

func TestCacheSizeNeverExceedsCapacity(t *testing.T) {
	c := NewCache(4)
	for i := 0; i < 50; i++ {
		c.Observe(identity(i%9), -40-i, payload)
		require.LessOrEqual(t, c.Len(), 4)
	}
	assert.Len(t, c.Records(), 4)
}
