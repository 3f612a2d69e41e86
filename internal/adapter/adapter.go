package adapter

import (
	"sync"

	"github.com/radio-control/ranger/internal/device"
)

// Advertisement is one received broadcast.
type Advertisement struct {
	Identity device.Identity
	RSSI     int
	Payload  []byte
}

// ScanCallback receives advertisements while registered with an adapter.
//
// Implementations must be comparable (pointer receivers), since adapters key
// registrations by callback value.
type ScanCallback interface {
	OnAdvertisement(adv Advertisement)
}

// HardwareAdapter defines the stable southbound scanning contract.
type HardwareAdapter interface {
	// IsEnabled reports whether the radio is powered on.
	IsEnabled() bool

	// IsScanSupported reports whether the radio can scan for advertisements.
	IsScanSupported() bool

	// StartScan registers cb and starts scanning if this is the first
	// registration. Registering the same callback twice returns ErrBusy.
	StartScan(cb ScanCallback) error

	// StopScan removes cb. Scanning stops when the last callback is removed.
	// Stopping a callback that is not registered returns ErrNotScanning.
	StopScan(cb ScanCallback) error
}

// Base provides common functionality for adapter implementations: identity
// and callback registration bookkeeping.
type Base struct {
	// Name identifies the radio this adapter controls (e.g. hci0)
	Name string

	// Backend identifies the implementation (fake, bluez, tinygo)
	Backend string

	mu        sync.RWMutex
	callbacks []ScanCallback
}

// GetName returns the radio name.
func (b *Base) GetName() string {
	return b.Name
}

// GetBackend returns the backend identifier.
func (b *Base) GetBackend() string {
	return b.Backend
}

// Register adds cb to the registration list. It reports whether cb is the
// first registration, in which case the caller should start the hardware scan.
func (b *Base) Register(cb ScanCallback) (first bool, err error) {
	if cb == nil {
		return false, ErrInvalidCallback
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.callbacks {
		if existing == cb {
			return false, ErrBusy
		}
	}
	b.callbacks = append(b.callbacks, cb)
	return len(b.callbacks) == 1, nil
}

// Unregister removes cb. It reports whether the list is now empty, in which
// case the caller should stop the hardware scan.
func (b *Base) Unregister(cb ScanCallback) (last bool, err error) {
	if cb == nil {
		return false, ErrInvalidCallback
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.callbacks {
		if existing == cb {
			b.callbacks = append(b.callbacks[:i], b.callbacks[i+1:]...)
			return len(b.callbacks) == 0, nil
		}
	}
	return false, ErrNotScanning
}

// Registered returns the number of registered callbacks.
func (b *Base) Registered() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.callbacks)
}

// Dispatch delivers adv to every registered callback on the calling goroutine
// and returns the number of callbacks reached.
func (b *Base) Dispatch(adv Advertisement) int {
	b.mu.RLock()
	callbacks := make([]ScanCallback, len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.mu.RUnlock()

	for _, cb := range callbacks {
		cb.OnAdvertisement(adv)
	}
	return len(callbacks)
}
