package discovery

import "github.com/radio-control/ranger/internal/device"

// Listener receives discovered devices. Calls are made from a single
// Dispatcher goroutine, so implementations need not be safe for concurrent use.
type Listener interface {
	OnDeviceFound(rec device.Record)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(rec device.Record)

// OnDeviceFound calls f(rec).
func (f ListenerFunc) OnDeviceFound(rec device.Record) {
	f(rec)
}

// NopListener discards every delivery. It is the listener of the default
// configuration.
var NopListener Listener = nopListener{}

type nopListener struct{}

func (nopListener) OnDeviceFound(device.Record) {}
