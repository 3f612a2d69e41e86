// Package adapter defines the scanning hardware contract used by the worker.
//
// A HardwareAdapter reports radio enablement and scan support, and accepts
// scan callbacks. Each received advertisement is delivered to every registered
// callback from whatever goroutine the backend uses.
//
// Backend failures are normalized to a small set of sentinel errors
// (ErrUnavailable, ErrBusy, ErrNotSupported, ErrNotScanning, ErrInternal)
// through per-backend token tables, keeping the original error for diagnostics.
package adapter
