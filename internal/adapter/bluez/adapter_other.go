//go:build !linux

package bluez

import (
	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/logging"
)

// Adapter is unavailable off Linux.
type Adapter struct {
	adapter.Base
}

// New always fails with adapter.ErrNotSupported.
func New(name string, logger *logging.Logger) (*Adapter, error) {
	return nil, adapter.ErrNotSupported
}

func (a *Adapter) IsEnabled() bool                      { return false }
func (a *Adapter) IsScanSupported() bool                { return false }
func (a *Adapter) StartScan(adapter.ScanCallback) error { return adapter.ErrNotSupported }
func (a *Adapter) StopScan(adapter.ScanCallback) error  { return adapter.ErrNotScanning }
func (a *Adapter) Close() error                         { return nil }
