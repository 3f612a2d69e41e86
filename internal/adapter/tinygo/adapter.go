package tinygo

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/device"
	"github.com/radio-control/ranger/internal/logging"
)

const adManufacturer = 0xFF

// Adapter scans with the library's default radio.
type Adapter struct {
	adapter.Base

	logger *logging.Logger
	radio  *bluetooth.Adapter

	mu       sync.Mutex
	enabled  bool
	scanDone chan error
}

// Compile-time assertion that Adapter implements HardwareAdapter
var _ adapter.HardwareAdapter = (*Adapter)(nil)

// New returns an adapter for the default radio. The radio is enabled on
// first use.
func New(logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Adapter{
		Base:   adapter.Base{Name: "default", Backend: "tinygo"},
		logger: logger.WithComponent("tinygo"),
		radio:  bluetooth.DefaultAdapter,
	}
}

// IsEnabled reports whether the default radio could be enabled.
func (a *Adapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableLocked() == nil
}

// IsScanSupported reports whether the radio can scan. The library has no
// separate capability query, so this matches IsEnabled.
func (a *Adapter) IsScanSupported() bool {
	return a.IsEnabled()
}

// StartScan registers cb and starts the scan goroutine on the first
// registration.
func (a *Adapter) StartScan(cb adapter.ScanCallback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	first, err := a.Register(cb)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := a.enableLocked(); err != nil {
		_, _ = a.Unregister(cb)
		return adapter.NormalizeBackendErrorFor(err, nil, "tinygo")
	}

	done := make(chan error, 1)
	a.scanDone = done
	go func() {
		err := a.radio.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			a.Dispatch(fromScanResult(result))
		})
		if err != nil {
			a.logger.Warn("scan ended with error", "error", err)
		}
		done <- err
	}()

	a.logger.Info("scan started")
	return nil
}

// StopScan unregisters cb and stops the scan when it was the last one.
func (a *Adapter) StopScan(cb adapter.ScanCallback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	last, err := a.Unregister(cb)
	if err != nil || !last {
		return err
	}

	done := a.scanDone
	a.scanDone = nil
	if err := a.radio.StopScan(); err != nil {
		return adapter.NormalizeBackendErrorFor(err, nil, "tinygo")
	}
	if done != nil {
		<-done
	}
	a.logger.Info("scan stopped")
	return nil
}

func (a *Adapter) enableLocked() error {
	if a.enabled {
		return nil
	}
	if err := a.radio.Enable(); err != nil {
		return fmt.Errorf("tinygo: enable radio: %w", err)
	}
	a.enabled = true
	return nil
}

func fromScanResult(result bluetooth.ScanResult) adapter.Advertisement {
	return advertisement(
		result.Address.String(),
		result.RSSI,
		result.LocalName(),
		result.Bytes(),
		result.ManufacturerData(),
	)
}

// advertisement builds a sighting. Raw advertisement bytes are used when
// the platform provides them; otherwise manufacturer data is rebuilt as AD
// structures in ascending company ID order.
func advertisement(address string, rssi int16, name string, raw []byte, mfr []bluetooth.ManufacturerDataElement) adapter.Advertisement {
	payload := raw
	if len(payload) == 0 && len(mfr) > 0 {
		elems := append([]bluetooth.ManufacturerDataElement(nil), mfr...)
		sort.Slice(elems, func(i, j int) bool { return elems[i].CompanyID < elems[j].CompanyID })
		for _, e := range elems {
			body := append([]byte{byte(e.CompanyID), byte(e.CompanyID >> 8)}, e.Data...)
			if len(body) > 254 {
				body = body[:254]
			}
			payload = append(payload, byte(len(body)+1), adManufacturer)
			payload = append(payload, body...)
		}
	} else {
		payload = append([]byte(nil), raw...)
	}

	return adapter.Advertisement{
		Identity: device.Identity{
			Address: strings.ToUpper(address),
			Name:    name,
			Kind:    device.KindLE,
			Bond:    device.BondNone,
		},
		RSSI:    int(rssi),
		Payload: payload,
	}
}
