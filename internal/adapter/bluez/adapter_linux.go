//go:build linux

package bluez

import (
	"fmt"
	"sync"

	dbus "github.com/godbus/dbus/v5"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/logging"
)

// Adapter scans through one BlueZ controller such as hci0.
type Adapter struct {
	adapter.Base

	logger *logging.Logger
	path   dbus.ObjectPath

	mu      sync.Mutex
	closed  bool
	bus     *dbus.Conn
	signals chan *dbus.Signal
	done    chan struct{}
	wg      sync.WaitGroup
	devices map[dbus.ObjectPath]properties
}

// Compile-time assertion that Adapter implements HardwareAdapter
var _ adapter.HardwareAdapter = (*Adapter)(nil)

// New connects to the system bus for controller name (e.g. hci0).
func New(name string, logger *logging.Logger) (*Adapter, error) {
	if name == "" {
		return nil, fmt.Errorf("bluez: controller name required")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, adapter.NormalizeBackendErrorFor(fmt.Errorf("bluez: connect system bus: %w", err), nil, "bluez")
	}
	return &Adapter{
		Base:    adapter.Base{Name: name, Backend: "bluez"},
		logger:  logger.WithComponent("bluez").With("controller", name),
		path:    dbus.ObjectPath("/org/bluez/" + name),
		bus:     bus,
		devices: make(map[dbus.ObjectPath]properties),
	}, nil
}

// IsEnabled reports the controller's Powered property.
func (a *Adapter) IsEnabled() bool {
	v, err := a.property("Powered")
	if err != nil {
		return false
	}
	powered, _ := v.Value().(bool)
	return powered
}

// IsScanSupported reports whether the controller exists and can act as an
// LE central.
func (a *Adapter) IsScanSupported() bool {
	if _, err := a.property("Address"); err != nil {
		return false
	}
	v, err := a.property("Roles")
	if err != nil {
		// Roles is missing on older BlueZ releases, which always support it.
		return true
	}
	roles, _ := v.Value().([]string)
	for _, r := range roles {
		if r == "central" {
			return true
		}
	}
	return false
}

// StartScan registers cb and starts discovery on the first registration.
func (a *Adapter) StartScan(cb adapter.ScanCallback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapter.ErrUnavailable
	}

	first, err := a.Register(cb)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := a.startDiscoveryLocked(); err != nil {
		_, _ = a.Unregister(cb)
		return adapter.NormalizeBackendErrorFor(err, nil, "bluez")
	}
	return nil
}

// StopScan unregisters cb and stops discovery when it was the last one.
func (a *Adapter) StopScan(cb adapter.ScanCallback) error {
	a.mu.Lock()
	last, err := a.Unregister(cb)
	if err != nil || !last {
		a.mu.Unlock()
		return err
	}
	err = a.stopDiscoveryLocked()
	done := a.done
	a.done = nil
	a.mu.Unlock()

	if done != nil {
		close(done)
		a.wg.Wait()
	}
	if err != nil {
		return adapter.NormalizeBackendErrorFor(err, nil, "bluez")
	}
	return nil
}

// Close stops any discovery and releases the bus connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	var err error
	if a.done != nil {
		err = a.stopDiscoveryLocked()
	}
	done := a.done
	a.done = nil
	a.mu.Unlock()

	if done != nil {
		close(done)
		a.wg.Wait()
	}
	if cerr := a.bus.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *Adapter) property(name string) (dbus.Variant, error) {
	var v dbus.Variant
	obj := a.bus.Object(bluezService, a.path)
	if call := obj.Call(propsIface+".Get", 0, adapterIface, name); call.Err != nil {
		return v, call.Err
	} else if err := call.Store(&v); err != nil {
		return v, err
	}
	return v, nil
}

func (a *Adapter) matchOptions() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace(a.path),
		},
	}
}

func (a *Adapter) startDiscoveryLocked() error {
	obj := a.bus.Object(bluezService, a.path)

	filter := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}
	if call := obj.Call(adapterIface+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		return fmt.Errorf("bluez: SetDiscoveryFilter: %w", call.Err)
	}

	for _, opts := range a.matchOptions() {
		if err := a.bus.AddMatchSignal(opts...); err != nil {
			return fmt.Errorf("bluez: AddMatchSignal: %w", err)
		}
	}
	a.signals = make(chan *dbus.Signal, 64)
	a.bus.Signal(a.signals)

	if call := obj.Call(adapterIface+".StartDiscovery", 0); call.Err != nil {
		a.removeSignalsLocked()
		return fmt.Errorf("bluez: StartDiscovery: %w", call.Err)
	}

	a.done = make(chan struct{})
	a.wg.Add(1)
	go a.receive(a.signals, a.done)

	a.logger.Info("discovery started")
	return nil
}

func (a *Adapter) stopDiscoveryLocked() error {
	obj := a.bus.Object(bluezService, a.path)
	err := obj.Call(adapterIface+".StopDiscovery", 0).Err
	a.removeSignalsLocked()
	a.devices = make(map[dbus.ObjectPath]properties)
	if err != nil {
		return fmt.Errorf("bluez: StopDiscovery: %w", err)
	}
	a.logger.Info("discovery stopped")
	return nil
}

func (a *Adapter) removeSignalsLocked() {
	for _, opts := range a.matchOptions() {
		_ = a.bus.RemoveMatchSignal(opts...)
	}
	if a.signals != nil {
		a.bus.RemoveSignal(a.signals)
		a.signals = nil
	}
}

// receive turns bus signals into dispatched advertisements until done.
func (a *Adapter) receive(signals <-chan *dbus.Signal, done <-chan struct{}) {
	defer a.wg.Done()
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if adv, ok := a.handleSignal(sig); ok {
				a.Dispatch(adv)
			}
		}
	}
}

func (a *Adapter) handleSignal(sig *dbus.Signal) (adv adapter.Advertisement, ok bool) {
	if sig == nil {
		return adv, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch sig.Name {
	case objManagerIface + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return adv, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		props, found := ifaces[deviceIface]
		if !found || !deviceOf(a.path, path) {
			return adv, false
		}
		p := properties{}
		p.merge(props, nil)
		a.devices[path] = p
		return p.advertisement()

	case propsIface + ".PropertiesChanged":
		if len(sig.Body) < 2 || !deviceOf(a.path, sig.Path) {
			return adv, false
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if iface != deviceIface {
			return adv, false
		}
		var invalidated []string
		if len(sig.Body) > 2 {
			invalidated, _ = sig.Body[2].([]string)
		}
		p, known := a.devices[sig.Path]
		if !known {
			p = properties{}
			a.devices[sig.Path] = p
		}
		p.merge(changed, invalidated)
		if _, fresh := changed["RSSI"]; !fresh {
			if _, fresh = changed["ManufacturerData"]; !fresh {
				return adv, false
			}
		}
		return p.advertisement()
	}
	return adv, false
}
