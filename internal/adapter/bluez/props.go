package bluez

import (
	"sort"
	"strings"

	dbus "github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/device"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"
)

// AD structure types used when rebuilding the advertisement payload.
const (
	adServiceData16  = 0x16
	adServiceData128 = 0x21
	adManufacturer   = 0xFF
)

// bluetoothBaseUUID is the suffix shared by all 16-bit assigned UUIDs.
const bluetoothBaseUUID = "-0000-1000-8000-00805f9b34fb"

// properties is the merged Device1 property set of one device.
type properties map[string]dbus.Variant

// merge applies changed and drops invalidated keys.
func (p properties) merge(changed map[string]dbus.Variant, invalidated []string) {
	for k, v := range changed {
		p[k] = v
	}
	for _, k := range invalidated {
		delete(p, k)
	}
}

// advertisement builds a sighting from p. It reports false when the device
// has no address or no RSSI, which BlueZ omits for cached devices that were
// not seen in this discovery.
func (p properties) advertisement() (adapter.Advertisement, bool) {
	address, _ := p["Address"].Value().(string)
	if address == "" {
		return adapter.Advertisement{}, false
	}
	rssiVar, ok := p["RSSI"]
	if !ok {
		return adapter.Advertisement{}, false
	}
	rssi, ok := rssiVar.Value().(int16)
	if !ok {
		return adapter.Advertisement{}, false
	}

	name, _ := p["Name"].Value().(string)
	if name == "" {
		name, _ = p["Alias"].Value().(string)
	}

	bond := device.BondNone
	if paired, _ := p["Paired"].Value().(bool); paired {
		bond = device.BondBonded
	}
	if bonded, _ := p["Bonded"].Value().(bool); bonded {
		bond = device.BondBonded
	}

	return adapter.Advertisement{
		Identity: device.Identity{
			Address: strings.ToUpper(address),
			Name:    name,
			Kind:    device.KindLE,
			Bond:    bond,
		},
		RSSI:    int(rssi),
		Payload: p.payload(),
	}, true
}

// payload rebuilds the advertisement bytes from ManufacturerData and
// ServiceData as AD structures, in ascending key order so equal property
// sets always produce equal bytes.
func (p properties) payload() []byte {
	var out []byte

	if mfr, ok := p["ManufacturerData"].Value().(map[uint16]dbus.Variant); ok {
		ids := make([]int, 0, len(mfr))
		for id := range mfr {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			data, _ := mfr[uint16(id)].Value().([]byte)
			body := append([]byte{byte(id), byte(id >> 8)}, data...)
			out = appendAD(out, adManufacturer, body)
		}
	}

	if svc, ok := p["ServiceData"].Value().(map[string]dbus.Variant); ok {
		keys := make([]string, 0, len(svc))
		for k := range svc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			data, _ := svc[k].Value().([]byte)
			adType, id, ok := serviceUUID(k)
			if !ok {
				continue
			}
			out = appendAD(out, adType, append(id, data...))
		}
	}

	return out
}

// serviceUUID returns the AD type and little-endian UUID bytes for a
// service data key.
func serviceUUID(s string) (byte, []byte, bool) {
	u, err := uuid.Parse(s)
	if err != nil {
		return 0, nil, false
	}
	if strings.HasSuffix(strings.ToLower(u.String()), bluetoothBaseUUID) && u[0] == 0 && u[1] == 0 {
		return adServiceData16, []byte{u[3], u[2]}, true
	}
	le := make([]byte, len(u))
	for i := range u {
		le[i] = u[len(u)-1-i]
	}
	return adServiceData128, le, true
}

// appendAD appends one length-prefixed AD structure. Bodies that do not fit
// a single structure are truncated.
func appendAD(out []byte, adType byte, body []byte) []byte {
	if len(body) > 254 {
		body = body[:254]
	}
	out = append(out, byte(len(body)+1), adType)
	return append(out, body...)
}

// deviceOf reports whether path is a device object of the adapter at root.
func deviceOf(root, path dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(root)+"/dev_")
}
