package bluez

import (
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/ranger/internal/device"
)

func deviceProps() properties {
	return properties{
		"Address": dbus.MakeVariant("aa:bb:cc:dd:ee:ff"),
		"Name":    dbus.MakeVariant("Thermo"),
		"Paired":  dbus.MakeVariant(false),
		"RSSI":    dbus.MakeVariant(int16(-67)),
		"ManufacturerData": dbus.MakeVariant(map[uint16]dbus.Variant{
			0x004C: dbus.MakeVariant([]byte{0x02, 0x15}),
		}),
		"ServiceData": dbus.MakeVariant(map[string]dbus.Variant{
			"0000feaa-0000-1000-8000-00805f9b34fb": dbus.MakeVariant([]byte{0x10}),
		}),
	}
}

func TestAdvertisementFromProperties(t *testing.T) {
	adv, ok := deviceProps().advertisement()
	require.True(t, ok)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", adv.Identity.Address)
	assert.Equal(t, "Thermo", adv.Identity.Name)
	assert.Equal(t, device.KindLE, adv.Identity.Kind)
	assert.Equal(t, device.BondNone, adv.Identity.Bond)
	assert.Equal(t, -67, adv.RSSI)
	assert.Equal(t, []byte{
		0x05, 0xFF, 0x4C, 0x00, 0x02, 0x15, // manufacturer 0x004C
		0x04, 0x16, 0xAA, 0xFE, 0x10, // service data 0xFEAA
	}, adv.Payload)
}

func TestAdvertisementRequiresAddressAndRSSI(t *testing.T) {
	p := deviceProps()
	delete(p, "RSSI")
	_, ok := p.advertisement()
	assert.False(t, ok)

	p = deviceProps()
	delete(p, "Address")
	_, ok = p.advertisement()
	assert.False(t, ok)
}

func TestAdvertisementAliasAndBond(t *testing.T) {
	p := deviceProps()
	delete(p, "Name")
	p["Alias"] = dbus.MakeVariant("AA-BB-CC-DD-EE-FF")
	p["Paired"] = dbus.MakeVariant(true)

	adv, ok := p.advertisement()
	require.True(t, ok)
	assert.Equal(t, "AA-BB-CC-DD-EE-FF", adv.Identity.Name)
	assert.Equal(t, device.BondBonded, adv.Identity.Bond)
}

func TestPropertiesMerge(t *testing.T) {
	p := deviceProps()
	p.merge(map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))}, []string{"ServiceData"})

	adv, ok := p.advertisement()
	require.True(t, ok)
	assert.Equal(t, -40, adv.RSSI)
	assert.Equal(t, []byte{0x05, 0xFF, 0x4C, 0x00, 0x02, 0x15}, adv.Payload)
}

func TestPayloadIsDeterministic(t *testing.T) {
	p := deviceProps()
	p["ManufacturerData"] = dbus.MakeVariant(map[uint16]dbus.Variant{
		0x0006: dbus.MakeVariant([]byte{0x01}),
		0x004C: dbus.MakeVariant([]byte{0x02}),
		0x0001: dbus.MakeVariant([]byte{0x03}),
	})
	first := p.payload()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.payload())
	}
	assert.Equal(t, byte(0x01), first[2], "lowest company ID first")
}

func TestServiceUUID(t *testing.T) {
	adType, id, ok := serviceUUID("0000180f-0000-1000-8000-00805f9b34fb")
	require.True(t, ok)
	assert.Equal(t, byte(adServiceData16), adType)
	assert.Equal(t, []byte{0x0F, 0x18}, id)

	adType, id, ok = serviceUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	require.True(t, ok)
	assert.Equal(t, byte(adServiceData128), adType)
	require.Len(t, id, 16)
	assert.Equal(t, byte(0x9e), id[0])
	assert.Equal(t, byte(0x6e), id[15])

	_, _, ok = serviceUUID("not-a-uuid")
	assert.False(t, ok)
}

func TestDeviceOf(t *testing.T) {
	root := dbus.ObjectPath("/org/bluez/hci0")
	assert.True(t, deviceOf(root, "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"))
	assert.False(t, deviceOf(root, "/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF"))
	assert.False(t, deviceOf(root, "/org/bluez/hci0"))
}
