package tinygo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"tinygo.org/x/bluetooth"

	"github.com/radio-control/ranger/internal/device"
)

func TestAdvertisementUsesRawBytes(t *testing.T) {
	raw := []byte{0x02, 0x01, 0x06}
	adv := advertisement("aa:bb:cc:dd:ee:ff", -55, "Tag", raw, []bluetooth.ManufacturerDataElement{
		{CompanyID: 0x004C, Data: []byte{0x01}},
	})

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", adv.Identity.Address)
	assert.Equal(t, "Tag", adv.Identity.Name)
	assert.Equal(t, device.KindLE, adv.Identity.Kind)
	assert.Equal(t, -55, adv.RSSI)
	assert.Equal(t, raw, adv.Payload)

	raw[0] = 0xFF
	assert.Equal(t, byte(0x02), adv.Payload[0], "payload is copied")
}

func TestAdvertisementRebuildsManufacturerData(t *testing.T) {
	adv := advertisement("11:22:33:44:55:66", -70, "", nil, []bluetooth.ManufacturerDataElement{
		{CompanyID: 0x004C, Data: []byte{0x02, 0x15}},
		{CompanyID: 0x0006, Data: []byte{0x01}},
	})

	assert.Equal(t, []byte{
		0x04, 0xFF, 0x06, 0x00, 0x01,
		0x05, 0xFF, 0x4C, 0x00, 0x02, 0x15,
	}, adv.Payload)
}

func TestAdvertisementEmptyPayload(t *testing.T) {
	adv := advertisement("11:22:33:44:55:66", -70, "", nil, nil)
	assert.Empty(t, adv.Payload)
}
