package device

import (
	"fmt"
	"strings"
)

// Kind is the transport class reported by the radio for a device.
type Kind int

const (
	KindUnknown Kind = iota
	KindClassic
	KindLE
	KindDual
)

func (k Kind) String() string {
	switch k {
	case KindClassic:
		return "classic"
	case KindLE:
		return "le"
	case KindDual:
		return "dual"
	default:
		return "unknown"
	}
}

// ParseKind maps a textual kind to a Kind. Unknown text maps to KindUnknown.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classic", "bredr", "br/edr":
		return KindClassic
	case "le", "ble":
		return KindLE
	case "dual":
		return KindDual
	default:
		return KindUnknown
	}
}

// BondState is the pairing state of a device with the local radio.
type BondState int

const (
	BondNone BondState = iota
	BondBonding
	BondBonded
)

func (b BondState) String() string {
	switch b {
	case BondBonding:
		return "bonding"
	case BondBonded:
		return "bonded"
	default:
		return "none"
	}
}

// ParseBondState maps a textual bond state to a BondState.
func ParseBondState(s string) BondState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bonding":
		return BondBonding
	case "bonded", "paired":
		return BondBonded
	default:
		return BondNone
	}
}

// Identity is the part of a sighting that identifies the broadcaster.
type Identity struct {
	Address string    `json:"address"`
	Name    string    `json:"name,omitempty"`
	Kind    Kind      `json:"kind"`
	Bond    BondState `json:"bond"`
}

// Record is a discovered device. Identity, Payload and Fingerprint are fixed at
// creation; RSSI tracks the latest sighting.
type Record struct {
	Identity
	Payload     []byte      `json:"payload"`
	RSSI        int         `json:"rssi"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// NewRecord creates a record for a first sighting. The payload is copied so
// later reuse of the caller's buffer cannot alter the record.
func NewRecord(id Identity, payload []byte) *Record {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Record{
		Identity:    id,
		Payload:     p,
		Fingerprint: ComputeFingerprint(id, p),
	}
}

// String renders the record for logs.
func (r Record) String() string {
	name := r.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("Device[%s %s rssi=%d fp=%s]", name, r.Address, r.RSSI, r.Fingerprint)
}
