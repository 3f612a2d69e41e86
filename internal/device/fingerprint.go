package device

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a unique device and payload combination.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ComputeFingerprint hashes address, name, kind, bond state and payload, in
// that order. Variable-length fields are length-prefixed. Signal strength is
// not an input.
func ComputeFingerprint(id Identity, payload []byte) Fingerprint {
	d := xxhash.New()
	var scratch [8]byte

	writeLen := func(n int) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(n))
		_, _ = d.Write(scratch[:])
	}

	writeLen(len(id.Address))
	_, _ = d.WriteString(id.Address)
	writeLen(len(id.Name))
	_, _ = d.WriteString(id.Name)

	binary.LittleEndian.PutUint64(scratch[:], uint64(id.Kind))
	_, _ = d.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(id.Bond))
	_, _ = d.Write(scratch[:])

	writeLen(len(payload))
	_, _ = d.Write(payload)

	return Fingerprint(d.Sum64())
}
