package pipeline

import SatHelper "github.com/opensatelliteproject/libsathelper"

// syncWordBytes is the 32-bit attached sync marker's width in bytes.
const syncWordBytes = 4

// stripAndDerandomize drops the 4-byte attached sync marker and hands
// the remaining FrameSize-4 bytes of a decoded frame to SatHelper's
// CCSDS pseudo-randomizer, in place. Only the meaningful 1020 bytes are
// derandomized, not a full coded-frame-sized buffer (see DESIGN.md
// Open Question 1).
func stripAndDerandomize(decoded []byte) {
	copy(decoded[:len(decoded)-syncWordBytes], decoded[syncWordBytes:])
	n := len(decoded) - syncWordBytes
	SatHelper.DeRandomizerDeRandomize(&decoded[0], n)
}
