package pipeline

import "encoding/binary"

// frameHeader is the decoded VCDU primary header.
type frameHeader struct {
	SCID    byte
	VCID    byte
	Counter uint32 // 24 significant bits
}

// parseHeader extracts SCID/VCID/counter from a corrected frame's
// first six bytes.
func parseHeader(corrected []byte) frameHeader {
	scid := ((corrected[0] & 0x3F) << 2) | ((corrected[1] & 0xC0) >> 6)
	vcid := corrected[1] & 0x3F
	counter := binary.BigEndian.Uint32(corrected[2:6]) >> 8
	return frameHeader{SCID: scid, VCID: vcid, Counter: counter}
}

// vcState is the per-VCID loss-tracking state.
type vcState struct {
	lastCounter   int64
	receivedCount int64
	lostCount     int64
}

func newVCState() vcState {
	return vcState{lastCounter: -1, receivedCount: -1}
}

// counterModulus is the VCDU counter's wrap point: it is a 24-bit
// field.
const counterModulus = 1 << 24

// observe updates a VCID's loss-tracking state for a newly accepted
// counter value: any gap larger than maxPlausibleGap is treated as a
// resync (no loss attributed) rather than a wrapped counter running
// backwards (see DESIGN.md Open Question 4).
func (v *vcState) observe(counter uint32, maxPlausibleGap int64) (lost int64) {
	c := int64(counter)
	if v.lastCounter == -1 {
		v.lastCounter = c
		v.receivedCount = 1
		return 0
	}

	gap := (c - v.lastCounter - 1 + counterModulus) % counterModulus
	if gap > 0 && gap <= maxPlausibleGap {
		lost = gap
		v.lostCount += lost
	}

	v.lastCounter = c
	v.receivedCount++
	return lost
}
