package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_parseHeader(t *testing.T) {
	// SCID=141 (0b10001101), VCID=5, Counter=0x00112233 (24 significant bits -> 0x112233)
	corrected := make([]byte, 6)
	corrected[0] = 0b00100011 // top 6 bits of SCID in the low 6 bits here
	corrected[1] = 0b01000000 | 5
	corrected[2] = 0x11
	corrected[3] = 0x22
	corrected[4] = 0x33
	corrected[5] = 0x00

	hdr := parseHeader(corrected)
	assert.Equal(t, byte(5), hdr.VCID)
	assert.Equal(t, uint32(0x112233), hdr.Counter)
}

func Test_vcState_observe_lossScenario(t *testing.T) {
	// Mirrors the documented example: VCID counters 10, 11, 14 -> total_lost=2.
	v := newVCState()
	var total int64

	total += v.observe(10, 1<<20)
	total += v.observe(11, 1<<20)
	total += v.observe(14, 1<<20)

	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(2), v.lostCount)
	assert.Equal(t, int64(3), v.receivedCount)
}

func Test_vcState_observe_resyncNotCountedAsLoss(t *testing.T) {
	v := newVCState()
	v.observe(1000, 100)
	// A huge backward-looking "gap" (counter reset/resync) must not be
	// attributed as loss once it exceeds maxPlausibleGap.
	lost := v.observe(5, 100)
	assert.Equal(t, int64(0), lost)
}
