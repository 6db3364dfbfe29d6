package pipeline

import (
	"testing"

	SatHelper "github.com/opensatelliteproject/libsathelper"
	"github.com/stretchr/testify/assert"
)

func Test_phaseShiftFor(t *testing.T) {
	cases := map[int]SatHelper.PhaseShift{
		0:   SatHelper.DEG_0,
		90:  SatHelper.DEG_90,
		180: SatHelper.DEG_180,
		270: SatHelper.DEG_270,
	}
	for degrees, want := range cases {
		assert.Equal(t, want, phaseShiftFor(degrees))
	}
}
