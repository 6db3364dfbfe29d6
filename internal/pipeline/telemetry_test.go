package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_aggregator_avgVitAndAvgRS(t *testing.T) {
	var a aggregator
	a.record(10, 2, false)
	a.record(20, 4, false)
	a.record(5, 0, true) // dropped frame: counts toward framesTotal, not RS corrections

	assert.Equal(t, int64(3), a.framesTotal)
	assert.Equal(t, int64(1), a.framesDropped)
	assert.InDelta(t, float64(35)/3, a.avgVit(), 1e-9)
	assert.InDelta(t, float64(6)/3, a.avgRS(), 1e-9)
}

func Test_aggregator_zeroFrames(t *testing.T) {
	var a aggregator
	assert.Equal(t, 0.0, a.avgVit())
	assert.Equal(t, 0.0, a.avgRS())
}

func Test_clamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-5, 0, 100))
	assert.Equal(t, 100, clamp(500, 0, 100))
	assert.Equal(t, 42, clamp(42, 0, 100))
}
