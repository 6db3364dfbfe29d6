package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_decodeAmbiguity_matchesWordTable(t *testing.T) {
	seen := map[Ambiguity]bool{}
	for word := 0; word < 8; word++ {
		amb := decodeAmbiguity(word)
		assert.Contains(t, []int{0, 90, 180, 270}, amb.Phase)
		seen[amb] = true
	}
	// All 8 sync words (4 phase rotations x IQ-normal/IQ-inverted) must
	// decode to distinct (phase, inversion) pairs.
	assert.Len(t, seen, 8)
}
