package pipeline

import SatHelper "github.com/opensatelliteproject/libsathelper"

// The eight 64-bit Meteor-M LRPT sync words: the convolutionally-encoded
// ASM (1ACFFC1D repeated twice) under each of the four QPSK phase
// rotations, then again with I/Q swapped. Index order is significant —
// see decodeAmbiguity and newCorrelator, which both rely on words being
// registered with the correlator in exactly this order.
const (
	uw0 uint64 = 0xfca2b63db00d9794
	uw1 uint64 = 0x56fbd394daa4c1c2
	uw2 uint64 = 0x035d49c24ff2686b
	uw3 uint64 = 0xa9042c6b255b3e3d

	iquw0 uint64 = 0xfc51793e700e6b68
	iquw1 uint64 = 0xa9f7e368e558c2c1
	iquw2 uint64 = 0x03ae86c18ff19497
	iquw3 uint64 = 0x56081c971aa73d3e
)

var syncWords = [8]uint64{uw0, uw1, uw2, uw3, iquw0, iquw1, iquw2, iquw3}

// Ambiguity is the tagged phase/IQ variant a winning sync-word index
// decodes into.
type Ambiguity struct {
	Phase      int // one of 0, 90, 180, 270
	IQInverted bool
}

// decodeAmbiguity interprets the winning sync-word index: word%4
// selects the phase rotation, word/4 selects IQ inversion.
func decodeAmbiguity(word int) Ambiguity {
	return Ambiguity{
		Phase:      (word % 4) * 90,
		IQInverted: word/4 > 0,
	}
}

// correlationResult is the Correlator's per-window verdict.
type correlationResult struct {
	Word  int // 0..7, index into syncWords
	Pos   int // byte offset of the best match within the window
	Score int // Hamming-agreement score, 0..64
}

// newCorrelator primes a SatHelper.Correlator with all eight sync words,
// in the same fixed order decodeAmbiguity assumes.
func newCorrelator() SatHelper.Correlator {
	c := SatHelper.NewCorrelator()
	for _, w := range syncWords {
		c.AddWord(w)
	}
	return c
}

// correlate scans window for the best-agreeing sync word using c's own
// hard-decision Hamming search, and reports which of the eight
// registered words won, where it matched, and how strong the match was.
func correlate(c *SatHelper.Correlator, window []byte) correlationResult {
	if len(window) < 64 {
		return correlationResult{Word: -1, Pos: -1, Score: -1}
	}
	c.Correlate(&window[0], uint(len(window)))
	return correlationResult{
		Word:  int(c.GetCorrelationWordNumber()),
		Pos:   int(c.GetHighestCorrelationPosition()),
		Score: int(c.GetHighestCorrelation()),
	}
}
