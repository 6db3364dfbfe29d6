package pipeline

import SatHelper "github.com/opensatelliteproject/libsathelper"

// phaseShiftFor maps decodeAmbiguity's rotation in degrees onto the
// SatHelper.PhaseShift value PacketFixer expects.
func phaseShiftFor(degrees int) SatHelper.PhaseShift {
	switch degrees {
	case 90:
		return SatHelper.DEG_90
	case 180:
		return SatHelper.DEG_180
	case 270:
		return SatHelper.DEG_270
	default:
		return SatHelper.DEG_0
	}
}

// fixPhase applies the inverse QPSK rotation and, if amb.IQInverted, the
// I/Q swap, in place over window's soft-symbol pairs, via f's
// PacketFixer.
func fixPhase(f *SatHelper.PacketFixer, window []byte, amb Ambiguity) {
	f.FixPacket(&window[0], uint32(len(window)), phaseShiftFor(amb.Phase), amb.IQInverted)
}
