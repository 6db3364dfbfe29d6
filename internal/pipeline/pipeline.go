// Package pipeline implements the synchronous, per-frame LRPT
// demodulation-to-framing core: sync correlation and resync, QPSK
// phase/IQ correction, Viterbi decoding, CCSDS derandomization,
// four-way interleaved Reed-Solomon decoding, transfer frame parsing,
// and per-virtual-channel loss tracking.
//
// Every CCSDS-layer primitive — the correlator, phase/IQ fixer, Viterbi
// decoder, derandomizer, and Reed-Solomon codec — is supplied by
// github.com/opensatelliteproject/libsathelper: both the Meteor-M LRPT
// and GOES LRIT downlinks share the identical k=7 r=1/2 convolutional
// code, RS(255,223) dual-basis code, and pseudo-randomizer polynomial,
// so only the frame geometry and sync-word set (see sync.go) differ.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	SatHelper "github.com/opensatelliteproject/libsathelper"

	"github.com/jrwynneiii/lrptdecoder/config"
)

// ErrCorrelationBelowThreshold is a local, per-frame condition: the
// aggregator's frame counters never advance when this happens.
var ErrCorrelationBelowThreshold = errors.New("pipeline: correlation below threshold")

// Source is the Frame Acquirer collaborator (implemented by
// internal/acquire.TCPSource).
type Source interface {
	AcquireInto(buf []byte) error
}

// ChannelWriter is the external per-channel sink.
type ChannelWriter interface {
	WriteChannel(payload []byte, vcid byte) error
	DumpCorrupted(buf []byte, stage int) error
	DumpCorruptedStats(viterbiBER int, correlationScore int) error
}

// Display is the external telemetry sink.
type Display interface {
	Update(snap Snapshot)
	Show()
}

// Corrupted-frame dump stage identifiers.
const (
	StageCoded    = 0
	StageDecoded  = 1
	StageRSResult = 2
)

// Pipeline owns every working buffer and piece of decoder state; all
// buffers are allocated once in New and reused across iterations with
// no per-frame allocations on the hot path.
type Pipeline struct {
	cfg     config.PipelineConf
	source  Source
	writer  ChannelWriter
	display Display

	viterbi      SatHelper.Viterbi27
	rs           SatHelper.ReedSolomon
	correlator   SatHelper.Correlator
	packetFixer  SatHelper.PacketFixer
	rsBlockCount byte

	codedWindow  []byte // CodedFrameSize
	decodedFrame []byte // FrameSize
	corrected    []byte // FrameSize; the last syncWordBytes are stale after the strip
	rsOutput     []byte // FrameSize - syncWordBytes, RS reinterleave scratch
	rsWork       []byte // 255

	vcStates [256]vcState
	agg      aggregator
}

// New allocates every working buffer once and wires the RS codec.
func New(cfg config.PipelineConf, source Source, writer ChannelWriter, display Display) *Pipeline {
	frameBits := cfg.FrameSize * 8

	p := &Pipeline{
		cfg:          cfg,
		source:       source,
		writer:       writer,
		display:      display,
		viterbi:      SatHelper.NewViterbi27(frameBits),
		rs:           SatHelper.NewReedSolomon(),
		correlator:   newCorrelator(),
		packetFixer:  SatHelper.NewPacketFixer(),
		rsBlockCount: byte(cfg.RSBlocks),
		codedWindow:  make([]byte, cfg.CodedFrameSize),
		decodedFrame: make([]byte, cfg.FrameSize),
		corrected:    make([]byte, cfg.FrameSize),
		rsOutput:     make([]byte, cfg.FrameSize-syncWordBytes),
		rsWork:       make([]byte, 255),
	}
	for i := range p.vcStates {
		p.vcStates[i] = newVCState()
	}
	// Parity is copied through into the output buffer so downstream
	// consumers can still see the (possibly uncorrected) parity bytes
	// on a partial-failure frame.
	p.rs.SetCopyParityToOutput(true)
	return p
}

// Run drives the pipeline until the source stalls or closes. Both are
// treated as clean termination.
func (p *Pipeline) Run() error {
	for {
		if err := p.step(); err != nil {
			if errors.Is(err, ErrCorrelationBelowThreshold) {
				continue
			}
			return err
		}
	}
}

// step advances the pipeline by exactly one transfer frame.
func (p *Pipeline) step() error {
	if err := p.source.AcquireInto(p.codedWindow); err != nil {
		return err
	}

	corr := correlate(&p.correlator, p.codedWindow)
	if corr.Score < p.cfg.MinCorrelationBits {
		log.Warnf("pipeline: correlation %d below threshold %d, no lock", corr.Score, p.cfg.MinCorrelationBits)
		return ErrCorrelationBelowThreshold
	}

	if err := p.resync(corr.Pos); err != nil {
		return err
	}

	amb := decodeAmbiguity(corr.Word)
	fixPhase(&p.packetFixer, p.codedWindow, amb)

	p.viterbi.Decode(&p.codedWindow[0], &p.decodedFrame[0])
	viterbiBER := int(p.viterbi.GetBER())
	percentBER := p.viterbi.GetPercentBER()
	signalQuality := clamp(100-int(percentBER*10), 0, 100)

	copy(p.corrected, p.decodedFrame)
	stripAndDerandomize(p.corrected)

	rsErrors := p.reedSolomonStage()

	dropped := rsErrors[0] == -1 && rsErrors[1] == -1 && rsErrors[2] == -1 && rsErrors[3] == -1

	var totalFixed int32
	for _, e := range rsErrors {
		if e > 0 {
			totalFixed += e
		}
	}

	p.agg.record(viterbiBER, totalFixed, dropped)

	phaseDisplay := amb.Phase
	if amb.IQInverted {
		phaseDisplay++
	}

	if dropped {
		if err := p.dumpCorrupted(viterbiBER, corr.Score); err != nil {
			log.Errorf("pipeline: dump corrupted frame: %v", err)
		}
		p.pushSnapshot(Snapshot{}, viterbiBER, rsErrors, signalQuality, corr.Score, phaseDisplay, true, corr.Pos)
		return nil
	}

	hdr := parseHeader(p.corrected)
	payloadLen := p.cfg.FrameSize - (p.cfg.RSParitySize*p.cfg.RSBlocks) - syncWordBytes
	if err := p.writer.WriteChannel(p.corrected[:payloadLen], hdr.VCID); err != nil {
		return fmt.Errorf("pipeline: write channel: %w", err)
	}

	lost := p.vcStates[hdr.VCID].observe(hdr.Counter, int64(p.cfg.MaxPlausibleGap))
	p.agg.totalLost += lost

	snap := Snapshot{SCID: hdr.SCID, VCID: hdr.VCID, Counter: hdr.Counter}
	p.pushSnapshot(snap, viterbiBER, rsErrors, signalQuality, corr.Score, phaseDisplay, false, corr.Pos)
	return nil
}

// resync realigns codedWindow to byte 0: the bytes at and after the
// winning sync-word position slide down to the front, and the freed
// tail at the end of the buffer is topped up from the source.
func (p *Pipeline) resync(pos int) error {
	if pos == 0 {
		return nil
	}
	n := len(p.codedWindow)
	copy(p.codedWindow[:n-pos], p.codedWindow[pos:])
	if err := p.source.AcquireInto(p.codedWindow[n-pos:]); err != nil {
		return err
	}
	return nil
}

// reedSolomonStage runs the four-way interleaved RS(255,223) decode,
// replacing p.corrected in place with the reinterleaved corrected
// bytes.
func (p *Pipeline) reedSolomonStage() [4]int32 {
	var errs [4]int32
	for i := byte(0); i < p.rsBlockCount; i++ {
		p.rs.Deinterleave(&p.corrected[0], &p.rsWork[0], i, p.rsBlockCount)
		errs[i] = int32(int8(p.rs.Decode_ccsds(&p.rsWork[0])))
		p.rs.Interleave(&p.rsWork[0], &p.rsOutput[0], i, p.rsBlockCount)
	}
	copy(p.corrected, p.rsOutput)
	return errs
}

func (p *Pipeline) dumpCorrupted(viterbiBER, correlationScore int) error {
	if err := p.writer.DumpCorrupted(p.codedWindow, StageCoded); err != nil {
		return err
	}
	if err := p.writer.DumpCorrupted(p.decodedFrame, StageDecoded); err != nil {
		return err
	}
	if err := p.writer.DumpCorrupted(p.corrected, StageRSResult); err != nil {
		return err
	}
	return p.writer.DumpCorruptedStats(viterbiBER, correlationScore)
}

func (p *Pipeline) pushSnapshot(snap Snapshot, viterbiBER int, rsErrors [4]int32, signalQuality, correlationScore, phaseDisplay int, dropped bool, pos int) {
	snap.VitBER = viterbiBER
	snap.FrameBits = p.cfg.FrameSize * 8
	snap.RSErrors = rsErrors
	snap.SignalQuality = signalQuality
	snap.CorrelationScore = correlationScore
	snap.PhaseCorrDisplay = phaseDisplay
	snap.TotalLost = p.agg.totalLost
	snap.AvgVit = p.agg.avgVit()
	snap.AvgRS = p.agg.avgRS()
	snap.Dropped = dropped
	snap.FramesTotal = p.agg.framesTotal
	snap.FramesDropped = p.agg.framesDropped
	snap.Pos = pos
	for i := range p.vcStates {
		snap.ReceivedPerVC[i] = p.vcStates[i].receivedCount
		snap.LostPerVC[i] = p.vcStates[i].lostCount
	}

	p.display.Update(snap)
	p.display.Show()
}
