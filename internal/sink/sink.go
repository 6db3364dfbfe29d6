// Package sink implements the decoder's two output collaborators: the
// per-VCID channel writer and the corrupted-frame dump sink, plus the
// end-of-session YAML manifest.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/jrwynneiii/lrptdecoder/internal/pipeline"
)

// FileChannelWriter implements pipeline.ChannelWriter over the local
// filesystem: one append-only file per VCID, and a zstd-compressed
// dump directory per corrupted frame.
type FileChannelWriter struct {
	mu sync.Mutex

	channelDir   string
	corruptedDir string
	sessionID    uuid.UUID

	channelFiles map[byte]*os.File
	encoder      *zstd.Encoder

	frameSeq int
	manifest SessionManifest
}

// SessionManifest is a YAML-serializable summary of one `serve` run,
// written once at shutdown next to the corrupted-frame dumps.
type SessionManifest struct {
	SessionID      string    `yaml:"session_id"`
	StartedAt      time.Time `yaml:"started_at"`
	EndedAt        time.Time `yaml:"ended_at"`
	FramesTotal    int64     `yaml:"frames_total"`
	FramesDropped  int64     `yaml:"frames_dropped"`
	TotalLost      int64     `yaml:"total_lost"`
	AvgViterbiBER  float64   `yaml:"avg_viterbi_ber"`
	AvgRSCorrected float64   `yaml:"avg_rs_corrected"`
}

// corruptedFrameStats is the YAML sidecar written next to a dropped
// frame's compressed buffers.
type corruptedFrameStats struct {
	ViterbiBER       int `yaml:"viterbi_ber"`
	CorrelationScore int `yaml:"correlation_score"`
}

// stageNames maps a dump stage's numeric identifier to its file name.
var stageNames = map[int]string{
	pipeline.StageCoded:    "coded.bin.zst",
	pipeline.StageDecoded:  "decoded.bin.zst",
	pipeline.StageRSResult: "rs_interleaved.bin.zst",
}

// New creates the channel and corrupted-frame directories and opens a
// fresh session.
func New(channelDir, corruptedDir string) (*FileChannelWriter, error) {
	if err := os.MkdirAll(channelDir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create channel dir: %w", err)
	}
	if err := os.MkdirAll(corruptedDir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create corrupted dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("sink: create zstd encoder: %w", err)
	}
	return &FileChannelWriter{
		channelDir:   channelDir,
		corruptedDir: corruptedDir,
		sessionID:    uuid.New(),
		channelFiles: make(map[byte]*os.File),
		encoder:      enc,
		manifest: SessionManifest{
			StartedAt: time.Now(),
		},
	}, nil
}

// WriteChannel appends an accepted payload to its VCID's file.
func (w *FileChannelWriter) WriteChannel(payload []byte, vcid byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.channelFiles[vcid]
	if !ok {
		path := filepath.Join(w.channelDir, fmt.Sprintf("vc%03d.bin", vcid))
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("sink: open channel file for vcid %d: %w", vcid, err)
		}
		w.channelFiles[vcid] = f
	}
	_, err := f.Write(payload)
	return err
}

// currentDumpDir is the directory a dropped frame's buffers are
// written to; it advances once per dropped frame (DumpCorrupted is
// called three times per frame, DumpCorruptedStats once, always in
// that fixed order).
func (w *FileChannelWriter) currentDumpDir() string {
	return filepath.Join(w.corruptedDir, w.sessionID.String(), fmt.Sprintf("%06d", w.frameSeq))
}

// DumpCorrupted writes one of the three per-frame buffers of a dropped
// frame, zstd-compressed.
func (w *FileChannelWriter) DumpCorrupted(buf []byte, stage int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := w.currentDumpDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sink: create dump dir: %w", err)
	}
	name, ok := stageNames[stage]
	if !ok {
		return fmt.Errorf("sink: unknown dump stage %d", stage)
	}
	compressed := w.encoder.EncodeAll(buf, make([]byte, 0, len(buf)))
	return os.WriteFile(filepath.Join(dir, name), compressed, 0o644)
}

// DumpCorruptedStats writes the YAML sidecar and advances to the next
// frame's dump directory.
func (w *FileChannelWriter) DumpCorruptedStats(viterbiBER, correlationScore int) error {
	w.mu.Lock()
	dir := w.currentDumpDir()
	w.frameSeq++
	w.mu.Unlock()

	stats := corruptedFrameStats{ViterbiBER: viterbiBER, CorrelationScore: correlationScore}
	out, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("sink: marshal corrupted-frame stats: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "stats.yaml"), out, 0o644)
}

// Close closes every open channel file and the zstd encoder.
func (w *FileChannelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.encoder.Close()
	var firstErr error
	for _, f := range w.channelFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteManifest finalizes and persists the session manifest.
func (w *FileChannelWriter) WriteManifest(snap pipeline.Snapshot) error {
	w.mu.Lock()
	w.manifest.EndedAt = time.Now()
	w.manifest.FramesTotal = snap.FramesTotal
	w.manifest.FramesDropped = snap.FramesDropped
	w.manifest.TotalLost = snap.TotalLost
	w.manifest.AvgViterbiBER = snap.AvgVit
	w.manifest.AvgRSCorrected = snap.AvgRS
	w.manifest.SessionID = w.sessionID.String()
	manifest := w.manifest
	w.mu.Unlock()

	out, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("sink: marshal session manifest: %w", err)
	}
	path := filepath.Join(w.corruptedDir, w.sessionID.String()+"-manifest.yaml")
	return os.WriteFile(path, out, 0o644)
}

// SessionID returns the UUID tagging this run's dumps/manifest/report.
func (w *FileChannelWriter) SessionID() uuid.UUID {
	return w.sessionID
}
