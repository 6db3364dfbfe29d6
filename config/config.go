// Package config holds the koanf-backed configuration structs for the
// decoder. Every field is tunable from config.hcl or LRPTD-prefixed
// environment overrides.
package config

import "time"

// NetworkConf configures the Frame Acquirer's TCP listener.
type NetworkConf struct {
	ListenPort   int           `koanf:"listen_port"`
	StallTimeout time.Duration `koanf:"stall_timeout"`
}

// PipelineConf mirrors the decoder's compile-time frame geometry
// constants, left tunable for other LRPT downlink variants.
type PipelineConf struct {
	FrameSize          int `koanf:"frame_size"`
	CodedFrameSize     int `koanf:"coded_frame_size"`
	MinCorrelationBits int `koanf:"min_correlation_bits"`
	RSBlocks           int `koanf:"rs_blocks"`
	RSParitySize       int `koanf:"rs_parity_size"`
	SyncWordSizeBits   int `koanf:"sync_word_size_bits"`
	// MaxPlausibleGap caps the counter-wrap heuristic: any forward gap
	// larger than this is treated as a resync, not loss.
	MaxPlausibleGap int `koanf:"max_plausible_gap"`
}

// LoggingConf configures the rotated on-disk log.
type LoggingConf struct {
	Directory  string `koanf:"directory"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxAgeDays int    `koanf:"max_age_days"`
	MaxBackups int    `koanf:"max_backups"`
	Compress   bool   `koanf:"compress"`
}

// TuiConf configures the tview dashboard thresholds.
type TuiConf struct {
	Enabled         bool    `koanf:"enabled"`
	RefreshMs       int     `koanf:"refresh_ms"`
	RsWarnPct       float64 `koanf:"rs_threshold_warn_pct"`
	RsCritPct       float64 `koanf:"rs_threshold_crit_pct"`
	VitWarnPct      float64 `koanf:"vit_threshold_warn_pct"`
	VitCritPct      float64 `koanf:"vit_threshold_crit_pct"`
	EnableLogOutput bool    `koanf:"enable_log_output"`
}

// MetricsConf configures the Prometheus HTTP exposition endpoint.
type MetricsConf struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// OutputConf configures where accepted payloads and corrupted-frame
// dumps are written.
type OutputConf struct {
	ChannelDir    string `koanf:"channel_dir"`
	CorruptedDir  string `koanf:"corrupted_dir"`
	ReportDir     string `koanf:"report_dir"`
	CompressDumps bool   `koanf:"compress_dumps"`
}

// Config is the fully resolved configuration tree for one `serve` run.
type Config struct {
	Network  NetworkConf  `koanf:"network"`
	Pipeline PipelineConf `koanf:"pipeline"`
	Logging  LoggingConf  `koanf:"logging"`
	Tui      TuiConf      `koanf:"tui"`
	Metrics  MetricsConf  `koanf:"metrics"`
	Output   OutputConf   `koanf:"output"`
}

// Default returns the standard operating defaults; config.hcl / env
// vars override individual fields on top of this.
func Default() Config {
	return Config{
		Network: NetworkConf{
			ListenPort:   5000,
			StallTimeout: 2 * time.Second,
		},
		Pipeline: PipelineConf{
			FrameSize:          1024,
			CodedFrameSize:     1024 * 8 * 2,
			MinCorrelationBits: 46,
			RSBlocks:           4,
			RSParitySize:       32,
			SyncWordSizeBits:   32,
			MaxPlausibleGap:    1 << 20,
		},
		Logging: LoggingConf{
			Directory:  "./logs",
			MaxSizeMB:  50,
			MaxAgeDays: 14,
			MaxBackups: 5,
			Compress:   true,
		},
		Tui: TuiConf{
			Enabled:         true,
			RefreshMs:       500,
			RsWarnPct:       40,
			RsCritPct:       80,
			VitWarnPct:      40,
			VitCritPct:      80,
			EnableLogOutput: true,
		},
		Metrics: MetricsConf{
			Enabled: true,
			Addr:    ":9102",
		},
		Output: OutputConf{
			ChannelDir:    "./channels",
			CorruptedDir:  "./corrupted",
			ReportDir:     "./reports",
			CompressDumps: true,
		},
	}
}
