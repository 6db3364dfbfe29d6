// Package logging wires charmbracelet/log to a rotating file on disk: a
// lumberjack.Logger behind an io.MultiWriter so operators still see
// output on the terminal.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jrwynneiii/lrptdecoder/config"
)

// Setup points the package-level charmbracelet/log logger at both
// stdout and a rotating file under cfg.Directory.
func Setup(cfg config.LoggingConf) error {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, "lrptdecoder.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.SetReportTimestamp(true)
	log.SetReportCaller(false)
	log.SetTimeFormat("2006-01-02 15:04:05.000")
	return nil
}
