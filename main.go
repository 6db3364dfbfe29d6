package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jrwynneiii/lrptdecoder/config"
	"github.com/jrwynneiii/lrptdecoder/internal/acquire"
	"github.com/jrwynneiii/lrptdecoder/internal/logging"
	"github.com/jrwynneiii/lrptdecoder/internal/metrics"
	"github.com/jrwynneiii/lrptdecoder/internal/pipeline"
	"github.com/jrwynneiii/lrptdecoder/internal/report"
	"github.com/jrwynneiii/lrptdecoder/internal/sink"
	"github.com/jrwynneiii/lrptdecoder/tui"
)

var cli struct {
	Verbose bool `help:"Prints debug output by default"`
	Profile bool `help:"Output a pprof profile"`
	Probe   struct {
	} `cmd:"" help:"Bind the configured listen port and report readiness, without decoding"`
	Serve struct {
	} `cmd:"" help:"Accept a frame stream and decode it until the source closes"`
}

var configFile = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/lrptdecoder/config.hcl", "~/.config/lrptdecoder/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

func loadConfig() config.Config {
	cfg := config.Default()

	if err := configFile.Load(file.Provider(getConfigPath()), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		configFile.Load(env.Provider("", env.Opt{
			Prefix: "LRPTD_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "LRPTD_"))
				k = strings.Replace(key, "_", ".", 1)
				fmt.Printf("Found config env var: %s=%v\n", k, v)
				return k, v
			},
		}), nil)
	}

	if err := configFile.Unmarshal("", &cfg); err != nil {
		log.Errorf("Could not apply config overrides, using defaults: %v", err)
		return config.Default()
	}
	return cfg
}

// fanoutDisplay drives both the tui dashboard and the Prometheus
// registry from the single pipeline.Display slot the pipeline expects,
// since a `serve` run may have either, both, or neither enabled.
type fanoutDisplay struct {
	targets []pipeline.Display
}

func (f *fanoutDisplay) Update(snap pipeline.Snapshot) {
	for _, t := range f.targets {
		t.Update(snap)
	}
}

func (f *fanoutDisplay) Show() {
	for _, t := range f.targets {
		t.Show()
	}
}

// snapshotRecorder keeps the most recent pipeline.Snapshot around so
// finishSession can build the session manifest and report from real
// totals rather than zero values, regardless of whether the tui or
// metrics sinks are enabled for this run.
type snapshotRecorder struct {
	last pipeline.Snapshot
}

func (s *snapshotRecorder) Update(snap pipeline.Snapshot) { s.last = snap }
func (s *snapshotRecorder) Show()                         {}

func main() {
	log.Info("Starting lrptdecoder")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	cfg := loadConfig()

	switch flags.Command() {
	case "probe":
		runProbe(cfg)
	case "serve":
		runServe(cfg)
	default:
		log.Info("Command not recognized")
	}
}

// runProbe binds the configured listen port just long enough to confirm
// it is reachable, then exits without decoding anything.
func runProbe(cfg config.Config) {
	addr := fmt.Sprintf(":%d", cfg.Network.ListenPort)
	src, err := acquire.Listen(addr, cfg.Network.StallTimeout)
	if err != nil {
		log.Fatalf("probe: could not bind %s: %v", addr, err)
	}
	defer src.Close()
	log.Infof("probe: %s is free and accepting connections", src.Addr())
}

func runServe(cfg config.Config) {
	if err := logging.Setup(cfg.Logging); err != nil {
		log.Fatalf("serve: setup logging: %v", err)
	}

	writer, err := sink.New(cfg.Output.ChannelDir, cfg.Output.CorruptedDir)
	if err != nil {
		log.Fatalf("serve: setup channel writer: %v", err)
	}
	defer writer.Close()

	recorder := &snapshotRecorder{}
	displays := []pipeline.Display{recorder}

	var dash *tui.Dashboard
	if cfg.Tui.Enabled {
		dash = tui.New(cfg.Tui)
		displays = append(displays, dash)
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New()
		reg.Serve(cfg.Metrics.Addr)
		displays = append(displays, reg)
	}
	display := &fanoutDisplay{targets: displays}

	addr := fmt.Sprintf(":%d", cfg.Network.ListenPort)
	src, err := acquire.Listen(addr, cfg.Network.StallTimeout)
	if err != nil {
		log.Fatalf("serve: bind %s: %v", addr, err)
	}
	defer src.Close()
	log.Infof("serve: listening on %s for a frame stream", src.Addr())

	if err := src.Accept(); err != nil {
		log.Fatalf("serve: accept: %v", err)
	}
	if reg != nil {
		reg.SetConnected(true)
	}

	p := pipeline.New(cfg.Pipeline, src, writer, display)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- p.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if dash != nil {
		go func() {
			if err := dash.Run(); err != nil {
				log.Errorf("serve: tui: %v", err)
			}
		}()
	}

	select {
	case err := <-runErrCh:
		if err != nil && !errors.Is(err, acquire.ErrSourceClosed) && !errors.Is(err, acquire.ErrSourceStalled) {
			log.Errorf("serve: pipeline stopped: %v", err)
		} else {
			log.Info("serve: source closed, ending session")
		}
	case <-sigCh:
		log.Info("serve: received shutdown signal")
	}

	if dash != nil {
		dash.Stop()
	}
	if reg != nil {
		reg.SetConnected(false)
		ctx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
		defer cancel()
		reg.Shutdown(ctx)
	}

	finishSession(cfg, writer, recorder.last)
}

// finishSession writes the YAML manifest and PDF report for the
// just-ended run.
func finishSession(cfg config.Config, writer *sink.FileChannelWriter, last pipeline.Snapshot) {
	if err := writer.WriteManifest(last); err != nil {
		log.Errorf("serve: write manifest: %v", err)
		return
	}

	if err := os.MkdirAll(cfg.Output.ReportDir, 0o755); err != nil {
		log.Errorf("serve: create report dir: %v", err)
		return
	}

	manifest := sink.SessionManifest{
		SessionID:      writer.SessionID().String(),
		FramesTotal:    last.FramesTotal,
		FramesDropped:  last.FramesDropped,
		TotalLost:      last.TotalLost,
		AvgViterbiBER:  last.AvgVit,
		AvgRSCorrected: last.AvgRS,
	}

	var perVC []report.VCSummary
	for vcid := range last.ReceivedPerVC {
		if last.ReceivedPerVC[vcid] <= 0 && last.LostPerVC[vcid] == 0 {
			continue
		}
		perVC = append(perVC, report.VCSummary{
			VCID:     byte(vcid),
			Received: last.ReceivedPerVC[vcid],
			Lost:     last.LostPerVC[vcid],
		})
	}

	out := filepath.Join(cfg.Output.ReportDir, writer.SessionID().String()+".pdf")
	if err := report.Save(manifest, perVC, out); err != nil {
		log.Errorf("serve: write session report: %v", err)
		return
	}
	log.Infof("serve: session report written to %s", out)
}
