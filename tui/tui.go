// Package tui renders the live operator dashboard for a `serve` session:
// a per-VCID channel table, a frame-lock/loss summary, three gauges
// (signal quality, Viterbi BER, RS corrections), and a rolling
// correlation-score/BER history plot. Widgets are updated from a
// push-based pipeline.Display the pipeline calls once per frame, rather
// than a goroutine polling decoder state on a timer.
package tui

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"

	"github.com/jrwynneiii/lrptdecoder/config"
	"github.com/jrwynneiii/lrptdecoder/internal/pipeline"
)

// channelRow is one virtual channel's running counts, keyed by VCID
// since LRPT has no standard VCID-to-payload-name mapping; channels
// appear as they are first observed.
type channelRow struct {
	VCID     byte
	Received int64
	Lost     int64
}

type channelTableData struct {
	tview.TableContentReadOnly
	dash *Dashboard
}

func (d *channelTableData) GetRowCount() int {
	d.dash.mu.Lock()
	defer d.dash.mu.Unlock()
	return len(d.dash.channels) + 1
}

func (d *channelTableData) GetColumnCount() int { return 3 }

func (d *channelTableData) GetCell(row, column int) *tview.TableCell {
	if row == 0 {
		switch column {
		case 0:
			return tview.NewTableCell("[lightskyblue]VCID")
		case 1:
			return tview.NewTableCell("[green]Frames RX'd")
		case 2:
			return tview.NewTableCell("[red]Frames Lost")
		}
		return tview.NewTableCell("ERROR")
	}

	d.dash.mu.Lock()
	defer d.dash.mu.Unlock()
	idx := row - 1
	if idx >= len(d.dash.channels) {
		return tview.NewTableCell("")
	}
	ch := d.dash.channels[idx]
	switch column {
	case 0:
		return tview.NewTableCell(fmt.Sprintf("[lightskyblue]%d", ch.VCID))
	case 1:
		color := "red"
		if ch.Received > 0 {
			color = "green"
		}
		return tview.NewTableCell(fmt.Sprintf("[%s]%d", color, ch.Received))
	case 2:
		return tview.NewTableCell(fmt.Sprintf("[red]%d", ch.Lost))
	}
	return tview.NewTableCell("ERROR")
}

type lockTableData struct {
	tview.TableContentReadOnly
	dash *Dashboard
}

func (l *lockTableData) GetRowCount() int    { return 4 }
func (l *lockTableData) GetColumnCount() int { return 2 }

func (l *lockTableData) GetCell(row, column int) *tview.TableCell {
	l.dash.mu.Lock()
	defer l.dash.mu.Unlock()

	switch row {
	case 0:
		if column == 0 {
			return tview.NewTableCell("Frame lock:")
		}
		color := tcell.ColorGreen
		if !l.dash.locked {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(fmt.Sprintf("%v", l.dash.locked)).SetTextColor(color)
	case 1:
		if column == 0 {
			return tview.NewTableCell("Total Frames Rx'd:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", l.dash.framesTotal))
	case 2:
		if column == 0 {
			return tview.NewTableCell("Total Frames Dropped:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", l.dash.framesDropped))
	case 3:
		if column == 0 {
			return tview.NewTableCell("Total Frames Lost:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", l.dash.totalLost))
	}
	return tview.NewTableCell("ERROR")
}

// historyLen bounds the rolling correlation/BER plot to a fixed window
// refreshed every Update rather than an unbounded append.
const historyLen = 120

// Dashboard is the pipeline.Display implementation that drives the tview
// application. Update is called once per frame from the pipeline's own
// goroutine; all shared state is behind mu so GetCell (called from
// tview's own draw goroutine) never races it.
type Dashboard struct {
	mu sync.Mutex

	app    *tview.Application
	logOut *tview.TextView

	signalGauge        *tvxwidgets.UtilModeGauge
	berGauge           *tvxwidgets.UtilModeGauge
	rsCorrectionsGauge *tvxwidgets.UtilModeGauge
	historyPlot        *tvxwidgets.Plot

	channels      []channelRow
	channelIndex  map[byte]int
	locked        bool
	framesTotal   int64
	framesDropped int64
	totalLost     int64

	correlationHistory []float64
	berHistory         []float64
}

// New builds the dashboard layout. Run must be called (typically from
// its own goroutine) to start the tview event loop.
func New(cfg config.TuiConf) *Dashboard {
	d := &Dashboard{
		app:          tview.NewApplication(),
		channelIndex: make(map[byte]int),
	}

	d.logOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)
	d.logOut.SetChangedFunc(func() {
		d.logOut.ScrollToEnd()
		d.app.Draw()
	})
	d.logOut.SetBorder(true).SetTitle("Log Output")
	if cfg.EnableLogOutput {
		log.SetOutput(d.logOut)
	}

	channelStats := tview.NewTable().SetContent(&channelTableData{dash: d})
	channelStats.SetSelectable(false, false).SetBorder(true).SetTitle("Per-VCID Stats")

	lockTable := tview.NewTable().SetContent(&lockTableData{dash: d})
	lockTable.SetSelectable(false, false).SetBorder(false)

	d.signalGauge = tvxwidgets.NewUtilModeGauge()
	d.signalGauge.SetLabel("Signal Quality:              ")
	d.signalGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	d.signalGauge.SetWarnPercentage(99)
	d.signalGauge.SetCritPercentage(100)
	d.signalGauge.SetEmptyColor(tcell.ColorBlack)
	d.signalGauge.SetBorder(false)

	d.berGauge = tvxwidgets.NewUtilModeGauge()
	d.berGauge.SetLabel("Viterbi Error Rate:          ")
	d.berGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	d.berGauge.SetWarnPercentage(cfg.VitWarnPct)
	d.berGauge.SetCritPercentage(cfg.VitCritPct)
	d.berGauge.SetEmptyColor(tcell.ColorBlack)
	d.berGauge.SetBorder(false)

	d.rsCorrectionsGauge = tvxwidgets.NewUtilModeGauge()
	d.rsCorrectionsGauge.SetLabel("Reed-Solomon Corrections:    ")
	d.rsCorrectionsGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	d.rsCorrectionsGauge.SetWarnPercentage(cfg.RsWarnPct)
	d.rsCorrectionsGauge.SetCritPercentage(cfg.RsCritPct)
	d.rsCorrectionsGauge.SetEmptyColor(tcell.ColorBlack)
	d.rsCorrectionsGauge.SetBorder(false)

	gaugeBox := tview.NewFlex().SetDirection(tview.FlexRow)
	gaugeBox.AddItem(d.signalGauge, 0, 1, false)
	gaugeBox.AddItem(d.berGauge, 0, 1, false)
	gaugeBox.AddItem(d.rsCorrectionsGauge, 0, 1, false)
	gaugeBox.SetTitle("Signal Stats")
	gaugeBox.SetBorder(true)

	d.historyPlot = tvxwidgets.NewPlot()
	d.historyPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue, tcell.ColorOrange})
	d.historyPlot.SetMarker(tvxwidgets.PlotMarkerBraille)
	d.historyPlot.SetBorder(true)
	d.historyPlot.SetTitle("Correlation Score / BER History")

	decoderStats := tview.NewFlex().SetDirection(tview.FlexRow)
	decoderStats.AddItem(tview.NewBox(), 0, 1, false)
	decoderStats.AddItem(lockTable, 0, 1, false)
	decoderStats.AddItem(tview.NewBox(), 0, 1, false)
	decoderStats.SetBorder(true)
	decoderStats.SetTitle("Decoder Status")

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(channelStats, 0, 3, false)
	leftCol.AddItem(decoderStats, 0, 1, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 4, false)
	rightCol.AddItem(d.historyPlot, 0, 2, false)
	if cfg.EnableLogOutput {
		rightCol.AddItem(d.logOut, 0, 2, false)
	}

	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 5, false)

	d.app.SetRoot(page, true).EnableMouse(true)
	return d
}

// Update implements pipeline.Display: it is called once per processed
// frame (accepted or dropped) and only mutates state; Show performs the
// redraw so callers can batch several Updates before repainting.
func (d *Dashboard) Update(snap pipeline.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.locked = snap.CorrelationScore > 0
	d.framesTotal = snap.FramesTotal
	d.framesDropped = snap.FramesDropped
	d.totalLost = snap.TotalLost

	for vcid := range snap.ReceivedPerVC {
		if snap.ReceivedPerVC[vcid] <= 0 && snap.LostPerVC[vcid] == 0 {
			continue
		}
		idx, ok := d.channelIndex[byte(vcid)]
		if !ok {
			idx = len(d.channels)
			d.channels = append(d.channels, channelRow{VCID: byte(vcid)})
			d.channelIndex[byte(vcid)] = idx
		}
		d.channels[idx].Received = snap.ReceivedPerVC[vcid]
		d.channels[idx].Lost = snap.LostPerVC[vcid]
	}
	sort.Slice(d.channels, func(i, j int) bool { return d.channels[i].VCID < d.channels[j].VCID })
	d.channelIndex = make(map[byte]int, len(d.channels))
	for i, ch := range d.channels {
		d.channelIndex[ch.VCID] = i
	}

	d.signalGauge.SetValue(float64(snap.SignalQuality))
	d.berGauge.SetValue(float64(snap.VitBER) / float64(snap.FrameBits) * 100)
	d.rsCorrectionsGauge.SetValue(snap.AvgRS)

	d.correlationHistory = append(d.correlationHistory, float64(snap.CorrelationScore))
	d.berHistory = append(d.berHistory, snap.AvgVit)
	if len(d.correlationHistory) > historyLen {
		d.correlationHistory = d.correlationHistory[len(d.correlationHistory)-historyLen:]
		d.berHistory = d.berHistory[len(d.berHistory)-historyLen:]
	}
	d.historyPlot.SetData([][]float64{d.correlationHistory, d.berHistory})
}

// Show triggers a single tview redraw.
func (d *Dashboard) Show() {
	d.app.Draw()
}

// Run starts the tview event loop; it blocks until the application
// exits (typically via Stop from the main goroutine on shutdown).
func (d *Dashboard) Run() error {
	if err := d.app.Run(); err != nil {
		return fmt.Errorf("tui: run: %w", err)
	}
	return nil
}

// Stop tears down the tview application.
func (d *Dashboard) Stop() {
	d.app.Stop()
}
