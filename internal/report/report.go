// Package report renders a one-page PDF summary of a completed `serve`
// session: a title, a summary table, a per-VCID matrix, and a QR code
// of the session manifest's hash so an operator can match a printed
// report back to its YAML sidecar.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"gopkg.in/yaml.v3"

	"github.com/jrwynneiii/lrptdecoder/internal/sink"
)

// VCSummary is one row of the per-virtual-channel table.
type VCSummary struct {
	VCID     byte
	Received int64
	Lost     int64
}

// Save renders manifest (and its per-VCID breakdown) into a PDF at out.
func Save(manifest sink.SessionManifest, perVC []VCSummary, out string) error {
	hash, err := manifestHash(manifest)
	if err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("LRPT Session Report", false)
	pdf.SetAuthor("lrptdecoder", false)
	pdf.SetCreator("lrptdecoder", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addTitle(pdf, "LRPT Session Report")
	addSummarySection(pdf, manifest)
	addVCSection(pdf, perVC)
	if err := addQRSection(pdf, hash); err != nil {
		return err
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func manifestHash(manifest sink.SessionManifest) (string, error) {
	out, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("report: marshal manifest: %w", err)
	}
	sum := sha256.Sum256(out)
	return hex.EncodeToString(sum[:]), nil
}

func addTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, m sink.SessionManifest) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct{ label, value string }{
		{"Session ID", m.SessionID},
		{"Started", m.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Ended", m.EndedAt.Format("2006-01-02 15:04:05 MST")},
		{"Frames Total", strconv.FormatInt(m.FramesTotal, 10)},
		{"Frames Dropped", strconv.FormatInt(m.FramesDropped, 10)},
		{"Frames Lost (inferred)", strconv.FormatInt(m.TotalLost, 10)},
		{"Avg Viterbi BER", strconv.FormatFloat(m.AvgViterbiBER, 'f', 3, 64)},
		{"Avg RS Corrections/Frame", strconv.FormatFloat(m.AvgRSCorrected, 'f', 3, 64)},
	}
	for _, item := range items {
		pdf.CellFormat(60, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addVCSection(pdf *gofpdf.Fpdf, rows []VCSummary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Virtual Channels")
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No virtual channel traffic recorded.", "", "L", false)
		pdf.Ln(4)
		return
	}

	sorted := make([]VCSummary, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VCID < sorted[j].VCID })

	headers := []string{"VCID", "Received", "Lost"}
	widths := []float64{30, 60, 60}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range sorted {
		pdf.CellFormat(widths[0], 6, strconv.Itoa(int(row.VCID)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, strconv.FormatInt(row.Received, 10), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, strconv.FormatInt(row.Lost, 10), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addQRSection(pdf *gofpdf.Fpdf, hash string) error {
	png, err := ManifestHashToQR(hash, 256)
	if err != nil {
		return err
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Manifest Hash")
	pdf.Ln(9)

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("manifest-qr", opt, bytes.NewReader(png))
	pdf.ImageOptions("manifest-qr", pdf.GetX(), pdf.GetY(), 30, 30, false, opt, 0, "")
	pdf.Ln(32)

	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 4, "SHA-256: "+hash, "", "L", false)
	return nil
}
