package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 297.0
	margin      = 10.0
	headerH     = 12.0
	rowH        = 22.0
	lineH       = 4.5
	firstColW   = 26.0
	shadedColW  = 16.0
	titleFontSz = 14
)

// PDFExporter renders sheets as landscape A4 grids, one page per sheet.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws every sheet on its own page. Cell text may contain newlines.
func (e *PDFExporter) Render(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("pdf requires at least one sheet")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, sheet := range sheets {
		if len(sheet.Headers) == 0 {
			return nil, fmt.Errorf("sheet %q has no headers", sheet.Title)
		}
		pdf.AddPage()
		if sheet.Title != "" {
			pdf.SetFont("Arial", "B", titleFontSz)
			pdf.CellFormat(0, 10, tr(sheet.Title), "", 1, "C", false, 0, "")
			pdf.Ln(3)
		}

		widths := columnWidths(sheet)
		pdf.SetFont("Arial", "B", 9)
		drawRow(pdf, tr, sheet.Headers, widths, headerH, sheet.Shaded, true)
		pdf.SetFont("Arial", "", 8)
		for _, row := range sheet.Rows {
			drawRow(pdf, tr, row, widths, rowH, sheet.Shaded, false)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths gives the label column and shaded columns fixed widths and
// shares the rest of the page evenly.
func columnWidths(sheet Sheet) []float64 {
	n := len(sheet.Headers)
	widths := make([]float64, n)
	fixed, flexible := firstColW, 0
	widths[0] = firstColW
	for i := 1; i < n; i++ {
		if sheet.Shaded[i] {
			widths[i] = shadedColW
			fixed += shadedColW
			continue
		}
		flexible++
	}
	if flexible == 0 {
		return widths
	}
	share := (pageWidth - 2*margin - fixed) / float64(flexible)
	for i := 1; i < n; i++ {
		if !sheet.Shaded[i] {
			widths[i] = share
		}
	}
	return widths
}

func drawRow(pdf *gofpdf.Fpdf, tr func(string) string, cells []string, widths []float64, h float64, shaded map[int]bool, header bool) {
	x0, y := pdf.GetX(), pdf.GetY()
	x := x0
	for i, w := range widths {
		text := ""
		if i < len(cells) {
			text = cells[i]
		}
		style := "D"
		if shaded[i] || header {
			pdf.SetFillColor(220, 220, 220)
			style = "FD"
		}
		pdf.Rect(x, y, w, h, style)

		lines := strings.Split(text, "\n")
		textH := float64(len(lines)) * lineH
		pdf.SetXY(x, y+(h-textH)/2)
		for _, line := range lines {
			pdf.SetX(x)
			pdf.CellFormat(w, lineH, tr(line), "", 2, "C", false, 0, "")
		}
		x += w
	}
	pdf.SetXY(x0, y+h)
}
