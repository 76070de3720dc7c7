package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSheets() []Sheet {
	return []Sheet{
		{
			Title:   "Timetable for Section: A",
			Headers: []string{"Day", "08:00\n08:55", "BREAK\n09:50-10:20"},
			Rows:    [][]string{{"MONDAY", "Maths\n(Alice)", ""}},
			Shaded:  map[int]bool{2: true},
		},
		{
			Title:   "Timetable for Section: B",
			Headers: []string{"Day", "08:00\n08:55", "BREAK\n09:50-10:20"},
			Rows:    [][]string{{"MONDAY"}},
			Shaded:  map[int]bool{2: true},
		},
	}
}

func TestCSVExporterRenderSheets(t *testing.T) {
	out, err := NewCSVExporter(0).RenderSheets(sampleSheets())
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "Timetable for Section: A\n"))
	assert.Contains(t, text, "\"Maths\n(Alice)\"")
	assert.Contains(t, text, "\nTimetable for Section: B\n")
	assert.Contains(t, text, "MONDAY,,\n")
}

type record struct {
	Section string `csv:"section"`
	Subject string `csv:"subject"`
}

func TestCSVExporterRenderRecords(t *testing.T) {
	out, err := NewCSVExporter(';').RenderRecords([]record{{Section: "A", Subject: "Maths"}})
	require.NoError(t, err)
	assert.Equal(t, "section;subject\nA;Maths\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleSheets())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	_, err = NewPDFExporter().Render(nil)
	assert.Error(t, err)
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(sampleSheets()[0])
	total := 0.0
	for _, w := range widths {
		total += w
	}
	assert.InDelta(t, pageWidth-2*margin, total, 1e-9)
	assert.Equal(t, shadedColW, widths[2])
}
