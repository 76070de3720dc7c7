package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"
)

// Sheet is one titled table. Shaded marks column indexes rendered as
// non-teaching columns.
type Sheet struct {
	Title   string
	Headers []string
	Rows    [][]string
	Shaded  map[int]bool
}

// CSVExporter renders sheets and flat records into CSV bytes.
type CSVExporter struct {
	comma rune
}

// NewCSVExporter builds a CSV exporter. A zero delimiter means comma.
func NewCSVExporter(comma rune) *CSVExporter {
	if comma == 0 {
		comma = ','
	}
	return &CSVExporter{comma: comma}
}

// RenderSheets writes each sheet as a block: an optional title line, the
// header row and the body, separated by a blank line.
func (e *CSVExporter) RenderSheets(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("csv requires at least one sheet")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma
	for i, sheet := range sheets {
		if len(sheet.Headers) == 0 {
			return nil, fmt.Errorf("sheet %q has no headers", sheet.Title)
		}
		if i > 0 {
			if err := writer.Write([]string{}); err != nil {
				return nil, fmt.Errorf("write csv separator: %w", err)
			}
		}
		if sheet.Title != "" {
			if err := writer.Write([]string{sheet.Title}); err != nil {
				return nil, fmt.Errorf("write csv title: %w", err)
			}
		}
		if err := writer.Write(sheet.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		for _, row := range sheet.Rows {
			record := make([]string, len(sheet.Headers))
			copy(record, row)
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderRecords marshals a slice of csv-tagged structs.
func (e *CSVExporter) RenderRecords(records interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma
	if err := gocsv.MarshalCSV(records, gocsv.NewSafeCSVWriter(writer)); err != nil {
		return nil, fmt.Errorf("marshal csv records: %w", err)
	}
	return buf.Bytes(), nil
}
