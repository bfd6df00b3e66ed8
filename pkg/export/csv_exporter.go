package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column maps a row key onto a rendered header title.
type Column struct {
	Key   string
	Title string
}

// Dataset defines tabular export content.
type Dataset struct {
	Columns []Column
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	titles := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		titles[i] = col.Title
	}
	if err := writer.Write(titles); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Columns))
		for i, col := range data.Columns {
			record[i] = row[col.Key]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
