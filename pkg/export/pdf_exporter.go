package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed in the certificate body.
type Field struct {
	Label string
	Value string
}

// Certificate describes a single-page clearance document.
type Certificate struct {
	Title     string
	Subtitle  string
	Reference string
	Fields    []Field
	Table     Dataset
	Footer    string
}

// PDFExporter renders certificates into A4 PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderCertificate lays out the title block, key/value fields and an optional table.
func (e *PDFExporter) RenderCertificate(doc Certificate) ([]byte, error) {
	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("certificate requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	if doc.Reference != "" {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, tr("Ref: "+doc.Reference), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	for _, field := range doc.Fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 7, tr(field.Label), "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 7, tr(field.Value), "", "", false)
	}

	if len(doc.Table.Columns) > 0 {
		pdf.Ln(4)
		width := 180.0 / float64(len(doc.Table.Columns))
		pdf.SetFont("Arial", "B", 10)
		for _, col := range doc.Table.Columns {
			pdf.CellFormat(width, 8, tr(col.Title), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, row := range doc.Table.Rows {
			for _, col := range doc.Table.Columns {
				pdf.CellFormat(width, 7, tr(row[col.Key]), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if doc.Footer != "" {
		pdf.Ln(10)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, tr(doc.Footer), "", "C", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
