package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets and certificates into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Certificate holds the fields printed on a leaving certificate.
type Certificate struct {
	InstitutionName string
	Title           string
	SerialNumber    string
	StudentName     string
	AdmissionNumber string
	ClassName       string
	SectionName     string
	EffectiveDate   string
	Reason          string
	IssuedAt        string
}

// RenderCertificate creates a single-page leaving certificate document.
func (e *PDFExporter) RenderCertificate(cert Certificate) ([]byte, error) {
	if cert.StudentName == "" {
		return nil, fmt.Errorf("certificate requires a student name")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	if cert.InstitutionName != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, cert.InstitutionName, "", 1, "C", false, 0, "")
	}
	title := cert.Title
	if title == "" {
		title = "Transfer Certificate"
	}
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Serial No.", cert.SerialNumber},
		{"Student Name", cert.StudentName},
		{"Admission No.", cert.AdmissionNumber},
		{"Class", cert.ClassName},
		{"Section", cert.SectionName},
		{"Date of Leaving", cert.EffectiveDate},
		{"Reason", cert.Reason},
	}
	pdf.SetFont("Arial", "", 11)
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(55, 9, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(0, 9, row[1], "", "", false)
	}

	if cert.IssuedAt != "" {
		pdf.Ln(12)
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, fmt.Sprintf("Issued on %s", cert.IssuedAt), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
