package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate describes the content printed on a completion certificate.
type Certificate struct {
	CertificateID string
	StudentName   string
	CourseTitle   string
	Instructor    string
	CompletedAt   time.Time
	Issuer        string
}

// CertificateRenderer draws completion certificates as landscape PDFs.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a certificate renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render produces the PDF bytes for a certificate.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	if strings.TrimSpace(cert.StudentName) == "" || strings.TrimSpace(cert.CourseTitle) == "" {
		return nil, fmt.Errorf("certificate requires student name and course title")
	}
	issuer := cert.Issuer
	if issuer == "" {
		issuer = "LearnHub"
	}
	completed := cert.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetY(40)
	pdf.SetFont("Arial", "B", 28)
	pdf.CellFormat(0, 14, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 10, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 24)
	pdf.CellFormat(0, 14, tr(cert.StudentName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 10, "has successfully completed", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 20)
	pdf.MultiCell(0, 12, tr(cert.CourseTitle), "", "C", false)
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 12)
	if cert.Instructor != "" {
		pdf.CellFormat(0, 8, tr("Instructor: "+cert.Instructor), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 8, "Completed on "+completed.Format("January 2, 2006"), "", 1, "C", false, 0, "")

	pdf.SetY(180)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s certificate %s", issuer, cert.CertificateID)), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
