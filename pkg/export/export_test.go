package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	out, err := exporter.Render(Dataset{
		Headers: []string{"title", "price"},
		Rows: []map[string]string{
			{"title": "Go Basics", "price": "19.99"},
			{"title": "=HYPERLINK(\"x\")", "price": "0.00"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "title,price\nGo Basics,19.99\n\"'=HYPERLINK(\"\"x\"\")\",0.00\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestCertificateRendererRender(t *testing.T) {
	out, err := NewCertificateRenderer().Render(Certificate{
		CertificateID: "enr-1",
		StudentName:   "Ada Lovelace",
		CourseTitle:   "Analytical Engines",
		CompletedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCertificateRendererValidates(t *testing.T) {
	_, err := NewCertificateRenderer().Render(Certificate{CourseTitle: "x"})
	assert.Error(t, err)
}
