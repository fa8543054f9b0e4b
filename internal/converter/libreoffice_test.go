package converter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLibreOfficeDefaults(t *testing.T) {
	l := NewLibreOffice("", 0, 0)

	assert.Equal(t, "soffice", l.binary)
	assert.Equal(t, 1, cap(l.semaphore))
	assert.Equal(t, 180*time.Second, l.timeout)
}

func TestProducedPath(t *testing.T) {
	l := NewLibreOffice("soffice", 1, time.Minute)

	tests := []struct {
		input  string
		format string
		want   string
	}{
		{"/tmp/in/report.docx", "pdf", "/tmp/out/report.pdf"},
		{"/tmp/in/scan.pdf", "docx", "/tmp/out/scan.docx"},
		{"/tmp/in/noext", "pdf", "/tmp/out/noext.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.producedPath(tt.input, "/tmp/out", tt.format))
	}
}

func TestValidateInput(t *testing.T) {
	l := NewLibreOffice("soffice", 1, time.Minute)
	dir := t.TempDir()

	assert.Error(t, l.validateInput(filepath.Join(dir, "missing.docx")))
	assert.Error(t, l.validateInput(dir), "directories are rejected")

	empty := filepath.Join(dir, "empty.docx")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Error(t, l.validateInput(empty), "empty files are rejected")

	ok := filepath.Join(dir, "ok.docx")
	require.NoError(t, os.WriteFile(ok, []byte("content"), 0o644))
	assert.NoError(t, l.validateInput(ok))
}

func TestTargets(t *testing.T) {
	assert.Equal(t, "writer_pdf_import", TargetDocx.InFilter)
	assert.Equal(t, "impress_pdf_import", TargetPptx.InFilter)
	assert.Empty(t, TargetPDF.InFilter)
	assert.Empty(t, TargetXlsx.InFilter)
}
