package pdf

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/blinkpdf/internal/converter"
	"github.com/local/blinkpdf/internal/ocr"
	"github.com/local/blinkpdf/internal/tools"
)

func newTestEngine() *Engine {
	return NewEngine(
		converter.NewLibreOffice("soffice", 1, time.Minute),
		ocr.NewTesseract("tesseract", "eng", time.Minute),
	)
}

func TestOptionsHelpers(t *testing.T) {
	opts := Options{
		"level":   "high",
		"angle":   "180",
		"opacity": "0.5",
		"blank":   "   ",
	}

	assert.Equal(t, "high", opts.Get("level", "medium"))
	assert.Equal(t, "medium", opts.Get("missing", "medium"))
	assert.Equal(t, "fallback", opts.Get("blank", "fallback"))
	assert.Equal(t, 180, opts.Int("angle", 90))
	assert.Equal(t, 90, opts.Int("missing", 90))
	assert.Equal(t, 90, opts.Int("level", 90))
	assert.InDelta(t, 0.5, opts.Float("opacity", 0.3), 0.001)
	assert.InDelta(t, 0.3, opts.Float("missing", 0.3), 0.001)
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		original string
		want     string
	}{
		{"report.pdf", "report"},
		{"My Report (final).pdf", "My_Report__final_"},
		{"../../etc/passwd", "passwd"},
		{".pdf", "document"},
		{"", "document"},
		{"übersicht.pdf", "_bersicht"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, baseName(Input{OriginalName: tt.original}), tt.original)
	}
}

func TestRunRejectsWrongFileCount(t *testing.T) {
	e := newTestEngine()
	merge, err := tools.BySlug("merge-pdf")
	require.NoError(t, err)

	_, err = e.Run(context.Background(), merge, []Input{{Path: "one.pdf"}}, nil, t.TempDir())
	assert.ErrorContains(t, err, "takes 2-20 files")
}

func TestDispatchUnknownTool(t *testing.T) {
	e := newTestEngine()
	fake := &tools.Tool{Slug: "no-such-op", MinFiles: 1, MaxFiles: 1}

	_, err := e.Run(context.Background(), fake, []Input{{Path: "a.pdf"}}, nil, t.TempDir())
	assert.ErrorContains(t, err, "no engine operation")
}

func TestCompressLevelValidation(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("compress-pdf")
	require.NoError(t, err)

	_, err = e.compress(context.Background(), tool, Input{Path: "x.pdf"}, Options{"level": "extreme"}, t.TempDir())
	assert.ErrorContains(t, err, "compression level")
}

func TestWatermarkOptionValidation(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("watermark-pdf")
	require.NoError(t, err)

	_, err = e.watermark(tool, Input{Path: "x.pdf"}, Options{}, t.TempDir())
	assert.ErrorContains(t, err, "text option")

	_, err = e.watermark(tool, Input{Path: "x.pdf"}, Options{"text": "DRAFT", "opacity": "1.5"}, t.TempDir())
	assert.ErrorContains(t, err, "opacity")
}

func TestNumberPagesPositionValidation(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("number-pdf")
	require.NoError(t, err)

	_, err = e.numberPages(tool, Input{Path: "x.pdf"}, Options{"position": "middle"}, t.TempDir())
	assert.ErrorContains(t, err, "position")
}

func TestProtectPasswordValidation(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("protect-pdf")
	require.NoError(t, err)

	_, err = e.protect(tool, Input{Path: "x.pdf"}, Options{"password": "ab"}, t.TempDir())
	assert.ErrorContains(t, err, "at least 4 characters")
}

func TestFillFormsRejectsBadJSON(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("fill-forms")
	require.NoError(t, err)

	_, err = e.fillForms(tool, Input{Path: "x.pdf"}, Options{"fields": "{not json"}, t.TempDir())
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = e.fillForms(tool, Input{Path: "x.pdf"}, Options{}, t.TempDir())
	assert.ErrorContains(t, err, "fields option")
}

func TestMetadataEditorNeedsFields(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("metadata-editor")
	require.NoError(t, err)

	_, err = e.editMetadata(tool, Input{Path: "x.pdf"}, Options{}, t.TempDir())
	assert.ErrorContains(t, err, "no fields")

	_, err = e.editMetadata(tool, Input{Path: "x.pdf"}, Options{"metadata": "[1,2]"}, t.TempDir())
	assert.ErrorContains(t, err, "JSON object")
}

func TestResultNaming(t *testing.T) {
	e := newTestEngine()
	tool, err := tools.BySlug("compress-pdf")
	require.NoError(t, err)

	dir := t.TempDir()
	path, out := e.result(tool, Input{OriginalName: "contract.pdf"}, dir, ".pdf")

	assert.Equal(t, filepath.Join(dir, "contract_compressed.pdf"), path)
	assert.Equal(t, "contract_compressed.pdf", out.Name)
	assert.Equal(t, "application/pdf", out.MIME)
}

func TestZipFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0o644))

	zipPath := filepath.Join(dir, "out.zip")
	require.NoError(t, zipFiles([]string{a, b}, zipPath))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestZipFilesMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := zipFiles([]string{filepath.Join(dir, "missing.txt")}, filepath.Join(dir, "out.zip"))
	assert.Error(t, err)
}

func TestReplacePagesNoReplacementsCopies(t *testing.T) {
	e := newTestEngine()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.7 fake"), 0o644))

	require.NoError(t, e.replacePages(src, dst, dir, 3, nil))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(data))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, clamp(5, 0, 10))
	assert.Equal(t, 0.0, clamp(-1, 0, 10))
	assert.Equal(t, 10.0, clamp(42, 0, 10))
}
