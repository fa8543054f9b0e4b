package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/blinkpdf/internal/converter"
	"github.com/local/blinkpdf/internal/filetype"
	"github.com/local/blinkpdf/internal/mupdf"
	"github.com/local/blinkpdf/internal/ocr"
	"github.com/local/blinkpdf/internal/tools"
)

// Input is one uploaded file on disk.
type Input struct {
	Path         string
	OriginalName string
}

// Options carries tool options from the request form.
type Options map[string]string

func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func (o Options) Int(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(o[key])); err == nil {
		return n
	}
	return def
}

func (o Options) Float(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(o[key]), 64); err == nil {
		return f
	}
	return def
}

// Output is a finished result on disk with its download identity.
type Output struct {
	Path string
	Name string
	MIME string
}

// Engine executes the PDF tools. AI tools are handled by the dispatch
// pipeline, not here.
type Engine struct {
	conv    *converter.LibreOffice
	tess    *ocr.Tesseract
	extract mupdf.TextExtractor
}

// NewEngine wires the engine with its external bridges.
func NewEngine(conv *converter.LibreOffice, tess *ocr.Tesseract) *Engine {
	return &Engine{conv: conv, tess: tess, extract: mupdf.NewChain()}
}

// Run executes one tool. workDir is the job's scratch directory; the result
// file is written there under its download name.
func (e *Engine) Run(ctx context.Context, tool *tools.Tool, inputs []Input, opts Options, workDir string) (Output, error) {
	if len(inputs) < tool.MinFiles || len(inputs) > tool.MaxFiles {
		return Output{}, fmt.Errorf("tool %s takes %d-%d files, got %d", tool.Slug, tool.MinFiles, tool.MaxFiles, len(inputs))
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create work dir: %w", err)
	}

	start := time.Now()
	out, err := e.dispatch(ctx, tool, inputs, opts, workDir)
	if err != nil {
		log.Error().Err(err).Str("tool", tool.Slug).Msg("tool execution failed")
		return Output{}, err
	}

	log.Info().
		Str("tool", tool.Slug).
		Str("result", out.Name).
		Dur("duration", time.Since(start)).
		Msg("tool execution complete")
	return out, nil
}

func (e *Engine) dispatch(ctx context.Context, tool *tools.Tool, inputs []Input, opts Options, workDir string) (Output, error) {
	in := inputs[0]
	switch tool.Slug {
	case "merge-pdf":
		return e.merge(tool, inputs, workDir)
	case "split-pdf":
		return e.split(tool, in, opts, workDir)
	case "remove-pages":
		return e.removePages(tool, in, opts, workDir)
	case "extract-pages":
		return e.extractPages(tool, in, opts, workDir)
	case "organize-pdf":
		return e.organize(tool, in, opts, workDir)
	case "rotate-pdf":
		return e.rotate(tool, in, opts, workDir)
	case "compress-pdf":
		return e.compress(ctx, tool, in, opts, workDir)
	case "optimize-pdf":
		return e.optimize(tool, in, workDir)
	case "repair-pdf":
		return e.repair(tool, in, workDir)
	case "flatten-pdf":
		return e.flatten(ctx, tool, in, workDir)
	case "crop-pdf":
		return e.crop(tool, in, workDir)
	case "resize-pdf":
		return e.resize(tool, in, opts, workDir)
	case "deskew-pdf":
		return e.deskew(ctx, tool, in, workDir)
	case "background-remover":
		return e.cleanBackground(ctx, tool, in, workDir)
	case "ocr-pdf":
		return e.ocrPDF(ctx, tool, in, workDir)
	case "watermark-pdf":
		return e.watermark(tool, in, opts, workDir)
	case "number-pdf":
		return e.numberPages(tool, in, opts, workDir)
	case "sign-pdf":
		return e.sign(tool, inputs, opts, workDir)
	case "annotate-pdf":
		return e.markTerm(ctx, tool, in, opts, workDir, false)
	case "redact-pdf":
		return e.markTerm(ctx, tool, in, opts, workDir, true)
	case "metadata-editor":
		return e.editMetadata(tool, in, opts, workDir)
	case "fill-forms":
		return e.fillForms(tool, in, opts, workDir)
	case "extract-text":
		return e.extractText(tool, in, workDir)
	case "extract-images":
		return e.extractImages(tool, in, workDir)
	case "protect-pdf":
		return e.protect(tool, in, opts, workDir)
	case "unlock-pdf":
		return e.unlock(tool, in, opts, workDir)
	case "pdf-to-jpg":
		return e.pdfToJPG(tool, in, opts, workDir)
	case "jpg-to-pdf":
		return e.imagesToPDF(tool, inputs, workDir)
	case "pdf-to-word":
		return e.viaLibreOffice(ctx, tool, in, workDir, converter.TargetDocx, ".docx")
	case "word-to-pdf", "excel-to-pdf", "ppt-to-pdf":
		return e.viaLibreOffice(ctx, tool, in, workDir, converter.TargetPDF, ".pdf")
	case "pdf-to-excel":
		return e.pdfToExcel(ctx, tool, in, workDir)
	case "pdf-to-ppt":
		return e.viaLibreOffice(ctx, tool, in, workDir, converter.TargetPptx, ".pptx")
	default:
		return Output{}, fmt.Errorf("tool %s has no engine operation", tool.Slug)
	}
}

// conf returns a fresh pdfcpu configuration with relaxed validation, which
// tolerates the slightly broken files real users upload.
func conf() *model.Configuration {
	c := model.NewDefaultConfiguration()
	c.ValidationMode = model.ValidationRelaxed
	return c
}

// pageCount wraps pdfcpu's counter with a friendlier error.
func pageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("document has no pages")
	}
	return n, nil
}

// result builds the Output for a finished file.
func (e *Engine) result(tool *tools.Tool, in Input, workDir, ext string) (string, Output) {
	name := tool.DownloadName(baseName(in), ext)
	path := filepath.Join(workDir, name)
	return path, Output{Path: path, Name: name, MIME: filetype.MIMEForName(name)}
}

func baseName(in Input) string {
	b := filepath.Base(in.OriginalName)
	b = strings.TrimSuffix(b, filepath.Ext(b))
	b = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, b)
	if b == "" {
		b = "document"
	}
	return b
}

// tmpDir returns a scratch directory under the job work dir.
func tmpDir(workDir, label string) (string, error) {
	dir := filepath.Join(workDir, "tmp_"+label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}
