package pdf

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/blinkpdf/internal/converter"
	"github.com/local/blinkpdf/internal/imagerender"
	"github.com/local/blinkpdf/internal/tools"
)

func (e *Engine) pdfToJPG(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	dpi := opts.Int("dpi", 150)
	if dpi < 36 || dpi > 600 {
		return Output{}, fmt.Errorf("dpi must be in [36, 600], got %d", dpi)
	}
	quality := opts.Int("quality", 90)
	if quality < 10 || quality > 100 {
		return Output{}, fmt.Errorf("quality must be in [10, 100], got %d", quality)
	}

	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}

	dir, err := tmpDir(workDir, "jpg")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(dir)

	mode := imagerender.ModeFromOption(opts.Get("color", ""))

	base := baseName(in)
	var files []string
	for p := 1; p <= n; p++ {
		data, _, _, err := imagerender.RenderPageToJPEG(in.Path, p, dpi, quality, mode)
		if err != nil {
			return Output{}, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_page_%03d.jpg", base, p))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return Output{}, fmt.Errorf("write page image: %w", err)
		}
		files = append(files, path)
	}

	// One page comes back as a bare JPEG, more as a ZIP.
	if n == 1 {
		outPath, out := e.result(tool, in, workDir, ".jpg")
		if err := os.Rename(files[0], outPath); err != nil {
			return Output{}, fmt.Errorf("finalize image: %w", err)
		}
		return out, nil
	}

	outPath, out := e.result(tool, in, workDir, ".zip")
	if err := zipFiles(files, outPath); err != nil {
		return Output{}, err
	}
	return out, nil
}

func (e *Engine) imagesToPDF(tool *tools.Tool, inputs []Input, workDir string) (Output, error) {
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}

	outPath, out := e.result(tool, inputs[0], workDir, ".pdf")
	if err := api.ImportImagesFile(paths, outPath, nil, conf()); err != nil {
		return Output{}, fmt.Errorf("images to PDF: %w", err)
	}
	return out, nil
}

func (e *Engine) viaLibreOffice(ctx context.Context, tool *tools.Tool, in Input, workDir string, target converter.Target, ext string) (Output, error) {
	outPath, out := e.result(tool, in, workDir, ext)

	res := e.conv.Convert(ctx, in.Path, outPath, target)
	if !res.Success {
		if res.IsProtected {
			return Output{}, fmt.Errorf("document is password protected, unlock it first")
		}
		return Output{}, fmt.Errorf("conversion failed: %s", res.Error)
	}
	out.Path = res.OutputPath
	return out, nil
}

var columnSplit = regexp.MustCompile(`\t|\s{2,}`)

// pdfToExcel extracts the text line by line, splits columns on tabs or runs
// of spaces, and lets LibreOffice turn the CSV into a real workbook.
func (e *Engine) pdfToExcel(ctx context.Context, tool *tools.Tool, in Input, workDir string) (Output, error) {
	text, err := e.extract.ExtractText(in.Path)
	if err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Output{}, fmt.Errorf("no extractable text found; try ocr-pdf first")
	}

	csvPath := filepath.Join(workDir, baseName(in)+".csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return Output{}, fmt.Errorf("create csv: %w", err)
	}
	w := csv.NewWriter(f)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := columnSplit.Split(line, -1)
		if err := w.Write(cols); err != nil {
			f.Close()
			return Output{}, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return Output{}, fmt.Errorf("flush csv: %w", err)
	}
	f.Close()
	defer os.Remove(csvPath)

	outPath, out := e.result(tool, in, workDir, ".xlsx")
	res := e.conv.Convert(ctx, csvPath, outPath, converter.TargetXlsx)
	if !res.Success {
		return Output{}, fmt.Errorf("conversion failed: %s", res.Error)
	}
	out.Path = res.OutputPath
	return out, nil
}

// TextToPDF renders a plain text file as a PDF, used for AI tool results
// that come back as text but download as PDF.
func (e *Engine) TextToPDF(ctx context.Context, textPath, outPath string) error {
	res := e.conv.Convert(ctx, textPath, outPath, converter.TargetPDF)
	if !res.Success {
		return fmt.Errorf("render text to PDF: %s", res.Error)
	}
	return nil
}
