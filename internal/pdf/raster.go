package pdf

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/blinkpdf/internal/imagerender"
)

// pageFunc transforms one rendered page. Returning the input unchanged is
// fine. pageNum is 1-based.
type pageFunc func(pageNum int, img image.Image) (image.Image, error)

// rasterRebuild renders every page of inPath at the given DPI, runs fn over
// each render and rebuilds a PDF from the results. This is how the raster
// tools (compress, flatten, deskew, background cleanup) work: there is no
// in-place page editing, the page becomes an image.
func (e *Engine) rasterRebuild(ctx context.Context, inPath, outPath, workDir string, dpi, quality int, fn pageFunc) error {
	doc, err := fitz.New(inPath)
	if err != nil {
		return fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	dir, err := tmpDir(workDir, "raster")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}

		var final image.Image = img
		if fn != nil {
			final, err = fn(i+1, img)
			if err != nil {
				return fmt.Errorf("process page %d: %w", i+1, err)
			}
		}

		path := filepath.Join(dir, fmt.Sprintf("page_%05d.jpg", i+1))
		if err := imagerender.SaveJPEG(final, path, quality); err != nil {
			return err
		}
		pages = append(pages, path)
	}
	if len(pages) == 0 {
		return fmt.Errorf("document has no pages")
	}

	if err := api.ImportImagesFile(pages, outPath, nil, conf()); err != nil {
		return fmt.Errorf("rebuild PDF from pages: %w", err)
	}
	return nil
}

// replacePages rebuilds inPath with the pages listed in replacements swapped
// for single-page raster PDFs, keeping all other pages untouched. Used by the
// term marking tools which only touch pages containing hits.
func (e *Engine) replacePages(inPath, outPath, workDir string, total int, replacements map[int]string) error {
	if len(replacements) == 0 {
		return copyFile(inPath, outPath)
	}

	dir, err := tmpDir(workDir, "pages")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	// Build the document back up page by page, then merge once.
	var parts []string
	for p := 1; p <= total; p++ {
		if repl, ok := replacements[p]; ok {
			parts = append(parts, repl)
			continue
		}
		part := filepath.Join(dir, fmt.Sprintf("orig_%05d.pdf", p))
		if err := api.CollectFile(inPath, part, []string{fmt.Sprintf("%d", p)}, conf()); err != nil {
			return fmt.Errorf("extract page %d: %w", p, err)
		}
		parts = append(parts, part)
	}

	if err := api.MergeCreateFile(parts, outPath, false, conf()); err != nil {
		return fmt.Errorf("reassemble document: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
