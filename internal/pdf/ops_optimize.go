package pdf

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/blinkpdf/internal/imagerender"
	"github.com/local/blinkpdf/internal/pdftest"
	"github.com/local/blinkpdf/internal/tools"
)

// compression levels, DPI and JPEG quality per level
var compressLevels = map[string]struct {
	dpi     int
	quality int
}{
	"low":    {150, 80},
	"medium": {120, 60},
	"high":   {96, 40},
}

func (e *Engine) compress(ctx context.Context, tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	level := opts.Get("level", "medium")
	params, ok := compressLevels[level]
	if !ok {
		return Output{}, fmt.Errorf("compression level must be low, medium or high, got %q", level)
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := e.rasterRebuild(ctx, in.Path, outPath, workDir, params.dpi, params.quality, nil); err != nil {
		return Output{}, err
	}

	// Recompression can lose against an already tight file.
	if origInfo, err := os.Stat(in.Path); err == nil {
		if newInfo, err := os.Stat(outPath); err == nil && newInfo.Size() >= origInfo.Size() {
			log.Info().Int64("original", origInfo.Size()).Int64("recompressed", newInfo.Size()).Msg("recompression grew the file, keeping original")
			if err := copyFile(in.Path, outPath); err != nil {
				return Output{}, err
			}
		}
	}
	return out, nil
}

func (e *Engine) optimize(tool *tools.Tool, in Input, workDir string) (Output, error) {
	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.OptimizeFile(in.Path, outPath, conf()); err != nil {
		return Output{}, fmt.Errorf("optimize: %w", err)
	}
	return out, nil
}

// repair rewrites the document with relaxed validation, which rebuilds the
// xref table and drops unreadable objects.
func (e *Engine) repair(tool *tools.Tool, in Input, workDir string) (Output, error) {
	if err := api.ValidateFile(in.Path, conf()); err != nil {
		log.Warn().Err(err).Str("file", in.Path).Msg("validation failed, attempting rewrite anyway")
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.OptimizeFile(in.Path, outPath, conf()); err != nil {
		return Output{}, fmt.Errorf("repair: %w", err)
	}
	return out, nil
}

func (e *Engine) flatten(ctx context.Context, tool *tools.Tool, in Input, workDir string) (Output, error) {
	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := e.rasterRebuild(ctx, in.Path, outPath, workDir, 200, 90, nil); err != nil {
		return Output{}, err
	}
	return out, nil
}

// crop trims each page to its rendered content bounding box plus a small
// margin. Blank pages keep their size.
func (e *Engine) crop(tool *tools.Tool, in Input, workDir string) (Output, error) {
	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}

	const dpi = 150.0
	const marginPts = 8.0
	ptsPerPx := 72.0 / dpi

	outPath, out := e.result(tool, in, workDir, ".pdf")
	cur := in.Path
	for p := 1; p <= n; p++ {
		img, err := imagerender.RenderPage(cur, p, dpi)
		if err != nil {
			return Output{}, err
		}
		gray := imagerender.ToGrayscale(img)
		content, ok := imagerender.ContentBounds(gray)
		if !ok {
			continue
		}

		pageH := float64(img.Bounds().Dy()) * ptsPerPx
		pageW := float64(img.Bounds().Dx()) * ptsPerPx
		llx := clamp(float64(content.Min.X)*ptsPerPx-marginPts, 0, pageW)
		urx := clamp(float64(content.Max.X)*ptsPerPx+marginPts, 0, pageW)
		ury := clamp(pageH-float64(content.Min.Y)*ptsPerPx+marginPts, 0, pageH)
		lly := clamp(pageH-float64(content.Max.Y)*ptsPerPx-marginPts, 0, pageH)

		box, err := model.ParseBox(fmt.Sprintf("[%.1f %.1f %.1f %.1f]", llx, lly, urx, ury), types.POINTS)
		if err != nil {
			return Output{}, fmt.Errorf("build crop box for page %d: %w", p, err)
		}

		next := filepath.Join(workDir, fmt.Sprintf("crop_step_%05d.pdf", p))
		if err := api.CropFile(cur, next, []string{fmt.Sprintf("%d", p)}, box, conf()); err != nil {
			return Output{}, fmt.Errorf("crop page %d: %w", p, err)
		}
		if cur != in.Path {
			os.Remove(cur)
		}
		cur = next
	}

	if cur == in.Path {
		// Every page was blank.
		if err := copyFile(in.Path, outPath); err != nil {
			return Output{}, err
		}
		return out, nil
	}
	if err := os.Rename(cur, outPath); err != nil {
		return Output{}, fmt.Errorf("finalize crop: %w", err)
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *Engine) resize(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	scale := opts.Float("scale", 0)
	if scale <= 0 || scale > 10 {
		return Output{}, fmt.Errorf("scale must be in (0, 10], got %v", opts.Get("scale", ""))
	}

	rs, err := pdfcpu.ParseResizeConfig(fmt.Sprintf("scale:%.4f", scale), types.POINTS)
	if err != nil {
		return Output{}, fmt.Errorf("build resize config: %w", err)
	}

	var sel []string
	if spec := opts.Get("pages", ""); spec != "" {
		n, err := pageCount(in.Path)
		if err != nil {
			return Output{}, err
		}
		pages, err := ParsePageSpec(spec, n)
		if err != nil {
			return Output{}, err
		}
		sel = selection(pages)
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.ResizeFile(in.Path, outPath, sel, rs, conf()); err != nil {
		return Output{}, fmt.Errorf("resize: %w", err)
	}
	return out, nil
}

// deskew straightens crooked scans by estimating the text-line angle per
// page and rotating the render back.
func (e *Engine) deskew(ctx context.Context, tool *tools.Tool, in Input, workDir string) (Output, error) {
	outPath, out := e.result(tool, in, workDir, ".pdf")
	err := e.rasterRebuild(ctx, in.Path, outPath, workDir, 200, 85, func(pageNum int, img image.Image) (image.Image, error) {
		gray := imagerender.ToGrayscale(img)
		angle := imagerender.EstimateSkew(gray)
		if angle > -0.5 && angle < 0.5 {
			return img, nil
		}
		log.Debug().Int("page", pageNum).Float64("angle", angle).Msg("deskewing page")
		return imagerender.Rotate(img, angle), nil
	})
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// cleanBackground grayscales pages and stretches contrast, which washes out
// scanner shadows and paper tint.
func (e *Engine) cleanBackground(ctx context.Context, tool *tools.Tool, in Input, workDir string) (Output, error) {
	outPath, out := e.result(tool, in, workDir, ".pdf")
	err := e.rasterRebuild(ctx, in.Path, outPath, workDir, 200, 85, func(pageNum int, img image.Image) (image.Image, error) {
		gray := imagerender.ToGrayscale(img)
		return imagerender.AutoContrast(gray, 0.01), nil
	})
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// ocrPDF produces a searchable PDF. Documents that already carry a text
// layer pass through unchanged.
func (e *Engine) ocrPDF(ctx context.Context, tool *tools.Tool, in Input, workDir string) (Output, error) {
	if !e.tess.IsAvailable() {
		return Output{}, fmt.Errorf("tesseract is not installed")
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")

	hasText, diag, err := pdftest.HasExtractableText(in.Path, 0)
	if err != nil {
		return Output{}, fmt.Errorf("probe text layer: %w", err)
	}
	if hasText {
		log.Info().Int("sample_chars", diag.TotalCharsInSample).Msg("document already has a text layer, skipping OCR")
		if err := copyFile(in.Path, outPath); err != nil {
			return Output{}, err
		}
		return out, nil
	}

	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}

	dir, err := tmpDir(workDir, "ocr")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(dir)

	var pageParts []string
	for p := 1; p <= n; p++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		img, err := imagerender.RenderPage(in.Path, p, 300)
		if err != nil {
			return Output{}, err
		}
		imgPath := filepath.Join(dir, fmt.Sprintf("page_%05d.png", p))
		if err := imagerender.SavePNG(img, imgPath); err != nil {
			return Output{}, err
		}

		base := filepath.Join(dir, fmt.Sprintf("ocr_%05d", p))
		part, err := e.tess.SearchablePDF(ctx, imgPath, base)
		if err != nil {
			return Output{}, fmt.Errorf("ocr page %d: %w", p, err)
		}
		pageParts = append(pageParts, part)
	}

	if len(pageParts) == 1 {
		if err := copyFile(pageParts[0], outPath); err != nil {
			return Output{}, err
		}
		return out, nil
	}
	if err := api.MergeCreateFile(pageParts, outPath, false, conf()); err != nil {
		return Output{}, fmt.Errorf("merge OCR pages: %w", err)
	}
	return out, nil
}
