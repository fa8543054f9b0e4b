package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/blinkpdf/internal/imagerender"
	"github.com/local/blinkpdf/internal/ocr"
	"github.com/local/blinkpdf/internal/tools"
)

func (e *Engine) watermark(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	text := opts.Get("text", "")
	if text == "" {
		return Output{}, fmt.Errorf("watermark-pdf needs a text option")
	}
	opacity := opts.Float("opacity", 0.3)
	if opacity <= 0 || opacity > 1 {
		return Output{}, fmt.Errorf("opacity must be in (0, 1], got %v", opts.Get("opacity", ""))
	}
	rotation := opts.Int("rotation", 45)

	desc := fmt.Sprintf("font:Helvetica, points:48, op:%.2f, rot:%d, fillc:#808080", opacity, rotation)
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return Output{}, fmt.Errorf("build watermark: %w", err)
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.AddWatermarksFile(in.Path, outPath, nil, wm, conf()); err != nil {
		return Output{}, fmt.Errorf("watermark: %w", err)
	}
	return out, nil
}

// positions accepted by number-pdf, pdfcpu anchor names
var numberPositions = map[string]bool{
	"tl": true, "tc": true, "tr": true,
	"bl": true, "bc": true, "br": true,
}

func (e *Engine) numberPages(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	pos := opts.Get("position", "bc")
	if !numberPositions[pos] {
		return Output{}, fmt.Errorf("position must be one of tl, tc, tr, bl, bc, br, got %q", pos)
	}

	// %p and %P expand to the page number and page count.
	desc := fmt.Sprintf("font:Helvetica, points:10, pos:%s, off:0 12, op:1, fillc:#000000, rot:0", pos)
	wm, err := api.TextWatermark("%p of %P", desc, true, false, types.POINTS)
	if err != nil {
		return Output{}, fmt.Errorf("build page number stamp: %w", err)
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.AddWatermarksFile(in.Path, outPath, nil, wm, conf()); err != nil {
		return Output{}, fmt.Errorf("number pages: %w", err)
	}
	return out, nil
}

// sign stamps a signature image onto selected pages (default: the last one).
func (e *Engine) sign(tool *tools.Tool, inputs []Input, opts Options, workDir string) (Output, error) {
	var pdfIn, imgIn *Input
	for i := range inputs {
		if strings.EqualFold(filepath.Ext(inputs[i].Path), ".pdf") {
			pdfIn = &inputs[i]
		} else {
			imgIn = &inputs[i]
		}
	}
	if pdfIn == nil || imgIn == nil {
		return Output{}, fmt.Errorf("sign-pdf needs one PDF and one signature image")
	}

	n, err := pageCount(pdfIn.Path)
	if err != nil {
		return Output{}, err
	}
	sel := []string{fmt.Sprintf("%d", n)}
	if spec := opts.Get("pages", ""); spec != "" {
		pages, err := ParsePageSpec(spec, n)
		if err != nil {
			return Output{}, err
		}
		sel = selection(pages)
	}

	pos := opts.Get("position", "br")
	if !numberPositions[pos] {
		return Output{}, fmt.Errorf("position must be one of tl, tc, tr, bl, bc, br, got %q", pos)
	}
	scale := opts.Float("scale", 0.25)
	if scale <= 0 || scale > 1 {
		return Output{}, fmt.Errorf("scale must be in (0, 1], got %v", opts.Get("scale", ""))
	}

	desc := fmt.Sprintf("pos:%s, sc:%.2f rel, rot:0, op:1, off:-20 20", pos, scale)
	wm, err := api.ImageWatermark(imgIn.Path, desc, true, false, types.POINTS)
	if err != nil {
		return Output{}, fmt.Errorf("build signature stamp: %w", err)
	}

	outPath, out := e.result(tool, *pdfIn, workDir, ".pdf")
	if err := api.AddWatermarksFile(pdfIn.Path, outPath, sel, wm, conf()); err != nil {
		return Output{}, fmt.Errorf("sign: %w", err)
	}
	return out, nil
}

// markTerm drives annotate-pdf and redact-pdf. Hits are located through OCR
// word boxes on a page render; pages containing the term are replaced with a
// marked raster version, everything else stays untouched.
func (e *Engine) markTerm(ctx context.Context, tool *tools.Tool, in Input, opts Options, workDir string, redact bool) (Output, error) {
	term := opts.Get("term", "")
	if term == "" {
		return Output{}, fmt.Errorf("%s needs a term option", tool.Slug)
	}
	if !e.tess.IsAvailable() {
		return Output{}, fmt.Errorf("%s requires tesseract", tool.Slug)
	}

	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}

	dir, err := tmpDir(workDir, "mark")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(dir)

	const dpi = 200
	replacements := make(map[int]string)
	for p := 1; p <= n; p++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		// Cheap pre-filter: pages with a text layer that lacks the term
		// cannot contain a hit.
		if text, err := e.extract.ExtractTextByPage(in.Path, p); err == nil && strings.TrimSpace(text) != "" {
			if !strings.Contains(strings.ToLower(text), strings.ToLower(term)) {
				continue
			}
		}

		img, err := imagerender.RenderPage(in.Path, p, dpi)
		if err != nil {
			return Output{}, err
		}
		imgPath := filepath.Join(dir, fmt.Sprintf("page_%05d.png", p))
		if err := imagerender.SavePNG(img, imgPath); err != nil {
			return Output{}, err
		}

		words, err := e.tess.Words(ctx, imgPath)
		if err != nil {
			return Output{}, fmt.Errorf("locate term on page %d: %w", p, err)
		}
		boxes := ocr.FindTerm(words, term)
		if len(boxes) == 0 {
			continue
		}

		rgba := imagerender.ToRGBA(img)
		for _, box := range boxes {
			box = box.Inset(-2)
			if redact {
				imagerender.FillRect(rgba, box, color.RGBA{0, 0, 0, 255})
			} else {
				imagerender.BlendRect(rgba, box, color.RGBA{255, 230, 0, 255}, 0.45)
			}
		}

		markedPath := filepath.Join(dir, fmt.Sprintf("marked_%05d.jpg", p))
		if err := imagerender.SaveJPEG(rgba, markedPath, 90); err != nil {
			return Output{}, err
		}
		partPath := filepath.Join(dir, fmt.Sprintf("marked_%05d.pdf", p))
		if err := api.ImportImagesFile([]string{markedPath}, partPath, nil, conf()); err != nil {
			return Output{}, fmt.Errorf("rebuild page %d: %w", p, err)
		}
		replacements[p] = partPath

		log.Debug().Int("page", p).Int("hits", len(boxes)).Bool("redact", redact).Msg("marked term occurrences")
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := e.replacePages(in.Path, outPath, workDir, n, replacements); err != nil {
		return Output{}, err
	}
	return out, nil
}

// metadata fields settable through the Info dict
var metadataKeys = map[string]string{
	"title":    "Title",
	"author":   "Author",
	"subject":  "Subject",
	"keywords": "Keywords",
	"creator":  "Creator",
}

func (e *Engine) editMetadata(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	props := make(map[string]string)

	if raw := opts.Get("metadata", ""); raw != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return Output{}, fmt.Errorf("metadata option is not a JSON object: %w", err)
		}
		for k, v := range m {
			if key, ok := metadataKeys[strings.ToLower(k)]; ok && v != "" {
				props[key] = v
			}
		}
	}
	for lower, key := range metadataKeys {
		if v := opts.Get(lower, ""); v != "" {
			props[key] = v
		}
	}
	if len(props) == 0 {
		return Output{}, fmt.Errorf("metadata-editor got no fields to set")
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.AddPropertiesFile(in.Path, outPath, props, conf()); err != nil {
		return Output{}, fmt.Errorf("edit metadata: %w", err)
	}
	return out, nil
}

// fillForms fills AcroForm fields. The fields option carries pdfcpu form
// JSON, the same format `pdfcpu form export` produces.
func (e *Engine) fillForms(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	raw := opts.Get("fields", "")
	if raw == "" {
		return Output{}, fmt.Errorf("fill-forms needs a fields option")
	}
	if !json.Valid([]byte(raw)) {
		return Output{}, fmt.Errorf("fields option is not valid JSON")
	}

	jsonPath := filepath.Join(workDir, "form_fields.json")
	if err := os.WriteFile(jsonPath, []byte(raw), 0o644); err != nil {
		return Output{}, fmt.Errorf("write form data: %w", err)
	}
	defer os.Remove(jsonPath)

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.FillFormFile(in.Path, jsonPath, outPath, conf()); err != nil {
		return Output{}, fmt.Errorf("fill forms: %w", err)
	}
	return out, nil
}

func (e *Engine) extractText(tool *tools.Tool, in Input, workDir string) (Output, error) {
	text, err := e.extract.ExtractText(in.Path)
	if err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Output{}, fmt.Errorf("no extractable text found; try ocr-pdf first")
	}

	outPath, out := e.result(tool, in, workDir, ".txt")
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return Output{}, fmt.Errorf("write text: %w", err)
	}
	return out, nil
}

func (e *Engine) extractImages(tool *tools.Tool, in Input, workDir string) (Output, error) {
	dir, err := tmpDir(workDir, "images")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractImagesFile(in.Path, dir, nil, conf()); err != nil {
		return Output{}, fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Output{}, fmt.Errorf("list extracted images: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return Output{}, fmt.Errorf("document contains no embedded images")
	}

	outPath, out := e.result(tool, in, workDir, ".zip")
	if err := zipFiles(files, outPath); err != nil {
		return Output{}, err
	}
	return out, nil
}
