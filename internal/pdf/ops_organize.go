package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/blinkpdf/internal/tools"
)

func (e *Engine) merge(tool *tools.Tool, inputs []Input, workDir string) (Output, error) {
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}

	outPath, out := e.result(tool, inputs[0], workDir, ".pdf")
	if err := api.MergeCreateFile(paths, outPath, false, conf()); err != nil {
		return Output{}, fmt.Errorf("merge: %w", err)
	}
	return out, nil
}

// split extracts a page range, or with every=N cuts the document into
// N-page parts and zips them.
func (e *Engine) split(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	if every := opts.Int("every", 0); every > 0 {
		return e.splitEvery(tool, in, every, workDir)
	}

	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}
	pages, err := ParsePageSpec(opts.Get("pages", ""), n)
	if err != nil {
		return Output{}, err
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.CollectFile(in.Path, outPath, selection(pages), conf()); err != nil {
		return Output{}, fmt.Errorf("split: %w", err)
	}
	return out, nil
}

func (e *Engine) splitEvery(tool *tools.Tool, in Input, every int, workDir string) (Output, error) {
	dir, err := tmpDir(workDir, "split")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(dir)

	if err := api.SplitFile(in.Path, dir, every, conf()); err != nil {
		return Output{}, fmt.Errorf("split every %d: %w", every, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Output{}, fmt.Errorf("list split parts: %w", err)
	}
	var parts []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".pdf") {
			parts = append(parts, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return Output{}, fmt.Errorf("split produced no parts")
	}

	outPath, out := e.result(tool, in, workDir, ".zip")
	if err := zipFiles(parts, outPath); err != nil {
		return Output{}, err
	}
	return out, nil
}

func (e *Engine) removePages(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}
	spec := opts.Get("pages", "")
	if spec == "" {
		return Output{}, fmt.Errorf("remove-pages needs a pages option")
	}
	pages, err := ParsePageSpec(spec, n)
	if err != nil {
		return Output{}, err
	}
	if len(pages) >= n {
		return Output{}, fmt.Errorf("cannot remove all %d pages", n)
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.RemovePagesFile(in.Path, outPath, selection(pages), conf()); err != nil {
		return Output{}, fmt.Errorf("remove pages: %w", err)
	}
	return out, nil
}

func (e *Engine) extractPages(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}
	spec := opts.Get("pages", "")
	if spec == "" {
		return Output{}, fmt.Errorf("extract-pages needs a pages option")
	}
	pages, err := ParsePageSpec(spec, n)
	if err != nil {
		return Output{}, err
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.CollectFile(in.Path, outPath, selection(pages), conf()); err != nil {
		return Output{}, fmt.Errorf("extract pages: %w", err)
	}
	return out, nil
}

// organize keeps the pages listed in order, which reorders, duplicates and
// drops pages in one pass.
func (e *Engine) organize(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	n, err := pageCount(in.Path)
	if err != nil {
		return Output{}, err
	}
	order := opts.Get("order", "")
	if order == "" {
		return Output{}, fmt.Errorf("organize-pdf needs an order option")
	}

	var sel []string
	for _, part := range strings.Split(order, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Output{}, fmt.Errorf("invalid page number %q in order", part)
		}
		if p < 1 || p > n {
			return Output{}, fmt.Errorf("page %d out of range 1-%d", p, n)
		}
		sel = append(sel, strconv.Itoa(p))
	}
	if len(sel) == 0 {
		return Output{}, fmt.Errorf("order selects no pages")
	}

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.CollectFile(in.Path, outPath, sel, conf()); err != nil {
		return Output{}, fmt.Errorf("organize: %w", err)
	}
	return out, nil
}

func (e *Engine) rotate(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	angle := opts.Int("angle", 90)
	switch angle {
	case 90, -90, 180, 270:
	default:
		return Output{}, fmt.Errorf("rotation must be 90, -90, 180 or 270, got %d", angle)
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
	if err := api.RotateFile(in.Path, outPath, angle, sel, conf()); err != nil {
		return Output{}, fmt.Errorf("rotate: %w", err)
	}
	return out, nil
}
