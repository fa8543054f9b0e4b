package pdftest

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
	"unicode"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Sampled   bool   `json:"sampled"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes how the text-layer probe reached its verdict.
type Diagnostics struct {
	FilePath           string      `json:"file_path"`
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 300

// countGlyphs counts non-whitespace runes.
func countGlyphs(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// Doc abstracts a PDF document for text extraction.
type Doc interface {
	NumPage() int
	Page(i int) (Page, error)
	Close() error
}

// Page abstracts a single PDF page for text extraction.
type Page interface {
	Text() (string, error)
	Close()
}

// Opener abstracts opening a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// defaultOpener is provided in doc_open_fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener swaps the backend, used by tests.
func setDefaultOpener(o Opener) { defaultOpener = o }

// HasExtractableText reports whether the PDF at pdfPath carries a usable
// text layer, judged by sampling a handful of pages. Scanned documents
// come out false and should go through OCR instead.
func HasExtractableText(pdfPath string, threshold int) (bool, *Diagnostics, error) {
	return HasExtractableTextWithPages(pdfPath, threshold, nil)
}

// HasExtractableTextWithPages is HasExtractableText with explicit zero-based
// page indices to sample. A nil pages slice uses the sampling heuristic.
func HasExtractableTextWithPages(pdfPath string, threshold int, pages []int) (bool, *Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if defaultOpener == nil {
		return false, nil, errors.New("no PDF opener configured")
	}

	start := time.Now()
	d, err := defaultOpener.Open(pdfPath)
	if err != nil {
		return false, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()

	total := d.NumPage()
	if total <= 0 {
		return false, &Diagnostics{
			FilePath:     pdfPath,
			TotalPages:   total,
			SampledPages: []int{},
			Threshold:    threshold,
			DurationMs:   time.Since(start).Milliseconds(),
		}, nil
	}

	var sampleIdx []int
	if pages != nil {
		sampleIdx = normalizeAndClampPages(pages, total)
	} else {
		sampleIdx = sampleIndices(total)
	}

	probes := make([]PageProbe, 0, len(sampleIdx))
	totalChars := 0

	for _, idx := range sampleIdx {
		probe := PageProbe{PageIndex: idx, Sampled: true}
		p, perr := d.Page(idx)
		if perr != nil {
			probe.Err = perr.Error()
			probes = append(probes, probe)
			continue
		}
		text, terr := p.Text()
		p.Close()
		if terr != nil {
			probe.Err = terr.Error()
			probes = append(probes, probe)
			continue
		}

		count := countGlyphs(text)
		probe.CharCount = count
		totalChars += count
		probes = append(probes, probe)

		if totalChars >= threshold {
			// verdict already settled
			break
		}
	}

	diag := &Diagnostics{
		FilePath:           pdfPath,
		TotalPages:         total,
		SampledPages:       sampleIdx,
		TotalCharsInSample: totalChars,
		Threshold:          threshold,
		Probes:             probes,
		HasExtractableText: totalChars >= threshold,
		DurationMs:         time.Since(start).Milliseconds(),
	}

	return diag.HasExtractableText, diag, nil
}

// sampleIndices picks up to 5 pages: first, middle, last, padded with
// random distinct indices. Documents under 5 pages are read in full.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	picked := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	for len(picked) < 5 {
		picked[rand.Intn(total)] = struct{}{}
	}

	out := make([]int, 0, len(picked))
	for i := range picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// normalizeAndClampPages keeps indices unique, in-range, and sorted.
func normalizeAndClampPages(pages []int, total int) []int {
	m := make(map[int]struct{})
	for _, p := range pages {
		if p < 0 || p >= total {
			continue
		}
		m[p] = struct{}{}
	}
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
