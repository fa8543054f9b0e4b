package ocr

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Word is one recognized word with its pixel bounding box in the source image.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	binary    string
	languages string
	timeout   time.Duration
}

// NewTesseract creates the OCR bridge. languages is a tesseract lang spec
// like "eng" or "eng+deu".
func NewTesseract(binary, languages string, timeout time.Duration) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Tesseract{binary: binary, languages: languages, timeout: timeout}
}

// IsAvailable reports whether the tesseract binary is on PATH.
func (t *Tesseract) IsAvailable() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// SearchablePDF OCRs one page image into a single-page searchable PDF.
// outBase is the output path without extension; tesseract appends ".pdf".
func (t *Tesseract) SearchablePDF(ctx context.Context, imagePath, outBase string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, "-l", t.languages, imagePath, outBase, "pdf")
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("ocr timeout after %v", t.timeout)
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	out := outBase + ".pdf"
	log.Debug().Str("image", imagePath).Str("pdf", out).Msg("page OCR complete")
	return out, nil
}

// Words runs OCR on a page image and returns the recognized words with
// bounding boxes. Used to locate search terms for highlighting and redaction.
func (t *Tesseract) Words(ctx context.Context, imagePath string) ([]Word, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, "-l", t.languages, imagePath, "stdout", "tsv")
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ocr timeout after %v", t.timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("tesseract failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	return parseTSV(string(output)), nil
}

// parseTSV extracts word-level rows (level 5) from tesseract TSV output.
// Columns: level page block par line word left top width height conf text
func parseTSV(tsv string) []Word {
	var words []Word
	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 { // header
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		left, err1 := strconv.Atoi(cols[6])
		top, err2 := strconv.Atoi(cols[7])
		width, err3 := strconv.Atoi(cols[8])
		height, err4 := strconv.Atoi(cols[9])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		conf, _ := strconv.ParseFloat(cols[10], 64)
		words = append(words, Word{
			Text:       text,
			Box:        image.Rect(left, top, left+width, top+height),
			Confidence: conf,
		})
	}
	return words
}

// FindTerm returns the boxes of every occurrence of term, case-insensitive,
// ignoring surrounding punctuation. Multi-word terms match runs of consecutive
// recognized words; each occurrence yields the union of the run's boxes.
func FindTerm(words []Word, term string) []image.Rectangle {
	parts := strings.Fields(strings.ToLower(term))
	if len(parts) == 0 {
		return nil
	}
	var boxes []image.Rectangle
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j, p := range parts {
			if cleanWord(words[i+j].Text) != p {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		box := words[i].Box
		for j := 1; j < len(parts); j++ {
			box = box.Union(words[i+j].Box)
		}
		boxes = append(boxes, box)
	}
	return boxes
}

func cleanWord(s string) string {
	return strings.ToLower(strings.Trim(s, ".,;:!?\"'()[]{}"))
}
