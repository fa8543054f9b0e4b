package mupdf

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// TextExtractor pulls text out of PDFs. Page numbers are 1-based.
type TextExtractor interface {
	IsAvailable() bool
	GetPageCount(pdfPath string) (int, error)
	ExtractText(pdfPath string) (string, error)
	ExtractTextByPage(pdfPath string, pageNum int) (string, error)
}

// Extractor shells out to mutool. Used as fallback for files the embedded
// library refuses to open.
type Extractor struct{}

// NewExtractor creates a new mutool text extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// IsAvailable checks if MuPDF tools are available
func (e *Extractor) IsAvailable() bool {
	_, err := exec.LookPath("mutool")
	return err == nil
}

// GetPageCount returns the number of pages in a PDF
func (e *Extractor) GetPageCount(pdfPath string) (int, error) {
	log.Debug().Str("pdf", pdfPath).Msg("Getting page count with mutool")

	cmd := exec.Command("mutool", "info", pdfPath)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get PDF info with mutool: %w", err)
	}

	// mutool info output format: "Pages: N"
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				count, err := strconv.Atoi(parts[1])
				if err != nil {
					return 0, fmt.Errorf("failed to parse page count: %w", err)
				}
				return count, nil
			}
		}
	}

	return 0, fmt.Errorf("page count not found in mutool output")
}

// ExtractText extracts all text from a PDF file
func (e *Extractor) ExtractText(pdfPath string) (string, error) {
	log.Debug().Str("pdf", pdfPath).Msg("Extracting all text with mutool")

	cmd := exec.Command("mutool", "draw", "-F", "txt", pdfPath)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("mutool failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("failed to extract text with mutool: %w", err)
	}

	return string(output), nil
}

// ExtractTextByPage extracts text from a specific page
func (e *Extractor) ExtractTextByPage(pdfPath string, pageNum int) (string, error) {
	log.Debug().Str("pdf", pdfPath).Int("page", pageNum).Msg("Extracting page text with mutool")

	cmd := exec.Command("mutool", "draw", "-F", "txt", pdfPath, fmt.Sprintf("%d", pageNum))

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("mutool failed for page %d: %s", pageNum, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("failed to extract text from page %d: %w", pageNum, err)
	}

	return string(output), nil
}

// Chain tries the embedded extractor first and falls back to mutool when it
// errors, which happens on some damaged files the CLI still handles.
type Chain struct {
	primary  TextExtractor
	fallback TextExtractor
}

// NewChain builds the default extraction chain.
func NewChain() *Chain {
	return &Chain{primary: NewGoFitzExtractor(), fallback: NewExtractor()}
}

func (c *Chain) IsAvailable() bool { return true }

func (c *Chain) GetPageCount(pdfPath string) (int, error) {
	n, err := c.primary.GetPageCount(pdfPath)
	if err == nil {
		return n, nil
	}
	if c.fallback.IsAvailable() {
		log.Warn().Err(err).Str("pdf", pdfPath).Msg("go-fitz page count failed, trying mutool")
		return c.fallback.GetPageCount(pdfPath)
	}
	return 0, err
}

func (c *Chain) ExtractText(pdfPath string) (string, error) {
	text, err := c.primary.ExtractText(pdfPath)
	if err == nil {
		return text, nil
	}
	if c.fallback.IsAvailable() {
		log.Warn().Err(err).Str("pdf", pdfPath).Msg("go-fitz extraction failed, trying mutool")
		return c.fallback.ExtractText(pdfPath)
	}
	return "", err
}

func (c *Chain) ExtractTextByPage(pdfPath string, pageNum int) (string, error) {
	text, err := c.primary.ExtractTextByPage(pdfPath, pageNum)
	if err == nil {
		return text, nil
	}
	if c.fallback.IsAvailable() {
		log.Warn().Err(err).Str("pdf", pdfPath).Int("page", pageNum).Msg("go-fitz extraction failed, trying mutool")
		return c.fallback.ExtractTextByPage(pdfPath, pageNum)
	}
	return "", err
}
