package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// ModeFromOption maps a user-supplied color option to a ColorMode.
// Anything that is not a grayscale spelling renders in color.
func ModeFromOption(s string) ColorMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gray", "grey", "grayscale", "greyscale":
		return ColorGray
	}
	return ColorRGB
}

// RenderPage renders a PDF page at the given DPI. Pages are 1-based.
func RenderPage(pdfPath string, pageNum int, dpi float64) (image.Image, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}
	return img, nil
}

// RenderPageToJPEG renders a PDF page as JPEG image (in-memory)
// Returns JPEG bytes, width, height, error
func RenderPageToJPEG(pdfPath string, pageNum, dpi, quality int, mode ColorMode) ([]byte, int, int, error) {
	img, err := RenderPage(pdfPath, pageNum, float64(dpi))
	if err != nil {
		return nil, 0, 0, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var finalImg image.Image
	if mode == ColorGray {
		grayImg := image.NewGray(bounds)
		draw.Draw(grayImg, bounds, img, image.Point{}, draw.Src)
		finalImg = grayImg
	} else {
		// go-fitz already returns RGBA
		finalImg = img
	}

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: quality}
	if err := jpeg.Encode(&buf, finalImg, opts); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	jpegBytes := buf.Bytes()

	log.Debug().
		Int("page", pageNum).
		Int("jpeg_size", len(jpegBytes)).
		Int("quality", quality).
		Int("dpi", dpi).
		Msg("encoded page as JPEG")

	return jpegBytes, width, height, nil
}

// SaveJPEG writes an image as JPEG to path.
func SaveJPEG(img image.Image, path string, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}

// SavePNG writes an image as PNG to path.
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
