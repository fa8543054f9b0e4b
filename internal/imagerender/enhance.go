package imagerender

import (
	"image"
	"image/color"
	"math"
)

const (
	// Binary threshold for separating content from background
	binaryThreshold = 200 // 0-255, higher keeps only dark pixels

	// Skew search window for scanned pages, in degrees
	maxSkewDegrees  = 10.0
	skewStepDegrees = 0.5
)

// ToGrayscale converts an image to grayscale.
func ToGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}

	return gray
}

// AutoContrast stretches the grayscale histogram to the full range,
// clipping the given fraction of darkest and lightest pixels first.
func AutoContrast(img *image.Gray, clip float64) *image.Gray {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return img
	}

	var hist [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	clipCount := int(float64(total) * clip)
	lo, hi := 0, 255
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > clipCount {
			break
		}
	}
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > clipCount {
			break
		}
	}
	if hi <= lo {
		return img
	}

	out := image.NewGray(bounds)
	scale := 255.0 / float64(hi-lo)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y)
			v = (v - float64(lo)) * scale
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

// ContentBounds returns the bounding box of dark pixels, the printed area of
// a page render. ok is false for blank pages.
func ContentBounds(img *image.Gray) (image.Rectangle, bool) {
	bounds := img.Bounds()
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.GrayAt(x, y).Y < binaryThreshold {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// EstimateSkew finds the rotation angle (degrees) that maximizes the
// variance of horizontal dark-pixel counts. Text lines produce the sharpest
// row profile when the page is straight.
func EstimateSkew(img *image.Gray) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// Sample dark pixels to keep the search cheap on large renders.
	step := 1
	if w*h > 1_000_000 {
		step = 2
	}
	type pt struct{ x, y float64 }
	var pts []pt
	cx, cy := float64(w)/2, float64(h)/2
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			if img.GrayAt(x, y).Y < binaryThreshold {
				pts = append(pts, pt{float64(x-bounds.Min.X) - cx, float64(y-bounds.Min.Y) - cy})
			}
		}
	}
	if len(pts) < 100 {
		return 0
	}

	bestAngle, bestScore := 0.0, -1.0
	for a := -maxSkewDegrees; a <= maxSkewDegrees; a += skewStepDegrees {
		rad := a * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		rows := make([]int, h)
		for _, p := range pts {
			ry := int(-p.x*sin + p.y*cos + cy)
			if ry >= 0 && ry < h {
				rows[ry]++
			}
		}
		var sum, sumSq float64
		for _, c := range rows {
			sum += float64(c)
			sumSq += float64(c) * float64(c)
		}
		mean := sum / float64(h)
		variance := sumSq/float64(h) - mean*mean
		if variance > bestScore {
			bestScore = variance
			bestAngle = a
		}
	}
	return bestAngle
}

// Rotate rotates an image by angle degrees around its center, filling the
// uncovered corners with white.
func Rotate(img image.Image, angle float64) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w)/2, float64(h)/2

	white := color.RGBA{255, 255, 255, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping back into the source image
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := int(dx*cos - dy*sin + cx)
			sy := int(dx*sin + dy*cos + cy)
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				out.Set(x, y, img.At(bounds.Min.X+sx, bounds.Min.Y+sy))
			} else {
				out.Set(x, y, white)
			}
		}
	}
	return out
}

// FillRect paints a solid rectangle, used for redaction boxes.
func FillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// BlendRect alpha-blends a color over a rectangle, used for highlights.
func BlendRect(img *image.RGBA, r image.Rectangle, c color.RGBA, alpha float64) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			or, og, ob, _ := img.At(x, y).RGBA()
			blend := func(o uint32, n uint8) uint8 {
				return uint8(float64(o>>8)*(1-alpha) + float64(n)*alpha)
			}
			img.Set(x, y, color.RGBA{blend(or, c.R), blend(og, c.G), blend(ob, c.B), 255})
		}
	}
}

// ToRGBA copies an image into an RGBA buffer rooted at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			out.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return out
}
