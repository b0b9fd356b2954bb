// Package crop extracts a recognizer-ready sub-image from a page bitmap
// for one layout region, given its pixel-space bounding box and optional
// polygon mask.
package crop

import (
	"errors"
	"image"
	"image/draw"

	"github.com/docreader-go/docreader/internal/docerr"
)

// Point is a polygon vertex in pixel space.
type Point struct {
	X, Y float64
}

// Region crops page to box, clamped to page bounds, and returns the
// sub-image. box is (x0,y0,x1,y1) in pixel coordinates.
func Region(page image.Image, x0, y0, x1, y1 int) (image.Image, error) {
	bounds := page.Bounds()
	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 > bounds.Max.X {
		x1 = bounds.Max.X
	}
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}
	if x1 <= x0 || y1 <= y0 {
		return nil, docerr.New(docerr.InvalidConfiguration, "crop.Region", errEmptyCropBox)
	}

	rect := image.Rect(x0, y0, x1, y1)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), page, rect.Min, draw.Src)
	return out, nil
}

var errEmptyCropBox = errors.New("crop box has zero width or height after clamping to page bounds")

// RegionWithMask crops to box, then masks out pixels outside polygon
// (in box-local coordinates) by compositing over white, matching the
// layout detector's polygon-shaped region extraction.
func RegionWithMask(page image.Image, x0, y0, x1, y1 int, polygon []Point) (image.Image, error) {
	cropped, err := Region(page, x0, y0, x1, y1)
	if err != nil {
		return nil, err
	}
	if len(polygon) < 3 {
		return cropped, nil
	}

	b := cropped.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if pointInPolygon(float64(x)+0.5, float64(y)+0.5, polygon) {
				out.Set(x, y, cropped.At(x, y))
			} else {
				out.Set(x, y, image.White.At(0, 0))
			}
		}
	}
	return out, nil
}

// pointInPolygon implements the standard ray-casting test.
func pointInPolygon(px, py float64, poly []Point) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > py) != (pj.Y > py) &&
			px < (pj.X-pi.X)*(py-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
