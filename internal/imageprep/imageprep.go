// Package imageprep turns decoded images into the normalized tensors the
// layout detector and recognizer expect: the layout detector's fixed
// 800x800 bicubic-resized input (spec §4.3.1), and the recognizer's
// "smart resize" variable-aspect input (spec §4.4.1).
package imageprep

import (
	"errors"
	"image"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/tensor"
)

var errEmptyImage = errors.New("image has zero width or height")

// LayoutInputSide is the layout detector's fixed square input side.
const LayoutInputSide = 800

// Mean/Std are ImageNet-style per-channel normalization constants shared
// by both the layout detector and recognizer preprocessing paths.
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// ToRGBFloat converts a decoded image into an interleaved HxWx3 float32
// buffer with values in [0,1].
func ToRGBFloat(img image.Image) (data []float32, h, w int) {
	bounds := img.Bounds()
	w, h = bounds.Dx(), bounds.Dy()
	data = make([]float32, h*w*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := (y*w + x) * 3
			data[idx] = float32(r) / 65535.0
			data[idx+1] = float32(g) / 65535.0
			data[idx+2] = float32(b) / 65535.0
		}
	}
	return data, h, w
}

// PrepareLayoutInput resizes img to 800x800 with bicubic interpolation,
// normalizes with Mean/Std, and returns a [1,3,800,800] tensor, matching
// the layout detector's strict input-shape contract.
func PrepareLayoutInput(img image.Image) (tensor.Tensor, error) {
	rgb, h, w := ToRGBFloat(img)
	if h == 0 || w == 0 {
		return tensor.Tensor{}, docerr.New(docerr.InvalidConfiguration, "imageprep.PrepareLayoutInput", errEmptyImage)
	}
	resized := tensor.BicubicResizeRGB(rgb, h, w, LayoutInputSide, LayoutInputSide)

	out := tensor.New(1, 3, LayoutInputSide, LayoutInputSide)
	plane := LayoutInputSide * LayoutInputSide
	for y := 0; y < LayoutInputSide; y++ {
		for x := 0; x < LayoutInputSide; x++ {
			pix := (y*LayoutInputSide + x) * 3
			for c := 0; c < 3; c++ {
				v := (resized[pix+c] - Mean[c]) / Std[c]
				out.Data[c*plane+y*LayoutInputSide+x] = v
			}
		}
	}
	return out, nil
}
