package imageprep

import (
	"image"
	"math"

	"github.com/docreader-go/docreader/internal/tensor"
)

// SmartResizeParams names the tunables of the recognizer's vision input
// sizing rule (spec §4.4.1).
type SmartResizeParams struct {
	PatchSize          int
	MergeSize          int
	MinPixels          int
	MaxPixels          int
	TemporalPatchSize  int
	MaxAspectRatio     float64
}

// DefaultSmartResizeParams matches the recognizer's documented constants.
func DefaultSmartResizeParams() SmartResizeParams {
	return SmartResizeParams{
		PatchSize:         14,
		MergeSize:         2,
		MinPixels:         256 * 28 * 28,
		MaxPixels:         16384 * 28 * 28,
		TemporalPatchSize: 2,
		MaxAspectRatio:    200,
	}
}

// SmartResize computes the target (height, width) for an image of size
// (h, w): enforce the max aspect ratio, round both dimensions to the
// nearest multiple of patchSize*mergeSize, then scale uniformly so total
// pixels land in [minPixels, maxPixels] — flooring the scale factor when
// shrinking, ceiling it when growing.
func SmartResize(h, w int, p SmartResizeParams) (outH, outW int) {
	factor := p.PatchSize * p.MergeSize

	hf, wf := float64(h), float64(w)
	if hf/wf > p.MaxAspectRatio {
		hf = wf * p.MaxAspectRatio
	} else if wf/hf > p.MaxAspectRatio {
		wf = hf * p.MaxAspectRatio
	}

	roundedH := roundToFactor(hf, factor)
	roundedW := roundToFactor(wf, factor)

	pixels := roundedH * roundedW
	switch {
	case pixels > p.MaxPixels:
		beta := math.Sqrt(hf * wf / float64(p.MaxPixels))
		roundedH = floorToFactor(hf/beta, factor)
		roundedW = floorToFactor(wf/beta, factor)
	case pixels < p.MinPixels:
		beta := math.Sqrt(float64(p.MinPixels) / (hf * wf))
		roundedH = ceilToFactor(hf*beta, factor)
		roundedW = ceilToFactor(wf*beta, factor)
	}

	if roundedH < factor {
		roundedH = factor
	}
	if roundedW < factor {
		roundedW = factor
	}
	return roundedH, roundedW
}

func roundToFactor(v float64, factor int) int {
	n := int(math.Round(v / float64(factor)))
	if n < 1 {
		n = 1
	}
	return n * factor
}

func floorToFactor(v float64, factor int) int {
	n := int(math.Floor(v / float64(factor)))
	if n < 1 {
		n = 1
	}
	return n * factor
}

func ceilToFactor(v float64, factor int) int {
	return int(math.Ceil(v/float64(factor))) * factor
}

// PreparedVision holds the recognizer's patchified vision input: a flat
// (gridT*gridH*gridW) x (C*temporalPatch*patch^2) matrix and its grid
// shape, matching PreparedInput's pixel_values/image_grid_thw fields.
type PreparedVision struct {
	Patches tensor.Tensor // [gridT*gridH*gridW, C*temporalPatch*patch*patch]
	GridT   int
	GridH   int
	GridW   int
}

// PrepareVisionInput smart-resizes img, normalizes it, and patchifies it
// per spec §4.4.1: a single still image is treated as one temporal frame,
// tiled to fill TemporalPatchSize if it does not already divide evenly.
func PrepareVisionInput(img image.Image, p SmartResizeParams) PreparedVision {
	rgb, h, w := ToRGBFloat(img)
	targetH, targetW := SmartResize(h, w, p)
	resized := tensor.BicubicResizeRGB(rgb, h, w, targetH, targetW)

	gridH := targetH / p.PatchSize
	gridW := targetW / p.PatchSize

	normalized := make([]float32, len(resized))
	for i := 0; i < targetH*targetW; i++ {
		for c := 0; c < 3; c++ {
			normalized[i*3+c] = (resized[i*3+c] - Mean[c]) / Std[c]
		}
	}

	frames := p.TemporalPatchSize
	patchDim := 3 * p.TemporalPatchSize * p.PatchSize * p.PatchSize
	numPatches := gridH * gridW

	out := tensor.New(numPatches, patchDim)
	for gy := 0; gy < gridH; gy++ {
		for gx := 0; gx < gridW; gx++ {
			patchIdx := gy*gridW + gx
			offset := 0
			for f := 0; f < frames; f++ {
				for py := 0; py < p.PatchSize; py++ {
					for px := 0; px < p.PatchSize; px++ {
						sy := gy*p.PatchSize + py
						sx := gx*p.PatchSize + px
						srcIdx := (sy*targetW + sx) * 3
						for c := 0; c < 3; c++ {
							out.Data[patchIdx*patchDim+offset] = normalized[srcIdx+c]
							offset++
						}
					}
				}
			}
		}
	}

	return PreparedVision{Patches: out, GridT: 1, GridH: gridH, GridW: gridW}
}
