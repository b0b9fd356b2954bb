package imageprep

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestToRGBFloatDimensionsAndRange(t *testing.T) {
	img := solidImage(4, 3, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	data, h, w := ToRGBFloat(img)
	assert.Equal(t, 3, h)
	assert.Equal(t, 4, w)
	require.Len(t, data, h*w*3)
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, 0.0, data[1], 1e-6)
}

func TestPrepareLayoutInputShape(t *testing.T) {
	img := solidImage(640, 480, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	out, err := PrepareLayoutInput(img)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, LayoutInputSide, LayoutInputSide}, out.Shape)
	assert.Equal(t, 1*3*LayoutInputSide*LayoutInputSide, out.Numel())
}

func TestPrepareLayoutInputRejectsEmptyImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0, 0))
	_, err := PrepareLayoutInput(img)
	assert.Error(t, err)
}

func TestSmartResizeRespectsFactorAndPixelBudget(t *testing.T) {
	p := DefaultSmartResizeParams()
	h, w := SmartResize(1000, 1000, p)

	factor := p.PatchSize * p.MergeSize
	assert.Equal(t, 0, h%factor)
	assert.Equal(t, 0, w%factor)
	assert.GreaterOrEqual(t, h*w, p.MinPixels)
	assert.LessOrEqual(t, h*w, p.MaxPixels)
}

func TestSmartResizeClampsExtremeAspectRatio(t *testing.T) {
	p := DefaultSmartResizeParams()
	h, w := SmartResize(10000, 10, p)
	assert.LessOrEqual(t, float64(h)/float64(w), p.MaxAspectRatio*1.5)
}

func TestPrepareVisionInputGridMatchesPatchCount(t *testing.T) {
	p := DefaultSmartResizeParams()
	img := solidImage(420, 420, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	prepared := PrepareVisionInput(img, p)

	assert.Equal(t, prepared.GridT*prepared.GridH*prepared.GridW, prepared.Patches.Shape[0])
	assert.Equal(t, 3*p.TemporalPatchSize*p.PatchSize*p.PatchSize, prepared.Patches.Shape[1])
}
