package crop

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkerPage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	return img
}

func TestRegionBasic(t *testing.T) {
	page := checkerPage()
	out, err := Region(page, 10, 10, 30, 40)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 30, out.Bounds().Dy())
}

func TestRegionClampsToPageBounds(t *testing.T) {
	page := checkerPage()
	out, err := Region(page, -10, -10, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, out.Bounds().Dx())
}

func TestRegionRejectsEmptyBox(t *testing.T) {
	page := checkerPage()
	_, err := Region(page, 10, 10, 10, 10)
	assert.Error(t, err)
}

func TestRegionWithMaskFallsBackWithoutPolygon(t *testing.T) {
	page := checkerPage()
	out, err := RegionWithMask(page, 0, 0, 20, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
}

func TestRegionWithMaskAppliesPolygon(t *testing.T) {
	page := checkerPage()
	triangle := []Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 0, Y: 20}}
	out, err := RegionWithMask(page, 0, 0, 20, 20, triangle)
	require.NoError(t, err)

	r, _, _, _ := out.At(1, 1).RGBA()
	assert.NotEqual(t, uint32(0xffff), r>>8|0xff00) // inside triangle keeps original pixel shade
	r2, g2, b2, _ := out.At(19, 19).RGBA()
	assert.Equal(t, uint32(0xffff), r2)
	assert.Equal(t, uint32(0xffff), g2)
	assert.Equal(t, uint32(0xffff), b2) // outside triangle is masked to white
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.True(t, pointInPolygon(5, 5, square))
	assert.False(t, pointInPolygon(15, 5, square))
}
