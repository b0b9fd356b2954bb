package pageload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoadImageSinglePage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	pages := LoadImage(img)
	require.Len(t, pages, 1)
	assert.Equal(t, 640, pages[0].Width)
	assert.Equal(t, 480, pages[0].Height)
}

func TestLoadImageBytes(t *testing.T) {
	data := solidPNG(t, 100, 50)
	pages, err := LoadImageBytes(data)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 100, pages[0].Width)
	assert.Equal(t, 50, pages[0].Height)
}

func TestLoadImageBytesInvalidData(t *testing.T) {
	_, err := LoadImageBytes([]byte("not an image"))
	assert.Error(t, err)
}

func TestLoadDispatchesOnKind(t *testing.T) {
	data := solidPNG(t, 32, 32)
	pages, err := Load(InputDocument{Kind: InputImageBytes, Bytes: data}, 0, 200, 3500)
	require.NoError(t, err)
	require.Len(t, pages, 1)
}

func TestLoadUnknownKind(t *testing.T) {
	_, err := Load(InputDocument{Kind: InputKind(99)}, 0, 200, 3500)
	assert.Error(t, err)
}

func TestParsePageFromFilename(t *testing.T) {
	n, ok := parsePageFromFilename("page_3_image_1.png")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok2 := parsePageFromFilename("not_a_page_file.png")
	assert.False(t, ok2)
}
