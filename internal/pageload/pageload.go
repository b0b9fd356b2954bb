// Package pageload turns an input document (a decoded image, raw image
// bytes, or PDF bytes) into an ordered list of RGB page bitmaps, applying
// the page-count cap and long-side scaling rules from spec §4.2. PDF
// rasterization is treated as a thin, opaque "pages-from-bytes" contract:
// this package extracts one embedded raster image per page with pdfcpu and
// composites it over white at the image's own size, downscaled only when
// its long side exceeds the configured maximum; the DPI setting is not
// applied to extracted images and no PDF content stream is rendered. A
// page with no extractable image becomes a blank white page sized by the
// DPI/long-side rule.
package pageload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/docreader-go/docreader/internal/docerr"
)

// InputKind tags which variant of InputDocument was provided (spec §6
// "InputDocument variants").
type InputKind int

const (
	InputImage InputKind = iota
	InputImageBytes
	InputPDFBytes
)

// InputDocument is the tagged union of supported parse inputs.
type InputDocument struct {
	Kind  InputKind
	Image image.Image
	Bytes []byte
}

// Load dispatches on the input's kind and returns its ordered pages,
// applying effectiveCap (0 meaning no cap, PDF-only per spec §4.1) and
// the dpi/maxLongSide PDF rasterization rule.
func Load(input InputDocument, effectiveCap, dpi, maxLongSide int) ([]Page, error) {
	switch input.Kind {
	case InputImage:
		return LoadImage(input.Image), nil
	case InputImageBytes:
		return LoadImageBytes(input.Bytes)
	case InputPDFBytes:
		return LoadPDFBytes(input.Bytes, effectiveCap, dpi, maxLongSide)
	default:
		return nil, docerr.New(docerr.InvalidConfiguration, "pageload.Load", errUnknownInputKind)
	}
}

var errUnknownInputKind = errors.New("unknown input document kind")

// Page is an immutable RGB bitmap owned by the orchestrator for the
// duration of one parse (spec §3 "Page").
type Page struct {
	Image  image.Image
	Width  int
	Height int
}

// defaultPageSizePt is the nominal page width (in PDF points, US Letter;
// the height is 1.294 times this) used when a PDF page carries no
// extractable raster image of its own.
const defaultPageSizePt = 612.0

// LoadImage wraps a single already-decoded image as a one-page document.
func LoadImage(img image.Image) []Page {
	b := img.Bounds()
	return []Page{{Image: img, Width: b.Dx(), Height: b.Dy()}}
}

// LoadImageBytes decodes raw image bytes as a one-page document.
func LoadImageBytes(data []byte) ([]Page, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, docerr.New(docerr.InvalidConfiguration, "pageload.LoadImageBytes", err)
	}
	return LoadImage(img), nil
}

// LoadPDFBytes rasterizes a PDF into up to effectiveCap pages (0 meaning
// no cap). A page with an extractable raster image keeps that image's
// size, downscaled to fit maxLongSide; a page without one becomes a blank
// white US Letter page scaled by min(dpi/72, maxLongSide/long_side_pt).
func LoadPDFBytes(data []byte, effectiveCap int, dpi, maxLongSide int) ([]Page, error) {
	tmp, err := os.CreateTemp("", "docreader-pdf-*.pdf")
	if err != nil {
		return nil, docerr.New(docerr.PDFRenderingFailed, "pageload.LoadPDFBytes: tempfile", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, docerr.New(docerr.PDFRenderingFailed, "pageload.LoadPDFBytes: write", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, docerr.New(docerr.PDFRenderingFailed, "pageload.LoadPDFBytes: close", err)
	}

	pageCount, err := api.PageCountFile(tmp.Name())
	if err != nil {
		return nil, docerr.New(docerr.PDFRenderingFailed, "pageload.LoadPDFBytes: page count", err)
	}

	requested := pageCount
	if effectiveCap > 0 && effectiveCap < requested {
		requested = effectiveCap
	}
	if requested == 0 {
		return nil, docerr.New(docerr.InvalidConfiguration, "pageload.LoadPDFBytes", errZeroPages)
	}

	extracted, err := extractPerPageImages(tmp.Name(), requested)
	if err != nil {
		return nil, docerr.New(docerr.PDFRenderingFailed, "pageload.LoadPDFBytes: extract", err)
	}

	scale := math.Min(float64(dpi)/72.0, float64(maxLongSide)/(defaultPageSizePt*1.294))

	pages := make([]Page, 0, requested)
	for i := 1; i <= requested; i++ {
		img, ok := extracted[i]
		if !ok {
			img = whiteCanvas(scale)
		} else {
			img = compositeOverWhite(img, maxLongSide)
		}
		b := img.Bounds()
		pages = append(pages, Page{Image: img, Width: b.Dx(), Height: b.Dy()})
	}
	return pages, nil
}

var errZeroPages = errors.New("requested page count is zero")

func whiteCanvas(scale float64) image.Image {
	side := int(defaultPageSizePt * scale)
	if side < 1 {
		side = 1
	}
	return imaging.New(side, int(float64(side)*1.294), image.White)
}

func compositeOverWhite(page image.Image, maxLongSide int) image.Image {
	b := page.Bounds()
	longSide := b.Dx()
	if b.Dy() > longSide {
		longSide = b.Dy()
	}
	if longSide > maxLongSide {
		ratio := float64(maxLongSide) / float64(longSide)
		page = imaging.Resize(page, int(float64(b.Dx())*ratio), int(float64(b.Dy())*ratio), imaging.Lanczos)
	}
	canvas := imaging.New(page.Bounds().Dx(), page.Bounds().Dy(), image.White)
	return imaging.Overlay(canvas, page, image.Point{}, 1.0)
}

func extractPerPageImages(path string, pageCount int) (map[int]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "docreader-pdf-extract-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pageStrings := make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		pageStrings = append(pageStrings, fmt.Sprintf("%d", i))
	}

	if err := api.ExtractImagesFile(path, tempDir, pageStrings, nil); err != nil {
		return map[int]image.Image{}, nil //nolint:nilerr // pages with no embedded images are expected, not an error
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("read extract dir: %w", err)
	}

	result := make(map[int]image.Image)
	for _, entry := range entries {
		pageNum, ok := parsePageFromFilename(entry.Name())
		if !ok {
			continue
		}
		if _, exists := result[pageNum]; exists {
			continue
		}
		f, err := os.Open(tempDir + "/" + entry.Name())
		if err != nil {
			continue
		}
		img, _, decErr := image.Decode(f)
		f.Close()
		if decErr != nil {
			continue
		}
		result[pageNum] = img
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted
// filename of the form "page_<num>_image_<idx>.<ext>".
func parsePageFromFilename(filename string) (int, bool) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, false
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
