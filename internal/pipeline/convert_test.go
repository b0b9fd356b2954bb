package pipeline

import (
	"testing"

	"github.com/docreader-go/docreader/internal/config"
	"github.com/docreader-go/docreader/internal/layout"
	"github.com/stretchr/testify/assert"
)

func TestToFormatterPagesPreservesRegionFields(t *testing.T) {
	pages := []PageResult{{Regions: []RegionRecord{
		{Index: 0, NativeLabel: "text", BBox: [4]float64{1, 2, 3, 4}, Content: "hi"},
	}}}
	out := toFormatterPages(pages)
	if assert.Len(t, out, 1) && assert.Len(t, out[0].Regions, 1) {
		assert.Equal(t, "text", out[0].Regions[0].NativeLabel)
		assert.Equal(t, "hi", out[0].Regions[0].Content)
		assert.Equal(t, [4]float64{1, 2, 3, 4}, out[0].Regions[0].BBox)
	}
}

func TestToCropPolygonConvertsPoints(t *testing.T) {
	pts := []layout.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	out := toCropPolygon(pts)
	if assert.Len(t, out, 2) {
		assert.Equal(t, 1.0, out[0].X)
		assert.Equal(t, 4.0, out[1].Y)
	}
}

func TestMergeLayoutConfigKeepsArchitectureDefaults(t *testing.T) {
	// mergeLayoutConfig overlays the app-level knobs; the architecture
	// constants must survive even though config.LayoutConfig carries none
	// of them.
	base := layout.DefaultConfig()
	merged := mergeLayoutConfig(config.LayoutConfig{Threshold: 0.5, LayoutNMS: true, UnclipRatioX: 1, UnclipRatioY: 1}, "/models/layout")
	assert.Equal(t, base.NumQueries, merged.NumQueries)
	assert.Equal(t, "/models/layout", merged.ModelID)
	assert.Equal(t, 0.5, merged.Threshold)
}
