package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDocTitleGetsH1(t *testing.T) {
	out := Format([]Page{{Regions: []Region{
		{Index: 0, NativeLabel: "doc_title", Content: "- Annual Report"},
	}}})
	assert.Equal(t, "# Annual Report", out)
}

func TestFormatParagraphTitleGetsH2(t *testing.T) {
	out := Format([]Page{{Regions: []Region{
		{Index: 0, NativeLabel: "paragraph_title", Content: "## Background"},
	}}})
	assert.Equal(t, "## Background", out)
}

func TestFormatFormulaUnwrapsAndRewraps(t *testing.T) {
	out := Format([]Page{{Regions: []Region{
		{Index: 0, NativeLabel: "formula", Content: `\(E = mc^2\)`},
	}}})
	assert.Equal(t, "$$\nE = mc^2\n$$", out)
}

func TestFormatEmptyImageRegionEmitsPlaceholder(t *testing.T) {
	out := Format([]Page{{Index: 2, Regions: []Region{
		{Index: 0, NativeLabel: "image", BBox: [4]float64{1, 2, 3, 4}},
	}}})
	assert.Equal(t, "![](page=2,bbox=[1,2,3,4])", out)
}

func TestFormatBulletConversion(t *testing.T) {
	out := Format([]Page{{Regions: []Region{
		{Index: 0, NativeLabel: "text", Content: "• first item"},
	}}})
	assert.Equal(t, "- first item", out)
}

func TestFormatDoublesSingleNewlinesIntoParagraphs(t *testing.T) {
	out := Format([]Page{{Regions: []Region{
		{Index: 0, NativeLabel: "text", Content: "line one\nline two"},
	}}})
	assert.Equal(t, "line one\n\nline two", out)
}

func TestCleanContentCollapsesDotRuns(t *testing.T) {
	got := cleanContent("Chapter 1..........25")
	assert.Equal(t, "Chapter 1...25", got)
}

func TestMergeWordBreaksRecombinesHyphenatedSplit(t *testing.T) {
	regions := []Region{
		{Index: 0, NativeLabel: "text", Content: "this is a hyphen-"},
		{Index: 1, NativeLabel: "text", Content: "ated word"},
	}
	out := mergeFormulaNumbers(regions)
	out = mergeWordBreaks(out)
	if assert.Len(t, out, 1) {
		assert.True(t, strings.Contains(out[0].Content, "hyphenated word"))
	}
}

func TestMergeFormulaNumberAddsTag(t *testing.T) {
	regions := []Region{
		{Index: 0, NativeLabel: "formula", Content: "$$\nE = mc^2\n$$"},
		{Index: 1, NativeLabel: "formula_number", Content: "(1)"},
	}
	out := mergeFormulaNumbers(regions)
	if assert.Len(t, out, 1) {
		assert.Contains(t, out[0].Content, `\tag{(1)}`)
	}
}

func TestBulletAlignmentPromotesMiddleRegion(t *testing.T) {
	regions := []Region{
		{Index: 0, NativeLabel: "text", Content: "- first", BBox: [4]float64{100, 0, 200, 10}},
		{Index: 1, NativeLabel: "text", Content: "continuation line", BBox: [4]float64{102, 11, 200, 20}},
		{Index: 2, NativeLabel: "text", Content: "- third", BBox: [4]float64{101, 21, 200, 30}},
	}
	out := alignBullets(regions)
	assert.True(t, strings.HasPrefix(out[1].Content, "- "))
}
