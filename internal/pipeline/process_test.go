package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/docreader-go/docreader/internal/config"
	"github.com/docreader-go/docreader/internal/recognizer"
	"github.com/stretchr/testify/assert"
)

func TestCheckCancellationReturnsNilWhenActive(t *testing.T) {
	assert.NoError(t, checkCancellation(context.Background()))
}

func TestCheckCancellationReturnsCancelledKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := checkCancellation(ctx)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Cancelled")
	}
}

func TestToMillisOmitsLayoutKeysWhenDisabled(t *testing.T) {
	timings := map[string]time.Duration{
		"page_load":         5 * time.Millisecond,
		"layout_inference":  9 * time.Millisecond,
		"ocr_preprocess":    3 * time.Millisecond,
		"ocr_inference":     7 * time.Millisecond,
		"total":             20 * time.Millisecond,
	}
	out := toMillis(timings, false)
	_, hasLayout := out["layout_inference"]
	assert.False(t, hasLayout)
	assert.Equal(t, int64(0), out["ocr_preprocess"])
	assert.Equal(t, int64(7), out["ocr_inference"])
}

func TestToMillisKeepsLayoutKeysWhenEnabled(t *testing.T) {
	timings := map[string]time.Duration{"layout_inference": 9 * time.Millisecond}
	out := toMillis(timings, true)
	assert.Equal(t, int64(9), out["layout_inference"])
}

func TestPromptHashIsSixteenHexChars(t *testing.T) {
	h := promptHash("OCR this image.")
	assert.Len(t, h, 16)
	for _, r := range h {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}

func TestPromptHashIsDeterministic(t *testing.T) {
	assert.Equal(t, promptHash("same"), promptHash("same"))
	assert.NotEqual(t, promptHash("a"), promptHash("b"))
}

func TestMetadataReportsEffectiveMaxPagesWhenCapped(t *testing.T) {
	p := &Pipeline{cfg: Config{
		MaxConcurrentRecognitions: 2,
		EnableLayout:              true,
		Prompts:                   recognizer.DefaultPrompts(),
		PDFDPI:                    200,
		PDFMaxRenderedLongSide:    3500,
	}}
	meta := p.metadata(3, 5, true, config.DefaultParseOptions())
	assert.Equal(t, 5, meta["effectiveMaxPages"])
	assert.Equal(t, 3, meta["pageCount"])
	assert.Equal(t, 2, meta["maxConcurrentRecognitions"])
	assert.Contains(t, meta, "prompt.textHash")
}

func TestMetadataReportsNilEffectiveMaxPagesWhenUncapped(t *testing.T) {
	p := &Pipeline{cfg: Config{Prompts: recognizer.DefaultPrompts()}}
	meta := p.metadata(1, 0, false, config.DefaultParseOptions())
	assert.Nil(t, meta["effectiveMaxPages"])
}

func TestCleanRecognizedTextTrimsAndNormalizes(t *testing.T) {
	got := cleanRecognizedText("  hello   world  ​")
	assert.Equal(t, "hello world", got)
}
