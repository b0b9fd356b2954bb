package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, infoLevel, cfg.LogLevel)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, defaultRecognizerModelID, cfg.RecognizerModelID)
	assert.Equal(t, defaultLayoutModelID, cfg.LayoutModelID)
	assert.Equal(t, uint32(1), cfg.MaxConcurrentRecognitions)
	assert.True(t, cfg.EnableLayout)
	assert.Equal(t, 4096, cfg.RecognitionOptions.MaxTokens)
	assert.Equal(t, 0.3, cfg.Layout.Threshold)
	assert.Equal(t, 200, cfg.PDFDPI)
	assert.Equal(t, 3500, cfg.PDFMaxRenderedLongSide)
	assert.Nil(t, cfg.DefaultMaxPages)
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentRecognitions = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyPrompt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prompts.Table = "   "
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout.Threshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg2 := DefaultConfig()
	cfg2.Layout.ThresholdByClass = map[string]float64{"table": -0.1}
	assert.Error(t, cfg2.Validate())
}

func TestValidateRejectsNonPositivePDFSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PDFDPI = 0
	assert.Error(t, cfg.Validate())

	cfg2 := DefaultConfig()
	cfg2.PDFMaxRenderedLongSide = -1
	assert.Error(t, cfg2.Validate())

	zero := 0
	cfg3 := DefaultConfig()
	cfg3.DefaultMaxPages = &zero
	assert.Error(t, cfg3.Validate())
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cfg, decoded)
}

func TestEffectiveMaxPages(t *testing.T) {
	five := uint32(5)
	two := 2

	cap1, ok1 := EffectiveMaxPages(&five, &two)
	assert.True(t, ok1)
	assert.Equal(t, 2, cap1)

	cap2, ok2 := EffectiveMaxPages(&five, nil)
	assert.True(t, ok2)
	assert.Equal(t, 5, cap2)

	cap3, ok3 := EffectiveMaxPages(nil, &two)
	assert.True(t, ok3)
	assert.Equal(t, 2, cap3)

	_, ok4 := EffectiveMaxPages(nil, nil)
	assert.False(t, ok4)
}

func TestParseOptionsDefaults(t *testing.T) {
	opts := DefaultParseOptions()
	assert.True(t, opts.IncludeMarkdown)
	assert.True(t, opts.IncludeDiagnostics)
	assert.Nil(t, opts.MaxPages)
}
