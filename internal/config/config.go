package config

import (
	"fmt"
	"strings"
)

const (
	infoLevel  = "info"
	debugLevel = "debug"
	warnLevel  = "warn"
	errorLevel = "error"

	defaultRecognizerModelID = "mlx-community/GLM-OCR-bf16"
	defaultLayoutModelID     = "PaddlePaddle/PP-DocLayoutV3_safetensors"
)

// DefaultConfig returns a configuration with the documented defaults
// (spec §6 "Config (recognized options)").
func DefaultConfig() Config {
	return Config{
		ModelsDir: "",
		LogLevel:  infoLevel,
		Verbose:   false,

		RecognizerModelID:         defaultRecognizerModelID,
		LayoutModelID:             defaultLayoutModelID,
		MaxConcurrentRecognitions: 1,
		EnableLayout:              true,

		RecognitionOptions: RecognitionOptions{
			MaxTokens:         4096,
			Temperature:       0,
			PrefillStepSize:   2048,
			TopP:              1,
			TopK:              1,
			RepetitionPenalty: 1,
		},
		Prompts: Prompts{
			NoLayout: "Recognize the text in this image.",
			Text:     "Recognize the text in this region.",
			Table:    "Recognize the table in this region as Markdown.",
			Formula:  "Recognize the formula in this region as LaTeX.",
		},
		Layout: LayoutConfig{
			Threshold:    0.3,
			LayoutNMS:    true,
			UnclipRatioX: 1,
			UnclipRatioY: 1,
		},

		PDFDPI:                 200,
		PDFMaxRenderedLongSide: 3500,

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// Validate checks the configuration for internal consistency, returning
// the first violated constraint.
func (c *Config) Validate() error {
	if err := c.validateBasicEnums(); err != nil {
		return err
	}
	if err := c.validateConcurrency(); err != nil {
		return err
	}
	if err := c.validatePrompts(); err != nil {
		return err
	}
	if err := c.validateLayout(); err != nil {
		return err
	}
	if err := c.validatePDF(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBasicEnums() error {
	validLogLevels := []string{debugLevel, infoLevel, warnLevel, errorLevel}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	return nil
}

func (c *Config) validateConcurrency() error {
	if c.MaxConcurrentRecognitions < 1 {
		return fmt.Errorf("invalid max_concurrent_recognitions: %d (must be >= 1)", c.MaxConcurrentRecognitions)
	}
	if c.RecognitionOptions.MaxTokens <= 0 {
		return fmt.Errorf("invalid recognition_options.max_tokens: %d (must be positive)", c.RecognitionOptions.MaxTokens)
	}
	if c.RecognitionOptions.PrefillStepSize <= 0 {
		return fmt.Errorf("invalid recognition_options.prefill_step_size: %d (must be positive)", c.RecognitionOptions.PrefillStepSize)
	}
	if c.RecognitionOptions.TopK <= 0 {
		return fmt.Errorf("invalid recognition_options.top_k: %d (must be positive)", c.RecognitionOptions.TopK)
	}
	if c.RecognitionOptions.TopP <= 0 || c.RecognitionOptions.TopP > 1 {
		return fmt.Errorf("invalid recognition_options.top_p: %v (must be in (0,1])", c.RecognitionOptions.TopP)
	}
	if c.RecognitionOptions.Temperature < 0 {
		return fmt.Errorf("invalid recognition_options.temperature: %v (must be >= 0)", c.RecognitionOptions.Temperature)
	}
	return nil
}

func (c *Config) validatePrompts() error {
	if strings.TrimSpace(c.Prompts.NoLayout) == "" {
		return fmt.Errorf("prompts.no_layout must not be empty")
	}
	if strings.TrimSpace(c.Prompts.Text) == "" {
		return fmt.Errorf("prompts.text must not be empty")
	}
	if strings.TrimSpace(c.Prompts.Table) == "" {
		return fmt.Errorf("prompts.table must not be empty")
	}
	if strings.TrimSpace(c.Prompts.Formula) == "" {
		return fmt.Errorf("prompts.formula must not be empty")
	}
	return nil
}

func (c *Config) validateLayout() error {
	if err := validateThreshold(c.Layout.Threshold, "layout.threshold"); err != nil {
		return err
	}
	for class, thresh := range c.Layout.ThresholdByClass {
		if err := validateThreshold(thresh, fmt.Sprintf("layout.threshold_by_class[%s]", class)); err != nil {
			return err
		}
	}
	if c.Layout.UnclipRatioX <= 0 {
		return fmt.Errorf("invalid layout.unclip_ratio_x: %v (must be positive)", c.Layout.UnclipRatioX)
	}
	if c.Layout.UnclipRatioY <= 0 {
		return fmt.Errorf("invalid layout.unclip_ratio_y: %v (must be positive)", c.Layout.UnclipRatioY)
	}
	return nil
}

func (c *Config) validatePDF() error {
	if c.PDFDPI <= 0 {
		return fmt.Errorf("invalid pdf_dpi: %d (must be positive)", c.PDFDPI)
	}
	if c.PDFMaxRenderedLongSide <= 0 {
		return fmt.Errorf("invalid pdf_max_rendered_long_side: %d (must be positive)", c.PDFMaxRenderedLongSide)
	}
	if c.DefaultMaxPages != nil && *c.DefaultMaxPages <= 0 {
		return fmt.Errorf("invalid default_max_pages: %d (must be positive when set)", *c.DefaultMaxPages)
	}
	return nil
}

func validateThreshold(v float64, name string) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("invalid %s: %v (must be between 0.0 and 1.0)", name, v)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// EffectiveMaxPages applies the "min(a,b), else whichever is set, else no
// cap" rule (spec §4.1) between the per-call option and the configured
// default, returning (cap, ok).
func EffectiveMaxPages(optionMaxPages *uint32, defaultMaxPages *int) (int, bool) {
	switch {
	case optionMaxPages != nil && defaultMaxPages != nil:
		a := int(*optionMaxPages)
		b := *defaultMaxPages
		if a < b {
			return a, true
		}
		return b, true
	case optionMaxPages != nil:
		return int(*optionMaxPages), true
	case defaultMaxPages != nil:
		return *defaultMaxPages, true
	default:
		return 0, false
	}
}
