// Package pipeline implements the parse orchestrator (spec §4.1): it wires
// the page loader, layout detector, region cropper, and recognizer into a
// single parse(input, options) entry point, fanning recognition work out
// across a bounded worker pool and joining results back deterministically
// by page and region position.
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/docreader-go/docreader/internal/layout"
	"github.com/docreader-go/docreader/internal/recognizer"
)

// Builder constructs a Pipeline with fluent configuration, matching the
// teacher's builder-then-Build idiom.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder seeded with cfg.
func NewBuilder(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithMaxConcurrentRecognitions overrides the recognition concurrency cap.
func (b *Builder) WithMaxConcurrentRecognitions(n int) *Builder {
	if n > 0 {
		b.cfg.MaxConcurrentRecognitions = n
	}
	return b
}

// WithEnableLayout toggles whether layout detection runs at all.
func (b *Builder) WithEnableLayout(enabled bool) *Builder {
	b.cfg.EnableLayout = enabled
	return b
}

// Config returns a copy of the builder's current configuration.
func (b *Builder) Config() Config { return b.cfg }

// Pipeline wires a layout detector and a recognizer behind the bounded
// concurrency contract in spec §4.1/§5.
type Pipeline struct {
	cfg        Config
	Detector   *layout.Detector
	Recognizer *recognizer.Recognizer
	limiter    *AsyncLimiter
}

// Build loads the configured checkpoints and constructs a ready-to-use
// Pipeline. The layout detector is loaded whenever LayoutModelPath is set,
// even when EnableLayout is false; Parse runs it only when EnableLayout is
// true.
func (b *Builder) Build() (*Pipeline, error) {
	cfg := b.cfg

	recCfg := recognizer.DefaultConfig()
	recCfg.ModelID = cfg.RecognizerModelPath
	recCfg.TokenizerPath = filepath.Join(cfg.RecognizerModelPath, "tokenizer.json")
	recCfg.Prompts = cfg.Prompts
	recCfg.RecognitionOptions = cfg.RecognitionOptions

	rec, err := recognizer.Load(recCfg, cfg.RecognizerModelPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Build: recognizer: %w", err)
	}

	var det *layout.Detector
	if cfg.LayoutModelPath != "" {
		det, err = layout.Load(cfg.Layout, cfg.LayoutModelPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline.Build: layout: %w", err)
		}
	}

	return &Pipeline{
		cfg:        cfg,
		Detector:   det,
		Recognizer: rec,
		limiter:    NewAsyncLimiter(cfg.MaxConcurrentRecognitions),
	}, nil
}

// NewForTest constructs a Pipeline directly from already-loaded components,
// bypassing checkpoint loading; used by tests and by callers embedding an
// externally-managed detector/recognizer pair.
func NewForTest(cfg Config, det *layout.Detector, rec *recognizer.Recognizer) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		Detector:   det,
		Recognizer: rec,
		limiter:    NewAsyncLimiter(cfg.MaxConcurrentRecognitions),
	}
}
