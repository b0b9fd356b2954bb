package pipeline

import (
	"github.com/docreader-go/docreader/internal/config"
	"github.com/docreader-go/docreader/internal/layout"
	"github.com/docreader-go/docreader/internal/recognizer"
)

// Config holds the fully-resolved component configuration the orchestrator
// needs to build a Pipeline: model checkpoint paths plus the recognized
// options from spec §6's "Config" block, already translated into each
// component's own config type.
type Config struct {
	RecognizerModelPath string
	LayoutModelPath      string

	MaxConcurrentRecognitions int
	EnableLayout              bool

	RecognitionOptions recognizer.RecognitionOptions
	Prompts            recognizer.Prompts
	Layout             layout.Config

	PDFDPI                 int
	PDFMaxRenderedLongSide int
	DefaultMaxPages        *int
}

// FromAppConfig translates an app-level config.Config plus resolved model
// directories (produced by internal/delivery's ensure_ready) into the
// component Config Build expects.
func FromAppConfig(cfg config.Config, recognizerModelPath, layoutModelPath string) Config {
	return Config{
		RecognizerModelPath:       recognizerModelPath,
		LayoutModelPath:           layoutModelPath,
		MaxConcurrentRecognitions: int(cfg.MaxConcurrentRecognitions),
		EnableLayout:              cfg.EnableLayout,
		RecognitionOptions: recognizer.RecognitionOptions{
			MaxTokens:         cfg.RecognitionOptions.MaxTokens,
			Temperature:       cfg.RecognitionOptions.Temperature,
			PrefillStepSize:   cfg.RecognitionOptions.PrefillStepSize,
			TopP:              cfg.RecognitionOptions.TopP,
			TopK:              cfg.RecognitionOptions.TopK,
			RepetitionPenalty: cfg.RecognitionOptions.RepetitionPenalty,
		},
		Prompts: recognizer.Prompts{
			NoLayout: cfg.Prompts.NoLayout,
			Text:     cfg.Prompts.Text,
			Table:    cfg.Prompts.Table,
			Formula:  cfg.Prompts.Formula,
		},
		Layout:                 mergeLayoutConfig(cfg.Layout, layoutModelPath),
		PDFDPI:                 cfg.PDFDPI,
		PDFMaxRenderedLongSide: cfg.PDFMaxRenderedLongSide,
		DefaultMaxPages:        cfg.DefaultMaxPages,
	}
}

// mergeLayoutConfig overlays the app-level layout tunables onto the
// detector's architecture-constant defaults; the app config never carries
// the fixed DModel/NumQueries/etc. constants, only the postprocessing
// knobs named in spec §6.
func mergeLayoutConfig(lc config.LayoutConfig, modelPath string) layout.Config {
	out := layout.DefaultConfig()
	out.ModelID = modelPath
	out.Threshold = lc.Threshold
	out.LayoutNMS = lc.LayoutNMS
	out.UnclipRatioX = lc.UnclipRatioX
	out.UnclipRatioY = lc.UnclipRatioY
	if lc.ThresholdByClass != nil {
		out.ThresholdByClass = lc.ThresholdByClass
	}
	if lc.MergeBBoxesMode != nil {
		out.MergeBBoxesMode = lc.MergeBBoxesMode
	}
	if lc.LabelTaskMapping != nil {
		out.LabelTaskMapping = lc.LabelTaskMapping
	}
	if lc.ID2Label != nil {
		out.ID2Label = lc.ID2Label
	}
	return out
}
