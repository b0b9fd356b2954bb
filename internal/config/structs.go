//nolint:lll
package config

// Config is the complete configuration for one document-engine pipeline
// instance: global settings plus the recognized options named in the
// parsing contract (recognizer/layout model selection, concurrency,
// prompts, layout thresholds, PDF rasterization limits).
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	RecognizerModelID         string `mapstructure:"recognizer_model_id" yaml:"recognizer_model_id" json:"recognizer_model_id"`
	LayoutModelID             string `mapstructure:"layout_model_id" yaml:"layout_model_id" json:"layout_model_id"`
	MaxConcurrentRecognitions uint32 `mapstructure:"max_concurrent_recognitions" yaml:"max_concurrent_recognitions" json:"max_concurrent_recognitions"`
	EnableLayout              bool   `mapstructure:"enable_layout" yaml:"enable_layout" json:"enable_layout"`

	RecognitionOptions RecognitionOptions `mapstructure:"recognition_options" yaml:"recognition_options" json:"recognition_options"`
	Prompts            Prompts            `mapstructure:"prompts" yaml:"prompts" json:"prompts"`
	Layout             LayoutConfig       `mapstructure:"layout" yaml:"layout" json:"layout"`

	PDFDPI                 int  `mapstructure:"pdf_dpi" yaml:"pdf_dpi" json:"pdf_dpi"`
	PDFMaxRenderedLongSide int  `mapstructure:"pdf_max_rendered_long_side" yaml:"pdf_max_rendered_long_side" json:"pdf_max_rendered_long_side"`
	DefaultMaxPages        *int `mapstructure:"default_max_pages" yaml:"default_max_pages,omitempty" json:"default_max_pages,omitempty"`

	// Metrics is an ambient HTTP surface (spec §1 never names it, but the
	// teacher always carries a server-side metrics endpoint alongside its
	// pipeline config).
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// RecognitionOptions controls the recognizer's generation loop (spec §4.4.6).
type RecognitionOptions struct {
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	PrefillStepSize   int     `mapstructure:"prefill_step_size" yaml:"prefill_step_size" json:"prefill_step_size"`
	TopP              float64 `mapstructure:"top_p" yaml:"top_p" json:"top_p"`
	TopK              int     `mapstructure:"top_k" yaml:"top_k" json:"top_k"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty" yaml:"repetition_penalty" json:"repetition_penalty"`
}

// Prompts holds the per-task prompt strings fed to the recognizer
// (spec §4.1's prompt mapper, a pure function of task and this struct).
type Prompts struct {
	NoLayout string `mapstructure:"no_layout" yaml:"no_layout" json:"no_layout"`
	Text     string `mapstructure:"text" yaml:"text" json:"text"`
	Table    string `mapstructure:"table" yaml:"table" json:"table"`
	Formula  string `mapstructure:"formula" yaml:"formula" json:"formula"`
}

// LayoutConfig controls the layout detector's postprocessing thresholds
// and label/task mapping (spec §4.3.7).
type LayoutConfig struct {
	Threshold        float64            `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	ThresholdByClass map[string]float64 `mapstructure:"threshold_by_class" yaml:"threshold_by_class,omitempty" json:"threshold_by_class,omitempty"`
	LayoutNMS        bool               `mapstructure:"layout_nms" yaml:"layout_nms" json:"layout_nms"`
	UnclipRatioX     float64            `mapstructure:"unclip_ratio_x" yaml:"unclip_ratio_x" json:"unclip_ratio_x"`
	UnclipRatioY     float64            `mapstructure:"unclip_ratio_y" yaml:"unclip_ratio_y" json:"unclip_ratio_y"`
	MergeBBoxesMode  map[string]string  `mapstructure:"merge_bboxes_mode" yaml:"merge_bboxes_mode,omitempty" json:"merge_bboxes_mode,omitempty"`
	LabelTaskMapping map[string]string  `mapstructure:"label_task_mapping" yaml:"label_task_mapping,omitempty" json:"label_task_mapping,omitempty"`
	ID2Label         map[string]string  `mapstructure:"id2label" yaml:"id2label,omitempty" json:"id2label,omitempty"`
}

// MetricsConfig controls the Prometheus metrics HTTP surface.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// ParseOptions are the per-call overrides accepted by the pipeline's
// public parse entry point (spec §6 "ParseOptions").
type ParseOptions struct {
	IncludeMarkdown    bool    `json:"include_markdown"`
	IncludeDiagnostics bool    `json:"include_diagnostics"`
	MaxPages           *uint32 `json:"max_pages,omitempty"`
}

// DefaultParseOptions returns the documented defaults: markdown and
// diagnostics included, no page cap.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{IncludeMarkdown: true, IncludeDiagnostics: true}
}
