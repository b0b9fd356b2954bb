package recognizer

// RecognitionOptions are the sampling/generation tunables from spec §6's
// "recognition_options" config block.
type RecognitionOptions struct {
	MaxTokens          int
	Temperature        float64
	PrefillStepSize    int
	TopP               float64
	TopK               int
	RepetitionPenalty  float64
}

// DefaultRecognitionOptions matches the shipping defaults.
func DefaultRecognitionOptions() RecognitionOptions {
	return RecognitionOptions{
		MaxTokens:         4096,
		Temperature:       0,
		PrefillStepSize:   2048,
		TopP:              1,
		TopK:              1,
		RepetitionPenalty: 1,
	}
}

// Prompts holds the per-task prompt strings from spec §6.
type Prompts struct {
	NoLayout string
	Text     string
	Table    string
	Formula  string
}

// DefaultPrompts matches the shipping default prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		NoLayout: "OCR this image.",
		Text:     "OCR this image.",
		Table:    "Extract the table from this image as Markdown.",
		Formula:  "Extract the formula from this image as LaTeX.",
	}
}

// VisionConfig fixes the recognizer's vision-tower architecture constants
// (spec §4.4.1, §4.4.2).
type VisionConfig struct {
	PatchSize         int
	TemporalPatchSize int
	SpatialMergeSize  int
	MinPixels         int
	MaxPixels         int
	MaxAspectRatio    float64
	Depth             int
	HiddenSize        int
	NumHeads          int
	RotaryTheta        float64
}

// DefaultVisionConfig matches the recognizer checkpoint's vision tower.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		PatchSize:         14,
		TemporalPatchSize: 2,
		SpatialMergeSize:  2,
		MinPixels:         256 * 28 * 28,
		MaxPixels:         16384 * 28 * 28,
		MaxAspectRatio:    200,
		Depth:             24,
		HiddenSize:        1280,
		NumHeads:          16,
		RotaryTheta:       10000,
	}
}

// LanguageConfig fixes the recognizer's language-model architecture
// constants (spec §4.4.3).
type LanguageConfig struct {
	NumHiddenLayers int
	HiddenSize      int
	NumHeads        int
	NumKVHeads      int
	HeadDim         int
	IntermediateSize int
	RotaryTheta     float64
	VocabSize       int
}

// DefaultLanguageConfig matches the recognizer checkpoint's language model.
func DefaultLanguageConfig() LanguageConfig {
	return LanguageConfig{
		NumHiddenLayers:  16,
		HiddenSize:       2048,
		NumHeads:         16,
		NumKVHeads:       4,
		HeadDim:          128,
		IntermediateSize: 5504,
		RotaryTheta:      10000,
		VocabSize:        151552,
	}
}

// Config holds the recognizer's full configuration: checkpoint identity,
// prompts, sampling options, and architecture constants.
type Config struct {
	ModelID       string
	TokenizerPath string

	Prompts            Prompts
	RecognitionOptions RecognitionOptions
	Vision             VisionConfig
	Language           LanguageConfig

	// Special token names resolved against the loaded tokenizer at
	// construction time (spec §4.4.4, §4.4.5).
	ImageTokenName      string
	VideoTokenName      string
	ImageStartTokenName string
	EOSTokenNames       []string
}

// DefaultConfig returns the recognizer's default configuration.
func DefaultConfig() Config {
	return Config{
		ModelID:             "mlx-community/GLM-OCR-bf16",
		Prompts:             DefaultPrompts(),
		RecognitionOptions:  DefaultRecognitionOptions(),
		Vision:              DefaultVisionConfig(),
		Language:            DefaultLanguageConfig(),
		ImageTokenName:      "<|image|>",
		VideoTokenName:      "<|video|>",
		ImageStartTokenName: "<|begin_of_image|>",
		EOSTokenNames:       []string{"<|endoftext|>", "<|user|>", "<|observation|>"},
	}
}

// PromptFor returns the configured prompt string for task, defaulting to
// the no-layout prompt for unrecognized task names.
func (c Config) PromptFor(task string) string {
	switch task {
	case "text":
		return c.Prompts.Text
	case "table":
		return c.Prompts.Table
	case "formula":
		return c.Prompts.Formula
	default:
		return c.Prompts.NoLayout
	}
}
