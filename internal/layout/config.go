package layout

// StageConfig describes one HGNet backbone stage (spec §4.3.2's fixed
// four-row table).
type StageConfig struct {
	InChannels  int
	MidChannels int
	OutChannels int
	NumBlocks   int
	Downsample  bool
	LightBlock  bool
	Kernel      int
	NumLayers   int
}

// BackboneStages is the fixed stage table; it is not configurable.
var BackboneStages = [4]StageConfig{
	{InChannels: 48, MidChannels: 48, OutChannels: 128, NumBlocks: 1, Downsample: false, LightBlock: false, Kernel: 3, NumLayers: 6},
	{InChannels: 128, MidChannels: 96, OutChannels: 512, NumBlocks: 1, Downsample: true, LightBlock: false, Kernel: 3, NumLayers: 6},
	{InChannels: 512, MidChannels: 192, OutChannels: 1024, NumBlocks: 3, Downsample: true, LightBlock: true, Kernel: 5, NumLayers: 6},
	{InChannels: 1024, MidChannels: 384, OutChannels: 2048, NumBlocks: 1, Downsample: true, LightBlock: true, Kernel: 5, NumLayers: 6},
}

// Config holds the tunables for the layout detector: model path, detection
// thresholds, NMS behavior, unclip ratios, and label mapping (spec §6
// "layout" config block).
type Config struct {
	ModelID string

	InputSize int // fixed 800, see PrepareLayoutInput

	DModel         int // encoder/decoder hidden width (256)
	NumQueries     int // 300
	NumDecoderLayers int // 6
	EncoderLayers  int // AIFI layers at the coarsest level, default 1
	EncodeProjLevel int // which input-projection level AIFI runs on (index into the 3 proj levels)
	NumHeads       int
	GlobalPointerHeadSize int
	MaskFeatureSize int // Mh, Mw = 200

	MaskEnhanced bool

	Threshold        float64
	ThresholdByClass map[string]float64
	LayoutNMS        bool
	UnclipRatioX     float64
	UnclipRatioY     float64
	MergeBBoxesMode  map[string]string // class -> "large" | "small"
	LabelTaskMapping map[string]string // native label -> task
	ID2Label         map[string]string // class index (as string) -> native label
}

const (
	defaultDModel           = 256
	defaultNumQueries       = 300
	defaultDecoderLayers    = 6
	defaultEncoderLayers    = 1
	defaultNumHeads         = 8
	defaultGlobalPtrHeadSz  = 32
	defaultMaskFeatureSize  = 200
)

// DefaultConfig returns the layout detector's default configuration,
// matching spec §6's recognized "layout" options plus the architecture
// constants fixed by §4.3.
func DefaultConfig() Config {
	return Config{
		ModelID:               "PaddlePaddle/PP-DocLayoutV3_safetensors",
		InputSize:             800,
		DModel:                defaultDModel,
		NumQueries:            defaultNumQueries,
		NumDecoderLayers:      defaultDecoderLayers,
		EncoderLayers:         defaultEncoderLayers,
		EncodeProjLevel:       2, // coarsest of the three projected levels
		NumHeads:              defaultNumHeads,
		GlobalPointerHeadSize: defaultGlobalPtrHeadSz,
		MaskFeatureSize:       defaultMaskFeatureSize,
		MaskEnhanced:          true,
		Threshold:             0.3,
		ThresholdByClass:      map[string]float64{},
		LayoutNMS:             true,
		UnclipRatioX:          1,
		UnclipRatioY:          1,
		MergeBBoxesMode:       map[string]string{},
		LabelTaskMapping:      map[string]string{},
		ID2Label:              map[string]string{},
	}
}

// ThresholdFor returns the per-class detection threshold if configured,
// else the global threshold, matching spec §4.3.7 step 3's
// max(global_threshold, per_class_threshold) rule (the per-class value
// only ever raises the bar, so the max collapses to "use it if present").
func (c Config) ThresholdFor(label string) float64 {
	if t, ok := c.ThresholdByClass[label]; ok && t > c.Threshold {
		return t
	}
	return c.Threshold
}

// TaskFor maps a native label to its task via LabelTaskMapping, defaulting
// to "text" per spec §4.3.7 step 10.
func (c Config) TaskFor(label string) string {
	if t, ok := c.LabelTaskMapping[label]; ok && t != "" {
		return t
	}
	return "text"
}
