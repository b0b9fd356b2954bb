package layout

import (
	"fmt"
	"image"
	"time"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/imageprep"
	"github.com/docreader-go/docreader/internal/safetensors"
)

// Detector runs the full layout pipeline: backbone, encoder, decoder, and
// postprocessing, over a page image. It holds the detector's checkpoint
// weights and tunable configuration.
type Detector struct {
	config  Config
	weights Weights
}

// New constructs a Detector from already-loaded weights.
func New(cfg Config, weights Weights) *Detector {
	return &Detector{config: cfg, weights: weights}
}

// Load reads a safetensors checkpoint from modelPath and constructs a
// Detector with the given configuration.
func Load(cfg Config, modelPath string) (*Detector, error) {
	m, err := safetensors.Load(modelPath)
	if err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "layout.Load", err)
	}
	return New(cfg, NewWeights(m)), nil
}

// Config returns the detector's active configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect runs the layout detector over img, returning regions in img's
// original pixel coordinate space (spec §4.3).
func (d *Detector) Detect(img image.Image) ([]Region, error) {
	regions, _, err := d.DetectWithTimings(img)
	return regions, err
}

// Timings breaks a single Detect call down into the three stages the
// orchestrator reports separately (spec §4.1's layout_preprocess,
// layout_inference, layout_postprocess timing keys).
type Timings struct {
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
}

// DetectWithTimings runs Detect while measuring preprocessing, the
// backbone+encoder+decoder forward pass, and postprocessing separately.
func (d *Detector) DetectWithTimings(img image.Image) ([]Region, Timings, error) {
	var t Timings
	bounds := img.Bounds()
	pageW, pageH := bounds.Dx(), bounds.Dy()
	if pageW == 0 || pageH == 0 {
		return nil, t, docerr.New(docerr.InvalidConfiguration, "layout.Detect", fmt.Errorf("image has zero width or height"))
	}

	preStart := time.Now()
	inputTensor, err := imageprep.PrepareLayoutInput(img)
	t.Preprocess = time.Since(preStart)
	if err != nil {
		return nil, t, fmt.Errorf("layout.Detect: prepare input: %w", err)
	}
	input := FeatureMap{Data: inputTensor.Data, C: 3, H: imageprep.LayoutInputSide, W: imageprep.LayoutInputSide}

	infStart := time.Now()
	bb, err := Forward(d.weights, input)
	if err != nil {
		return nil, t, fmt.Errorf("layout.Detect: backbone: %w", err)
	}
	enc, err := RunEncoder(d.weights, bb, d.config)
	if err != nil {
		return nil, t, fmt.Errorf("layout.Detect: encoder: %w", err)
	}
	dec, err := RunDecoder(d.weights, enc, d.config)
	if err != nil {
		return nil, t, fmt.Errorf("layout.Detect: decoder: %w", err)
	}
	t.Inference = time.Since(infStart)

	postStart := time.Now()
	regions := PostProcess(dec, d.config, pageW, pageH)
	t.Postprocess = time.Since(postStart)

	return regions, t, nil
}
