package layout

import (
	"fmt"
	"math"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/tensor"
)

// FeatureMap is an NCHW feature map with N implicitly 1 (single-image
// forward passes throughout this package).
type FeatureMap struct {
	Data []float32
	C, H, W int
}

func (f FeatureMap) at(c int) []float32 {
	return f.Data[c*f.H*f.W : (c+1)*f.H*f.W]
}

func relu(x []float32) []float32 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// batchNorm applies a frozen (inference-mode) batch-norm affine transform
// per channel, using the checkpoint's running statistics.
func batchNorm(w Weights, prefix string, fm FeatureMap) (FeatureMap, error) {
	gamma, err := w.Data(prefix + ".weight")
	if err != nil {
		return fm, err
	}
	beta, err := w.Data(prefix + ".bias")
	if err != nil {
		return fm, err
	}
	mean, err := w.Data(prefix + ".running_mean")
	if err != nil {
		return fm, err
	}
	variance, err := w.Data(prefix + ".running_var")
	if err != nil {
		return fm, err
	}
	const eps = 1e-5
	out := make([]float32, len(fm.Data))
	hw := fm.H * fm.W
	for c := 0; c < fm.C; c++ {
		scale := gamma[c] / float32(math.Sqrt(float64(variance[c])+eps))
		shift := beta[c] - mean[c]*scale
		base := c * hw
		for i := 0; i < hw; i++ {
			out[base+i] = fm.Data[base+i]*scale + shift
		}
	}
	return FeatureMap{Data: out, C: fm.C, H: fm.H, W: fm.W}, nil
}

// convBNAct runs a conv2d (optionally grouped/depthwise), a frozen
// batch-norm, and an optional activation ("relu" or "" for none). Weight
// tensors are looked up under prefix+".conv.weight" and prefix+".bn.*".
func convBNAct(w Weights, prefix string, fm FeatureMap, outC, kh, kw, stride, pad, groups int, act string) (FeatureMap, error) {
	weight, err := w.Data(prefix + ".conv.weight")
	if err != nil {
		return FeatureMap{}, err
	}
	out, outH, outW := tensor.Conv2D(fm.Data, fm.C, fm.H, fm.W, weight, outC, kh, kw, stride, stride, pad, pad, nil, groups)
	conv := FeatureMap{Data: out, C: outC, H: outH, W: outW}
	bn, err := batchNorm(w, prefix+".bn", conv)
	if err != nil {
		return FeatureMap{}, err
	}
	if act == "relu" {
		relu(bn.Data)
	}
	return bn, nil
}

// Stem is three stacked 3x3 convs (stride 2, 1, 1), matching HGNet's
// standard stem: a first downsample, then two same-resolution refinement
// convs, producing the backbone's x4_feature (spec §4.3.2).
func Stem(w Weights, input FeatureMap) (FeatureMap, error) {
	x, err := convBNAct(w, "backbone.stem.conv1", input, 32, 3, 3, 2, 1, 1, "relu")
	if err != nil {
		return FeatureMap{}, fmt.Errorf("stem.conv1: %w", err)
	}
	x, err = convBNAct(w, "backbone.stem.conv2", x, 32, 3, 3, 1, 1, 1, "relu")
	if err != nil {
		return FeatureMap{}, fmt.Errorf("stem.conv2: %w", err)
	}
	x, err = convBNAct(w, "backbone.stem.conv3", x, BackboneStages[0].InChannels, 3, 3, 1, 1, 1, "relu")
	if err != nil {
		return FeatureMap{}, fmt.Errorf("stem.conv3: %w", err)
	}
	return x, nil
}

// hgBlock runs one HGNet block: num_layers per-layer convs (light blocks
// use a 1x1 pointwise conv followed by a depthwise k x k; non-light blocks
// use a single k x k conv), concatenates the block's input with every
// layer's output along the channel axis, runs two 1x1 aggregation convs,
// and adds a residual when blockIdx > 0 (spec §4.3.2).
func hgBlock(w Weights, prefix string, fm FeatureMap, cfg StageConfig, blockIdx int) (FeatureMap, error) {
	layers := make([]FeatureMap, 0, cfg.NumLayers+1)
	layers = append(layers, fm)
	cur := fm
	for l := 0; l < cfg.NumLayers; l++ {
		layerPrefix := fmt.Sprintf("%s.layers.%d", prefix, l)
		var out FeatureMap
		var err error
		if cfg.LightBlock {
			pw, perr := convBNAct(w, layerPrefix+".pw", cur, cfg.MidChannels, 1, 1, 1, 0, 1, "relu")
			if perr != nil {
				return FeatureMap{}, perr
			}
			out, err = convBNAct(w, layerPrefix+".dw", pw, cfg.MidChannels, cfg.Kernel, cfg.Kernel, 1, cfg.Kernel/2, cfg.MidChannels, "relu")
		} else {
			out, err = convBNAct(w, layerPrefix, cur, cfg.MidChannels, cfg.Kernel, cfg.Kernel, 1, cfg.Kernel/2, 1, "relu")
		}
		if err != nil {
			return FeatureMap{}, err
		}
		layers = append(layers, out)
		cur = out
	}

	concatC := 0
	for _, l := range layers {
		concatC += l.C
	}
	concat := make([]float32, concatC*fm.H*fm.W)
	offset := 0
	for _, l := range layers {
		copy(concat[offset:offset+l.C*fm.H*fm.W], l.Data)
		offset += l.C * fm.H * fm.W
	}
	concatFM := FeatureMap{Data: concat, C: concatC, H: fm.H, W: fm.W}

	agg1, err := convBNAct(w, prefix+".agg1", concatFM, cfg.OutChannels/2, 1, 1, 1, 0, 1, "relu")
	if err != nil {
		return FeatureMap{}, err
	}
	agg2, err := convBNAct(w, prefix+".agg2", agg1, cfg.OutChannels, 1, 1, 1, 0, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	if blockIdx > 0 && agg2.C == fm.C && agg2.H == fm.H && agg2.W == fm.W {
		for i := range agg2.Data {
			agg2.Data[i] += fm.Data[i]
		}
	}
	relu(agg2.Data)
	return agg2, nil
}

// Stage runs a backbone stage: an optional stride-2 depthwise downsample
// conv, then cfg.NumBlocks HGNet blocks.
func Stage(w Weights, prefix string, fm FeatureMap, cfg StageConfig) (FeatureMap, error) {
	cur := fm
	if cfg.Downsample {
		down, err := convBNAct(w, prefix+".downsample", cur, cfg.InChannels, 3, 3, 2, 1, cfg.InChannels, "")
		if err != nil {
			return FeatureMap{}, fmt.Errorf("%s.downsample: %w", prefix, err)
		}
		cur = down
	}
	for b := 0; b < cfg.NumBlocks; b++ {
		blockPrefix := fmt.Sprintf("%s.blocks.%d", prefix, b)
		out, err := hgBlock(w, blockPrefix, cur, cfg, b)
		if err != nil {
			return FeatureMap{}, fmt.Errorf("%s: %w", blockPrefix, err)
		}
		cur = out
	}
	return cur, nil
}

// BackboneOutput holds the backbone's x4_feature and the four stage
// feature maps, per spec §4.3.2.
type BackboneOutput struct {
	X4Feature FeatureMap
	Stages    [4]FeatureMap
}

// Forward runs the stem followed by the four fixed stages.
func Forward(w Weights, input FeatureMap) (BackboneOutput, error) {
	if input.C != 3 {
		return BackboneOutput{}, docerr.New(docerr.InvalidConfiguration, "layout.backbone.Forward",
			fmt.Errorf("expected 3-channel input, got %d", input.C))
	}
	x4, err := Stem(w, input)
	if err != nil {
		return BackboneOutput{}, err
	}

	var out BackboneOutput
	out.X4Feature = x4
	cur := x4
	for i, cfg := range BackboneStages {
		stagePrefix := fmt.Sprintf("backbone.stages.%d", i)
		stageOut, serr := Stage(w, stagePrefix, cur, cfg)
		if serr != nil {
			return BackboneOutput{}, serr
		}
		out.Stages[i] = stageOut
		cur = stageOut
	}
	return out, nil
}
