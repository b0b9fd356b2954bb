package layout

import (
	"fmt"
	"math"

	"github.com/docreader-go/docreader/internal/tensor"
)

// sinCosPositionEmbedding2D builds a (h*w, dim) sine-cosine position
// embedding, splitting dim evenly between the two spatial axes (AIFI's
// position embedding, spec §4.3.3).
func sinCosPositionEmbedding2D(h, w, dim int, temperature float64) []float32 {
	posDim := dim / 4
	out := make([]float32, h*w*dim)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tok := y*w + x
			base := tok * dim
			for i := 0; i < posDim; i++ {
				omega := 1.0 / math.Pow(temperature, float64(i)/float64(posDim))
				out[base+i] = float32(math.Sin(float64(x) * omega))
				out[base+posDim+i] = float32(math.Cos(float64(x) * omega))
				out[base+2*posDim+i] = float32(math.Sin(float64(y) * omega))
				out[base+3*posDim+i] = float32(math.Cos(float64(y) * omega))
			}
		}
	}
	return out
}

// projInput projects a backbone/encoder feature map to dModel channels via
// a 1x1 conv + batch-norm (no activation), per spec §4.3.3 "input
// projections".
func projInput(w Weights, prefix string, fm FeatureMap, dModel int) (FeatureMap, error) {
	return convBNAct(w, prefix, fm, dModel, 1, 1, 1, 0, 1, "")
}

// toTokens reshapes a (C,H,W) feature map into an (H*W, C) row-major token
// sequence (channels-last), the layout transformer blocks operate on.
func toTokens(fm FeatureMap) []float32 {
	n := fm.H * fm.W
	out := make([]float32, n*fm.C)
	for c := 0; c < fm.C; c++ {
		for i := 0; i < n; i++ {
			out[i*fm.C+c] = fm.Data[c*n+i]
		}
	}
	return out
}

// fromTokens is the inverse of toTokens.
func fromTokens(tokens []float32, c, h, w int) FeatureMap {
	n := h * w
	out := make([]float32, c*n)
	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			out[ch*n+i] = tokens[i*c+ch]
		}
	}
	return FeatureMap{Data: out, C: c, H: h, W: w}
}

// aifiEncoderLayer runs one post-norm transformer-encoder layer over
// (n, d) tokens: self-attention, residual+LN, FFN, residual+LN.
func aifiEncoderLayer(w Weights, prefix string, tokens []float32, n, d, numHeads int) ([]float32, error) {
	headDim := d / numHeads
	qW, err := w.Data(prefix + ".self_attn.q_proj.weight")
	if err != nil {
		return nil, err
	}
	kW, err := w.Data(prefix + ".self_attn.k_proj.weight")
	if err != nil {
		return nil, err
	}
	vW, err := w.Data(prefix + ".self_attn.v_proj.weight")
	if err != nil {
		return nil, err
	}
	oW, err := w.Data(prefix + ".self_attn.out_proj.weight")
	if err != nil {
		return nil, err
	}
	q := tensor.Linear(tensor.Tensor{Data: tokens, Shape: []int{n, d}}, d, n, tensor.Tensor{Data: qW}, d, nil).Data
	k := tensor.Linear(tensor.Tensor{Data: tokens, Shape: []int{n, d}}, d, n, tensor.Tensor{Data: kW}, d, nil).Data
	v := tensor.Linear(tensor.Tensor{Data: tokens, Shape: []int{n, d}}, d, n, tensor.Tensor{Data: vW}, d, nil).Data

	attnOut := make([]float32, n*d)
	for head := 0; head < numHeads; head++ {
		qh := extractCols(q, n, d, head*headDim, headDim)
		kh := extractCols(k, n, d, head*headDim, headDim)
		vh := extractCols(v, n, d, head*headDim, headDim)
		oh := tensor.Attention(qh, n, kh, vh, n, headDim, nil)
		placeCols(attnOut, oh, n, d, head*headDim, headDim)
	}
	attnProj := tensor.Linear(tensor.Tensor{Data: attnOut, Shape: []int{n, d}}, d, n, tensor.Tensor{Data: oW}, d, nil).Data
	for i := range attnProj {
		attnProj[i] += tokens[i]
	}
	ln1Gamma, err := w.Data(prefix + ".norm1.weight")
	if err != nil {
		return nil, err
	}
	ln1Beta, err := w.Data(prefix + ".norm1.bias")
	if err != nil {
		return nil, err
	}
	hidden := tensor.LayerNorm(attnProj, n, d, ln1Gamma, ln1Beta, 1e-5)

	ffnW1, err := w.Data(prefix + ".ffn.fc1.weight")
	if err != nil {
		return nil, err
	}
	ffnB1, _ := w.Data(prefix + ".ffn.fc1.bias")
	ffnW2, err := w.Data(prefix + ".ffn.fc2.weight")
	if err != nil {
		return nil, err
	}
	ffnB2, _ := w.Data(prefix + ".ffn.fc2.bias")
	dFF := len(ffnB1)
	mid := tensor.Linear(tensor.Tensor{Data: hidden, Shape: []int{n, d}}, d, n, tensor.Tensor{Data: ffnW1}, dFF, ffnB1).Data
	for i, v := range mid {
		if v < 0 {
			mid[i] = 0
		}
	}
	ffnOut := tensor.Linear(tensor.Tensor{Data: mid, Shape: []int{n, dFF}}, dFF, n, tensor.Tensor{Data: ffnW2}, d, ffnB2).Data
	for i := range ffnOut {
		ffnOut[i] += hidden[i]
	}
	ln2Gamma, err := w.Data(prefix + ".norm2.weight")
	if err != nil {
		return nil, err
	}
	ln2Beta, err := w.Data(prefix + ".norm2.bias")
	if err != nil {
		return nil, err
	}
	return tensor.LayerNorm(ffnOut, n, d, ln2Gamma, ln2Beta, 1e-5), nil
}

func extractCols(x []float32, n, d, offset, width int) []float32 {
	out := make([]float32, n*width)
	for i := 0; i < n; i++ {
		copy(out[i*width:(i+1)*width], x[i*d+offset:i*d+offset+width])
	}
	return out
}

func placeCols(dst []float32, src []float32, n, d, offset, width int) {
	for i := 0; i < n; i++ {
		copy(dst[i*d+offset:i*d+offset+width], src[i*width:(i+1)*width])
	}
}

// AIFI runs encoderLayers transformer-encoder layers over fm with a
// sine-cosine 2D position embedding added to the input tokens (spec
// §4.3.3, "AIFI").
func AIFI(w Weights, fm FeatureMap, encoderLayers, dModel, numHeads int) (FeatureMap, error) {
	tokens := toTokens(fm)
	pos := sinCosPositionEmbedding2D(fm.H, fm.W, dModel, 10000)
	withPos := make([]float32, len(tokens))
	for i := range tokens {
		withPos[i] = tokens[i] + pos[i]
	}
	cur := withPos
	for l := 0; l < encoderLayers; l++ {
		out, err := aifiEncoderLayer(w, fmt.Sprintf("encoder.aifi.%d", l), cur, fm.H*fm.W, dModel, numHeads)
		if err != nil {
			return FeatureMap{}, err
		}
		cur = out
	}
	return fromTokens(cur, dModel, fm.H, fm.W), nil
}

// repVGGBlock runs a RepVGG-style block: a kxk conv and a 1x1 conv (both
// with batch-norm), summed and passed through ReLU.
func repVGGBlock(w Weights, prefix string, fm FeatureMap, outC int) (FeatureMap, error) {
	kPath, err := convBNAct(w, prefix+".conv_k", fm, outC, 3, 3, 1, 1, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	onePath, err := convBNAct(w, prefix+".conv_1", fm, outC, 1, 1, 1, 0, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	out := make([]float32, len(kPath.Data))
	for i := range out {
		out[i] = kPath.Data[i] + onePath.Data[i]
	}
	relu(out)
	return FeatureMap{Data: out, C: outC, H: fm.H, W: fm.W}, nil
}

// cspRepBlock runs three RepVGG-style blocks inside one branch, summed
// with a parallel identity/1x1 branch, matching the FPN/PAN "CSP-Rep"
// block (spec §4.3.3).
func cspRepBlock(w Weights, prefix string, fm FeatureMap, outC int) (FeatureMap, error) {
	branch, err := convBNAct(w, prefix+".branch_in", fm, outC, 1, 1, 1, 0, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	cur := branch
	for i := 0; i < 3; i++ {
		cur, err = repVGGBlock(w, fmt.Sprintf("%s.rep.%d", prefix, i), cur, outC)
		if err != nil {
			return FeatureMap{}, err
		}
	}
	parallel, err := convBNAct(w, prefix+".branch_parallel", fm, outC, 1, 1, 1, 0, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	out := make([]float32, len(cur.Data))
	for i := range out {
		out[i] = cur.Data[i] + parallel.Data[i]
	}
	return FeatureMap{Data: out, C: outC, H: fm.H, W: fm.W}, nil
}

func nearestUpsample2x(fm FeatureMap) FeatureMap {
	out, h, w := tensor.NearestUpsample2x(fm.Data, fm.C, fm.H, fm.W)
	return FeatureMap{Data: out, C: fm.C, H: h, W: w}
}

func concatChannels(a, b FeatureMap) FeatureMap {
	out := make([]float32, (a.C+b.C)*a.H*a.W)
	copy(out, a.Data)
	copy(out[len(a.Data):], b.Data)
	return FeatureMap{Data: out, C: a.C + b.C, H: a.H, W: a.W}
}

// EncoderOutput holds the three projected+fused feature levels (finest to
// coarsest after PAN) plus the mask features, per spec §4.3.3.
type EncoderOutput struct {
	Levels       [3]FeatureMap
	MaskFeatures FeatureMap
}

// RunEncoder projects backbone stages 1-3 to dModel width, runs AIFI at
// the configured level, fuses top-down (FPN) then bottom-up (PAN), and
// produces mask features via the scale-head mask-feature head.
func RunEncoder(w Weights, bb BackboneOutput, cfg Config) (EncoderOutput, error) {
	var projected [3]FeatureMap
	for i := 0; i < 3; i++ {
		p, err := projInput(w, fmt.Sprintf("encoder.input_proj.%d", i), bb.Stages[i+1], cfg.DModel)
		if err != nil {
			return EncoderOutput{}, fmt.Errorf("input_proj.%d: %w", i, err)
		}
		projected[i] = p
	}

	aifiLevel := cfg.EncodeProjLevel
	if aifiLevel < 0 || aifiLevel > 2 {
		aifiLevel = 2
	}
	aifiOut, err := AIFI(w, projected[aifiLevel], cfg.EncoderLayers, cfg.DModel, cfg.NumHeads)
	if err != nil {
		return EncoderOutput{}, fmt.Errorf("aifi: %w", err)
	}
	projected[aifiLevel] = aifiOut

	// FPN top-down: from coarsest (index 2) to finest (index 0).
	fpn := projected
	for lvl := 2; lvl > 0; lvl-- {
		lateral, lerr := convBNAct(w, fmt.Sprintf("encoder.fpn.lateral.%d", lvl), fpn[lvl], cfg.DModel, 1, 1, 1, 0, 1, "")
		if lerr != nil {
			return EncoderOutput{}, lerr
		}
		up := nearestUpsample2x(lateral)
		merged := concatChannels(up, fpn[lvl-1])
		fused, ferr := cspRepBlock(w, fmt.Sprintf("encoder.fpn.csp.%d", lvl-1), merged, cfg.DModel)
		if ferr != nil {
			return EncoderOutput{}, ferr
		}
		fpn[lvl-1] = fused
	}

	// PAN bottom-up: from finest (index 0) to coarsest (index 2).
	pan := fpn
	for lvl := 0; lvl < 2; lvl++ {
		down, derr := convBNAct(w, fmt.Sprintf("encoder.pan.down.%d", lvl), pan[lvl], cfg.DModel, 3, 3, 2, 1, 1, "")
		if derr != nil {
			return EncoderOutput{}, derr
		}
		merged := concatChannels(down, fpn[lvl+1])
		fused, ferr := cspRepBlock(w, fmt.Sprintf("encoder.pan.csp.%d", lvl+1), merged, cfg.DModel)
		if ferr != nil {
			return EncoderOutput{}, ferr
		}
		pan[lvl+1] = fused
	}

	maskFeatures, err := maskFeatureHead(w, pan, bb.X4Feature, cfg)
	if err != nil {
		return EncoderOutput{}, fmt.Errorf("mask_feature_head: %w", err)
	}

	return EncoderOutput{Levels: pan, MaskFeatures: maskFeatures}, nil
}

// maskFeatureHead sums per-scale "scale head" outputs (SiLU convs with
// repeated 2x bilinear upsampling until the base/finest stride is
// reached), runs an output conv, upsamples 2x more, adds the x4 lateral
// projection, and runs a final base conv + 1x1 conv (spec §4.3.3).
func maskFeatureHead(w Weights, levels [3]FeatureMap, x4 FeatureMap, cfg Config) (FeatureMap, error) {
	baseH, baseW := levels[0].H, levels[0].W
	var sum []float32
	for i, lvl := range levels {
		scaled, err := convBNAct(w, fmt.Sprintf("encoder.mask_head.scale.%d", i), lvl, cfg.DModel, 3, 3, 1, 1, 1, "")
		if err != nil {
			return FeatureMap{}, err
		}
		scaled.Data = tensor.SiLU(scaled.Data)
		cur := scaled
		for cur.H < baseH {
			out, h, wd := tensor.BilinearUpsample2x(cur.Data, cur.C, cur.H, cur.W)
			cur = FeatureMap{Data: out, C: cur.C, H: h, W: wd}
		}
		if sum == nil {
			sum = make([]float32, baseW*baseH*cfg.DModel)
		}
		for j := range sum {
			sum[j] += cur.Data[j]
		}
	}
	summed := FeatureMap{Data: sum, C: cfg.DModel, H: baseH, W: baseW}

	outConv, err := convBNAct(w, "encoder.mask_head.output", summed, cfg.DModel, 3, 3, 1, 1, 1, "relu")
	if err != nil {
		return FeatureMap{}, err
	}
	up, h, wd := tensor.BilinearUpsample2x(outConv.Data, outConv.C, outConv.H, outConv.W)
	upFM := FeatureMap{Data: up, C: outConv.C, H: h, W: wd}

	x4Proj, err := convBNAct(w, "encoder.mask_head.x4_lateral", x4, cfg.DModel, 1, 1, 1, 0, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	if len(x4Proj.Data) == len(upFM.Data) {
		for i := range upFM.Data {
			upFM.Data[i] += x4Proj.Data[i]
		}
	}

	base, err := convBNAct(w, "encoder.mask_head.base", upFM, cfg.DModel, 3, 3, 1, 1, 1, "relu")
	if err != nil {
		return FeatureMap{}, err
	}
	final, err := convBNAct(w, "encoder.mask_head.final", base, cfg.DModel, 1, 1, 1, 0, 1, "")
	if err != nil {
		return FeatureMap{}, err
	}
	return final, nil
}
