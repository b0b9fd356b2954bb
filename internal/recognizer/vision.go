package recognizer

import (
	"fmt"

	"github.com/docreader-go/docreader/internal/imageprep"
	"github.com/docreader-go/docreader/internal/tensor"
)

// visionBlock runs one vision-tower transformer block (spec §4.4.2):
// RMSNorm -> self-attention (rotary on q,k after per-head RMSNorm) ->
// residual -> RMSNorm -> gated-MLP(silu(gate)*up, down) -> residual.
func visionBlock(w Weights, prefix string, x []float32, n int, cfg VisionConfig, rotary tensor.RotaryTable, cuSeqLens []int) ([]float32, error) {
	d := cfg.HiddenSize
	headDim := d / cfg.NumHeads

	normed, err := rmsNormNamed(w, prefix+".norm1", x, n, d)
	if err != nil {
		return nil, err
	}
	qW, err := w.Tensor(prefix + ".attn.q_proj.weight")
	if err != nil {
		return nil, err
	}
	kW, err := w.Tensor(prefix + ".attn.k_proj.weight")
	if err != nil {
		return nil, err
	}
	vW, err := w.Tensor(prefix + ".attn.v_proj.weight")
	if err != nil {
		return nil, err
	}
	oW, err := w.Tensor(prefix + ".attn.o_proj.weight")
	if err != nil {
		return nil, err
	}
	normedT, _ := tensor.Wrap(normed, n, d)
	q := tensor.Linear(normedT, d, n, qW, d, nil).Data
	k := tensor.Linear(normedT, d, n, kW, d, nil).Data
	v := tensor.Linear(normedT, d, n, vW, d, nil).Data

	if qNorm, err := w.Data(prefix + ".attn.q_norm.weight"); err == nil {
		q = tensor.RMSNorm(q, n*cfg.NumHeads, headDim, qNorm, 1e-6)
	}
	if kNorm, err := w.Data(prefix + ".attn.k_norm.weight"); err == nil {
		k = tensor.RMSNorm(k, n*cfg.NumHeads, headDim, kNorm, 1e-6)
	}
	q = tensor.ApplyRotaryIndexed(q, n*cfg.NumHeads, headDim, expandRotaryPerHead(rotary, cfg.NumHeads, n))
	k = tensor.ApplyRotaryIndexed(k, n*cfg.NumHeads, headDim, expandRotaryPerHead(rotary, cfg.NumHeads, n))

	attnOut := tensor.WindowedAttentionCuSeqLens(q, k, v, cfg.NumHeads, headDim, cuSeqLens)
	attnOutT, _ := tensor.Wrap(attnOut, n, d)
	proj := tensor.Linear(attnOutT, d, n, oW, d, nil).Data

	x = addVec(x, proj)

	normed2, err := rmsNormNamed(w, prefix+".norm2", x, n, d)
	if err != nil {
		return nil, err
	}
	mlpOut, err := visionMLP(w, prefix+".mlp", normed2, n, cfg)
	if err != nil {
		return nil, err
	}
	return addVec(x, mlpOut), nil
}

// expandRotaryPerHead repeats a per-token [n, headDim/2] rotary table
// cfg.NumHeads times so ApplyRotaryIndexed (which expects one row per
// flattened (token,head) pair) sees the same per-token angles for every
// head.
func expandRotaryPerHead(table tensor.RotaryTable, numHeads, n int) tensor.RotaryTable {
	half := table.Dim / 2
	cos := make([]float32, n*numHeads*half)
	sin := make([]float32, n*numHeads*half)
	for i := 0; i < n; i++ {
		srcCos := table.Cos[i*half : (i+1)*half]
		srcSin := table.Sin[i*half : (i+1)*half]
		for h := 0; h < numHeads; h++ {
			copy(cos[(i*numHeads+h)*half:(i*numHeads+h+1)*half], srcCos)
			copy(sin[(i*numHeads+h)*half:(i*numHeads+h+1)*half], srcSin)
		}
	}
	return tensor.RotaryTable{Cos: cos, Sin: sin, Dim: table.Dim}
}

func visionMLP(w Weights, prefix string, x []float32, n int, cfg VisionConfig) ([]float32, error) {
	d := cfg.HiddenSize
	gateW, err := w.Tensor(prefix + ".gate_proj.weight")
	if err != nil {
		return nil, err
	}
	upW, err := w.Tensor(prefix + ".up_proj.weight")
	if err != nil {
		return nil, err
	}
	downW, err := w.Tensor(prefix + ".down_proj.weight")
	if err != nil {
		return nil, err
	}
	inter := gateW.Shape[0]
	xT, _ := tensor.Wrap(x, n, d)
	gate := tensor.Linear(xT, d, n, gateW, inter, nil).Data
	up := tensor.Linear(xT, d, n, upW, inter, nil).Data
	gated := tensor.GatedMLP(gate, up)
	gatedT, _ := tensor.Wrap(gated, n, inter)
	return tensor.Linear(gatedT, inter, n, downW, d, nil).Data, nil
}

func rmsNormNamed(w Weights, name string, x []float32, n, d int) ([]float32, error) {
	weight, err := w.Data(name + ".weight")
	if err != nil {
		return nil, err
	}
	return tensor.RMSNorm(x, n, d, weight, 1e-6), nil
}

func addVec(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// VisionFeatures holds the vision tower's merged patch features, one row
// per output token after spatial 2x downsampling.
type VisionFeatures struct {
	Data []float32
	N    int
	Dim  int
}

// RunVisionTower embeds prepared vision patches, runs the transformer
// blocks, and applies the post-layernorm + spatial-merge + patch-merger
// pipeline from spec §4.4.2.
func RunVisionTower(w Weights, vis imageprep.PreparedVision, cfg VisionConfig) (VisionFeatures, error) {
	patchDim := vis.Patches.Shape[1]
	n := vis.Patches.Shape[0]

	embedW, err := w.Tensor("vision_tower.patch_embed.proj.weight")
	if err != nil {
		return VisionFeatures{}, fmt.Errorf("vision.patch_embed: %w", err)
	}
	embedB, _ := w.Data("vision_tower.patch_embed.proj.bias")
	x := tensor.Linear(vis.Patches, patchDim, n, flattenConvWeight(embedW), cfg.HiddenSize, embedB).Data

	rotary := tensor.BuildVisionRotary2D(vis.GridH, vis.GridW, cfg.HiddenSize/cfg.NumHeads, cfg.RotaryTheta)
	cuSeqLens := []int{0, n}

	for l := 0; l < cfg.Depth; l++ {
		prefix := fmt.Sprintf("vision_tower.blocks.%d", l)
		out, err := visionBlock(w, prefix, x, n, cfg, rotary, cuSeqLens)
		if err != nil {
			return VisionFeatures{}, fmt.Errorf("%s: %w", prefix, err)
		}
		x = out
	}

	x, err = rmsNormNamed(w, "vision_tower.post_layernorm", x, n, cfg.HiddenSize)
	if err != nil {
		return VisionFeatures{}, err
	}

	merged, mergedN, mergedDim, err := spatialMerge(w, x, vis.GridH, vis.GridW, cfg)
	if err != nil {
		return VisionFeatures{}, err
	}

	out, err := patchMerger(w, merged, mergedN, mergedDim, cfg)
	if err != nil {
		return VisionFeatures{}, err
	}
	return out, nil
}

// flattenConvWeight reshapes a [outC, ...] weight tensor into a 2D
// [outC, prod(rest)] tensor for use as a Linear weight, keeping the
// checkpoint's own axis order: the loader does not transpose conv weights,
// so a channels-first checkpoint is flattened channels-first.
func flattenConvWeight(t tensor.Tensor) tensor.Tensor {
	if len(t.Shape) == 2 {
		return t
	}
	in := 1
	for _, d := range t.Shape[1:] {
		in *= d
	}
	out, err := tensor.Wrap(t.Data, t.Shape[0], in)
	if err != nil {
		return t
	}
	return out
}

// spatialMerge applies the 2x2 spatial-merge conv (stride=kernel=2) over
// the gridH x gridW token grid (row-major, matching PrepareVisionInput's
// patch order), halving both spatial dims and concatenating each 2x2
// block's tokens' channels before the downsample projection.
func spatialMerge(w Weights, x []float32, gridH, gridW int, cfg VisionConfig) ([]float32, int, int, error) {
	mergeW, err := w.Tensor("vision_tower.downsample.weight")
	if err != nil {
		return nil, 0, 0, err
	}
	mergeB, _ := w.Data("vision_tower.downsample.bias")
	m := cfg.SpatialMergeSize
	mergedH, mergedW := gridH/m, gridW/m
	mergedN := mergedH * mergedW
	inDim := cfg.HiddenSize * m * m

	regrouped := make([]float32, mergedN*inDim)
	for my := 0; my < mergedH; my++ {
		for mx := 0; mx < mergedW; mx++ {
			dst := my*mergedW + mx
			g := 0
			for dy := 0; dy < m; dy++ {
				for dx := 0; dx < m; dx++ {
					srcTok := (my*m+dy)*gridW + (mx*m + dx)
					copy(regrouped[dst*inDim+g*cfg.HiddenSize:dst*inDim+(g+1)*cfg.HiddenSize], x[srcTok*cfg.HiddenSize:(srcTok+1)*cfg.HiddenSize])
					g++
				}
			}
		}
	}
	regroupedT, _ := tensor.Wrap(regrouped, mergedN, inDim)
	outDim := mergeW.Shape[0]
	out := tensor.Linear(regroupedT, inDim, mergedN, flattenConvWeight(mergeW), outDim, mergeB)
	return out.Data, mergedN, outDim, nil
}

// patchMerger runs Linear -> LayerNorm -> gelu -> down(silu(gate)*up) per
// spec §4.4.2's final merger stage.
func patchMerger(w Weights, x []float32, n, dim int, cfg VisionConfig) (VisionFeatures, error) {
	linW, err := w.Tensor("vision_tower.merger.proj.weight")
	if err != nil {
		return VisionFeatures{}, err
	}
	linB, _ := w.Data("vision_tower.merger.proj.bias")
	xT, _ := tensor.Wrap(x, n, dim)
	hidden := linW.Shape[0]
	projected := tensor.Linear(xT, dim, n, linW, hidden, linB).Data

	lnGamma, err := w.Data("vision_tower.merger.ln_q.weight")
	if err != nil {
		return VisionFeatures{}, err
	}
	lnBeta, _ := w.Data("vision_tower.merger.ln_q.bias")
	normed := tensor.LayerNorm(projected, n, hidden, lnGamma, lnBeta, 1e-6)
	act := tensor.GELU(normed)

	gateW, err := w.Tensor("vision_tower.merger.gate_proj.weight")
	if err != nil {
		return VisionFeatures{}, err
	}
	upW, err := w.Tensor("vision_tower.merger.up_proj.weight")
	if err != nil {
		return VisionFeatures{}, err
	}
	downW, err := w.Tensor("vision_tower.merger.down_proj.weight")
	if err != nil {
		return VisionFeatures{}, err
	}
	actT, _ := tensor.Wrap(act, n, hidden)
	inter := gateW.Shape[0]
	gate := tensor.Linear(actT, hidden, n, gateW, inter, nil).Data
	up := tensor.Linear(actT, hidden, n, upW, inter, nil).Data
	gated := tensor.GatedMLP(gate, up)
	gatedT, _ := tensor.Wrap(gated, n, inter)
	outDim := downW.Shape[0]
	out := tensor.Linear(gatedT, inter, n, downW, outDim, nil).Data

	return VisionFeatures{Data: out, N: n, Dim: outDim}, nil
}
