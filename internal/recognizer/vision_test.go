package recognizer

import (
	"testing"

	"github.com/docreader-go/docreader/internal/imageprep"
	"github.com/docreader-go/docreader/internal/tensor"
	"github.com/stretchr/testify/require"
)

func fillTensor(t *testing.T, value float32, shape ...int) tensor.Tensor {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = value
	}
	tt, err := tensor.Wrap(data, shape...)
	require.NoError(t, err)
	return tt
}

func fillVec(value float32, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = value
	}
	return v
}

// tinyVisionWeights builds a minimal, shape-consistent weight set for a
// single-block vision tower with SpatialMergeSize=1 (so spatialMerge is a
// structural no-op over the 2x2 token grid), enough to exercise the full
// RunVisionTower wiring without real checkpoint data.
func tinyVisionWeights(t *testing.T, cfg VisionConfig, patchDim int) Weights {
	t.Helper()
	d := cfg.HiddenSize
	m := map[string]tensor.Tensor{
		"vision_tower.patch_embed.proj.weight":  fillTensor(t, 0.05, d, patchDim),
		"vision_tower.blocks.0.norm1.weight":     fillTensor(t, 1.0, d),
		"vision_tower.blocks.0.attn.q_proj.weight": fillTensor(t, 0.02, d, d),
		"vision_tower.blocks.0.attn.k_proj.weight": fillTensor(t, 0.02, d, d),
		"vision_tower.blocks.0.attn.v_proj.weight": fillTensor(t, 0.02, d, d),
		"vision_tower.blocks.0.attn.o_proj.weight": fillTensor(t, 0.02, d, d),
		"vision_tower.blocks.0.norm2.weight":     fillTensor(t, 1.0, d),
		"vision_tower.blocks.0.mlp.gate_proj.weight": fillTensor(t, 0.02, d, d),
		"vision_tower.blocks.0.mlp.up_proj.weight":   fillTensor(t, 0.02, d, d),
		"vision_tower.blocks.0.mlp.down_proj.weight": fillTensor(t, 0.02, d, d),
		"vision_tower.post_layernorm.weight":     fillTensor(t, 1.0, d),
		"vision_tower.downsample.weight":         fillTensor(t, 0.03, d, d),
		"vision_tower.merger.proj.weight":         fillTensor(t, 0.03, d, d),
		"vision_tower.merger.ln_q.weight":         fillTensor(t, 1.0, d),
		"vision_tower.merger.ln_q.bias":           fillTensor(t, 0.0, d),
		"vision_tower.merger.gate_proj.weight":    fillTensor(t, 0.02, d, d),
		"vision_tower.merger.up_proj.weight":      fillTensor(t, 0.02, d, d),
		"vision_tower.merger.down_proj.weight":    fillTensor(t, 0.02, d, d),
	}
	return NewWeights(m)
}

func TestRunVisionTowerProducesOneRowPerMergedToken(t *testing.T) {
	cfg := VisionConfig{
		PatchSize: 1, TemporalPatchSize: 1, SpatialMergeSize: 1,
		Depth: 1, HiddenSize: 4, NumHeads: 2, RotaryTheta: 10000,
	}
	patchDim := 3
	w := tinyVisionWeights(t, cfg, patchDim)

	patches := fillVec(0.1, 4*patchDim)
	patchesT, err := tensor.Wrap(patches, 4, patchDim)
	require.NoError(t, err)
	vis := imageprep.PreparedVision{Patches: patchesT, GridT: 1, GridH: 2, GridW: 2}

	out, err := RunVisionTower(w, vis, cfg)
	require.NoError(t, err)
	require.Equal(t, 4, out.N)
	require.Equal(t, cfg.HiddenSize, out.Dim)
	require.Len(t, out.Data, out.N*out.Dim)
}
