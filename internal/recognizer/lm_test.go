package recognizer

import (
	"testing"

	"github.com/docreader-go/docreader/internal/tensor"
	"github.com/stretchr/testify/require"
)

func tinyLanguageWeights(t *testing.T, cfg LanguageConfig) Weights {
	t.Helper()
	d := cfg.HiddenSize
	qDim := cfg.NumHeads * cfg.HeadDim
	kvDim := cfg.NumKVHeads * cfg.HeadDim
	m := map[string]tensor.Tensor{
		"language_model.model.norm.weight":      fillTensor(t, 1.0, d),
		"language_model.lm_head.weight":         fillTensor(t, 0.01, cfg.VocabSize, d),
	}
	prefix := "language_model.model.layers.0"
	m[prefix+".input_layernorm.weight"] = fillTensor(t, 1.0, d)
	m[prefix+".self_attn.q_proj.weight"] = fillTensor(t, 0.02, qDim, d)
	m[prefix+".self_attn.k_proj.weight"] = fillTensor(t, 0.02, kvDim, d)
	m[prefix+".self_attn.v_proj.weight"] = fillTensor(t, 0.02, kvDim, d)
	m[prefix+".self_attn.o_proj.weight"] = fillTensor(t, 0.02, d, qDim)
	m[prefix+".post_self_attn_layernorm.weight"] = fillTensor(t, 1.0, d)
	m[prefix+".post_attention_layernorm.weight"] = fillTensor(t, 1.0, d)
	m[prefix+".mlp.gate_up_proj.weight"] = fillTensor(t, 0.02, 2*cfg.IntermediateSize, d)
	m[prefix+".mlp.down_proj.weight"] = fillTensor(t, 0.02, d, cfg.IntermediateSize)
	m[prefix+".post_mlp_layernorm.weight"] = fillTensor(t, 1.0, d)
	return NewWeights(m)
}

func TestRunLanguageModelPrefillThenDecodeStep(t *testing.T) {
	cfg := LanguageConfig{
		NumHiddenLayers: 1, HiddenSize: 4, NumHeads: 2, NumKVHeads: 1,
		HeadDim: 2, IntermediateSize: 4, RotaryTheta: 10000, VocabSize: 6,
	}
	w := tinyLanguageWeights(t, cfg)
	cache := NewKVCache(cfg.NumHiddenLayers)

	l := 3
	embeddings := fillVec(0.1, l*cfg.HiddenSize)
	positions := tensor.MRoPEPositions{T: []int{0, 1, 2}, H: []int{0, 1, 2}, W: []int{0, 1, 2}}
	rotary := tensor.BuildMRoPETable(positions, cfg.HeadDim, cfg.RotaryTheta)

	logits, err := RunLanguageModel(w, embeddings, l, cache, rotary, cfg, true)
	require.NoError(t, err)
	require.Len(t, logits, cfg.VocabSize)
	require.Equal(t, l, cache.Offset)

	decodeEmb := fillVec(0.1, cfg.HiddenSize)
	decodePos := ContinuePositions(cache.Offset, 1, 0)
	decodeRotary := tensor.BuildMRoPETable(decodePos, cfg.HeadDim, cfg.RotaryTheta)
	logits2, err := RunLanguageModel(w, decodeEmb, 1, cache, decodeRotary, cfg, true)
	require.NoError(t, err)
	require.Len(t, logits2, cfg.VocabSize)
	require.Equal(t, l+1, cache.Offset)
}
