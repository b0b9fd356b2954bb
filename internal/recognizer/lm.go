package recognizer

import (
	"fmt"

	"github.com/docreader-go/docreader/internal/tensor"
)

// buildAttentionMask implements spec §4.4.3's masking rule: causal when
// prefilling from offset 0, an explicit (L, offset+L) mask when offset > 0,
// and no mask at all for single-token decode steps.
func buildAttentionMask(l, offset int) []float32 {
	if l == 1 {
		return nil
	}
	if offset == 0 {
		return tensor.CausalMask(l, 0)
	}
	return tensor.CausalMask(l, offset)
}

// lmLayer runs one language-model decoder layer with the sandwich-norm
// sequence from spec §4.4.3: RMSNorm -> attention -> RMSNorm -> residual ->
// RMSNorm -> gated-MLP(split gate_up_proj in half) -> RMSNorm -> residual.
func lmLayer(w Weights, prefix string, x []float32, l int, cache *KVCache, layerIdx int, rotary tensor.RotaryTable, cfg LanguageConfig) ([]float32, error) {
	d := cfg.HiddenSize
	headDim := cfg.HeadDim

	normed, err := rmsNormNamed(w, prefix+".input_layernorm", x, l, d)
	if err != nil {
		return nil, err
	}

	qW, err := w.Tensor(prefix + ".self_attn.q_proj.weight")
	if err != nil {
		return nil, err
	}
	kW, err := w.Tensor(prefix + ".self_attn.k_proj.weight")
	if err != nil {
		return nil, err
	}
	vW, err := w.Tensor(prefix + ".self_attn.v_proj.weight")
	if err != nil {
		return nil, err
	}
	oW, err := w.Tensor(prefix + ".self_attn.o_proj.weight")
	if err != nil {
		return nil, err
	}
	normedT, _ := tensor.Wrap(normed, l, d)
	qDim := cfg.NumHeads * headDim
	kvDim := cfg.NumKVHeads * headDim
	q := tensor.Linear(normedT, d, l, qW, qDim, nil).Data
	k := tensor.Linear(normedT, d, l, kW, kvDim, nil).Data
	v := tensor.Linear(normedT, d, l, vW, kvDim, nil).Data

	q = tensor.ApplyRotaryIndexed(q, l*cfg.NumHeads, headDim, expandRotaryPerHead(rotary, cfg.NumHeads, l))
	k = tensor.ApplyRotaryIndexed(k, l*cfg.NumKVHeads, headDim, expandRotaryPerHead(rotary, cfg.NumKVHeads, l))

	cache.Append(layerIdx, k, v, l, cfg.NumKVHeads, headDim)
	fullK, fullV, lk := cache.KV(layerIdx, l, cfg.NumKVHeads, headDim)
	mask := buildAttentionMask(l, lk-l)

	attnOut := tensor.GroupedQueryAttention(q, l, cfg.NumHeads, fullK, fullV, lk, cfg.NumKVHeads, headDim, mask)
	attnOutT, _ := tensor.Wrap(attnOut, l, qDim)
	proj := tensor.Linear(attnOutT, qDim, l, oW, d, nil).Data

	proj, err = rmsNormNamed(w, prefix+".post_self_attn_layernorm", proj, l, d)
	if err != nil {
		return nil, err
	}
	x = addVec(x, proj)

	normed2, err := rmsNormNamed(w, prefix+".post_attention_layernorm", x, l, d)
	if err != nil {
		return nil, err
	}
	mlpOut, err := lmMLP(w, prefix+".mlp", normed2, l, cfg)
	if err != nil {
		return nil, err
	}
	mlpOut, err = rmsNormNamed(w, prefix+".post_mlp_layernorm", mlpOut, l, d)
	if err != nil {
		return nil, err
	}
	return addVec(x, mlpOut), nil
}

func lmMLP(w Weights, prefix string, x []float32, l int, cfg LanguageConfig) ([]float32, error) {
	d := cfg.HiddenSize
	gateUpW, err := w.Tensor(prefix + ".gate_up_proj.weight")
	if err != nil {
		return nil, err
	}
	downW, err := w.Tensor(prefix + ".down_proj.weight")
	if err != nil {
		return nil, err
	}
	two := gateUpW.Shape[0]
	inter := two / 2
	xT, _ := tensor.Wrap(x, l, d)
	gateUp := tensor.Linear(xT, d, l, gateUpW, two, nil).Data

	gate := make([]float32, l*inter)
	up := make([]float32, l*inter)
	for i := 0; i < l; i++ {
		copy(gate[i*inter:(i+1)*inter], gateUp[i*two:i*two+inter])
		copy(up[i*inter:(i+1)*inter], gateUp[i*two+inter:i*two+two])
	}
	gated := tensor.GatedMLP(gate, up)
	gatedT, _ := tensor.Wrap(gated, l, inter)
	return tensor.Linear(gatedT, inter, l, downW, d, nil).Data, nil
}

// RunLanguageModel embeds nothing itself: embeddings are the caller's
// merged multimodal hidden states. It runs all decoder layers plus the
// final norm and LM head, returning logits for the last position only
// when onlyLast is true (used during generation to avoid materializing
// full-sequence logits on long prefills).
func RunLanguageModel(w Weights, embeddings []float32, l int, cache *KVCache, rotary tensor.RotaryTable, cfg LanguageConfig, onlyLast bool) ([]float32, error) {
	x := embeddings
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		prefix := fmt.Sprintf("language_model.model.layers.%d", i)
		out, err := lmLayer(w, prefix, x, l, cache, i, rotary, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		x = out
	}
	cache.AdvanceOffset(l)

	d := cfg.HiddenSize
	normed, err := rmsNormNamed(w, "language_model.model.norm", x, l, d)
	if err != nil {
		return nil, err
	}

	rows := l
	input := normed
	if onlyLast && l > 1 {
		input = normed[(l-1)*d : l*d]
		rows = 1
	}

	headW, err := w.Tensor("language_model.lm_head.weight")
	if err != nil {
		return nil, err
	}
	inputT, _ := tensor.Wrap(input, rows, d)
	logits := tensor.Linear(inputT, d, rows, headW, cfg.VocabSize, nil)
	return logits.Data, nil
}
