package recognizer

import (
	"testing"

	"github.com/docreader-go/docreader/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeWeightNamesRenamesVisualToVisionTower(t *testing.T) {
	raw := map[string]tensor.Tensor{
		"model.visual.blocks.0.norm1.weight": {},
	}
	out := SanitizeWeightNames(raw)
	_, ok := out["vision_tower.blocks.0.norm1.weight"]
	assert.True(t, ok)
}

func TestSanitizeWeightNamesRewritesLanguageModelPrefix(t *testing.T) {
	raw := map[string]tensor.Tensor{
		"model.language_model.layers.0.self_attn.q_proj.weight": {},
	}
	out := SanitizeWeightNames(raw)
	_, ok := out["language_model.model.layers.0.self_attn.q_proj.weight"]
	assert.True(t, ok)
}

func TestSanitizeWeightNamesRewritesBareLMHead(t *testing.T) {
	raw := map[string]tensor.Tensor{
		"lm_head.weight": {},
	}
	out := SanitizeWeightNames(raw)
	_, ok := out["language_model.lm_head.weight"]
	assert.True(t, ok)
}

func TestSanitizeWeightNamesDropsSentinelLayerAndPositionIDs(t *testing.T) {
	raw := map[string]tensor.Tensor{
		"model.language_model.layers.16.self_attn.q_proj.weight": {},
		"model.visual.position_ids":                              {},
	}
	out := SanitizeWeightNames(raw)
	assert.Empty(t, out)
}

func TestTransposeConvChannelsLastMovesInputChannelToEnd(t *testing.T) {
	// outC=1, inC=2, spatial=(2,2): values 0..7 laid out channels-first.
	data := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	in, err := tensor.Wrap(data, 1, 2, 2, 2)
	require.NoError(t, err)

	out := TransposeConvChannelsLast(in)
	assert.Equal(t, []int{1, 2, 2, 2}, out.Shape)
	// first spatial position (s=0) should now have both channels (0,4)
	// adjacent at the end of the index.
	assert.Equal(t, float32(0), out.Data[0])
	assert.Equal(t, float32(4), out.Data[1])
}
