package recognizer

import (
	"testing"

	"github.com/docreader-go/docreader/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountToken(t *testing.T) {
	assert.Equal(t, 3, CountToken([]int{5, 1, 5, 5, 2}, 5))
	assert.Equal(t, 0, CountToken([]int{1, 2, 3}, 9))
}

func testWeights(t *testing.T, hiddenSize, vocab int) Weights {
	t.Helper()
	table := make([]float32, vocab*hiddenSize)
	for i := range table {
		table[i] = float32(i)
	}
	tt, err := tensor.Wrap(table, vocab, hiddenSize)
	require.NoError(t, err)
	return NewWeights(map[string]tensor.Tensor{"language_model.model.embed_tokens.weight": tt})
}

func TestEmbedTokensLooksUpRows(t *testing.T) {
	w := testWeights(t, 4, 10)
	out, err := EmbedTokens(w, []int{0, 2}, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 3}, out[:4])
	assert.Equal(t, []float32{8, 9, 10, 11}, out[4:])
}

func TestMergeVisionFeaturesReplacesImageRows(t *testing.T) {
	ids := []int{1, 99, 99, 2}
	hiddenSize := 2
	embeddings := []float32{0, 0, 0, 0, 0, 0, 0, 0}
	vision := VisionFeatures{Data: []float32{1, 2, 3, 4}, N: 2, Dim: 2}

	err := MergeVisionFeatures(embeddings, ids, hiddenSize, 99, vision)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1, 2, 3, 4, 0, 0}, embeddings)
}

func TestMergeVisionFeaturesErrorsOnMismatchedCount(t *testing.T) {
	ids := []int{99, 2}
	embeddings := make([]float32, 4)
	vision := VisionFeatures{Data: []float32{1, 2, 3, 4}, N: 2, Dim: 2}

	err := MergeVisionFeatures(embeddings, ids, 2, 99, vision)
	assert.Error(t, err)
}
