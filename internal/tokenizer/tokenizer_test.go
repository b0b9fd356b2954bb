package tokenizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVocab(t *testing.T) string {
	t.Helper()
	vf := vocabFile{
		Vocab: map[string]int{
			"l": 0, "o": 1, "w": 2, " ": 3,
			"lo": 4, "low": 5,
			"<|assistant|>": 6, "<eos>": 7,
		},
		Merges: []string{"l o", "lo w"},
		SpecialIDs: map[string]int{
			"eos": 7,
		},
	}
	data, err := json.Marshal(vf)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := writeVocab(t)
	tok, err := Load(path, "eos")
	require.NoError(t, err)

	ids := tok.Encode("low")
	assert.Equal(t, []int{5}, ids)

	decoded := tok.Decode(ids)
	assert.Equal(t, "low", decoded)
}

func TestEncodeLiteralTemplate(t *testing.T) {
	path := writeVocab(t)
	tok, err := Load(path, "eos")
	require.NoError(t, err)

	ids := tok.EncodeLiteral("<|assistant|>")
	require.Len(t, ids, 1)
	assert.Equal(t, 6, ids[0])
}

func TestIsEOS(t *testing.T) {
	path := writeVocab(t)
	tok, err := Load(path, "eos")
	require.NoError(t, err)

	assert.True(t, tok.IsEOS(7))
	assert.False(t, tok.IsEOS(0))
}

func TestEncodeUnknownWordFallsBackToRunes(t *testing.T) {
	path := writeVocab(t)
	tok, err := Load(path, "eos")
	require.NoError(t, err)

	ids := tok.Encode("lowo")
	assert.NotEmpty(t, ids)
}

func TestVocabSize(t *testing.T) {
	path := writeVocab(t)
	tok, err := Load(path, "eos")
	require.NoError(t, err)
	assert.Equal(t, 8, tok.VocabSize())
}
