package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, entries map[string]header, payload []byte) string {
	t.Helper()
	headerJSON, err := json.Marshal(entries)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "weights.safetensors")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerJSON)))
	_, err = f.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = f.Write(headerJSON)
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	return path
}

func float32Bytes(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func TestLoadF32(t *testing.T) {
	payload := float32Bytes(1, 2, 3, 4)
	path := writeTestFile(t, map[string]header{
		"layer.weight": {DType: "F32", Shape: []int{2, 2}, DataOffsets: [2]int{0, len(payload)}},
	}, payload)

	tensors, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, tensors, "layer.weight")

	tn := tensors["layer.weight"]
	assert.Equal(t, []int{2, 2}, tn.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4}, tn.Data)
}

func TestLoadMultipleTensorsAndMetadata(t *testing.T) {
	a := float32Bytes(1, 1, 1, 1)
	b := float32Bytes(5, 6)
	payload := append(append([]byte{}, a...), b...)

	headerJSON := map[string]json.RawMessage{
		"__metadata__": json.RawMessage(`{"format":"pt"}`),
	}
	ha, _ := json.Marshal(header{DType: "F32", Shape: []int{4}, DataOffsets: [2]int{0, len(a)}})
	hb, _ := json.Marshal(header{DType: "F32", Shape: []int{2}, DataOffsets: [2]int{len(a), len(a) + len(b)}})
	headerJSON["a"] = ha
	headerJSON["b"] = hb

	body, err := json.Marshal(headerJSON)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "multi.safetensors")
	f, err := os.Create(path)
	require.NoError(t, err)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
	_, err = f.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = f.Write(body)
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tensors, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tensors, 2)
	assert.NotContains(t, tensors, "__metadata__")
	assert.Equal(t, []float32{5, 6}, tensors["b"].Data)
}

func TestLoadBF16(t *testing.T) {
	// bfloat16 representation of 1.0 is the top 16 bits of float32(1.0).
	bits := math.Float32bits(1.0)
	top16 := uint16(bits >> 16)
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, top16)

	path := writeTestFile(t, map[string]header{
		"bf": {DType: "BF16", Shape: []int{1}, DataOffsets: [2]int{0, 2}},
	}, payload)

	tensors, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tensors["bf"].Data[0], 1e-3)
}

func TestLoadUnsupportedDType(t *testing.T) {
	path := writeTestFile(t, map[string]header{
		"x": {DType: "I64", Shape: []int{1}, DataOffsets: [2]int{0, 8}},
	}, make([]byte, 8))

	_, err := Load(path)
	assert.Error(t, err)
}
