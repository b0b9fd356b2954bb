// Package safetensors reads the safetensors checkpoint format: an 8-byte
// little-endian header length, a JSON header describing each tensor's
// dtype/shape/byte offsets, followed by the raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/tensor"
)

type header struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Load parses a safetensors file at path and returns every named tensor
// converted to float32. F32, F16 and BF16 tensors are supported; any
// other dtype makes Load return an error.
func Load(path string) (map[string]tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "safetensors.Load", err)
	}
	defer f.Close()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "safetensors.Load: header length", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "safetensors.Load: header body", err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "safetensors.Load: header json", err)
	}

	dataStart := int64(8 + headerLen)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "safetensors.Load: read file", err)
	}

	out := make(map[string]tensor.Tensor, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var h header
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, docerr.New(docerr.ModelDeliveryFailed, fmt.Sprintf("safetensors.Load: tensor %q", name), err)
		}
		begin := dataStart + int64(h.DataOffsets[0])
		end := dataStart + int64(h.DataOffsets[1])
		tdata := data[begin:end]

		floats, err := decodeDType(h.DType, tdata)
		if err != nil {
			return nil, docerr.New(docerr.ModelDeliveryFailed, fmt.Sprintf("safetensors.Load: tensor %q dtype %s", name, h.DType), err)
		}
		shape := h.Shape
		if len(shape) == 0 {
			shape = []int{1}
		}
		t, err := tensor.Wrap(floats, shape...)
		if err != nil {
			return nil, docerr.New(docerr.ModelDeliveryFailed, fmt.Sprintf("safetensors.Load: tensor %q shape", name), err)
		}
		out[name] = t
	}
	return out, nil
}

func decodeDType(dtype string, raw []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		n := len(raw) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			out[i] = float32FromBits(bits)
		}
		return out, nil
	case "F16":
		n := len(raw) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = float16ToFloat32(bits)
		}
		return out, nil
	case "BF16":
		n := len(raw) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = bfloat16ToFloat32(bits)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func bfloat16ToFloat32(bits uint16) float32 {
	return math.Float32frombits(uint32(bits) << 16)
}

func float16ToFloat32(bits uint16) float32 {
	sign := uint32(bits>>15) & 0x1
	exp := uint32(bits>>10) & 0x1f
	frac := uint32(bits) & 0x3ff

	var outExp, outFrac uint32
	switch {
	case exp == 0 && frac == 0:
		// zero
	case exp == 0:
		// subnormal half -> normalize
		for frac&0x400 == 0 {
			frac <<= 1
			exp--
		}
		exp++
		frac &= 0x3ff
		outExp = exp - 15 + 127
		outFrac = frac << 13
	case exp == 0x1f:
		outExp = 0xff
		outFrac = frac << 13
	default:
		outExp = exp - 15 + 127
		outFrac = frac << 13
	}
	bits32 := (sign << 31) | (outExp << 23) | outFrac
	return math.Float32frombits(bits32)
}
