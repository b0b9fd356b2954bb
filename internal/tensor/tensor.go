// Package tensor implements the numeric backend shared by the layout
// detector and the recognizer: convolution, normalization, attention,
// rotary position embedding, padding, and interpolation over flat float32
// buffers. There is no per-element object graph; every operation works by
// linear index arithmetic over contiguous slices (see DESIGN.md's "arena +
// index" entry).
package tensor

import (
	"fmt"

	"github.com/docreader-go/docreader/internal/mempool"
)

// Tensor is a row-major flat buffer with an explicit shape. Rank is
// len(Shape); callers index it themselves via Strides.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New allocates a zeroed tensor of the given shape, pulling its backing
// buffer from the shared pool.
func New(shape ...int) Tensor {
	n := numel(shape)
	buf := mempool.GetFloat32(n)
	for i := range buf {
		buf[i] = 0
	}
	return Tensor{Data: buf[:n], Shape: append([]int(nil), shape...)}
}

// Wrap builds a Tensor over an existing buffer without copying.
func Wrap(data []float32, shape ...int) (Tensor, error) {
	if n := numel(shape); n != len(data) {
		return Tensor{}, fmt.Errorf("tensor: data length %d does not match shape %v (%d)", len(data), shape, n)
	}
	return Tensor{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// Release returns the tensor's backing buffer to the shared pool. Callers
// must not use the tensor after calling Release.
func (t Tensor) Release() {
	mempool.PutFloat32(t.Data)
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Numel returns the total element count.
func (t Tensor) Numel() int { return numel(t.Shape) }

// Strides computes row-major strides for the tensor's shape.
func (t Tensor) Strides() []int {
	s := make([]int, len(t.Shape))
	acc := 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= t.Shape[i]
	}
	return s
}

// Clone deep-copies the tensor's data into a freshly allocated buffer.
func (t Tensor) Clone() Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// Reshape returns a view over the same data with a new shape; the element
// count must match.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	if numel(shape) != len(t.Data) {
		return Tensor{}, fmt.Errorf("tensor: cannot reshape %v into %v", t.Shape, shape)
	}
	return Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// ValidateShape fails fast on a shape mismatch; used at tensor contract
// boundaries (spec §7: tensor contract violations are fatal).
func ValidateShape(name string, got, want []int) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s: rank %d != expected rank %d (got %v, want %v)", name, len(got), len(want), got, want)
	}
	for i := range want {
		if want[i] >= 0 && got[i] != want[i] {
			return fmt.Errorf("%s: dim %d is %d, want %d (shape %v)", name, i, got[i], want[i], got)
		}
	}
	return nil
}
