package layout

import (
	"fmt"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/tensor"
)

// Weights is a named lookup over the flat tensors loaded from the layout
// checkpoint, keyed by the sanitized parameter name.
type Weights struct {
	m map[string]tensor.Tensor
}

func NewWeights(m map[string]tensor.Tensor) Weights {
	return Weights{m: m}
}

// Data returns the flat float32 buffer for name, or an error tagged
// InvalidConfiguration if the checkpoint does not carry it.
func (w Weights) Data(name string) ([]float32, error) {
	t, ok := w.m[name]
	if !ok {
		return nil, docerr.New(docerr.InvalidConfiguration, "layout.Weights.Data", fmt.Errorf("missing tensor %q", name))
	}
	return t.Data, nil
}

// Tensor returns the full tensor (with shape) for name.
func (w Weights) Tensor(name string) (tensor.Tensor, error) {
	t, ok := w.m[name]
	if !ok {
		return tensor.Tensor{}, docerr.New(docerr.InvalidConfiguration, "layout.Weights.Tensor", fmt.Errorf("missing tensor %q", name))
	}
	return t, nil
}

// Has reports whether name is present in the checkpoint.
func (w Weights) Has(name string) bool {
	_, ok := w.m[name]
	return ok
}
