package recognizer

import (
	"fmt"
	"strings"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/tensor"
)

// Weights is a named lookup over the recognizer checkpoint's flat tensors,
// keyed by the sanitized parameter name (spec §4.5).
type Weights struct {
	m map[string]tensor.Tensor
}

func NewWeights(m map[string]tensor.Tensor) Weights {
	return Weights{m: m}
}

func (w Weights) Data(name string) ([]float32, error) {
	t, ok := w.m[name]
	if !ok {
		return nil, docerr.New(docerr.InvalidConfiguration, "recognizer.Weights.Data", fmt.Errorf("missing tensor %q", name))
	}
	return t.Data, nil
}

func (w Weights) Tensor(name string) (tensor.Tensor, error) {
	t, ok := w.m[name]
	if !ok {
		return tensor.Tensor{}, docerr.New(docerr.InvalidConfiguration, "recognizer.Weights.Tensor", fmt.Errorf("missing tensor %q", name))
	}
	return t, nil
}

func (w Weights) Has(name string) bool {
	_, ok := w.m[name]
	return ok
}

// SanitizeWeightNames rewrites a raw checkpoint's tensor names per spec
// §4.5's exact rules, dropping entries the rules exclude (layers.16
// sentinel keys, vision-tower position_ids). It renames and drops only;
// conv weights are not transposed.
func SanitizeWeightNames(raw map[string]tensor.Tensor) map[string]tensor.Tensor {
	out := make(map[string]tensor.Tensor, len(raw))
	for name, t := range raw {
		newName, keep := sanitizeOneName(name)
		if !keep {
			continue
		}
		out[newName] = t
	}
	return out
}

func sanitizeOneName(name string) (string, bool) {
	if strings.Contains(name, "layers.16") {
		return "", false
	}
	if (strings.Contains(name, "vision_tower") || strings.Contains(name, "visual")) && strings.Contains(name, "position_ids") {
		return "", false
	}
	if strings.Contains(name, "visual") && !strings.Contains(name, "vision_tower") {
		n := strings.TrimPrefix(name, "model.")
		n = strings.Replace(n, "visual", "vision_tower", 1)
		return n, true
	}
	if strings.HasPrefix(name, "model.language_model.") {
		return "language_model.model." + strings.TrimPrefix(name, "model.language_model."), true
	}
	if i := strings.Index(name, "lm_head"); i >= 0 && !strings.HasPrefix(name, "language_model.") {
		return "language_model." + name[i:], true
	}
	return name, true
}

// TransposeConvChannelsLast converts a channels-first 4D/5D conv weight
// ([outC, inC, ...spatial]) to channels-last ([outC, ...spatial, inC]), as
// required for the patch-embed and downsample convs when the saved layout
// is channels-first (spec §4.5). Load does not call it.
func TransposeConvChannelsLast(t tensor.Tensor) tensor.Tensor {
	if len(t.Shape) < 3 {
		return t
	}
	outC := t.Shape[0]
	inC := t.Shape[1]
	spatial := 1
	for _, d := range t.Shape[2:] {
		spatial *= d
	}
	data := make([]float32, len(t.Data))
	for o := 0; o < outC; o++ {
		for c := 0; c < inC; c++ {
			for s := 0; s < spatial; s++ {
				srcIdx := o*inC*spatial + c*spatial + s
				dstIdx := o*spatial*inC + s*inC + c
				data[dstIdx] = t.Data[srcIdx]
			}
		}
	}
	newShape := append([]int{outC}, t.Shape[2:]...)
	newShape = append(newShape, inC)
	out, err := tensor.Wrap(data, newShape...)
	if err != nil {
		return t
	}
	return out
}
