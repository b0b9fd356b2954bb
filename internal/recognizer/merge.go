package recognizer

import (
	"fmt"

	"github.com/docreader-go/docreader/internal/docerr"
)

// CountToken returns how many times tokenID occurs in ids.
func CountToken(ids []int, tokenID int) int {
	n := 0
	for _, id := range ids {
		if id == tokenID {
			n++
		}
	}
	return n
}

// EmbedTokens looks up each id's row in the embedding table.
func EmbedTokens(w Weights, ids []int, hiddenSize int) ([]float32, error) {
	table, err := w.Data("language_model.model.embed_tokens.weight")
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(ids)*hiddenSize)
	for i, id := range ids {
		copy(out[i*hiddenSize:(i+1)*hiddenSize], table[id*hiddenSize:(id+1)*hiddenSize])
	}
	return out, nil
}

// MergeVisionFeatures implements spec §4.4.4: replace every row of the
// text embedding where inputIDs[i] == imageTokenID with the next unused
// row of visionFeatures, in order, asserting that every visual feature is
// consumed exactly.
func MergeVisionFeatures(embeddings []float32, ids []int, hiddenSize int, imageTokenID int, vision VisionFeatures) error {
	used := 0
	for i, id := range ids {
		if id != imageTokenID {
			continue
		}
		if used >= vision.N {
			return docerr.New(docerr.InvalidConfiguration, "recognizer.MergeVisionFeatures",
				fmt.Errorf("more image placeholder tokens than vision features"))
		}
		copy(embeddings[i*hiddenSize:(i+1)*hiddenSize], vision.Data[used*vision.Dim:(used+1)*vision.Dim])
		used++
	}
	if used != vision.N {
		return docerr.New(docerr.InvalidConfiguration, "recognizer.MergeVisionFeatures",
			fmt.Errorf("consumed %d of %d vision features", used, vision.N))
	}
	return nil
}
