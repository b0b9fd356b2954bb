// Package recognizer runs the multimodal document recognition model: a
// vision tower over an image crop, a GLM-style decoder conditioned on the
// merged vision/text embeddings, and a sampling loop that emits Markdown
// or LaTeX text for one layout region (spec §4.4).
package recognizer

import (
	"fmt"
	"image"
	"sync"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/safetensors"
	"github.com/docreader-go/docreader/internal/tokenizer"
)

// Recognizer holds the loaded checkpoint weights, tokenizer, and resolved
// special-token ids needed to run recognition over region crops.
type Recognizer struct {
	mu     sync.Mutex
	config Config

	weights Weights
	tok     *tokenizer.Tokenizer

	imageTokenID      int
	videoTokenID      int
	imageStartTokenID int
}

// New constructs a Recognizer from already-loaded weights and tokenizer.
func New(cfg Config, weights Weights, tok *tokenizer.Tokenizer) (*Recognizer, error) {
	imageID, ok := tok.TokenID(cfg.ImageTokenName)
	if !ok {
		return nil, docerr.New(docerr.InvalidConfiguration, "recognizer.New",
			fmt.Errorf("tokenizer vocabulary has no image token %q", cfg.ImageTokenName))
	}
	videoID, _ := tok.TokenID(cfg.VideoTokenName)
	startID, _ := tok.TokenID(cfg.ImageStartTokenName)

	return &Recognizer{
		config:            cfg,
		weights:           weights,
		tok:               tok,
		imageTokenID:      imageID,
		videoTokenID:      videoID,
		imageStartTokenID: startID,
	}, nil
}

// Load reads a safetensors checkpoint and a tokenizer vocabulary file and
// constructs a ready-to-use Recognizer.
func Load(cfg Config, modelPath string) (*Recognizer, error) {
	if cfg.Language.NumHiddenLayers > 16 {
		return nil, docerr.New(docerr.InvalidConfiguration, "recognizer.Load",
			fmt.Errorf("num_hidden_layers %d exceeds 16; layers.16 keys are dropped when loading weights", cfg.Language.NumHiddenLayers))
	}
	raw, err := safetensors.Load(modelPath)
	if err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "recognizer.Load", err)
	}
	sanitized := SanitizeWeightNames(raw)
	weights := NewWeights(sanitized)

	tok, err := tokenizer.Load(cfg.TokenizerPath, cfg.EOSTokenNames...)
	if err != nil {
		return nil, err
	}

	return New(cfg, weights, tok)
}

// GetConfig returns the recognizer's active configuration.
func (r *Recognizer) GetConfig() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// Close releases the recognizer's resources. The in-process tensor
// backend holds no external handles, so this is currently a no-op kept
// for symmetry with the layout detector's lifecycle.
func (r *Recognizer) Close() error {
	return nil
}

// Recognize runs the full pipeline for one region crop: vision tower,
// multimodal merge, generation, and decode, returning the recognized
// text for the given task ("text", "table", "formula", or "" for the
// no-layout default prompt).
func (r *Recognizer) Recognize(img image.Image, task string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recognizeImage(r, img, task)
}
