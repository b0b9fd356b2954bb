package recognizer

import (
	"fmt"
	"image"
	"strings"

	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/imageprep"
	"github.com/docreader-go/docreader/internal/tensor"
	"github.com/docreader-go/docreader/internal/tokenizer"
)

const chatTemplate = "[gMASK]<sop><|user|>\n<|begin_of_image|><|image|><|end_of_image|>%s<|assistant|>\n"

// buildPrompt renders the chat template with the task prompt substituted,
// then expands the single image-placeholder token into the number of
// copies the vision grid requires (spec §4.4.1).
func buildPrompt(tok *tokenizer.Tokenizer, taskPrompt string, imageTokenID int, gridT, gridH, gridW, mergeSize int) []int {
	rendered := fmt.Sprintf(chatTemplate, taskPrompt)
	ids := tok.EncodeLiteral(rendered)

	numImageTokens := (gridT * gridH * gridW) / (mergeSize * mergeSize)
	if numImageTokens < 1 {
		numImageTokens = 1
	}

	out := make([]int, 0, len(ids)+numImageTokens)
	for _, id := range ids {
		if id == imageTokenID {
			for i := 0; i < numImageTokens; i++ {
				out = append(out, imageTokenID)
			}
			continue
		}
		out = append(out, id)
	}
	return out
}

// generationState bundles everything the generation loop needs to run a
// forward step: the resolved weights, architecture config, and the
// stream's own KV cache and rope delta.
type generationState struct {
	w         Weights
	lang      LanguageConfig
	cache     *KVCache
	ropeDelta int
}

func (s *generationState) forward(embeddings []float32, l int, positions tensor.MRoPEPositions, onlyLast bool) ([]float32, error) {
	rotary := tensor.BuildMRoPETable(positions, s.lang.HeadDim, s.lang.RotaryTheta)
	return RunLanguageModel(s.w, embeddings, l, s.cache, rotary, s.lang, onlyLast)
}

func slicePositions(p tensor.MRoPEPositions, start, end int) tensor.MRoPEPositions {
	return tensor.MRoPEPositions{T: p.T[start:end], H: p.H[start:end], W: p.W[start:end]}
}

// recognizeImage runs the full pipeline for one image+task: prepare
// vision input, build the prompt, embed and merge, compute M-RoPE
// positions, generate, and decode.
func recognizeImage(r *Recognizer, img image.Image, task string) (string, error) {
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return "", docerr.New(docerr.InvalidConfiguration, "recognizer.Recognize", fmt.Errorf("image has zero width or height"))
	}

	smartParams := imageprep.SmartResizeParams{
		PatchSize:         r.config.Vision.PatchSize,
		MergeSize:         r.config.Vision.SpatialMergeSize,
		MinPixels:         r.config.Vision.MinPixels,
		MaxPixels:         r.config.Vision.MaxPixels,
		TemporalPatchSize: r.config.Vision.TemporalPatchSize,
		MaxAspectRatio:    r.config.Vision.MaxAspectRatio,
	}
	vis := imageprep.PrepareVisionInput(img, smartParams)

	visionFeatures, err := RunVisionTower(r.weights, vis, r.config.Vision)
	if err != nil {
		return "", fmt.Errorf("recognizer.Recognize: vision tower: %w", err)
	}

	promptText := r.config.PromptFor(task)
	mergeSize := r.config.Vision.SpatialMergeSize
	ids := buildPrompt(r.tok, promptText, r.imageTokenID, vis.GridT, vis.GridH, vis.GridW, mergeSize)

	embeddings, err := EmbedTokens(r.weights, ids, r.config.Language.HiddenSize)
	if err != nil {
		return "", err
	}
	mergeTokenID := r.imageTokenID
	if CountToken(ids, r.imageTokenID) == 0 {
		mergeTokenID = r.videoTokenID
	}
	if err := MergeVisionFeatures(embeddings, ids, r.config.Language.HiddenSize, mergeTokenID, visionFeatures); err != nil {
		return "", fmt.Errorf("recognizer.Recognize: merge vision features: %w", err)
	}

	rope := ComputeRopeIndex(ids, r.imageTokenID, []GridTHW{{T: vis.GridT, H: vis.GridH, W: vis.GridW}}, mergeSize)

	generatedIDs, err := generateFromEmbeddings(r.weights, r.tok, r.config.Language, embeddings, ids, rope, r.config.RecognitionOptions)
	if err != nil {
		return "", fmt.Errorf("recognizer.Recognize: generate: %w", err)
	}

	text := r.tok.Decode(generatedIDs)
	return strings.TrimSpace(text), nil
}

// generateFromEmbeddings runs spec §4.4.6's generation loop over
// already-merged multimodal embeddings: prefill (optionally chunked),
// first-token sampling, then a decode loop until EOS or max_tokens.
func generateFromEmbeddings(w Weights, tok *tokenizer.Tokenizer, lang LanguageConfig, embeddings []float32, ids []int, rope RopeIndexResult, opts RecognitionOptions) ([]int, error) {
	state := &generationState{w: w, lang: lang, cache: NewKVCache(lang.NumHiddenLayers), ropeDelta: rope.RopeDelta}

	l := len(ids)
	step := opts.PrefillStepSize
	var lastLogits []float32

	if step > 0 && l > step && l > 1 {
		pos := 0
		for pos < l {
			end := pos + step
			if end > l {
				end = l
			}
			isLast := end == l
			chunkLen := end - pos
			chunkEmb := embeddings[pos*lang.HiddenSize : end*lang.HiddenSize]
			chunkPos := slicePositions(rope.Positions, pos, end)
			logits, ferr := state.forward(chunkEmb, chunkLen, chunkPos, isLast)
			if ferr != nil {
				return nil, ferr
			}
			if isLast {
				lastLogits = logits
			}
			pos = end
		}
	} else {
		logits, ferr := state.forward(embeddings, l, rope.Positions, true)
		if ferr != nil {
			return nil, ferr
		}
		lastLogits = logits
	}

	history := append([]int(nil), ids...)
	ApplyRepetitionPenalty(lastLogits, history, opts.RepetitionPenalty)
	logProbs := LogSoftmax(lastLogits)
	first := Sample(logProbs, opts.Temperature, opts.TopP, opts.TopK)

	generated := []int{first}
	history = append(history, first)

	if tok.IsEOS(first) {
		return generated, nil
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1
	}

	for len(generated) < maxTokens {
		tokEmb, err := EmbedTokens(w, []int{generated[len(generated)-1]}, lang.HiddenSize)
		if err != nil {
			return nil, err
		}
		decodePos := ContinuePositions(state.cache.Offset, 1, state.ropeDelta)
		logits, ferr := state.forward(tokEmb, 1, decodePos, true)
		if ferr != nil {
			return nil, ferr
		}
		ApplyRepetitionPenalty(logits, history, opts.RepetitionPenalty)
		logProbs := LogSoftmax(logits)
		next := Sample(logProbs, opts.Temperature, opts.TopP, opts.TopK)
		generated = append(generated, next)
		history = append(history, next)
		if tok.IsEOS(next) {
			break
		}
	}
	return generated, nil
}
