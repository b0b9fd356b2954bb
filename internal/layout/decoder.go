package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/docreader-go/docreader/internal/tensor"
)

// Anchor is a (cx, cy, w, h) box in normalized [0,1] coordinates, plus
// whether it survived the (0.01, 0.99) / valid-wh filter (spec §4.3.4).
type Anchor struct {
	CX, CY, W, H float64
	Valid        bool
}

const anchorGridSize = 0.05

// generateAnchors builds anchors for one spatial level at (h, w) grid
// resolution, with box size grid_size * 2^level, masking anchors whose
// center falls outside (0.01, 0.99) or whose box is degenerate.
func generateAnchors(h, w, level int) []Anchor {
	size := anchorGridSize * math.Pow(2, float64(level))
	out := make([]Anchor, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cx := (float64(x) + 0.5) / float64(w)
			cy := (float64(y) + 0.5) / float64(h)
			valid := cx > 0.01 && cx < 0.99 && cy > 0.01 && cy < 0.99 && size > 0 && size < 1
			out = append(out, Anchor{CX: cx, CY: cy, W: size, H: size, Valid: valid})
		}
	}
	return out
}

func inverseSigmoid(x float64) float64 {
	const eps = 1e-5
	x = math.Max(eps, math.Min(1-eps, x))
	return math.Log(x / (1 - x))
}

// mlp3 runs a 3-layer MLP (ReLU between layers 1-2 and 2-3, no activation
// after the final layer), the shape used by the decoder's bbox and
// mask-query heads.
func mlp3(w Weights, prefix string, x []float32, n, inDim int) ([]float32, error) {
	cur := x
	curDim := inDim
	for l := 0; l < 3; l++ {
		lw, err := w.Data(fmt.Sprintf("%s.%d.weight", prefix, l))
		if err != nil {
			return nil, err
		}
		lb, _ := w.Data(fmt.Sprintf("%s.%d.bias", prefix, l))
		outDim := len(lb)
		if outDim == 0 {
			outDim = len(lw) / curDim
		}
		out := tensor.Linear(tensor.Tensor{Data: cur, Shape: []int{n, curDim}}, curDim, n, tensor.Tensor{Data: lw}, outDim, lb).Data
		if l < 2 {
			for i, v := range out {
				if v < 0 {
					out[i] = 0
				}
			}
		}
		cur = out
		curDim = outDim
	}
	return cur, nil
}

// DecoderQuery holds one query's running state across decoder layers.
type DecoderQuery struct {
	Target          []float32 // [dModel]
	ReferenceUnact  [4]float64
	ClassLogits     []float32
	MaskLogits      []float32 // [Mh*Mw], only meaningful when mask-enhanced
	Order           float64
}

// DecoderOutput is the final per-query state after all decoder layers.
type DecoderOutput struct {
	Queries    []DecoderQuery
	OrderRanks []int // rank by ascending vote, same length as Queries
}

// RunDecoder runs anchor generation, top-query selection, optional
// mask-enhanced reference-point seeding, and the 6-layer deformable
// decoder with iterative box refinement and the order pointer (spec
// §4.3.4-4.3.6).
func RunDecoder(w Weights, enc EncoderOutput, cfg Config) (DecoderOutput, error) {
	type flatToken struct {
		memory []float32
		anchor Anchor
	}
	var tokens []flatToken
	var memoryTokens []float32
	dModel := cfg.DModel

	for lvl := 0; lvl < 3; lvl++ {
		fm := enc.Levels[lvl]
		anchors := generateAnchors(fm.H, fm.W, lvl)
		lvlTokens := toTokens(fm)
		n := fm.H * fm.W
		for i := 0; i < n; i++ {
			row := lvlTokens[i*dModel : (i+1)*dModel]
			if !anchors[i].Valid {
				row = make([]float32, dModel)
			}
			memoryTokens = append(memoryTokens, row...)
			tokens = append(tokens, flatToken{memory: row, anchor: anchors[i]})
		}
	}
	total := len(tokens)

	outMemW, err := w.Data("decoder.enc_output.proj.weight")
	if err != nil {
		return DecoderOutput{}, err
	}
	outMemB, _ := w.Data("decoder.enc_output.proj.bias")
	outputMemory := tensor.Linear(tensor.Tensor{Data: memoryTokens, Shape: []int{total, dModel}}, dModel, total, tensor.Tensor{Data: outMemW}, dModel, outMemB).Data
	lnGamma, err := w.Data("decoder.enc_output.norm.weight")
	if err != nil {
		return DecoderOutput{}, err
	}
	lnBeta, err := w.Data("decoder.enc_output.norm.bias")
	if err != nil {
		return DecoderOutput{}, err
	}
	outputMemory = tensor.LayerNorm(outputMemory, total, dModel, lnGamma, lnBeta, 1e-5)

	classW, err := w.Data("decoder.enc_class_head.weight")
	if err != nil {
		return DecoderOutput{}, err
	}
	classB, _ := w.Data("decoder.enc_class_head.bias")
	numClasses := len(classB)
	classLogits := tensor.Linear(tensor.Tensor{Data: outputMemory, Shape: []int{total, dModel}}, dModel, total, tensor.Tensor{Data: classW}, numClasses, classB).Data

	bboxDelta, err := mlp3(w, "decoder.enc_bbox_head.layers", outputMemory, total, dModel)
	if err != nil {
		return DecoderOutput{}, err
	}

	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, total)
	for i := 0; i < total; i++ {
		maxLogit := classLogits[i*numClasses]
		for c := 1; c < numClasses; c++ {
			if v := classLogits[i*numClasses+c]; v > maxLogit {
				maxLogit = v
			}
		}
		scores[i] = scored{idx: i, score: maxLogit}
	}
	sort.Slice(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	numQueries := cfg.NumQueries
	if numQueries > total {
		numQueries = total
	}

	queries := make([]DecoderQuery, numQueries)
	for q := 0; q < numQueries; q++ {
		idx := scores[q].idx
		anchor := tokens[idx].anchor
		target := make([]float32, dModel)
		copy(target, outputMemory[idx*dModel:(idx+1)*dModel])

		var refUnact [4]float64
		cxLogit := float64(bboxDelta[idx*4+0])
		cyLogit := float64(bboxDelta[idx*4+1])
		wLogit := float64(bboxDelta[idx*4+2])
		hLogit := float64(bboxDelta[idx*4+3])
		if anchor.Valid {
			refUnact = [4]float64{
				cxLogit + inverseSigmoid(anchor.CX),
				cyLogit + inverseSigmoid(anchor.CY),
				wLogit + inverseSigmoid(anchor.W),
				hLogit + inverseSigmoid(anchor.H),
			}
		} else {
			refUnact = [4]float64{math.Inf(1), math.Inf(1), math.Inf(1), math.Inf(1)}
		}

		cls := make([]float32, numClasses)
		copy(cls, classLogits[idx*numClasses:(idx+1)*numClasses])
		queries[q] = DecoderQuery{Target: target, ReferenceUnact: refUnact, ClassLogits: cls}
	}

	if cfg.MaskEnhanced {
		if err := seedMaskEnhancedReferences(w, queries, enc.MaskFeatures, cfg); err != nil {
			return DecoderOutput{}, fmt.Errorf("mask_enhanced: %w", err)
		}
	}

	var orderProj []float32
	var orderHeadSize int
	for layer := 0; layer < cfg.NumDecoderLayers; layer++ {
		proj, headSize, err := runDecoderLayer(w, fmt.Sprintf("decoder.layers.%d", layer), queries, enc, cfg)
		if err != nil {
			return DecoderOutput{}, fmt.Errorf("decoder layer %d: %w", layer, err)
		}
		orderProj, orderHeadSize = proj, headSize
	}

	ranks := orderPointerRanks(queries, orderProj, orderHeadSize)
	for i, r := range ranks {
		queries[i].Order = float64(r)
	}
	return DecoderOutput{Queries: queries, OrderRanks: ranks}, nil
}

// seedMaskEnhancedReferences runs the mask-query MLP, dots against
// flattened mask features to get per-query masks, and replaces each
// query's reference point with the inverse-sigmoid of the tight bounding
// box of its positive-mask region (spec §4.3.4 "mask_enhanced").
func seedMaskEnhancedReferences(w Weights, queries []DecoderQuery, maskFeatures FeatureMap, cfg Config) error {
	lnGamma, err := w.Data("decoder.query_norm.weight")
	if err != nil {
		return err
	}
	lnBeta, err := w.Data("decoder.query_norm.bias")
	if err != nil {
		return err
	}
	mh, mw := cfg.MaskFeatureSize, cfg.MaskFeatureSize
	maskFeatTokens := toTokens(maskFeatures) // [mh*mw_native, dModel] at native resolution
	// Resize mask features to Mh x Mw via nearest resize per channel.
	resized := resizeFeatureMapTokens(maskFeatTokens, maskFeatures.H, maskFeatures.W, mh, mw, cfg.DModel)

	for qi := range queries {
		normed := tensor.LayerNorm(queries[qi].Target, 1, cfg.DModel, lnGamma, lnBeta, 1e-5)
		queryVec, err := mlp3(w, "decoder.mask_query_head.layers", normed, 1, cfg.DModel)
		if err != nil {
			return err
		}
		maskLogits := make([]float32, mh*mw)
		for p := 0; p < mh*mw; p++ {
			var dot float32
			row := resized[p*cfg.DModel : (p+1)*cfg.DModel]
			for c := 0; c < cfg.DModel; c++ {
				dot += queryVec[c] * row[c]
			}
			maskLogits[p] = dot
		}
		queries[qi].MaskLogits = maskLogits

		minX, minY, maxX, maxY := mw, mh, -1, -1
		for y := 0; y < mh; y++ {
			for x := 0; x < mw; x++ {
				if maskLogits[y*mw+x] > 0 {
					if x < minX {
						minX = x
					}
					if x > maxX {
						maxX = x
					}
					if y < minY {
						minY = y
					}
					if y > maxY {
						maxY = y
					}
				}
			}
		}
		var cx, cy, bw, bh float64
		if maxX < 0 {
			cx, cy, bw, bh = 0.5, 0.5, 1.0/float64(mw), 1.0/float64(mh)
		} else {
			cx = (float64(minX) + float64(maxX) + 1) / 2 / float64(mw)
			cy = (float64(minY) + float64(maxY) + 1) / 2 / float64(mh)
			bw = float64(maxX-minX+1) / float64(mw)
			bh = float64(maxY-minY+1) / float64(mh)
		}
		queries[qi].ReferenceUnact = [4]float64{
			inverseSigmoid(cx), inverseSigmoid(cy), inverseSigmoid(bw), inverseSigmoid(bh),
		}
	}
	return nil
}

// resizeFeatureMapTokens nearest-resizes a (srcH*srcW, channels) token
// buffer to (dstH*dstW, channels).
func resizeFeatureMapTokens(tokens []float32, srcH, srcW, dstH, dstW, channels int) []float32 {
	out := make([]float32, dstH*dstW*channels)
	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		if sy >= srcH {
			sy = srcH - 1
		}
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			if sx >= srcW {
				sx = srcW - 1
			}
			copy(out[(y*dstW+x)*channels:(y*dstW+x+1)*channels], tokens[(sy*srcW+sx)*channels:(sy*srcW+sx+1)*channels])
		}
	}
	return out
}

// runDecoderLayer runs one decoder layer in place over queries: learned
// self-attention, deformable cross-attention, FFN, then bbox refinement
// and logit recomputation (spec §4.3.4).
func runDecoderLayer(w Weights, prefix string, queries []DecoderQuery, enc EncoderOutput, cfg Config) ([]float32, int, error) {
	n := len(queries)
	dModel := cfg.DModel

	posInputs := make([]float32, n*4)
	for i, q := range queries {
		for k := 0; k < 4; k++ {
			posInputs[i*4+k] = float32(sigmoid1(q.ReferenceUnact[k]))
		}
	}
	posEmbed, err := mlp2(w, prefix+".pos_embed.layers", posInputs, n, 4, dModel)
	if err != nil {
		return nil, 0, err
	}

	targets := make([]float32, n*dModel)
	for i, q := range queries {
		copy(targets[i*dModel:(i+1)*dModel], q.Target)
	}
	withPos := make([]float32, len(targets))
	for i := range targets {
		withPos[i] = targets[i] + posEmbed[i]
	}

	selfOut, err := aifiEncoderLayer(w, prefix+".self_attn", withPos, n, dModel, cfg.NumHeads)
	if err != nil {
		return nil, 0, fmt.Errorf("self_attn: %w", err)
	}

	crossOut, err := deformableCrossAttention(w, prefix+".cross_attn", selfOut, queries, enc, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("cross_attn: %w", err)
	}
	for i := range crossOut {
		crossOut[i] += selfOut[i]
	}
	ln1Gamma, err := w.Data(prefix + ".norm1.weight")
	if err != nil {
		return nil, 0, err
	}
	ln1Beta, err := w.Data(prefix + ".norm1.bias")
	if err != nil {
		return nil, 0, err
	}
	hidden := tensor.LayerNorm(crossOut, n, dModel, ln1Gamma, ln1Beta, 1e-5)

	ffnW1, err := w.Data(prefix + ".ffn.fc1.weight")
	if err != nil {
		return nil, 0, err
	}
	ffnB1, _ := w.Data(prefix + ".ffn.fc1.bias")
	ffnW2, err := w.Data(prefix + ".ffn.fc2.weight")
	if err != nil {
		return nil, 0, err
	}
	ffnB2, _ := w.Data(prefix + ".ffn.fc2.bias")
	dFF := len(ffnB1)
	mid := tensor.Linear(tensor.Tensor{Data: hidden, Shape: []int{n, dModel}}, dModel, n, tensor.Tensor{Data: ffnW1}, dFF, ffnB1).Data
	for i, v := range mid {
		if v < 0 {
			mid[i] = 0
		}
	}
	ffnOut := tensor.Linear(tensor.Tensor{Data: mid, Shape: []int{n, dFF}}, dFF, n, tensor.Tensor{Data: ffnW2}, dModel, ffnB2).Data
	for i := range ffnOut {
		ffnOut[i] += hidden[i]
	}
	ln2Gamma, err := w.Data(prefix + ".norm2.weight")
	if err != nil {
		return nil, 0, err
	}
	ln2Beta, err := w.Data(prefix + ".norm2.bias")
	if err != nil {
		return nil, 0, err
	}
	newTargets := tensor.LayerNorm(ffnOut, n, dModel, ln2Gamma, ln2Beta, 1e-5)

	bboxDelta, err := mlp3(w, prefix+".bbox_head.layers", newTargets, n, dModel)
	if err != nil {
		return nil, 0, err
	}
	classW, err := w.Data(prefix + ".class_head.weight")
	if err != nil {
		return nil, 0, err
	}
	classB, _ := w.Data(prefix + ".class_head.bias")
	numClasses := len(classB)
	classLogits := tensor.Linear(tensor.Tensor{Data: newTargets, Shape: []int{n, dModel}}, dModel, n, tensor.Tensor{Data: classW}, numClasses, classB).Data

	for i := range queries {
		queries[i].Target = newTargets[i*dModel : (i+1)*dModel]
		for k := 0; k < 4; k++ {
			cur := sigmoid1(queries[i].ReferenceUnact[k])
			cur = sigmoid1(inverseSigmoid(cur) + float64(bboxDelta[i*4+k]))
			queries[i].ReferenceUnact[k] = inverseSigmoid(cur)
		}
		cls := make([]float32, numClasses)
		copy(cls, classLogits[i*numClasses:(i+1)*numClasses])
		queries[i].ClassLogits = cls
	}

	return orderPointerProject(w, prefix+".order_pointer", queries, cfg)
}

func sigmoid1(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// mlp2 runs a 2-layer MLP with ReLU between layers, used for the
// reference-point position embedding (2-layer MLP on sigmoid(reference_points)).
func mlp2(w Weights, prefix string, x []float32, n, inDim, outDim int) ([]float32, error) {
	w1, err := w.Data(prefix + ".0.weight")
	if err != nil {
		return nil, err
	}
	b1, _ := w.Data(prefix + ".0.bias")
	hiddenDim := len(b1)
	mid := tensor.Linear(tensor.Tensor{Data: x, Shape: []int{n, inDim}}, inDim, n, tensor.Tensor{Data: w1}, hiddenDim, b1).Data
	for i, v := range mid {
		if v < 0 {
			mid[i] = 0
		}
	}
	w2, err := w.Data(prefix + ".1.weight")
	if err != nil {
		return nil, err
	}
	b2, _ := w.Data(prefix + ".1.bias")
	return tensor.Linear(tensor.Tensor{Data: mid, Shape: []int{n, hiddenDim}}, hiddenDim, n, tensor.Tensor{Data: w2}, outDim, b2).Data, nil
}

// deformableCrossAttention runs multi-scale deformable cross-attention
// (spec §4.3.5) for every query against the three encoder levels.
func deformableCrossAttention(w Weights, prefix string, queryTokens []float32, queries []DecoderQuery, enc EncoderOutput, cfg Config) ([]float32, error) {
	n := len(queries)
	dModel := cfg.DModel
	numHeads := cfg.NumHeads
	headDim := dModel / numHeads
	const numPoints = 4
	numLevels := 3

	offsetW, err := w.Data(prefix + ".sampling_offsets.weight")
	if err != nil {
		return nil, err
	}
	offsetB, _ := w.Data(prefix + ".sampling_offsets.bias")
	offsetDim := numHeads * numLevels * numPoints * 2
	offsets := tensor.Linear(tensor.Tensor{Data: queryTokens, Shape: []int{n, dModel}}, dModel, n, tensor.Tensor{Data: offsetW}, offsetDim, offsetB).Data

	weightW, err := w.Data(prefix + ".attention_weights.weight")
	if err != nil {
		return nil, err
	}
	weightB, _ := w.Data(prefix + ".attention_weights.bias")
	weightDim := numHeads * numLevels * numPoints
	rawWeights := tensor.Linear(tensor.Tensor{Data: queryTokens, Shape: []int{n, dModel}}, dModel, n, tensor.Tensor{Data: weightW}, weightDim, weightB).Data

	valueW, err := w.Data(prefix + ".value_proj.weight")
	if err != nil {
		return nil, err
	}
	valueB, _ := w.Data(prefix + ".value_proj.bias")

	levelValues := make([][]float32, numLevels)
	for lvl := 0; lvl < numLevels; lvl++ {
		fm := enc.Levels[lvl]
		tokens := toTokens(fm)
		levelValues[lvl] = tensor.Linear(tensor.Tensor{Data: tokens, Shape: []int{fm.H * fm.W, dModel}}, dModel, fm.H*fm.W, tensor.Tensor{Data: valueW}, dModel, valueB).Data
	}

	out := make([]float32, n*dModel)
	for qi := 0; qi < n; qi++ {
		refCX := sigmoid1(queries[qi].ReferenceUnact[0])
		refCY := sigmoid1(queries[qi].ReferenceUnact[1])
		refW := sigmoid1(queries[qi].ReferenceUnact[2])
		refH := sigmoid1(queries[qi].ReferenceUnact[3])

		weightsPerHead := tensor.Softmax(rawWeights[qi*weightDim:(qi+1)*weightDim], numHeads, numLevels*numPoints)

		for head := 0; head < numHeads; head++ {
			acc := make([]float32, headDim)
			for lvl := 0; lvl < numLevels; lvl++ {
				fm := enc.Levels[lvl]
				for pt := 0; pt < numPoints; pt++ {
					flatIdx := ((head*numLevels+lvl)*numPoints + pt)
					ox := offsets[qi*offsetDim+flatIdx*2]
					oy := offsets[qi*offsetDim+flatIdx*2+1]
					sampleX := (refCX + float64(ox)*0.5*refW/numPoints) * float64(fm.W)
					sampleY := (refCY + float64(oy)*0.5*refH/numPoints) * float64(fm.H)

					sampled := tensor.DeformableAttentionSample(levelValues[lvl], fm.H, fm.W, dModel, float32(sampleX-0.5), float32(sampleY-0.5))
					weight := weightsPerHead[head*numLevels*numPoints+lvl*numPoints+pt]
					for c := 0; c < headDim; c++ {
						acc[c] += sampled[head*headDim+c] * weight
					}
				}
			}
			copy(out[qi*dModel+head*headDim:qi*dModel+(head+1)*headDim], acc)
		}
	}

	outW, err := w.Data(prefix + ".output_proj.weight")
	if err != nil {
		return nil, err
	}
	outB, _ := w.Data(prefix + ".output_proj.bias")
	return tensor.Linear(tensor.Tensor{Data: out, Shape: []int{n, dModel}}, dModel, n, tensor.Tensor{Data: outW}, dModel, outB).Data, nil
}

// orderPointerProject computes the layer's global-pointer projection,
// returned so RunDecoder can feed the final layer's projection into
// orderPointerRanks once all layers have run.
func orderPointerProject(w Weights, prefix string, queries []DecoderQuery, cfg Config) ([]float32, int, error) {
	n := len(queries)
	dModel := cfg.DModel
	targets := make([]float32, n*dModel)
	for i, q := range queries {
		copy(targets[i*dModel:(i+1)*dModel], q.Target)
	}
	projW, err := w.Data(prefix + ".weight")
	if err != nil {
		return nil, 0, err
	}
	projB, _ := w.Data(prefix + ".bias")
	h := cfg.GlobalPointerHeadSize
	proj := tensor.Linear(tensor.Tensor{Data: targets, Shape: []int{n, dModel}}, dModel, n, tensor.Tensor{Data: projW}, 2*h, projB).Data
	return proj, h, nil
}

// orderPointerRanks implements spec §4.3.6: pairwise scores from the
// split query/key halves of the global-pointer projection, a
// lower-triangular mask, a per-query vote, and a stable ascending sort.
func orderPointerRanks(queries []DecoderQuery, proj []float32, h int) []int {
	n := len(queries)
	if proj == nil || h == 0 || len(proj) < n*2*h {
		ranks := make([]int, n)
		for i := range ranks {
			ranks[i] = i
		}
		return ranks
	}

	qVecs := make([][]float32, n)
	kVecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		qVecs[i] = proj[i*2*h : i*2*h+h]
		kVecs[i] = proj[i*2*h+h : i*2*h+2*h]
	}

	scoreAt := func(i, j int) float64 {
		var dot float32
		for c := 0; c < h; c++ {
			dot += qVecs[i][c] * kVecs[j][c]
		}
		return float64(dot) / math.Sqrt(float64(h))
	}

	votes := make([]float64, n)
	for p := 0; p < n; p++ {
		v := 0.0
		for i := 0; i < p; i++ {
			v += sigmoid1(scoreAt(i, p))
		}
		for i := p + 1; i < n; i++ {
			v += 1 - sigmoid1(scoreAt(p, i))
		}
		votes[p] = v
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return votes[idx[a]] < votes[idx[b]] })

	ranks := make([]int, n)
	for rank, origIdx := range idx {
		ranks[origIdx] = rank
	}
	return ranks
}
