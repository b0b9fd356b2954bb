package tensor

import "math"

// Attention computes scaled dot-product attention for a single head:
// q: [Lq, D], k/v: [Lk, D]. mask, if non-nil, is [Lq, Lk] with 0 allowed
// and -Inf (or any large negative) disallowed; it is added to the raw
// scores before softmax.
func Attention(q []float32, lq int, k, v []float32, lk, d int, mask []float32) []float32 {
	scale := float32(1.0 / math.Sqrt(float64(d)))
	scores := make([]float32, lq*lk)
	for i := 0; i < lq; i++ {
		qi := q[i*d : (i+1)*d]
		for j := 0; j < lk; j++ {
			kj := k[j*d : (j+1)*d]
			var s float32
			for x := 0; x < d; x++ {
				s += qi[x] * kj[x]
			}
			s *= scale
			if mask != nil {
				s += mask[i*lk+j]
			}
			scores[i*lk+j] = s
		}
	}
	weights := Softmax(scores, lq, lk)
	out := make([]float32, lq*d)
	for i := 0; i < lq; i++ {
		wi := weights[i*lk : (i+1)*lk]
		oi := out[i*d : (i+1)*d]
		for j := 0; j < lk; j++ {
			w := wi[j]
			if w == 0 {
				continue
			}
			vj := v[j*d : (j+1)*d]
			for x := 0; x < d; x++ {
				oi[x] += w * vj[x]
			}
		}
	}
	return out
}

// CausalMask builds an [L, offset+L] mask where position i (0-indexed
// within the new chunk) may attend to key position j iff j <= i+offset,
// matching spec §4.4.3's prefill/decode masking rules. disallowed entries
// get a large negative sentinel rather than -Inf to avoid NaN propagation
// when an entire row would otherwise be masked.
func CausalMask(l, offset int) []float32 {
	const negInf = float32(-1e9)
	lk := offset + l
	mask := make([]float32, l*lk)
	for i := 0; i < l; i++ {
		limit := i + offset
		for j := limit + 1; j < lk; j++ {
			mask[i*lk+j] = negInf
		}
	}
	return mask
}

// GroupedQueryAttention runs attention per query head, mapping each query
// head to its shared kv head (numHeads must be a multiple of numKVHeads),
// and concatenates the per-head outputs back into [L, numHeads*headDim].
func GroupedQueryAttention(q []float32, lq, numHeads int, k, v []float32, lk, numKVHeads, headDim int, mask []float32) []float32 {
	groupSize := numHeads / numKVHeads
	out := make([]float32, lq*numHeads*headDim)
	for h := 0; h < numHeads; h++ {
		kvHead := h / groupSize
		qHead := extractHead(q, lq, numHeads, headDim, h)
		kHead := extractHead(k, lk, numKVHeads, headDim, kvHead)
		vHead := extractHead(v, lk, numKVHeads, headDim, kvHead)
		headOut := Attention(qHead, lq, kHead, vHead, lk, headDim, mask)
		for i := 0; i < lq; i++ {
			copy(out[i*numHeads*headDim+h*headDim:i*numHeads*headDim+(h+1)*headDim], headOut[i*headDim:(i+1)*headDim])
		}
	}
	return out
}

func extractHead(x []float32, l, numHeads, headDim, head int) []float32 {
	out := make([]float32, l*headDim)
	stride := numHeads * headDim
	for i := 0; i < l; i++ {
		copy(out[i*headDim:(i+1)*headDim], x[i*stride+head*headDim:i*stride+(head+1)*headDim])
	}
	return out
}

// WindowedAttentionCuSeqLens runs full (non-causal) self-attention
// separately within each window defined by cumulative sequence lengths
// (spec §4.4.2: "split queries/keys/values accordingly so each image's
// attention is windowed"). cuSeqLens has len(windows)+1 entries, cuSeqLens[0]==0.
func WindowedAttentionCuSeqLens(q, k, v []float32, numHeads, headDim int, cuSeqLens []int) []float32 {
	total := cuSeqLens[len(cuSeqLens)-1]
	out := make([]float32, total*numHeads*headDim)
	for w := 0; w < len(cuSeqLens)-1; w++ {
		start := cuSeqLens[w]
		end := cuSeqLens[w+1]
		l := end - start
		if l == 0 {
			continue
		}
		qw := q[start*numHeads*headDim : end*numHeads*headDim]
		kw := k[start*numHeads*headDim : end*numHeads*headDim]
		vw := v[start*numHeads*headDim : end*numHeads*headDim]
		res := GroupedQueryAttention(qw, l, numHeads, kw, vw, l, numHeads, headDim, nil)
		copy(out[start*numHeads*headDim:end*numHeads*headDim], res)
	}
	return out
}

// BilinearSampleAt samples a single-channel feature map (NCHW channel slice
// of size H*W) at floating point pixel coordinates (x,y), returning 0 for
// out-of-bounds samples, per spec §4.3.5's deformable-attention sampling
// contract.
func BilinearSampleAt(feature []float32, h, w int, x, y float32) float32 {
	if x < -1 || x > float32(w) || y < -1 || y > float32(h) {
		return 0
	}
	x0 := int(math.Floor(float64(x)))
	y0 := int(math.Floor(float64(y)))
	x1, y1 := x0+1, y0+1
	fx, fy := x-float32(x0), y-float32(y0)

	get := func(yy, xx int) float32 {
		if yy < 0 || yy >= h || xx < 0 || xx >= w {
			return 0
		}
		return feature[yy*w+xx]
	}
	v00 := get(y0, x0)
	v01 := get(y0, x1)
	v10 := get(y1, x0)
	v11 := get(y1, x1)
	top := v00 + (v01-v00)*fx
	bot := v10 + (v11-v10)*fx
	return top + (bot-top)*fy
}

// DeformableAttentionSample computes, for a single query/head/level/point,
// the bilinearly sampled value at the given normalized reference location
// (already converted to level-pixel coordinates by the caller per spec
// §4.3.5), across all channels of the value slice for that level.
func DeformableAttentionSample(valueLevel []float32, levelH, levelW, channels int, px, py float32) []float32 {
	out := make([]float32, channels)
	for c := 0; c < channels; c++ {
		// value layout: [levelH*levelW, channels]
		out[c] = bilinearSampleChannel(valueLevel, levelH, levelW, channels, c, px, py)
	}
	return out
}

func bilinearSampleChannel(value []float32, h, w, channels, c int, x, y float32) float32 {
	if x < -1 || x > float32(w) || y < -1 || y > float32(h) {
		return 0
	}
	x0 := int(math.Floor(float64(x)))
	y0 := int(math.Floor(float64(y)))
	x1, y1 := x0+1, y0+1
	fx, fy := x-float32(x0), y-float32(y0)
	get := func(yy, xx int) float32 {
		if yy < 0 || yy >= h || xx < 0 || xx >= w {
			return 0
		}
		return value[(yy*w+xx)*channels+c]
	}
	v00 := get(y0, x0)
	v01 := get(y0, x1)
	v10 := get(y1, x0)
	v11 := get(y1, x1)
	top := v00 + (v01-v00)*fx
	bot := v10 + (v11-v10)*fx
	return top + (bot-top)*fy
}
