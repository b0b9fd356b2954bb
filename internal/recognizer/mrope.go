package recognizer

import "github.com/docreader-go/docreader/internal/tensor"

// GridTHW is one image's (t,h,w) patch-grid shape after merging, as
// consumed by get_rope_index (spec §4.4.5).
type GridTHW struct {
	T, H, W int
}

// RopeIndexResult holds get_rope_index's output: per-axis position ids for
// the whole sequence and the scalar rope delta used to continue decoding.
type RopeIndexResult struct {
	Positions  tensor.MRoPEPositions
	RopeDelta  int
}

// ComputeRopeIndex implements spec §4.4.5's get_rope_index: walks inputIDs,
// assigning identical (t,h,w) positions to ordinary text tokens and
// per-axis (t, h/merge, w/merge) positions to each image's vision-token
// span, using grids in order.
func ComputeRopeIndex(inputIDs []int, imageTokenID int, grids []GridTHW, mergeSize int) RopeIndexResult {
	l := len(inputIDs)
	t := make([]int, l)
	h := make([]int, l)
	wAxis := make([]int, l)

	if len(grids) == 0 {
		for i := 0; i < l; i++ {
			t[i], h[i], wAxis[i] = i, i, i
		}
		return RopeIndexResult{Positions: tensor.MRoPEPositions{T: t, H: h, W: wAxis}, RopeDelta: 0}
	}

	cursor := 0 // next position value to assign to text tokens
	gridIdx := 0
	i := 0
	for i < l {
		if inputIDs[i] == imageTokenID && gridIdx < len(grids) {
			g := grids[gridIdx]
			gridIdx++
			gt, gh, gw := g.T, g.H/mergeSize, g.W/mergeSize
			span := gt * gh * gw
			base := cursor
			for s := 0; s < span && i < l; s++ {
				tIdx := s / (gh * gw)
				rem := s % (gh * gw)
				hIdx := rem / gw
				wIdx := rem % gw
				t[i] = base + tIdx
				h[i] = base + hIdx
				wAxis[i] = base + wIdx
				i++
			}
			maxAxis := gt
			if gh > maxAxis {
				maxAxis = gh
			}
			if gw > maxAxis {
				maxAxis = gw
			}
			cursor = base + maxAxis
			continue
		}
		t[i] = cursor
		h[i] = cursor
		wAxis[i] = cursor
		cursor++
		i++
	}

	maxPos := 0
	for idx := 0; idx < l; idx++ {
		for _, v := range []int{t[idx], h[idx], wAxis[idx]} {
			if v > maxPos {
				maxPos = v
			}
		}
	}
	ropeDelta := maxPos + 1 - l

	return RopeIndexResult{Positions: tensor.MRoPEPositions{T: t, H: h, W: wAxis}, RopeDelta: ropeDelta}
}

// ContinuePositions builds the per-axis positions for a decode step of
// length l starting at cacheOffset, using the cached rope delta (spec
// §4.4.5: "compute positions from cache_offset + (0..L) + rope_deltas").
func ContinuePositions(cacheOffset, l, ropeDelta int) tensor.MRoPEPositions {
	t := make([]int, l)
	h := make([]int, l)
	w := make([]int, l)
	for i := 0; i < l; i++ {
		p := cacheOffset + i + ropeDelta
		t[i], h[i], w[i] = p, p, p
	}
	return tensor.MRoPEPositions{T: t, H: h, W: w}
}
