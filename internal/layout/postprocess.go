package layout

import (
	"math"
	"sort"

	"github.com/docreader-go/docreader/internal/tensor"
)

// Region is one finished layout detection, in absolute page pixel space,
// after the full postprocessing pipeline (spec §4.3.7).
type Region struct {
	Label         string
	Task          string
	Score         float64
	Polygon       []Point
	Box           Box
	NormalizedBox [4]float64 // [0,1000]^4, (x0,y0,x1,y1)
}

type candidate struct {
	queryIdx  int
	classIdx  int
	label     string
	score     float64
	flatIndex int
	box       Box // absolute page pixel space
	maskBits  []bool
	maskW     int
	maskH     int
	order     float64
}

// PostProcess runs spec §4.3.7 steps 1-10 over the decoder's final query
// states, producing page-space Region detections.
func PostProcess(dec DecoderOutput, cfg Config, pageW, pageH int) []Region {
	mh, mw := cfg.MaskFeatureSize, cfg.MaskFeatureSize
	candidates := selectCandidates(dec, cfg, pageW, pageH, mh, mw)
	candidates = filterByThreshold(candidates, cfg)
	sortByOrder(candidates)

	regions := make([]Region, 0, len(candidates))
	for _, c := range candidates {
		regions = append(regions, Region{
			Label:   c.label,
			Score:   c.score,
			Polygon: extractPolygon(c),
			Box:     c.box,
		})
	}

	if cfg.LayoutNMS {
		regions = postprocessNMS(regions)
	}

	regions = largeImageFilter(regions, pageW, pageH)
	regions = containmentFilter(regions, cfg)

	for i := range regions {
		regions[i].Box = UnclipBox(regions[i].Box, cfg.UnclipRatioX, cfg.UnclipRatioY, float64(pageW), float64(pageH))
	}

	regions = truncateAndFinalize(regions, pageW, pageH, cfg)
	return regions
}

func selectCandidates(dec DecoderOutput, cfg Config, pageW, pageH, mh, mw int) []candidate {
	type flatScore struct {
		score     float64
		flatIndex int
	}
	var flat []flatScore
	for qi, q := range dec.Queries {
		w := sigmoid1(q.ReferenceUnact[2])
		h := sigmoid1(q.ReferenceUnact[3])
		valid := w > 1.0/float64(mw) && h > 1.0/float64(mh)
		for ci, logit := range q.ClassLogits {
			score := -100.0
			if valid {
				score = sigmoid1(float64(logit))
			}
			flat = append(flat, flatScore{score: score, flatIndex: qi*len(q.ClassLogits) + ci})
		}
	}

	sort.SliceStable(flat, func(a, b int) bool {
		if flat[a].score != flat[b].score {
			return flat[a].score > flat[b].score
		}
		return flat[a].flatIndex < flat[b].flatIndex
	})

	limit := cfg.NumQueries
	if limit > len(flat) {
		limit = len(flat)
	}

	out := make([]candidate, 0, limit)
	for i := 0; i < limit; i++ {
		fs := flat[i]
		if fs.score <= -100 {
			continue
		}
		numClasses := len(dec.Queries[0].ClassLogits)
		qi := fs.flatIndex / numClasses
		ci := fs.flatIndex % numClasses
		q := dec.Queries[qi]

		cx := sigmoid1(q.ReferenceUnact[0])
		cy := sigmoid1(q.ReferenceUnact[1])
		bw := sigmoid1(q.ReferenceUnact[2])
		bh := sigmoid1(q.ReferenceUnact[3])
		box := NewBox((cx-bw/2)*float64(pageW), (cy-bh/2)*float64(pageH), (cx+bw/2)*float64(pageW), (cy+bh/2)*float64(pageH))

		label := cfg.ID2Label[classIndexKey(ci)]
		if label == "" {
			label = classIndexKey(ci)
		}

		maskBits, mW, mH := binarizeQueryMask(q, mh, mw, box)

		out = append(out, candidate{
			queryIdx: qi, classIdx: ci, label: label, score: fs.score, flatIndex: fs.flatIndex,
			box: box, maskBits: maskBits, maskW: mW, maskH: mH, order: q.Order,
		})
	}
	return out
}

func classIndexKey(ci int) string {
	return itoa(ci)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// binarizeQueryMask crops the query's Mh x Mw mask to its box (in
// mask-resolution coordinates) and nearest-resizes it to the box's pixel
// dimensions, thresholding at logit > 0.
func binarizeQueryMask(q DecoderQuery, mh, mw int, box Box) ([]bool, int, int) {
	outW := int(math.Round(box.Width()))
	outH := int(math.Round(box.Height()))
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	if len(q.MaskLogits) != mh*mw {
		return nil, outW, outH
	}

	cx := sigmoid1(q.ReferenceUnact[0])
	cy := sigmoid1(q.ReferenceUnact[1])
	bw := sigmoid1(q.ReferenceUnact[2])
	bh := sigmoid1(q.ReferenceUnact[3])
	x0 := int(math.Floor((cx - bw/2) * float64(mw)))
	y0 := int(math.Floor((cy - bh/2) * float64(mh)))
	x1 := int(math.Ceil((cx + bw/2) * float64(mw)))
	y1 := int(math.Ceil((cy + bh/2) * float64(mh)))
	x0, y0 = clampInt(x0, 0, mw-1), clampInt(y0, 0, mh-1)
	x1, y1 = clampInt(x1, x0+1, mw), clampInt(y1, y0+1, mh)
	cropW, cropH := x1-x0, y1-y0

	cropped := make([]float32, cropW*cropH)
	for y := 0; y < cropH; y++ {
		for x := 0; x < cropW; x++ {
			cropped[y*cropW+x] = q.MaskLogits[(y0+y)*mw+(x0+x)]
		}
	}

	resized := tensor.NearestResize(cropped, cropH, cropW, outH, outW)
	bits := make([]bool, outW*outH)
	for i, v := range resized {
		bits[i] = v > 0
	}
	return bits, outW, outH
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func filterByThreshold(cands []candidate, cfg Config) []candidate {
	out := cands[:0]
	for _, c := range cands {
		if c.score >= cfg.ThresholdFor(c.label) {
			out = append(out, c)
		}
	}
	return out
}

func sortByOrder(cands []candidate) {
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].order < cands[b].order })
}

// extractPolygon implements spec §4.3.7 step 4: BFS the largest connected
// component of the box-resized mask, trace its boundary, hull it, simplify
// by arc-length-relative RDP, then insert sharp-angle vertices. Falls back
// to the box rectangle on any failure.
func extractPolygon(c candidate) []Point {
	fallback := []Point{
		{X: c.box.MinX, Y: c.box.MinY}, {X: c.box.MaxX, Y: c.box.MinY},
		{X: c.box.MaxX, Y: c.box.MaxY}, {X: c.box.MinX, Y: c.box.MaxY},
	}
	if len(c.maskBits) == 0 || c.maskW <= 0 || c.maskH <= 0 {
		return fallback
	}
	boundary := largestConnectedComponentBoundary(c.maskBits, c.maskW, c.maskH)
	if len(boundary) < 3 {
		return fallback
	}
	hull := ConvexHull(boundary)
	if len(hull) < 3 {
		return fallback
	}
	simplified := SimplifyPolygonByArcLength(hull, 0.004)
	if len(simplified) < 3 {
		simplified = hull
	}
	withSharpAngles := InsertSharpAngleVertices(simplified)

	out := make([]Point, len(withSharpAngles))
	for i, p := range withSharpAngles {
		out[i] = Point{X: p.X + c.box.MinX, Y: p.Y + c.box.MinY}
	}
	return out
}

// postprocessNMS implements spec §4.3.7 step 5: greedy NMS using
// inclusive-pixel IoU, threshold 0.6 for same-class pairs and 0.98 for
// different-class pairs.
func postprocessNMS(regions []Region) []Region {
	if len(regions) <= 1 {
		return regions
	}
	idx := make([]int, len(regions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return regions[idx[a]].Score > regions[idx[b]].Score })

	suppressed := make([]bool, len(regions))
	kept := make([]Region, 0, len(regions))
	for _, a := range idx {
		if suppressed[a] {
			continue
		}
		kept = append(kept, regions[a])
		for _, b := range idx {
			if b == a || suppressed[b] {
				continue
			}
			threshold := 0.98
			if regions[a].Label == regions[b].Label {
				threshold = 0.6
			}
			if InclusivePixelIoU(regions[a].Box, regions[b].Box) >= threshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}

// largeImageFilter drops image-labeled detections whose box exceeds the
// portrait/landscape area fraction, only when more than one detection
// remains overall (spec §4.3.7 step 6).
func largeImageFilter(regions []Region, pageW, pageH int) []Region {
	if len(regions) <= 1 {
		return regions
	}
	pageArea := float64(pageW) * float64(pageH)
	threshold := 0.82
	if pageW > pageH {
		threshold = 0.93
	}
	out := regions[:0]
	for _, r := range regions {
		if r.Label == "image" && r.Box.Width()*r.Box.Height() > threshold*pageArea {
			continue
		}
		out = append(out, r)
	}
	return out
}

// preservedLabels are never dropped by the containment filter, regardless
// of merge mode (spec §4.3.7 step 7).
var preservedLabels = map[string]bool{"image": true, "seal": true, "chart": true}

// containmentFilter drops detections per the configured per-class merge
// mode: "large" drops a region mostly contained in another of the listed
// class; "small" drops a region that mostly contains another of the
// listed class, unless it is itself contained.
func containmentFilter(regions []Region, cfg Config) []Region {
	if len(cfg.MergeBBoxesMode) == 0 || len(regions) <= 1 {
		return regions
	}
	dropped := make([]bool, len(regions))
	for i, ri := range regions {
		if preservedLabels[ri.Label] {
			continue
		}
		mode, ok := cfg.MergeBBoxesMode[ri.Label]
		if !ok {
			continue
		}
		for j, rj := range regions {
			if i == j || dropped[j] {
				continue
			}
			switch mode {
			case "large":
				if ContainmentRatio(ri.Box, rj.Box) >= 0.8 {
					dropped[i] = true
				}
			case "small":
				containsOther := ContainmentRatio(rj.Box, ri.Box) >= 0.8
				selfContained := ContainmentRatio(ri.Box, rj.Box) >= 0.8
				if containsOther && !selfContained {
					dropped[i] = true
				}
			}
		}
	}
	out := make([]Region, 0, len(regions))
	for i, r := range regions {
		if !dropped[i] {
			out = append(out, r)
		}
	}
	return out
}

// truncateAndFinalize truncates boxes to integer pixels, drops degenerate
// boxes, computes the normalized [0,1000]^4 bbox, and maps label to task
// (spec §4.3.7 steps 9-10).
func truncateAndFinalize(regions []Region, pageW, pageH int, cfg Config) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		minX := math.Trunc(r.Box.MinX)
		minY := math.Trunc(r.Box.MinY)
		maxX := math.Trunc(r.Box.MaxX)
		maxY := math.Trunc(r.Box.MaxY)
		if maxX <= minX || maxY <= minY {
			continue
		}
		r.Box = NewBox(minX, minY, maxX, maxY)
		r.NormalizedBox = [4]float64{
			minX / float64(pageW) * 1000,
			minY / float64(pageH) * 1000,
			maxX / float64(pageW) * 1000,
			maxY / float64(pageH) * 1000,
		}
		r.Task = cfg.TaskFor(r.Label)
		out = append(out, r)
	}
	return out
}
