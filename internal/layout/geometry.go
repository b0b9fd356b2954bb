// Package layout implements the multi-class DETR-style layout detector:
// an HGNet backbone, an AIFI+FPN+PAN encoder with a mask-feature head, a
// deformable-attention decoder with iterative box refinement and an order
// pointer, and the polygon/NMS/containment postprocessing pipeline.
package layout

import "math"

// Point is a polygon vertex in probability-map (mask) coordinates.
type Point struct {
	X, Y float64
}

// Box is an axis-aligned bounding box in the same coordinate space as Point.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

func NewBox(x1, y1, x2, y2 float64) Box {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Box{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// BoundingBox returns the axis-aligned box enclosing pts.
func BoundingBox(pts []Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// arcLength sums the perimeter of the closed polyline pts.
func arcLength(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	total := 0.0
	for i := range pts {
		a := pts[i]
		b := pts[(i+1)%len(pts)]
		total += math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return total
}

// SimplifyPolygon runs Douglas-Peucker with the given absolute tolerance.
func SimplifyPolygon(pts []Point, epsilon float64) []Point {
	if len(pts) <= 3 || epsilon <= 0 {
		return append([]Point(nil), pts...)
	}
	open := append([]Point(nil), pts...)
	keep := make([]bool, len(open))
	dpSimplify(open, 0, len(open)-1, epsilon, keep)
	keep[0] = true
	keep[len(open)-1] = true
	out := make([]Point, 0, len(open))
	for i, k := range keep {
		if k {
			out = append(out, open[i])
		}
	}
	return out
}

// SimplifyPolygonByArcLength applies the detector's RDP rule: epsilon is a
// fraction of the polygon's own perimeter (spec: ε = 0.004·arc_length).
func SimplifyPolygonByArcLength(pts []Point, fraction float64) []Point {
	return SimplifyPolygon(pts, fraction*arcLength(pts))
}

func dpSimplify(pts []Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist := -1.0
	index := -1
	a, b := pts[start], pts[end]
	for i := start + 1; i < end; i++ {
		d := perpendicularDistance(pts[i], a, b)
		if d > maxDist {
			maxDist = d
			index = i
		}
	}
	if maxDist > eps {
		dpSimplify(pts, start, index, eps, keep)
		keep[index] = true
		dpSimplify(pts, index, end, eps, keep)
	}
}

func perpendicularDistance(p, a, b Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	if vx == 0 && vy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	num := math.Abs((p.X-a.X)*vy - (p.Y-a.Y)*vx)
	return num / math.Hypot(vx, vy)
}

// UnclipPolygon scales pts outward from their centroid by scale (>1 grows).
func UnclipPolygon(pts []Point, scale float64) []Point {
	if len(pts) == 0 || scale == 1.0 || scale <= 0 {
		return append([]Point(nil), pts...)
	}
	cx, cy := 0.0, 0.0
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: cx + (p.X-cx)*scale, Y: cy + (p.Y-cy)*scale}
	}
	return out
}

// UnclipBox expands box outward from its center by ratioX/ratioY (each
// clamped to a minimum of 1), then clamps the result to [0,maxW]x[0,maxH].
func UnclipBox(b Box, ratioX, ratioY float64, maxW, maxH float64) Box {
	if ratioX < 1 {
		ratioX = 1
	}
	if ratioY < 1 {
		ratioY = 1
	}
	cx := (b.MinX + b.MaxX) / 2
	cy := (b.MinY + b.MaxY) / 2
	hw := b.Width() / 2 * ratioX
	hh := b.Height() / 2 * ratioY
	out := NewBox(cx-hw, cy-hh, cx+hw, cy+hh)
	out.MinX = math.Max(0, out.MinX)
	out.MinY = math.Max(0, out.MinY)
	out.MaxX = math.Min(maxW, out.MaxX)
	out.MaxY = math.Min(maxH, out.MaxY)
	return out
}

// ConvexHull computes the convex hull via the monotone-chain algorithm,
// returned in CCW order without duplicating the first point at the end.
func ConvexHull(pts []Point) []Point {
	n := len(pts)
	if n <= 1 {
		return append([]Point(nil), pts...)
	}
	p := make([]Point, n)
	copy(p, pts)
	sortPoints(p)
	p = removeDuplicatePoints(p)
	if len(p) <= 1 {
		return p
	}
	lower := buildLowerHull(p)
	upper := buildUpperHull(p)
	hull := make([]Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

func removeDuplicatePoints(p []Point) []Point {
	q := p[:0]
	var last Point
	hasLast := false
	for _, pt := range p {
		if !hasLast || pt.X != last.X || pt.Y != last.Y {
			q = append(q, pt)
			last = pt
			hasLast = true
		}
	}
	return q
}

func buildLowerHull(p []Point) []Point {
	lower := make([]Point, 0, len(p))
	for _, pt := range p {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	return lower
}

func buildUpperHull(p []Point) []Point {
	upper := make([]Point, 0, len(p))
	for i := len(p) - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}
	return upper
}

func sortPoints(p []Point) {
	for i := 1; i < len(p); i++ {
		v := p[i]
		j := i - 1
		for j >= 0 && (p[j].X > v.X || (p[j].X == v.X && p[j].Y > v.Y)) {
			p[j+1] = p[j]
			j--
		}
		p[j+1] = v
	}
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// InsertSharpAngleVertices implements the "sharp-angle" rule from spec
// §4.3.7 step 4: for each polygon vertex whose interior angle is within 1°
// of 45°, insert a new point along the bisector at distance
// (|v1|+|v2|)/2, where v1/v2 are the vectors to the neighboring vertices.
// This compensates for the convex hull + RDP pipeline rounding off corners
// that the mask boundary actually carried near a diagonal edge.
func InsertSharpAngleVertices(pts []Point) []Point {
	n := len(pts)
	if n < 3 {
		return pts
	}
	out := make([]Point, 0, n*2)
	const targetDeg = 45.0
	const toleranceDeg = 1.0
	for i := range n {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		out = append(out, cur)

		v1x, v1y := prev.X-cur.X, prev.Y-cur.Y
		v2x, v2y := next.X-cur.X, next.Y-cur.Y
		len1 := math.Hypot(v1x, v1y)
		len2 := math.Hypot(v2x, v2y)
		if len1 == 0 || len2 == 0 {
			continue
		}
		cosTheta := (v1x*v2x + v1y*v2y) / (len1 * len2)
		cosTheta = math.Max(-1, math.Min(1, cosTheta))
		angleDeg := math.Acos(cosTheta) * 180 / math.Pi
		if math.Abs(angleDeg-targetDeg) >= toleranceDeg {
			continue
		}
		// Bisector direction: normalized sum of the two unit vectors.
		ux, uy := v1x/len1+v2x/len2, v1y/len1+v2y/len2
		bLen := math.Hypot(ux, uy)
		if bLen == 0 {
			continue
		}
		dist := (len1 + len2) / 2
		out = append(out, Point{X: cur.X + ux/bLen*dist, Y: cur.Y + uy/bLen*dist})
	}
	return out
}

// IoU computes the intersection-over-union of two axis-aligned boxes.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.MinX, b.MinX)
	iy1 := math.Max(a.MinY, b.MinY)
	ix2 := math.Min(a.MaxX, b.MaxX)
	iy2 := math.Min(a.MaxY, b.MaxY)
	iw := math.Max(0, ix2-ix1)
	ih := math.Max(0, iy2-iy1)
	inter := iw * ih
	if inter <= 0 {
		return 0
	}
	aArea := a.Width() * a.Height()
	bArea := b.Width() * b.Height()
	return inter / (aArea + bArea - inter)
}

// InclusivePixelIoU computes IoU using (w+1)(h+1) inclusive-pixel areas,
// per spec §4.3.7 step 5's NMS rule for integer boxes.
func InclusivePixelIoU(a, b Box) float64 {
	ix1 := math.Max(a.MinX, b.MinX)
	iy1 := math.Max(a.MinY, b.MinY)
	ix2 := math.Min(a.MaxX, b.MaxX)
	iy2 := math.Min(a.MaxY, b.MaxY)
	iw := ix2 - ix1 + 1
	ih := iy2 - iy1 + 1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	aArea := (a.MaxX - a.MinX + 1) * (a.MaxY - a.MinY + 1)
	bArea := (b.MaxX - b.MinX + 1) * (b.MaxY - b.MinY + 1)
	return inter / (aArea + bArea - inter)
}

// ContainmentRatio returns the fraction of a's area that intersects b
// (intersection / own-area), used by the containment-filter merge modes.
func ContainmentRatio(a, b Box) float64 {
	ix1 := math.Max(a.MinX, b.MinX)
	iy1 := math.Max(a.MinY, b.MinY)
	ix2 := math.Min(a.MaxX, b.MaxX)
	iy2 := math.Min(a.MaxY, b.MaxY)
	iw := math.Max(0, ix2-ix1)
	ih := math.Max(0, iy2-iy1)
	inter := iw * ih
	aArea := a.Width() * a.Height()
	if aArea <= 0 {
		return 0
	}
	return inter / aArea
}

// largestConnectedComponentBoundary runs 8-connected BFS over a binary
// mask to find its largest component, then traces that component's
// boundary pixels via Moore-neighbor tracing. Returns nil if mask has no
// foreground pixels.
func largestConnectedComponentBoundary(mask []bool, w, h int) []Point {
	visited := make([]bool, len(mask))
	bestLabel, bestCount := -1, 0
	labels := make([]int, len(mask))
	label := 0

	dirs8 := [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

	for y := range h {
		for x := range w {
			idx := y*w + x
			if !mask[idx] || visited[idx] {
				continue
			}
			label++
			count := 0
			queue := []int{idx}
			visited[idx] = true
			labels[idx] = label
			for len(queue) > 0 {
				ci := queue[0]
				queue = queue[1:]
				count++
				cx, cy := ci%w, ci/w
				for _, d := range dirs8 {
					nx, ny := cx+d[0], cy+d[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					ni := ny*w + nx
					if mask[ni] && !visited[ni] {
						visited[ni] = true
						labels[ni] = label
						queue = append(queue, ni)
					}
				}
			}
			if count > bestCount {
				bestCount = count
				bestLabel = label
			}
		}
	}
	if bestLabel < 0 {
		return nil
	}
	return traceBoundaryMoore(labels, w, h, bestLabel)
}

// traceBoundaryMoore extracts a boundary polygon for the given labeled
// component using Moore-neighbor tracing, collinear points removed as the
// walk proceeds.
func traceBoundaryMoore(labels []int, w, h, label int) []Point {
	isLabel := func(x, y int) bool {
		if x < 0 || y < 0 || x >= w || y >= h {
			return false
		}
		return labels[y*w+x] == label
	}
	isBoundary := func(x, y int) bool {
		return isLabel(x, y) && (!isLabel(x+1, y) || !isLabel(x-1, y) || !isLabel(x, y+1) || !isLabel(x, y-1))
	}

	sx, sy := -1, -1
	for y := range h {
		for x := range w {
			if isBoundary(x, y) {
				sx, sy = x, y
				break
			}
		}
		if sx != -1 {
			break
		}
	}
	if sx == -1 {
		return nil
	}

	ndx := [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	ndy := [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	dirIndex := func(dx, dy int) int {
		for i := range 8 {
			if ndx[i] == dx && ndy[i] == dy {
				return i
			}
		}
		return 0
	}

	cx, cy := sx, sy
	bx, by := sx-1, sy
	pts := make([]Point, 0, 64)
	push := func(x, y int) {
		p := Point{X: float64(x), Y: float64(y)}
		n := len(pts)
		if n >= 2 {
			a, b := pts[n-2], pts[n-1]
			v1x, v1y := b.X-a.X, b.Y-a.Y
			v2x, v2y := p.X-b.X, p.Y-b.Y
			if v1x*v2y-v1y*v2x == 0 {
				pts = pts[:n-1]
			}
		}
		pts = append(pts, p)
	}
	push(cx, cy)

	startCx, startCy, startBx, startBy := cx, cy, bx, by
	maxSteps := w*h*4 + 8
	for steps := 0; steps < maxSteps; steps++ {
		dx, dy := bx-cx, by-cy
		start := (dirIndex(dx, dy) + 1) % 8
		found := false
		for k := range 8 {
			i := (start + k) % 8
			tx, ty := cx+ndx[i], cy+ndy[i]
			if isLabel(tx, ty) {
				bx, by = cx, cy
				cx, cy = tx, ty
				if len(pts) == 0 || pts[len(pts)-1].X != float64(cx) || pts[len(pts)-1].Y != float64(cy) {
					push(cx, cy)
				}
				found = true
				break
			}
			bx, by = tx, ty
		}
		if !found {
			break
		}
		if cx == startCx && cy == startCy && bx == startBx && by == startBy {
			break
		}
	}
	if len(pts) >= 2 && pts[0].X == pts[len(pts)-1].X && pts[0].Y == pts[len(pts)-1].Y {
		pts = pts[:len(pts)-1]
	}
	return pts
}
