package tensor

import "math"

// RotaryTable holds precomputed cos/sin values for a sequence of positions,
// each of length headDim/2, ready to be applied to query/key vectors.
type RotaryTable struct {
	Cos []float32 // [L, D/2]
	Sin []float32 // [L, D/2]
	Dim int
}

// BuildRotaryTable1D builds standard 1D rotary embeddings for positions
// 0..L-1 with the given head dimension and theta base.
func BuildRotaryTable1D(length, headDim int, theta float64) RotaryTable {
	half := headDim / 2
	cos := make([]float32, length*half)
	sin := make([]float32, length*half)
	invFreq := make([]float64, half)
	for i := 0; i < half; i++ {
		invFreq[i] = 1.0 / math.Pow(theta, float64(2*i)/float64(headDim))
	}
	for p := 0; p < length; p++ {
		for i := 0; i < half; i++ {
			angle := float64(p) * invFreq[i]
			cos[p*half+i] = float32(math.Cos(angle))
			sin[p*half+i] = float32(math.Sin(angle))
		}
	}
	return RotaryTable{Cos: cos, Sin: sin, Dim: headDim}
}

// ApplyRotary rotates x ([N, headDim]) using the "rotate half" convention:
// x*cos + rotate_half(x)*sin, where rotate_half swaps and negates the two
// halves of the vector. The result is a new slice; x is not modified.
func ApplyRotary(x []float32, n, headDim int, table RotaryTable, positions []int) []float32 {
	half := headDim / 2
	out := make([]float32, len(x))
	for i := 0; i < n; i++ {
		pos := i
		if positions != nil {
			pos = positions[i]
		}
		row := x[i*headDim : (i+1)*headDim]
		cosRow := table.Cos[pos*half : pos*half+half]
		sinRow := table.Sin[pos*half : pos*half+half]
		for j := 0; j < half; j++ {
			a := row[j]
			b := row[j+half]
			out[i*headDim+j] = a*cosRow[j] - b*sinRow[j]
			out[i*headDim+j+half] = b*cosRow[j] + a*sinRow[j]
		}
	}
	return out
}

// BuildVisionRotary2D builds the 2-way (h,w) interleaved rotary table used
// by the recognizer's vision tower patch positions (spec §4.4.2): for a
// patch at grid coordinate (h,w) within a gridH x gridW image, the first
// half of the per-patch frequency table is derived from h and the second
// half from w, matching the "2-way interleave" construction.
func BuildVisionRotary2D(gridH, gridW, headDim int, theta float64) RotaryTable {
	quarter := headDim / 4
	base := BuildRotaryTable1D(maxInt(gridH, gridW), headDim/2, theta)
	n := gridH * gridW
	half := headDim / 2
	cos := make([]float32, n*half)
	sin := make([]float32, n*half)
	for hy := 0; hy < gridH; hy++ {
		for wx := 0; wx < gridW; wx++ {
			idx := hy*gridW + wx
			// h-derived quarter then w-derived quarter, concatenated twice
			// to fill the rotate-half convention's two halves.
			for q := 0; q < quarter; q++ {
				cos[idx*half+q] = base.Cos[hy*(headDim/4)+q]
				sin[idx*half+q] = base.Sin[hy*(headDim/4)+q]
				cos[idx*half+quarter+q] = base.Cos[wx*(headDim/4)+q]
				sin[idx*half+quarter+q] = base.Sin[wx*(headDim/4)+q]
			}
		}
	}
	return RotaryTable{Cos: cos, Sin: sin, Dim: headDim}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MRoPEPositions holds the 3-axis (temporal, height, width) position ids
// produced by get_rope_index (spec §4.4.5), one slice per axis, length L.
type MRoPEPositions struct {
	T, H, W []int
}

// BuildMRoPETable builds a rotary table indexed by a linear position, but
// where each axis (t,h,w) contributes its own third of the frequency bands,
// as required by M-RoPE. positions must all have equal length L.
func BuildMRoPETable(positions MRoPEPositions, headDim int, theta float64) RotaryTable {
	l := len(positions.T)
	half := headDim / 2
	third := half / 3
	maxPos := 0
	for i := 0; i < l; i++ {
		for _, v := range []int{positions.T[i], positions.H[i], positions.W[i]} {
			if v > maxPos {
				maxPos = v
			}
		}
	}
	base := BuildRotaryTable1D(maxPos+1, headDim, theta)
	cos := make([]float32, l*half)
	sin := make([]float32, l*half)
	for i := 0; i < l; i++ {
		t, h, w := positions.T[i], positions.H[i], positions.W[i]
		for j := 0; j < half; j++ {
			var pos int
			switch {
			case j < third:
				pos = t
			case j < 2*third:
				pos = h
			default:
				pos = w
			}
			cos[i*half+j] = base.Cos[pos*half+j]
			sin[i*half+j] = base.Sin[pos*half+j]
		}
	}
	return RotaryTable{Cos: cos, Sin: sin, Dim: headDim}
}

// ApplyRotaryIndexed is like ApplyRotary but the table is already indexed
// per-row (positions == identity), used once BuildMRoPETable has produced a
// per-token table rather than a per-position table.
func ApplyRotaryIndexed(x []float32, n, headDim int, table RotaryTable) []float32 {
	half := headDim / 2
	out := make([]float32, len(x))
	for i := 0; i < n; i++ {
		row := x[i*headDim : (i+1)*headDim]
		cosRow := table.Cos[i*half : i*half+half]
		sinRow := table.Sin[i*half : i*half+half]
		for j := 0; j < half; j++ {
			a := row[j]
			b := row[j+half]
			out[i*headDim+j] = a*cosRow[j] - b*sinRow[j]
			out[i*headDim+j+half] = b*cosRow[j] + a*sinRow[j]
		}
	}
	return out
}
