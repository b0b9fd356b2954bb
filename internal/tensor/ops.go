package tensor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Linear computes y = x @ wT + b for x: [N, In], w: [Out, In] (row-major,
// PyTorch-style "out_features x in_features"), b: [Out] or nil. Returns
// y: [N, Out]. The matmul itself is delegated to gonum for the heavy
// N*In*Out inner loop; everything else in this package is hand-written.
func Linear(x Tensor, inFeatures, n int, w Tensor, outFeatures int, b []float32) Tensor {
	xm := mat.NewDense(n, inFeatures, float64SliceOf(x.Data))
	wm := mat.NewDense(outFeatures, inFeatures, float64SliceOf(w.Data))
	var ym mat.Dense
	ym.Mul(xm, wm.T())

	out := New(n, outFeatures)
	for i := 0; i < n; i++ {
		for j := 0; j < outFeatures; j++ {
			v := float32(ym.At(i, j))
			if b != nil {
				v += b[j]
			}
			out.Data[i*outFeatures+j] = v
		}
	}
	return out
}

func float64SliceOf(f []float32) []float64 {
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = float64(v)
	}
	return out
}

// MatMul computes C[M,N] = A[M,K] @ B[K,N] using gonum's dense matmul.
func MatMul(a []float32, m, k int, b []float32, n int) []float32 {
	am := mat.NewDense(m, k, float64SliceOf(a))
	bm := mat.NewDense(k, n, float64SliceOf(b))
	var cm mat.Dense
	cm.Mul(am, bm)
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = float32(cm.At(i, j))
		}
	}
	return out
}

// LayerNorm normalizes the last dimension of x ([N, D]) with learned
// gamma/beta ([D]) and epsilon.
func LayerNorm(x []float32, n, d int, gamma, beta []float32, eps float32) []float32 {
	out := make([]float32, len(x))
	for i := 0; i < n; i++ {
		row := x[i*d : (i+1)*d]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(d)
		var variance float64
		for _, v := range row {
			diff := float64(v) - mean
			variance += diff * diff
		}
		variance /= float64(d)
		inv := float32(1.0 / math.Sqrt(variance+float64(eps)))
		for j, v := range row {
			norm := (v - float32(mean)) * inv
			g := float32(1)
			if gamma != nil {
				g = gamma[j]
			}
			bv := float32(0)
			if beta != nil {
				bv = beta[j]
			}
			out[i*d+j] = norm*g + bv
		}
	}
	return out
}

// RMSNorm normalizes the last dimension of x ([N, D]) by its root-mean-square,
// scaling by the learned weight ([D]).
func RMSNorm(x []float32, n, d int, weight []float32, eps float32) []float32 {
	out := make([]float32, len(x))
	for i := 0; i < n; i++ {
		row := x[i*d : (i+1)*d]
		var sumSq float64
		for _, v := range row {
			sumSq += float64(v) * float64(v)
		}
		rms := float32(1.0 / math.Sqrt(sumSq/float64(d)+float64(eps)))
		for j, v := range row {
			w := float32(1)
			if weight != nil {
				w = weight[j]
			}
			out[i*d+j] = v * rms * w
		}
	}
	return out
}

// Softmax applies softmax over the last dimension of x ([N, D]) and returns
// the result as a new slice; x is not modified.
func Softmax(x []float32, n, d int) []float32 {
	out := make([]float32, len(x))
	for i := 0; i < n; i++ {
		row := x[i*d : (i+1)*d]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		tmp := make([]float32, d)
		for j, v := range row {
			e := math.Exp(float64(v - maxV))
			tmp[j] = float32(e)
			sum += e
		}
		invSum := float32(1.0 / sum)
		for j, v := range tmp {
			out[i*d+j] = v * invSum
		}
	}
	return out
}

// SiLU applies x * sigmoid(x) elementwise.
func SiLU(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v / (1 + float32(math.Exp(float64(-v))))
	}
	return out
}

// GELU applies the tanh approximation of GELU elementwise (matches common
// HF implementations used by vision-language checkpoints).
func GELU(x []float32) []float32 {
	const c = 0.7978845608028654 // sqrt(2/pi)
	out := make([]float32, len(x))
	for i, v := range x {
		v64 := float64(v)
		inner := c * (v64 + 0.044715*v64*v64*v64)
		out[i] = float32(0.5 * v64 * (1 + math.Tanh(inner)))
	}
	return out
}

// GatedMLP computes silu(gate) * up elementwise for SiLU-gated MLPs, with
// gate and up already projected to hidden, each [N, Hidden]. The down
// projection is left to the caller.
func GatedMLP(gate, up []float32) []float32 {
	activated := SiLU(gate)
	out := make([]float32, len(gate))
	for i := range out {
		out[i] = activated[i] * up[i]
	}
	return out
}

// AddInPlace computes dst += src elementwise, returning dst.
func AddInPlace(dst, src []float32) []float32 {
	for i := range dst {
		dst[i] += src[i]
	}
	return dst
}

// Sigmoid applies the logistic function elementwise.
func Sigmoid(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = 1 / (1 + float32(math.Exp(float64(-v))))
	}
	return out
}
