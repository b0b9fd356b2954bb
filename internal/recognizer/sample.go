package recognizer

import (
	"math"
	"math/rand"
	"sort"
)

// ApplyRepetitionPenalty multiplies or divides the logits of recently seen
// tokens by penalty, using only the last 20 tokens of history (spec
// §4.4.3). Preserves the source's documented sign quirk: a selected
// logit's value (not just its sign convention) decides multiply vs divide,
// which inverts the usual direction for negative logits when penalty > 1.
func ApplyRepetitionPenalty(logits []float32, history []int, penalty float64) {
	if penalty == 1 {
		return
	}
	start := 0
	if len(history) > 20 {
		start = len(history) - 20
	}
	for _, tok := range history[start:] {
		if tok < 0 || tok >= len(logits) {
			continue
		}
		v := float64(logits[tok])
		if v < 0 {
			v *= penalty
		} else {
			v /= penalty
		}
		logits[tok] = float32(v)
	}
}

// LogSoftmax returns the log-softmax of logits as a new slice; logits
// itself is not modified.
func LogSoftmax(logits []float32) []float32 {
	maxV := logits[0]
	for _, v := range logits {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxV))
	}
	logSum := math.Log(sum)
	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = v - maxV - float32(logSum)
	}
	return out
}

// Sample draws the next token id from logits per spec §4.4.6's sampling
// rule: temperature == 0 selects argmax; otherwise scale by 1/temperature,
// apply top-p then top-k, and draw categorically.
func Sample(logits []float32, temperature, topP float64, topK int) int {
	if temperature == 0 {
		return argmax(logits)
	}

	scaled := make([]float64, len(logits))
	for i, v := range logits {
		scaled[i] = float64(v) / temperature
	}
	probs := softmax64(scaled)

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	if topP < 1 {
		cum := 0.0
		cutoff := len(order)
		for i, idx := range order {
			cum += probs[idx]
			if cum > topP {
				cutoff = i + 1
				break
			}
		}
		order = order[:cutoff]
	}
	if topK > 0 && topK < len(order) {
		order = order[:topK]
	}

	total := 0.0
	for _, idx := range order {
		total += probs[idx]
	}
	r := rand.Float64() * total
	acc := 0.0
	for _, idx := range order {
		acc += probs[idx]
		if r <= acc {
			return idx
		}
	}
	return order[len(order)-1]
}

func argmax(logits []float32) int {
	best := 0
	bestV := logits[0]
	for i, v := range logits {
		if v > bestV {
			bestV = v
			best = i
		}
	}
	return best
}

func softmax64(x []float64) []float64 {
	maxV := x[0]
	for _, v := range x {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		e := math.Exp(v - maxV)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
