package recognizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyRepetitionPenaltySignQuirk(t *testing.T) {
	logits := []float32{2.0, -2.0}
	ApplyRepetitionPenalty(logits, []int{0, 1}, 2.0)
	assert.InDelta(t, 1.0, logits[0], 1e-6)  // positive: divided by penalty
	assert.InDelta(t, -4.0, logits[1], 1e-6) // negative: multiplied by penalty
}

func TestApplyRepetitionPenaltyNoOpAtOne(t *testing.T) {
	logits := []float32{2.0, -2.0}
	ApplyRepetitionPenalty(logits, []int{0, 1}, 1.0)
	assert.Equal(t, float32(2.0), logits[0])
	assert.Equal(t, float32(-2.0), logits[1])
}

func TestApplyRepetitionPenaltyOnlyLastTwenty(t *testing.T) {
	history := make([]int, 25)
	for i := range history {
		history[i] = i % 2
	}
	history[0] = 2
	logits := []float32{1.0, 1.0, 1.0}
	ApplyRepetitionPenalty(logits, history, 2.0)
	// token 2 appears only at index 0, outside the last 20 tokens, so it
	// must be untouched
	assert.Equal(t, float32(1.0), logits[2])
}

func TestLogSoftmaxSumsToOneInProbabilitySpace(t *testing.T) {
	logits := []float32{1, 2, 3}
	logProbs := LogSoftmax(logits)
	var sum float64
	for _, lp := range logProbs {
		sum += math.Exp(float64(lp))
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestSampleArgmaxAtZeroTemperature(t *testing.T) {
	logits := []float32{0.1, 5.0, -3.0}
	assert.Equal(t, 1, Sample(logits, 0, 1, 0))
}

func TestSampleStaysWithinTopK(t *testing.T) {
	logits := []float32{10, 9, -100, -100, -100}
	for i := 0; i < 20; i++ {
		got := Sample(logits, 1.0, 1.0, 2)
		assert.Contains(t, []int{0, 1}, got)
	}
}
