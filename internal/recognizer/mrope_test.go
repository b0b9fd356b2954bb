package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeRopeIndexTextOnlyIsIdentity(t *testing.T) {
	ids := []int{1, 2, 3, 4}
	result := ComputeRopeIndex(ids, 999, nil, 2)
	assert.Equal(t, []int{0, 1, 2, 3}, result.Positions.T)
	assert.Equal(t, []int{0, 1, 2, 3}, result.Positions.H)
	assert.Equal(t, []int{0, 1, 2, 3}, result.Positions.W)
	assert.Equal(t, 0, result.RopeDelta)
}

func TestComputeRopeIndexImageSpanUsesGridAxes(t *testing.T) {
	imageTokenID := 50
	// two text tokens, then a 1x2x2 image grid (merge=1) worth of image
	// tokens, then one trailing text token.
	ids := []int{1, 2, imageTokenID, imageTokenID, imageTokenID, imageTokenID, 3}
	grids := []GridTHW{{T: 1, H: 2, W: 2}}
	result := ComputeRopeIndex(ids, imageTokenID, grids, 1)

	// text prefix: positions 0,1
	assert.Equal(t, 0, result.Positions.T[0])
	assert.Equal(t, 1, result.Positions.T[1])

	// image span starts at cursor=2, spans 2x2 grid
	assert.Equal(t, 2, result.Positions.T[2])
	assert.Equal(t, 2, result.Positions.H[2])
	assert.Equal(t, 2, result.Positions.W[2])
	assert.Equal(t, 3, result.Positions.H[4]) // second row of the grid

	// trailing text resumes after cursor advances by max(gt,gh,gw)=2
	assert.Equal(t, 4, result.Positions.T[6])

	assert.Equal(t, result.RopeDelta, 4+1-len(ids))
}

func TestContinuePositionsBroadcastsAcrossAxes(t *testing.T) {
	pos := ContinuePositions(10, 1, 3)
	assert.Equal(t, []int{13}, pos.T)
	assert.Equal(t, []int{13}, pos.H)
	assert.Equal(t, []int{13}, pos.W)
}
