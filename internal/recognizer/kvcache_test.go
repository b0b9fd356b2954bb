package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKVCacheGrowsInBlocks(t *testing.T) {
	c := NewKVCache(2)
	k := make([]float32, 10*4*8)
	v := make([]float32, 10*4*8)
	c.Append(0, k, v, 10, 4, 8)
	c.Append(1, k, v, 10, 4, 8)
	c.AdvanceOffset(10)

	assert.Equal(t, 10, c.Offset)
	assert.Equal(t, kvCacheBlock, c.capacity)
}

func TestKVCacheRetainsPriorContentAfterGrowth(t *testing.T) {
	c := NewKVCache(1)
	first := make([]float32, 2*1*2)
	for i := range first {
		first[i] = float32(i + 1)
	}
	c.Append(0, first, first, 2, 1, 2)
	c.AdvanceOffset(2)

	// Force growth past the first 256-token block.
	big := make([]float32, 300*1*2)
	c.Append(0, big, big, 300, 1, 2)

	k, _, lk := c.KV(0, 300, 1, 2)
	assert.Equal(t, 302, lk)
	assert.Equal(t, first[0], k[0])
	assert.Equal(t, first[3], k[3])
}

func TestNextBlockCapacity(t *testing.T) {
	assert.Equal(t, 0, nextBlockCapacity(0))
	assert.Equal(t, 256, nextBlockCapacity(1))
	assert.Equal(t, 256, nextBlockCapacity(256))
	assert.Equal(t, 512, nextBlockCapacity(257))
}
