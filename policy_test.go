package memalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalesceMergesBothNeighbors(t *testing.T) {
	a := New(WithAlignment(16))
	require.NoError(t, a.ensureInit())

	p1, err := a.malloc(16)
	require.NoError(t, err)
	p2, err := a.malloc(16)
	require.NoError(t, err)
	p3, err := a.malloc(16)
	require.NoError(t, err)

	off1, off2, off3 := a.blockOf(p1), a.blockOf(p2), a.blockOf(p3)

	a.free(off1)
	a.free(off3)
	assert.True(t, a.isFree(off1))
	assert.True(t, a.isFree(off3))
	assert.True(t, a.isUsed(off2), "middle block must still be live before its neighbors are freed")

	a.free(off2)

	assert.True(t, a.isFree(off1), "merged block keeps the leftmost offset")
	assert.EqualValues(t, 96, a.size(off1), "three adjacent 32-byte blocks merge into one 96-byte block")
	require.NoError(t, a.CheckHeap(false))
}

func TestFreeInsertsWhenNoFreeNeighbors(t *testing.T) {
	a := New(WithAlignment(16))
	require.NoError(t, a.ensureInit())

	p1, err := a.malloc(16)
	require.NoError(t, err)
	p2, err := a.malloc(16)
	require.NoError(t, err)
	_ = p2

	off1 := a.blockOf(p1)
	a.free(off1)

	b := a.bucketOf(a.size(off1))
	assert.Equal(t, off1, a.heads[b], "a freed block with no free neighbor must be indexed directly")
}

func TestReallocGrowsInPlaceIntoFreeRightNeighbor(t *testing.T) {
	a := New(WithAlignment(16))
	require.NoError(t, a.ensureInit())

	p1, err := a.malloc(16)
	require.NoError(t, err)
	p2, err := a.malloc(200)
	require.NoError(t, err)
	off1 := a.blockOf(p1)

	a.free(a.blockOf(p2)) // free right neighbor of p1, big enough to absorb growth

	for i := range p1 {
		p1[i] = byte(i + 1)
	}
	grown, err := a.realloc(off1, 64)
	require.NoError(t, err)
	assert.Equal(t, off1, a.blockOf(grown), "growing into a free right neighbor must not move the block")
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i+1), grown[i])
	}
	require.NoError(t, a.CheckHeap(false))
}

func TestReallocExtendsHeapWhenBlockIsLast(t *testing.T) {
	a := New(WithAlignment(16))
	require.NoError(t, a.ensureInit())

	p, err := a.malloc(16)
	require.NoError(t, err)
	off := a.blockOf(p)
	require.Equal(t, off, a.last, "the only block in the heap must be last")

	for i := range p {
		p[i] = byte(0xCD)
	}
	grown, err := a.realloc(off, 4096)
	require.NoError(t, err)
	assert.Equal(t, off, a.blockOf(grown), "extending the last block must keep its identity")
	assert.Equal(t, off, a.last)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(0xCD), grown[i])
	}
	require.NoError(t, a.CheckHeap(false))
}

func TestReallocFallsBackToCopyWhenNeitherConditionHolds(t *testing.T) {
	a := New(WithAlignment(16))
	require.NoError(t, a.ensureInit())

	p1, err := a.malloc(16)
	require.NoError(t, err)
	p2, err := a.malloc(16) // used right neighbor of p1, blocks in-place growth
	require.NoError(t, err)
	_ = p2

	off1 := a.blockOf(p1)
	for i := range p1 {
		p1[i] = byte(i + 9)
	}

	grown, err := a.realloc(off1, 4096)
	require.NoError(t, err)
	assert.NotEqual(t, off1, a.blockOf(grown), "a used right neighbor forces a copy-and-move")
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i+9), grown[i])
	}
	require.NoError(t, a.CheckHeap(false))
}

func TestAsizeForMinimumBlock(t *testing.T) {
	a := &Allocator{align: 16}
	assert.EqualValues(t, 16, a.asizeFor(1))
	assert.EqualValues(t, 16, a.asizeFor(12))
	assert.EqualValues(t, 32, a.asizeFor(13))
}
