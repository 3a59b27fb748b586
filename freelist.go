package memalloc

import (
	"encoding/binary"

	"github.com/cznic/mathutil"
)

// Free-list link layer. A free block's payload holds two
// signed 32-bit link fields at offsets 4 and 8 from its header: the next
// and previous blocks on the same segregated list. Links are stored as
// a distance in 4-byte words from the heap base rather than as raw
// offsets, so they fit in the same 4 bytes regardless of how large the
// heap grows — preserving the 16-byte minimum block size (header + two
// links + footer).
//
// A negative stored value means "no block"; nullOff (-1) is the
// canonical choice, matching "the 4-byte word preceding heap_base".

func (a *Allocator) rawLink(off int32) int32 {
	return int32(binary.LittleEndian.Uint32(a.heap[off : off+4]))
}

func (a *Allocator) putRawLink(off int32, v int32) {
	binary.LittleEndian.PutUint32(a.heap[off:off+4], uint32(v))
}

func (a *Allocator) linkWord(target int32) int32 {
	if target < 0 {
		return nullOff
	}
	return (target - a.base) / 4
}

func (a *Allocator) linkTarget(word int32) int32 {
	if word < 0 {
		return nullOff
	}
	return a.base + word*4
}

func (a *Allocator) nextFree(off int32) int32 {
	return a.linkTarget(a.rawLink(off + 4))
}

func (a *Allocator) prevFreeLink(off int32) int32 {
	return a.linkTarget(a.rawLink(off + 8))
}

func (a *Allocator) setNextFree(off, target int32) {
	a.putRawLink(off+4, a.linkWord(target))
}

func (a *Allocator) setPrevFreeLink(off, target int32) {
	a.putRawLink(off+8, a.linkWord(target))
}

// Segregated index: nine size-class buckets, each the head
// of a doubly-linked, LIFO-ordered free list.

const numBuckets = 9

// bucketOf maps a block size to its size-class index using
// mathutil.BitLen of the size (in units of align) rather than a
// hand-written comparison ladder. The literal thresholds (16, 32, 64,
// ... 2048) fall out of this as the A=16 instance: bucket 0 and 1 are
// the exact multiples 1 and 2, and bucket i (2 <= i <= 7) covers sizes
// in (2^(i-1)·align, 2^i·align], with anything past 128·align landing
// in the catch-all bucket 8.
func (a *Allocator) bucketOf(size int32) int {
	m := int(size / a.align)
	b := mathutil.BitLen(m - 1)
	if b > numBuckets-1 {
		b = numBuckets - 1
	}
	return b
}

// insert adds a free block to the head of its size class's list.
func (a *Allocator) insert(off int32) {
	b := a.bucketOf(a.size(off))
	head := a.heads[b]
	if head == nullOff {
		a.setNextFree(off, nullOff)
		a.setPrevFreeLink(off, nullOff)
		a.heads[b] = off
		return
	}

	a.setNextFree(off, head)
	a.setPrevFreeLink(off, nullOff)
	a.setPrevFreeLink(head, off)
	a.heads[b] = off
}

// remove splices a free block out of its size class's list. The caller
// must know the block's current size (it must not have been mutated
// since the block was last inserted).
func (a *Allocator) remove(off int32) {
	b := a.bucketOf(a.size(off))
	p := a.prevFreeLink(off)
	n := a.nextFree(off)

	switch {
	case p == nullOff && n == nullOff:
		a.heads[b] = nullOff
	case p == nullOff:
		a.heads[b] = n
		a.setPrevFreeLink(n, nullOff)
	case n == nullOff:
		a.setNextFree(p, nullOff)
	default:
		a.setNextFree(p, n)
		a.setPrevFreeLink(n, p)
	}
}
