package memalloc

import "encoding/binary"

// Boundary-tag layer. Every block is a 4-byte header,
// followed — for free blocks only — by a 4-byte footer duplicating the
// header, used for backward neighbor lookup during coalescing.
//
// The header packs the block's size (always a multiple of the
// allocator's alignment, so its low bits are free) with two flag bits:
// usedFlag and prevFreeFlag.

const (
	headerSize = 4
	footerSize = 4

	usedFlag     = uint32(1) << 0
	prevFreeFlag = uint32(1) << 1
	flagMask     = usedFlag | prevFreeFlag
)

// nullOff is the canonical encoding of "no block" for both free-list
// links and the last-block reference.
const nullOff int32 = -1

func makeHeader(size int32, used, prevFree bool) uint32 {
	h := uint32(size)
	if used {
		h |= usedFlag
	}
	if prevFree {
		h |= prevFreeFlag
	}
	return h
}

func (a *Allocator) word(off int32) uint32 {
	return binary.LittleEndian.Uint32(a.heap[off : off+4])
}

func (a *Allocator) putWord(off int32, v uint32) {
	binary.LittleEndian.PutUint32(a.heap[off:off+4], v)
}

// size returns the size, in bytes, of the block whose header starts at off.
func (a *Allocator) size(off int32) int32 {
	return int32(a.word(off) &^ flagMask)
}

func (a *Allocator) isUsed(off int32) bool {
	return a.word(off)&usedFlag != 0
}

func (a *Allocator) isFree(off int32) bool { return !a.isUsed(off) }

// prevFree reports whether the block immediately preceding off, in
// address order, is free. It is maintained on every block (used or
// free) so that used blocks can omit a footer while backward
// coalescing remains possible.
func (a *Allocator) prevFree(off int32) bool {
	return a.word(off)&prevFreeFlag != 0
}

func (a *Allocator) setPrevFreeBit(off int32, v bool) {
	h := a.word(off)
	if v {
		h |= prevFreeFlag
	} else {
		h &^= prevFreeFlag
	}
	a.putWord(off, h)
}

// footer returns the offset of a free block's footer word.
func (a *Allocator) footer(off int32) int32 {
	return off + a.size(off) - footerSize
}

// next returns the offset of the block immediately following off, which
// may be the epilogue.
func (a *Allocator) next(off int32) int32 {
	return off + a.size(off)
}

// prev returns the offset of the block immediately preceding off. Only
// valid when prevFree(off) is set — callers must gate on that before
// calling prev, since a used predecessor carries no footer to read.
func (a *Allocator) prev(off int32) int32 {
	prevSize := int32(a.word(off-footerSize) &^ flagMask)
	return off - prevSize
}

// makeBlock writes a block header (and, if free, a duplicate footer) at
// off, then fixes up the prevFree bit of the block that follows it — the
// one invariant boundary tags exist to maintain cheaply.
func (a *Allocator) makeBlock(off, size int32, used, prevFree bool) {
	a.putWord(off, makeHeader(size, used, prevFree))
	if !used {
		a.putWord(a.footer(off), makeHeader(size, used, prevFree))
	}

	succ := off + size
	if used {
		a.setPrevFreeBit(succ, false)
	} else {
		a.setPrevFreeBit(succ, true)
	}
}
