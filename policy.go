package memalloc

// This file builds malloc/free/realloc/calloc out of the boundary-tag
// and free-list primitives: heap extension, best-fit search, placement
// with optional split, and coalescing.

// roundUp rounds n up to the next multiple of m, m a power of two.
func roundUp(n, m int32) int32 { return (n + m - 1) &^ (m - 1) }

// asizeFor computes the block size (including the 4-byte header,
// rounded up to alignment) needed to satisfy a request for n bytes of
// payload.
func (a *Allocator) asizeFor(n int32) int32 {
	return roundUp(n+headerSize, a.align)
}

// payloadView slices the heap at payloadOff, with len == reqLen and
// cap == the block's full usable size — so a caller (or this package's
// own Free/Realloc/UsableSize) can always recover the true slot size
// via cap(payload) — the same trick of slicing back out to cap(b) that
// recovers a block's real size from a payload slice alone.
func (a *Allocator) payloadView(payloadOff int32, reqLen int) []byte {
	block := payloadOff - headerSize
	usable := a.size(block) - headerSize
	return a.heap[payloadOff : payloadOff+int32(reqLen) : payloadOff+usable]
}

// growArena extends the arena by n bytes and refreshes the cached heap
// slice. It performs no bookkeeping of its own — callers decide what
// to do with the new space.
func (a *Allocator) growArena(n int32) (int32, error) {
	off, err := a.arena.Grow(int(n))
	if err != nil {
		return 0, err
	}
	a.refresh()
	return off, nil
}

// findFit runs the best-fit search: starting at
// bucketOf(asize), scan each bucket for the smallest block whose size
// is >= asize, returning the first bucket (lowest index) that yields
// any candidate. Ties resolve to the first (most recently inserted)
// block encountered in list order.
func (a *Allocator) findFit(asize int32) (int32, bool) {
	for b := a.bucketOf(asize); b < numBuckets; b++ {
		best := nullOff
		for cur := a.heads[b]; cur != nullOff; cur = a.nextFree(cur) {
			sz := a.size(cur)
			if sz < asize {
				continue
			}
			if best == nullOff || sz < a.size(best) {
				best = cur
			}
		}
		if best != nullOff {
			return best, true
		}
	}
	return 0, false
}

// place carves an asize-byte used block out of the free block at off,
// splitting off a free tail when the remainder is large enough to be
// its own block, and returns off (its identity doesn't change — only
// its size and flags do).
func (a *Allocator) place(off, asize int32) int32 {
	a.remove(off)
	fsize := a.size(off)
	pf := a.prevFree(off)

	if fsize-asize >= a.align {
		a.makeBlock(off, asize, true, pf)
		tail := off + asize
		a.makeBlock(tail, fsize-asize, false, false)
		a.insert(tail)
		if a.last == nullOff || tail > a.last {
			a.last = tail
		}
	} else {
		a.makeBlock(off, fsize, true, pf)
	}
	return off
}

// extendHeap grows the heap by bytes, absorbing a free trailing block
// (if any) into the new block rather than leaving it stranded behind
// the new epilogue. It returns the offset of the new used block. On
// failure, no state is mutated — the arena is grown before anything
// else changes.
func (a *Allocator) extendHeap(bytes int32) (int32, error) {
	b := a.epilogue()
	mergeLast := a.last != nullOff && a.isFree(a.last)
	total := bytes
	if mergeLast {
		b = a.last
		total += a.size(a.last)
	}

	if _, err := a.growArena(bytes); err != nil {
		return 0, err
	}

	if mergeLast {
		a.remove(a.last)
	}
	a.makeBlock(b, total, true, a.prevFree(b))
	a.putWord(b+total, makeHeader(0, true, false))
	a.last = b
	return b, nil
}

// coalesce merges the free block at off with any free neighbors,
// inserts the result into its new size class, and returns its
// (possibly relocated, if a left merge occurred) offset.
func (a *Allocator) coalesce(off int32) int32 {
	size := a.size(off)
	touchesLast := a.last == off

	n := a.next(off)
	if a.isFree(n) {
		if a.last == n {
			touchesLast = true
		}
		size += a.size(n)
		a.remove(n)
	}

	if a.prevFree(off) {
		p := a.prev(off)
		size += a.size(p)
		a.remove(p)
		off = p
	}

	a.makeBlock(off, size, false, a.prevFree(off))
	a.insert(off)
	if touchesLast {
		a.last = off
	}
	return off
}

// malloc is the core of Malloc, split out so Calloc and Realloc's
// fallback path can call it without re-validating size.
func (a *Allocator) malloc(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	asize := a.asizeFor(int32(size))

	if off, ok := a.findFit(asize); ok {
		blockOff := a.place(off, asize)
		a.allocs++
		a.liveBytes += int64(a.size(blockOff)) - headerSize
		return a.payloadView(blockOff+headerSize, size), nil
	}

	extendBy := asize
	if a.last != nullOff && a.isFree(a.last) {
		extendBy -= a.size(a.last)
	}

	blockOff, err := a.extendHeap(extendBy)
	if err != nil {
		return nil, err
	}

	a.allocs++
	a.liveBytes += int64(a.size(blockOff)) - headerSize
	return a.payloadView(blockOff+headerSize, size), nil
}

// free is the core of Free, given a block's header offset directly.
func (a *Allocator) free(block int32) {
	a.frees++
	a.liveBytes -= int64(a.size(block)) - headerSize

	pf := a.prevFree(block)
	size := a.size(block)
	a.makeBlock(block, size, false, pf)

	n := a.next(block)
	if pf || a.isFree(n) {
		a.coalesce(block)
	} else {
		a.insert(block)
	}
}

// realloc is the core of Realloc, given a block's header offset
// directly.
func (a *Allocator) realloc(block int32, newSize int) ([]byte, error) {
	oldUsable := int(a.size(block)) - headerSize
	asize := a.asizeFor(int32(newSize))

	avail := a.size(block)
	n := a.next(block)
	nFree := a.isFree(n)
	if nFree {
		avail += a.size(n)
	}

	bWasLast := a.last == block
	nWasLast := nFree && a.last == n

	if avail >= asize {
		if nFree {
			a.remove(n)
		}
		pf := a.prevFree(block)

		if avail-asize >= a.align {
			a.makeBlock(block, asize, true, pf)
			tail := block + asize
			a.makeBlock(tail, avail-asize, false, false)
			a.insert(tail)
			if bWasLast || nWasLast {
				a.last = tail
			}
		} else {
			a.makeBlock(block, avail, true, pf)
			if nWasLast {
				a.last = block
			}
		}

		newUsable := int(a.size(block)) - headerSize
		a.liveBytes += int64(newUsable - oldUsable)
		return a.payloadView(block+headerSize, newSize), nil
	}

	if (!nFree && bWasLast) || nWasLast {
		growBy := asize - avail
		if _, err := a.growArena(growBy); err != nil {
			return nil, err
		}
		if nFree {
			a.remove(n)
		}
		pf := a.prevFree(block)
		a.makeBlock(block, asize, true, pf)
		a.putWord(block+asize, makeHeader(0, true, false))
		a.last = block

		newUsable := int(asize) - headerSize
		a.liveBytes += int64(newUsable - oldUsable)
		return a.payloadView(block+headerSize, newSize), nil
	}

	newPayload, err := a.malloc(newSize)
	if err != nil {
		return nil, err
	}

	copyLen := oldUsable
	if copyLen > newSize {
		copyLen = newSize
	}
	copy(newPayload[:copyLen], a.heap[block+headerSize:block+headerSize+int32(copyLen)])
	a.free(block)
	return newPayload, nil
}
