// Package memalloc implements a single-threaded dynamic storage
// allocator over one contiguous, monotonically extensible byte region.
// It plays the role of malloc/free/realloc/calloc beneath a hosted
// program, drawing raw memory from an Arena — a "sbrk"-like primitive
// that can only grow (see Arena).
//
// The allocator lays out boundary-tagged blocks on the heap (a header,
// and for free blocks a footer, packing size and two flag bits), indexes
// free blocks by size class in nine segregated lists threaded through
// compressed 32-bit offsets living inside the free payload itself, and
// places/splits/coalesces blocks with a best-fit policy. See DESIGN.md
// for the full design rationale.
//
// Allocator is not safe for concurrent use; wrap it externally if
// multiple goroutines need to share one heap.
package memalloc

import (
	"fmt"
	"os"
)

// trace, when true, makes every public operation print a one-line
// summary of its arguments and result to stderr. It exists purely as a
// debugging aid, using a trace-gated fmt.Fprintf rather than pulling in
// a logging framework for a package this close to the metal.
var trace = false

// SetTrace enables or disables the stderr trace log for every Allocator.
func SetTrace(on bool) { trace = on }

// Allocator allocates and frees memory from a single growable heap. Its
// zero value is ready for use, backed by a portable, dependency-free
// Arena reserving DefaultMaxHeapBytes; use New with options to choose a
// different Arena, alignment, or reservation size up front.
type Allocator struct {
	arena Arena
	heap  []byte // cached view of arena.Bytes(), refreshed after every Grow
	base  int32  // offset of the prologue block (heap_base)
	align int32
	heads [numBuckets]int32
	last  int32 // offset of the block immediately preceding the epilogue, or nullOff

	initialized bool

	// pending* hold constructor options until the heap is actually
	// initialized, so a zero-value Allocator (no call to New) still
	// works with sane defaults.
	pendingArena        Arena
	pendingAlign        int32
	pendingMaxHeapBytes int

	allocs    int64
	frees     int64
	liveBytes int64
}

// Option configures an Allocator built with New.
type Option func(*Allocator)

// WithArena backs the allocator with a caller-supplied Arena instead of
// the default portable sliceArena.
func WithArena(arena Arena) Option {
	return func(a *Allocator) { a.pendingArena = arena }
}

// WithAlignment sets the allocator's alignment constant A. It
// must be a power of two, at least 8; the default is 16.
func WithAlignment(n int32) Option {
	return func(a *Allocator) { a.pendingAlign = n }
}

// WithMaxHeapBytes bounds the default sliceArena's reservation. It has
// no effect if WithArena is also given.
func WithMaxHeapBytes(n int) Option {
	return func(a *Allocator) { a.pendingMaxHeapBytes = n }
}

// New builds an Allocator with the given options. The heap itself is
// not carved out until the first operation (lazy init, same as the
// zero value).
func New(opts ...Option) *Allocator {
	a := &Allocator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func isPowerOfTwo(n int32) bool { return n >= 8 && n&(n-1) == 0 }

// ensureInit lazily carves out the prologue/epilogue sentinels the
// first time the allocator is used.
func (a *Allocator) ensureInit() error {
	if a.initialized {
		return nil
	}

	align := a.pendingAlign
	if align == 0 {
		align = 16
	}
	if !isPowerOfTwo(align) {
		return fmt.Errorf("memalloc: alignment %d must be a power of two >= 8", align)
	}
	a.align = align

	arena := a.pendingArena
	if arena == nil {
		maxBytes := a.pendingMaxHeapBytes
		if maxBytes == 0 {
			maxBytes = DefaultMaxHeapBytes
		}
		var err error
		arena, err = newSliceArena(maxBytes)
		if err != nil {
			return err
		}
	}
	a.arena = arena

	return a.initHeap()
}

// initHeap lays out the alignment pad, the used prologue sentinel, and
// the used zero-size epilogue sentinel.
//
// The pad is sized so that every real block's header lands at an offset
// congruent to -headerSize (mod align): then header+headerSize, the
// payload address, is always align-aligned, and since every block size
// is itself a multiple of align, the congruence holds forever once the
// first block satisfies it. With a 4-byte header this pad is
// align-headerSize bytes, not a flat 4-byte pad — see DESIGN.md's Open
// Questions section for why that arrangement cannot satisfy 16-byte
// alignment on its own.
func (a *Allocator) initHeap() error {
	pad := a.align - headerSize
	prologueSize := 2 * a.align

	n := int(pad) + int(prologueSize) + headerSize
	off, err := a.arena.Grow(n)
	if err != nil {
		return err
	}
	a.heap = a.arena.Bytes()

	a.base = off + pad
	a.makeBlock(a.base, prologueSize, true, false)

	epilogue := a.base + prologueSize
	a.putWord(epilogue, makeHeader(0, true, false))

	for i := range a.heads {
		a.heads[i] = nullOff
	}
	a.last = nullOff

	a.initialized = true
	return nil
}

func (a *Allocator) epilogue() int32 {
	if a.last != nullOff {
		return a.next(a.last)
	}
	return a.base + 2*a.align
}

// refresh re-syncs the cached heap slice after a Grow may have extended
// the arena's backing storage.
func (a *Allocator) refresh() { a.heap = a.arena.Bytes() }

// Malloc allocates size bytes and returns a slice over the newly
// carved block, or nil if size is 0. It returns ErrOutOfMemory if the
// arena cannot be grown far enough, and ErrInvalidSize for size < 0.
func (a *Allocator) Malloc(size int) (r []byte, err error) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "Malloc(%#x) %p, %v\n", size, ptrOf(r), err) }()
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if err = a.ensureInit(); err != nil {
		return nil, err
	}
	return a.malloc(size)
}

// Free releases a block previously returned by Malloc, Calloc, or
// Realloc. A nil or empty payload is a safe no-op. Freeing a pointer
// not owned by this Allocator, or freeing the same payload twice, is
// undefined behavior — no validation is attempted.
func (a *Allocator) Free(payload []byte) (err error) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "Free(%p) %v\n", ptrOf(payload), err) }()
	}
	if len(payload) == 0 {
		return nil
	}
	if err = a.ensureInit(); err != nil {
		return err
	}
	a.free(a.blockOf(payload))
	return nil
}

// Realloc resizes the block behind payload to newSize bytes, preserving
// its content up to min(oldSize, newSize). payload == nil behaves like
// Malloc(newSize); newSize == 0 behaves like Free(payload) and returns
// nil. On allocation failure for the copy-and-move path, the original
// block is left untouched and ErrOutOfMemory is returned.
func (a *Allocator) Realloc(payload []byte, newSize int) (r []byte, err error) {
	if trace {
		defer func() {
			fmt.Fprintf(os.Stderr, "Realloc(%p, %#x) %p, %v\n", ptrOf(payload), newSize, ptrOf(r), err)
		}()
	}
	if newSize < 0 {
		return nil, ErrInvalidSize
	}
	if err = a.ensureInit(); err != nil {
		return nil, err
	}

	if len(payload) == 0 {
		return a.malloc(newSize)
	}
	if newSize == 0 {
		a.free(a.blockOf(payload))
		return nil, nil
	}
	return a.realloc(a.blockOf(payload), newSize)
}

// Calloc is like Malloc except the returned memory is zeroed.
func (a *Allocator) Calloc(nmemb, size int) (r []byte, err error) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "Calloc(%#x, %#x) %p, %v\n", nmemb, size, ptrOf(r), err) }()
	}
	if nmemb < 0 || size < 0 {
		return nil, ErrInvalidSize
	}
	if err = a.ensureInit(); err != nil {
		return nil, err
	}

	// total is computed without overflow checking, matching the
	// permissive semantics of libc calloc implementations that skip
	// the nmemb*size overflow guard.
	total := nmemb * size
	r, err = a.malloc(total)
	if err != nil || r == nil {
		return r, err
	}
	for i := range r {
		r[i] = 0
	}
	return r, nil
}

// UsableSize reports the number of bytes available in the block behind
// payload, which may be larger than what was originally requested.
func (a *Allocator) UsableSize(payload []byte) int {
	if len(payload) == 0 || !a.initialized {
		return 0
	}
	b := a.blockOf(payload)
	return int(a.size(b)) - headerSize
}

// Stats is a point-in-time snapshot of allocator bookkeeping, exposed
// as a public, read-only view onto counters tracked internally.
type Stats struct {
	Allocs    int64 // number of blocks handed out by Malloc, Calloc and Realloc (nil payload, or a move to a new block)
	Frees     int64 // number of blocks released by Free, by Realloc to size 0, and by Realloc's move to a new block
	HeapBytes int   // total bytes committed from the Arena so far
	LiveBytes int64 // bytes currently handed out to callers (payload, not header)
}

// Stats returns a snapshot of the allocator's bookkeeping counters.
func (a *Allocator) Stats() Stats {
	heapBytes := 0
	if a.arena != nil {
		heapBytes = len(a.arena.Bytes())
	}
	return Stats{
		Allocs:    a.allocs,
		Frees:     a.frees,
		HeapBytes: heapBytes,
		LiveBytes: a.liveBytes,
	}
}

// blockOf recovers a block's header offset from a payload slice
// previously returned by this Allocator.
func (a *Allocator) blockOf(payload []byte) int32 {
	return offsetOf(a.heap, payload) - headerSize
}
