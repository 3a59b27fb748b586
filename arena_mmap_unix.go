//go:build unix

package memalloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapArena is a page-backed Arena reserved with unix.Mmap rather than a
// plain make([]byte, ...). It reserves its full capacity with a single
// anonymous private mapping up front and then, like sliceArena, only ever
// extends a used-length counter within that reservation — the kernel
// backs pages with physical memory lazily, so an unused reservation costs
// only address space, not RAM.
type mmapArena struct {
	region []byte // the full mmap'd reservation
	used   int    // bytes committed to the heap so far
}

// newMmapArena reserves maxBytes of address space via mmap. maxBytes is
// subject to the same int32-offset ceiling as sliceArena.
func newMmapArena(maxBytes int) (*mmapArena, error) {
	if maxBytes <= 0 || int64(maxBytes) > int64(1)<<31 {
		return nil, fmt.Errorf("memalloc: invalid arena capacity %d", maxBytes)
	}

	region, err := unix.Mmap(-1, 0, maxBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("memalloc: mmap reservation failed: %w", err)
	}

	return &mmapArena{region: region}, nil
}

func (a *mmapArena) Grow(n int) (int32, error) {
	if n < 0 {
		return 0, ErrInvalidSize
	}
	if a.used+n > len(a.region) {
		return 0, ErrOutOfMemory
	}
	off := a.used
	a.used += n
	return int32(off), nil
}

func (a *mmapArena) Bytes() []byte { return a.region[:a.used] }

// Close releases the reservation back to the OS. It is not necessary to
// call Close before a process exits.
func (a *mmapArena) Close() error {
	if a.region == nil {
		return nil
	}
	err := unix.Munmap(a.region)
	a.region = nil
	return err
}

// NewMmapArena builds an Arena backed by an anonymous mmap reservation of
// maxBytes, for hosts that want a real page-backed heap instead of the
// portable default. Use it with WithArena.
func NewMmapArena(maxBytes int) (Arena, error) { return newMmapArena(maxBytes) }
