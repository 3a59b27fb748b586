//go:build windows

package memalloc

// NewMmapArena does not use mmap on windows: it returns a sliceArena of
// maxBytes. A page-backed implementation would
// reserve memory with CreateFileMapping/MapViewOfFile, which needs
// golang.org/x/sys/windows and a handle-tracking map purely to get back
// to an Arena no richer than sliceArena, which is already portable and
// move-free on every platform Go targets. So, unlike the unix backend,
// there is no second implementation here; callers on windows use the
// default sliceArena.
func NewMmapArena(maxBytes int) (Arena, error) {
	a, err := newSliceArena(maxBytes)
	if err != nil {
		return nil, err
	}
	return a, nil
}
