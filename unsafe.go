package memalloc

import "unsafe"

// This file isolates the handful of unsafe.Pointer operations the
// allocator needs to translate between a caller's []byte payload and
// its offset within the heap arena. Every block the allocator manages
// lives in one never-relocating backing array (see Arena), so these
// pointer-difference tricks are safe for the lifetime of the Allocator.

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// offsetOf returns the offset of sub within base's backing array.
func offsetOf(base, sub []byte) int32 {
	if len(sub) == 0 {
		return 0
	}
	return int32(addrOf(sub) - addrOf(base))
}

// ptrOf is a trace-logging convenience: the address of a slice's first
// byte, or nil for an empty/nil slice.
func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}
