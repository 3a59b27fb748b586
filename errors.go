package memalloc

import "errors"

// ErrOutOfMemory is returned by Malloc, Realloc and Calloc when the
// underlying Arena cannot grow the heap far enough to satisfy a request.
var ErrOutOfMemory = errors.New("memalloc: out of memory")

// ErrInvalidSize is returned for negative sizes, which have no meaning for
// Malloc/Calloc/Realloc. Unlike the C contract this library replaces,
// negative sizes are a programmer error we choose to report rather than
// leave as undefined behavior; zero-sized requests are a defined no-op
// and are not errors (see Malloc, Free, Realloc).
var ErrInvalidSize = errors.New("memalloc: invalid size")
