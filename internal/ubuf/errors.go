package ubuf

import "errors"

// Error taxonomy for the buffer subsystem (spec §7). These are always
// returned locally — buffer managers never throw a probe event
// themselves; the pipe that called them is responsible for turning an
// AllocError into an EventAllocError probe (spec §7: "Emit ALLOC_ERROR
// probe; operation fails").
var (
	ErrAlloc      = errors.New("ubuf: allocation failed")
	ErrBadArg     = errors.New("ubuf: invalid argument")
	ErrOutOfRange = errors.New("ubuf: offset/size out of range")
	ErrNotSingle  = errors.New("ubuf: buffer is shared, write requires dup")
)
