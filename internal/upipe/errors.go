package upipe

import "errors"

// Pipe-runtime errors (spec §7). Buffer/dict-level errors live in their
// own packages (ubuf.ErrNotSingle, udict.ErrWrongType, ...); these cover
// the control/lifecycle failures specific to pipes, managers, and the
// transfer mechanism.
var (
	ErrBadArg      = errors.New("upipe: invalid argument")
	ErrWrongState  = errors.New("upipe: control invalid in current state")
	ErrNotAttached = errors.New("upipe: transfer manager not attached")
	ErrExternal    = errors.New("upipe: external library error")
	// ErrUnsupported marks an operation deliberately left unimplemented
	// because its semantics are unspecified (spec §9 Open Questions),
	// e.g. an avformat-style source's GET/SET_TIME opcodes.
	ErrUnsupported = errors.New("upipe: operation intentionally unsupported")
)
