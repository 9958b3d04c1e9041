package unit

import "errors"

// ---------------------------------------------------------------------------
// Unit Error Types
// ---------------------------------------------------------------------------

var (
	ErrMalformed       = errors.New("malformed unit")
	ErrVersionMismatch = errors.New("unit version mismatch")
	ErrBadPoolIndex    = errors.New("invalid constant pool index")
	ErrDanglingLabel   = errors.New("label not present in routine")
	ErrJumpRange       = errors.New("jump offset out of range")
)
