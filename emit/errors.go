package emit

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolvedType    = errors.New("emit: unresolved common ancestor")
	ErrInconsistentStack = errors.New("emit: inconsistent stack at join")
	ErrStaleMetadata     = errors.New("emit: stale structural metadata")
)

// MergeError is returned when two object types meet at a join point and no
// common ancestor can be determined.
type MergeError struct {
	Left  string
	Right string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("emit: cannot merge %s and %s: unresolved common ancestor", e.Left, e.Right)
}

func (e *MergeError) Unwrap() error {
	return ErrUnresolvedType
}
