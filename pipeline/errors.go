package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicatePass = errors.New("pipeline: pass already registered")
	ErrInvalidPass   = errors.New("pipeline: pass implements neither RoutinePass nor UnitPass")
)

// PassError reports a pass that failed or panicked. Routine is empty for
// unit-level passes.
type PassError struct {
	Unit    string
	Routine string
	Pass    string
	Err     error
}

func (e *PassError) Error() string {
	if e.Routine == "" {
		return fmt.Sprintf("pipeline: pass %s failed on unit %s: %v", e.Pass, e.Unit, e.Err)
	}
	return fmt.Sprintf("pipeline: pass %s failed on unit %s, routine %s: %v", e.Pass, e.Unit, e.Routine, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}
