package pipeline

import (
	"github.com/chazu/rewrite/flow"
	"github.com/chazu/rewrite/index"
	"github.com/chazu/rewrite/unit"
)

// Pass is a unit of rewrite logic. A pass must implement RoutinePass,
// UnitPass or both, and may implement the filter interfaces to decline work
// cheaply. Passes are invoked concurrently for different units; any state
// kept across calls is the pass's own to synchronize.
type Pass interface {
	Name() string
}

// UnitFilter lets a pass decline a unit from its name and constant index,
// before the unit is decoded. Passes without it are interested in every
// unit.
type UnitFilter interface {
	InterestedInUnit(name string, idx *index.Index) bool
}

// RoutineFilter lets a pass decline a routine before a graph is built for
// it. Passes without it are interested in every routine.
type RoutineFilter interface {
	InterestedInRoutine(name, signature string) bool
}

// RoutinePass rewrites one routine at a time. Edits go through g's change
// batches. A call must either fully succeed or fail before committing.
type RoutinePass interface {
	Pass
	TransformRoutine(r *unit.Routine, g *flow.Graph) (Change, error)
}

// UnitPass rewrites a whole unit, for work that spans routines or edits the
// pool.
type UnitPass interface {
	Pass
	TransformUnit(u *unit.Unit) (Change, error)
}

// PassFunc adapts a function to RoutinePass.
func PassFunc(name string, fn func(r *unit.Routine, g *flow.Graph) (Change, error)) RoutinePass {
	return &funcPass{name: name, fn: fn}
}

type funcPass struct {
	name string
	fn   func(*unit.Routine, *flow.Graph) (Change, error)
}

func (p *funcPass) Name() string { return p.name }

func (p *funcPass) TransformRoutine(r *unit.Routine, g *flow.Graph) (Change, error) {
	return p.fn(r, g)
}
