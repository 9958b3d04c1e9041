// Package deadcode removes instructions no path from the routine entry
// reaches.
package deadcode

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/rewrite/flow"
	"github.com/chazu/rewrite/pipeline"
	"github.com/chazu/rewrite/unit"
)

var log = commonlog.GetLogger("rewrite.deadcode")

// Pass is the dead-code elimination pass. Unreachable labels are removed
// too, except those a handler names; those lose their frame, and a handler
// whose range becomes empty is dropped when the unit is written.
type Pass struct{}

// New creates the pass.
func New() *Pass { return &Pass{} }

// Name implements pipeline.Pass.
func (*Pass) Name() string { return "deadcode" }

// TransformRoutine implements pipeline.RoutinePass. Live code keeps its
// frames and the stored maxima remain upper bounds, so the result is
// Changed.
func (*Pass) TransformRoutine(r *unit.Routine, g *flow.Graph) (pipeline.Change, error) {
	if err := g.Err(); err != nil {
		log.Debugf("skipping %s: %s", r, err)
		return pipeline.None, nil
	}
	pinned := make(map[*unit.Instruction]bool)
	for _, h := range r.Handlers {
		pinned[h.Start], pinned[h.End], pinned[h.Target] = true, true, true
	}
	var dead, orphans []*unit.Instruction
	for insn := r.First(); insn != nil; insn = insn.Next() {
		switch {
		case !g.Unreachable(insn):
		case pinned[insn]:
			orphans = append(orphans, insn)
		default:
			dead = append(dead, insn)
		}
	}
	if len(dead) == 0 {
		return pipeline.None, nil
	}
	err := g.Change(func(b *flow.Batch) error {
		for _, insn := range dead {
			b.Remove(insn)
		}
		return nil
	})
	if err != nil {
		return pipeline.None, err
	}
	for _, l := range orphans {
		l.Frame = nil
	}
	log.Debugf("removed %d unreachable instructions from %s", len(dead), r)
	return pipeline.Changed, nil
}
