// Package flow provides the per-routine instruction graph: an on-demand
// forward dataflow analysis answering which instructions produced the
// values an instruction consumes, plus transactional editing through
// change batches.
package flow

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/rewrite/unit"
)

var log = commonlog.GetLogger("rewrite.flow")

// Analysis errors. They describe code the analysis cannot interpret; a
// graph in this state answers every query with ok=false.
var (
	ErrStackUnderflow = errors.New("flow: stack underflow")
	ErrStackMismatch  = errors.New("flow: stack height mismatch at join")
)

// frame is the abstract state before an instruction: one source set per
// operand stack slot (bottom first) and per local slot.
type frame struct {
	stack  []sourceSet
	locals []sourceSet
}

func (f *frame) push(s sourceSet) *frame {
	f.stack = append(f.stack, s)
	return f
}

func (f *frame) pop(n int) error {
	if n > len(f.stack) {
		return fmt.Errorf("%w: need %d, have %d", ErrStackUnderflow, n, len(f.stack))
	}
	f.stack = f.stack[:len(f.stack)-n]
	return nil
}

func (f *frame) clone() *frame {
	return &frame{
		stack:  append([]sourceSet(nil), f.stack...),
		locals: append([]sourceSet(nil), f.locals...),
	}
}

// Graph wraps one routine with a lazily computed provenance analysis.
//
// The analysis always reflects the routine's current instruction list:
// committing a non-empty change batch discards it, and the next query
// recomputes it. A Graph is not safe for concurrent use.
type Graph struct {
	routine  *unit.Routine
	frames   map[*unit.Instruction]*frame
	err      error
	valid    bool
	batch    *Batch
	analyses int
}

// NewGraph wraps r. No analysis runs until the first query.
func NewGraph(r *unit.Routine) *Graph {
	return &Graph{routine: r}
}

// Routine returns the wrapped routine.
func (g *Graph) Routine() *unit.Routine {
	return g.routine
}

// Analyses returns how many times the analysis has been computed.
func (g *Graph) Analyses() int {
	return g.analyses
}

// Err returns the error that stopped the most recent analysis, computing it
// first if needed.
func (g *Graph) Err() error {
	g.analyze()
	return g.err
}

func (g *Graph) invalidate() {
	g.valid = false
	g.frames = nil
	g.err = nil
}

func (g *Graph) analyze() {
	if g.valid {
		return
	}
	g.valid = true
	g.analyses++
	g.frames, g.err = Forward(g.routine, provenance(g.routine))
	if g.err != nil {
		log.Debugf("analysis of %s failed: %s", g.routine, g.err)
		g.frames = nil
	}
}

func (g *Graph) frameAt(at *unit.Instruction) (*frame, bool) {
	if !g.routine.Contains(at) {
		panic(fmt.Sprintf("flow: instruction %v is not in routine %s", at, g.routine))
	}
	g.analyze()
	if g.err != nil {
		return nil, false
	}
	f, ok := g.frames[at]
	return f, ok
}

// Source returns the origin of the value at stack depth depth (0 is the top
// of stack) immediately before at executes. ok is false when at is
// unreachable, the depth is out of range, or the analysis failed.
func (g *Graph) Source(at *unit.Instruction, depth int) (Source, bool) {
	f, ok := g.frameAt(at)
	if !ok || depth < 0 || depth >= len(f.stack) {
		return nil, false
	}
	return f.stack[len(f.stack)-1-depth].source()
}

// SingleSource returns the unique producing instruction of the value at
// depth. It fails for arguments and ambiguous values alike.
func (g *Graph) SingleSource(at *unit.Instruction, depth int) (*unit.Instruction, bool) {
	s, ok := g.Source(at, depth)
	if !ok {
		return nil, false
	}
	single, ok := s.(Single)
	if !ok {
		return nil, false
	}
	return single.Insn, true
}

// LocalSource returns the origin of the current value of local slot before
// at executes: the STORE_LOCAL instructions that wrote it, or Argument for
// untouched parameters. ok is false for slots some path into at leaves
// uninitialised.
func (g *Graph) LocalSource(at *unit.Instruction, slot int) (Source, bool) {
	f, ok := g.frameAt(at)
	if !ok || slot < 0 || slot >= len(f.locals) {
		return nil, false
	}
	return f.locals[slot].source()
}

// StackDepth returns the operand stack height before at executes.
func (g *Graph) StackDepth(at *unit.Instruction) (int, bool) {
	f, ok := g.frameAt(at)
	if !ok {
		return 0, false
	}
	return len(f.stack), true
}

// Unreachable reports whether no path from the routine entry, including
// exception edges, reaches at. It is false when the analysis failed, since
// nothing is known then.
func (g *Graph) Unreachable(at *unit.Instruction) bool {
	_, ok := g.frameAt(at)
	return !ok && g.err == nil
}

// ---------------------------------------------------------------------------
// Provenance problem
// ---------------------------------------------------------------------------

func provenance(r *unit.Routine) Problem[*frame] {
	return Problem[*frame]{
		Entry: func() (*frame, error) {
			n, err := r.ParamSlots()
			if err != nil {
				return nil, err
			}
			f := &frame{locals: make([]sourceSet, n)}
			for i := range f.locals {
				f.locals[i] = argument(i)
			}
			return f, nil
		},
		Transfer: func(insn *unit.Instruction, in *frame) (*frame, error) {
			return transfer(insn, in, r.Pool)
		},
		Join: join,
		Handler: func(h *unit.Handler, in *frame) (*frame, error) {
			return &frame{
				stack:  []sourceSet{produced(h.Target)},
				locals: in.locals,
			}, nil
		},
	}
}

func transfer(insn *unit.Instruction, in *frame, pool *unit.Pool) (*frame, error) {
	if insn.IsLabel() || insn.Op == unit.OpNOP {
		return in, nil
	}
	out := in.clone()
	switch insn.Op {
	case unit.OpDUP:
		if err := out.pop(1); err != nil {
			return nil, err
		}
		out.push(produced(insn)).push(produced(insn))
		return out, nil
	case unit.OpSWAP:
		n := len(out.stack)
		if n < 2 {
			return nil, fmt.Errorf("%w: SWAP needs 2, have %d", ErrStackUnderflow, n)
		}
		out.stack[n-1], out.stack[n-2] = out.stack[n-2], out.stack[n-1]
		return out, nil
	case unit.OpStoreLocal:
		if err := out.pop(1); err != nil {
			return nil, err
		}
		for len(out.locals) <= insn.Slot {
			out.locals = append(out.locals, unset())
		}
		out.locals[insn.Slot] = produced(insn)
		return out, nil
	}

	pops, pushes, err := insn.StackEffect(pool)
	if err != nil {
		return nil, err
	}
	if err := out.pop(pops); err != nil {
		return nil, fmt.Errorf("%v: %w", insn, err)
	}
	for ; pushes > 0; pushes-- {
		out.push(produced(insn))
	}
	return out, nil
}

func join(at *unit.Instruction, recorded, incoming *frame) (*frame, bool, error) {
	if len(recorded.stack) != len(incoming.stack) {
		return nil, false, fmt.Errorf("%w: %v: %d vs %d", ErrStackMismatch, at, len(recorded.stack), len(incoming.stack))
	}
	var merged *frame
	ensure := func() {
		if merged == nil {
			merged = recorded.clone()
		}
	}
	for i, s := range incoming.stack {
		if u := recorded.stack[i].union(s); len(u) != len(recorded.stack[i]) {
			ensure()
			merged.stack[i] = u
		}
	}
	// A slot one side lacks was never written on that side's paths.
	for i := 0; i < max(len(recorded.locals), len(incoming.locals)); i++ {
		have := local(recorded.locals, i)
		u := have.union(local(incoming.locals, i))
		if i < len(recorded.locals) && len(u) == len(recorded.locals[i]) {
			continue
		}
		ensure()
		for len(merged.locals) <= i {
			merged.locals = append(merged.locals, unset())
		}
		merged.locals[i] = u
	}
	if merged == nil {
		return recorded, false, nil
	}
	return merged, true, nil
}
