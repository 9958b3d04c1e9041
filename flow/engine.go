package flow

import (
	"errors"
	"fmt"

	"github.com/oleiade/lane"

	"github.com/chazu/rewrite/unit"
)

// ErrFallOff is reported when control can run past the last instruction.
var ErrFallOff = errors.New("flow: control falls off the end of the routine")

// Problem describes a forward dataflow problem over a routine's
// instruction list. S is the abstract state holding at the entry of an
// instruction.
type Problem[S any] struct {
	// Entry returns the state at the routine's first instruction.
	Entry func() (S, error)
	// Transfer returns the state after insn executes, given the state
	// before it. The same state flows to the fall-through successor and to
	// the jump target.
	Transfer func(insn *unit.Instruction, in S) (S, error)
	// Join merges an incoming state into the state already recorded at a
	// join point and reports whether the recorded state changed.
	Join func(at *unit.Instruction, recorded, incoming S) (S, bool, error)
	// Handler returns the state at h.Target when an exception is raised
	// by an instruction whose entry state is in.
	Handler func(h *unit.Handler, in S) (S, error)
}

// Coverage maps every instruction to the handlers whose range covers it.
// Ranges are resolved by list position, so labels inside a range are
// covered as well.
func Coverage(r *unit.Routine) map[*unit.Instruction][]*unit.Handler {
	if len(r.Handlers) == 0 {
		return nil
	}
	starts := make(map[*unit.Instruction][]*unit.Handler)
	ends := make(map[*unit.Instruction][]*unit.Handler)
	for _, h := range r.Handlers {
		starts[h.Start] = append(starts[h.Start], h)
		ends[h.End] = append(ends[h.End], h)
	}
	active := make(map[*unit.Handler]bool)
	cover := make(map[*unit.Instruction][]*unit.Handler)
	for i := r.First(); i != nil; i = i.Next() {
		for _, h := range ends[i] {
			delete(active, h)
		}
		for _, h := range starts[i] {
			active[h] = true
		}
		if len(active) == 0 {
			continue
		}
		// Keep declaration order so the first matching handler is first.
		for _, h := range r.Handlers {
			if active[h] {
				cover[i] = append(cover[i], h)
			}
		}
	}
	return cover
}

// Forward solves p over r and returns the entry state of every reachable
// instruction. Instructions absent from the result are unreachable.
func Forward[S any](r *unit.Routine, p Problem[S]) (map[*unit.Instruction]S, error) {
	states := make(map[*unit.Instruction]S, r.Len())
	if r.First() == nil {
		return states, nil
	}
	entry, err := p.Entry()
	if err != nil {
		return nil, err
	}

	var (
		cover  = Coverage(r)
		queued = make(map[*unit.Instruction]bool)
		q      = lane.NewQueue()
	)
	push := func(i *unit.Instruction) {
		if !queued[i] {
			queued[i] = true
			q.Enqueue(i)
		}
	}
	propagate := func(to *unit.Instruction, s S) error {
		if !r.Contains(to) {
			return fmt.Errorf("%w: %v", unit.ErrDanglingLabel, to)
		}
		old, seen := states[to]
		if !seen {
			states[to] = s
			push(to)
			return nil
		}
		merged, changed, err := p.Join(to, old, s)
		if err != nil {
			return err
		}
		if changed {
			states[to] = merged
			push(to)
		}
		return nil
	}

	states[r.First()] = entry
	push(r.First())
	for !q.Empty() {
		insn := q.Dequeue().(*unit.Instruction)
		queued[insn] = false
		in := states[insn]

		for _, h := range cover[insn] {
			hs, err := p.Handler(h, in)
			if err != nil {
				return nil, err
			}
			if err := propagate(h.Target, hs); err != nil {
				return nil, err
			}
		}

		out, err := p.Transfer(insn, in)
		if err != nil {
			return nil, err
		}
		if insn.Op.IsJump() {
			if err := propagate(insn.Target, out); err != nil {
				return nil, err
			}
		}
		if insn.Op.FallsThrough() {
			if insn.Next() == nil {
				return nil, fmt.Errorf("%w: after %v", ErrFallOff, insn)
			}
			if err := propagate(insn.Next(), out); err != nil {
				return nil, err
			}
		}
	}
	return states, nil
}
