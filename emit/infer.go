package emit

import (
	"fmt"

	"github.com/chazu/rewrite/flow"
	"github.com/chazu/rewrite/unit"
)

// ---------------------------------------------------------------------------
// Type inference over the verification-type lattice
// ---------------------------------------------------------------------------

type typeFrame struct {
	stack  []unit.VType
	locals []unit.VType
}

func (f *typeFrame) clone() *typeFrame {
	return &typeFrame{
		stack:  append([]unit.VType(nil), f.stack...),
		locals: append([]unit.VType(nil), f.locals...),
	}
}

func (f *typeFrame) pop(n int) ([]unit.VType, error) {
	if n > len(f.stack) {
		return nil, fmt.Errorf("%w: stack underflow (need %d, have %d)", ErrInconsistentStack, n, len(f.stack))
	}
	popped := f.stack[len(f.stack)-n:]
	f.stack = f.stack[:len(f.stack)-n]
	return popped, nil
}

func (f *typeFrame) push(t unit.VType) {
	f.stack = append(f.stack, t)
}

// export converts the frame to the recorded form, trimming trailing
// unusable locals.
func (f *typeFrame) export() *unit.Frame {
	locals := f.locals
	for len(locals) > 0 && locals[len(locals)-1] == unit.Top {
		locals = locals[:len(locals)-1]
	}
	return &unit.Frame{
		Locals: append([]unit.VType(nil), locals...),
		Stack:  append([]unit.VType(nil), f.stack...),
	}
}

// Metadata is the structural metadata derived for one routine.
type Metadata struct {
	MaxStack  int
	MaxLocals int
	// Frames holds the frame at every reachable join label: jump targets
	// and handler entries.
	Frames map[*unit.Instruction]*unit.Frame
}

// Compute derives a routine's metadata from its current instruction list.
// owner is the class of the receiver for instance routines.
func Compute(r *unit.Routine, owner string, h Hierarchy) (*Metadata, error) {
	states, err := flow.Forward(r, typeProblem(r, owner, h))
	if err != nil {
		return nil, err
	}

	md := &Metadata{Frames: make(map[*unit.Instruction]*unit.Frame)}
	if md.MaxLocals, err = r.ParamSlots(); err != nil {
		return nil, err
	}
	for i := r.First(); i != nil; i = i.Next() {
		if (i.Op == unit.OpLoadLocal || i.Op == unit.OpStoreLocal) && i.Slot+1 > md.MaxLocals {
			md.MaxLocals = i.Slot + 1
		}
		if f, ok := states[i]; ok && len(f.stack) > md.MaxStack {
			md.MaxStack = len(f.stack)
		}
	}
	for _, l := range joinLabels(r) {
		if f, ok := states[l]; ok {
			md.Frames[l] = f.export()
		}
	}
	return md, nil
}

// joinLabels returns the labels that begin a block reachable other than by
// fall-through.
func joinLabels(r *unit.Routine) []*unit.Instruction {
	seen := make(map[*unit.Instruction]bool)
	var out []*unit.Instruction
	add := func(l *unit.Instruction) {
		if l != nil && !seen[l] && r.Contains(l) {
			seen[l] = true
			out = append(out, l)
		}
	}
	for i := r.First(); i != nil; i = i.Next() {
		if i.Op.IsJump() {
			add(i.Target)
		}
	}
	for _, hd := range r.Handlers {
		add(hd.Target)
	}
	return out
}

func typeProblem(r *unit.Routine, owner string, h Hierarchy) flow.Problem[*typeFrame] {
	return flow.Problem[*typeFrame]{
		Entry: func() (*typeFrame, error) {
			sig, err := unit.ParseSignature(r.Signature)
			if err != nil {
				return nil, err
			}
			f := &typeFrame{}
			if !r.Static {
				f.locals = append(f.locals, unit.Object(owner))
			}
			f.locals = append(f.locals, sig.Params...)
			return f, nil
		},
		Transfer: func(insn *unit.Instruction, in *typeFrame) (*typeFrame, error) {
			out, err := transferTypes(insn, in, r.Pool)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", insn, err)
			}
			return out, nil
		},
		Join: func(at *unit.Instruction, recorded, incoming *typeFrame) (*typeFrame, bool, error) {
			return mergeFrames(h, at, recorded, incoming)
		},
		Handler: func(hd *unit.Handler, in *typeFrame) (*typeFrame, error) {
			catch := hd.Catch
			if catch == "" {
				catch = unit.ObjectClass
			}
			return &typeFrame{stack: []unit.VType{unit.Object(catch)}, locals: in.locals}, nil
		},
	}
}

func arithmetic(a, b unit.VType) unit.VType {
	if a.Kind == unit.KindFloat || b.Kind == unit.KindFloat {
		return unit.Float
	}
	return unit.Int
}

func transferTypes(insn *unit.Instruction, in *typeFrame, pool *unit.Pool) (*typeFrame, error) {
	if insn.IsLabel() || insn.Op == unit.OpNOP {
		return in, nil
	}
	out := in.clone()
	switch insn.Op {
	case unit.OpDUP:
		v, err := out.pop(1)
		if err != nil {
			return nil, err
		}
		out.push(v[0])
		out.push(v[0])
	case unit.OpSWAP:
		v, err := out.pop(2)
		if err != nil {
			return nil, err
		}
		a, b := v[0], v[1]
		out.push(b)
		out.push(a)
	case unit.OpPushNil:
		out.push(unit.Null)
	case unit.OpPushTrue, unit.OpPushFalse, unit.OpPushInt8, unit.OpPushInt32:
		out.push(unit.Int)
	case unit.OpPushFloat:
		out.push(unit.Float)
	case unit.OpPushLiteral:
		c, err := pool.Get(insn.Index)
		if err != nil {
			return nil, err
		}
		t, ok := c.LiteralType()
		if !ok {
			return nil, fmt.Errorf("%w: %s is not loadable", unit.ErrBadPoolIndex, c)
		}
		out.push(t)
	case unit.OpLoadLocal:
		t := unit.Top
		if insn.Slot < len(out.locals) {
			t = out.locals[insn.Slot]
		}
		out.push(t)
	case unit.OpStoreLocal:
		v, err := out.pop(1)
		if err != nil {
			return nil, err
		}
		for len(out.locals) <= insn.Slot {
			out.locals = append(out.locals, unit.Top)
		}
		out.locals[insn.Slot] = v[0]
	case unit.OpGetField, unit.OpGetStatic:
		_, t, err := pool.Field(insn.Index)
		if err != nil {
			return nil, err
		}
		if insn.Op == unit.OpGetField {
			if _, err := out.pop(1); err != nil {
				return nil, err
			}
		}
		out.push(t)
	case unit.OpAdd, unit.OpSub, unit.OpMul, unit.OpDiv, unit.OpMod:
		v, err := out.pop(2)
		if err != nil {
			return nil, err
		}
		out.push(arithmetic(v[0], v[1]))
	case unit.OpNeg:
		v, err := out.pop(1)
		if err != nil {
			return nil, err
		}
		out.push(arithmetic(v[0], unit.Int))
	case unit.OpEq, unit.OpLt:
		if _, err := out.pop(2); err != nil {
			return nil, err
		}
		out.push(unit.Int)
	case unit.OpInvokeStatic, unit.OpInvokeVirtual:
		_, sig, err := pool.Method(insn.Index)
		if err != nil {
			return nil, err
		}
		n := sig.Arity()
		if insn.Op == unit.OpInvokeVirtual {
			n++
		}
		if _, err := out.pop(n); err != nil {
			return nil, err
		}
		if !sig.Void {
			out.push(sig.Return)
		}
	case unit.OpNew, unit.OpCheckCast:
		class, err := pool.Class(insn.Index)
		if err != nil {
			return nil, err
		}
		if insn.Op == unit.OpCheckCast {
			if _, err := out.pop(1); err != nil {
				return nil, err
			}
		}
		out.push(unit.Object(class))
	default:
		// Consumers with no result: POP, PUT_*, jumps and exits.
		pops, _, err := insn.StackEffect(pool)
		if err != nil {
			return nil, err
		}
		if _, err := out.pop(pops); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mergeTypes joins two slot types. Stack slots must agree in kind; locals
// degrade to Top instead.
func mergeTypes(h Hierarchy, a, b unit.VType, stack bool) (unit.VType, error) {
	switch {
	case a == b:
		return a, nil
	case a.Kind == unit.KindNull && b.Kind == unit.KindObject:
		return b, nil
	case a.Kind == unit.KindObject && b.Kind == unit.KindNull:
		return a, nil
	case a.Kind == unit.KindObject && b.Kind == unit.KindObject:
		c, err := CommonAncestor(h, a.Class, b.Class)
		if err != nil {
			return unit.Top, err
		}
		return unit.Object(c), nil
	case !stack:
		return unit.Top, nil
	}
	return unit.Top, fmt.Errorf("%w: cannot merge %s and %s", ErrInconsistentStack, a, b)
}

func mergeFrames(h Hierarchy, at *unit.Instruction, recorded, incoming *typeFrame) (*typeFrame, bool, error) {
	if len(recorded.stack) != len(incoming.stack) {
		return nil, false, fmt.Errorf("%w: %v: height %d vs %d", ErrInconsistentStack, at, len(recorded.stack), len(incoming.stack))
	}
	merged := recorded.clone()
	changed := false
	for i := range merged.stack {
		t, err := mergeTypes(h, recorded.stack[i], incoming.stack[i], true)
		if err != nil {
			return nil, false, fmt.Errorf("%v: %w", at, err)
		}
		if t != recorded.stack[i] {
			merged.stack[i], changed = t, true
		}
	}
	// A local missing on either path is unusable after the join.
	if len(incoming.locals) < len(merged.locals) {
		for i := len(incoming.locals); i < len(merged.locals); i++ {
			if merged.locals[i] != unit.Top {
				merged.locals[i], changed = unit.Top, true
			}
		}
	}
	for i := 0; i < len(merged.locals) && i < len(incoming.locals); i++ {
		t, err := mergeTypes(h, recorded.locals[i], incoming.locals[i], false)
		if err != nil {
			return nil, false, fmt.Errorf("%v: local %d: %w", at, i, err)
		}
		if t != merged.locals[i] {
			merged.locals[i], changed = t, true
		}
	}
	if !changed {
		return recorded, false, nil
	}
	return merged, true, nil
}
