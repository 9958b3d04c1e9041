// Package constfold folds calls to known pure functions, and integer
// arithmetic, whose operands are literals pushed immediately before the
// consumer.
package constfold

import (
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/rewrite/flow"
	"github.com/chazu/rewrite/index"
	"github.com/chazu/rewrite/pipeline"
	"github.com/chazu/rewrite/unit"
)

var log = commonlog.GetLogger("rewrite.constfold")

// Options selects what the pass folds.
type Options struct {
	Funcs []Func
	// Arithmetic folds ADD, SUB, MUL, DIV, MOD and NEG over integer
	// literals. It makes the pass interested in every unit.
	Arithmetic bool
}

// Pass is the constant-folding pass.
type Pass struct {
	funcs      map[unit.MemberRef]Func
	arithmetic bool
}

// New creates the pass.
func New(opts Options) *Pass {
	p := &Pass{funcs: make(map[unit.MemberRef]Func, len(opts.Funcs)), arithmetic: opts.Arithmetic}
	for _, f := range opts.Funcs {
		p.funcs[f.Ref()] = f
	}
	return p
}

// Name implements pipeline.Pass.
func (p *Pass) Name() string { return "constfold" }

// InterestedInUnit implements pipeline.UnitFilter.
func (p *Pass) InterestedInUnit(name string, idx *index.Index) bool {
	if p.arithmetic {
		return true
	}
	for ref := range p.funcs {
		if idx.HasMethod(ref.Owner, ref.Name, ref.Sig) {
			return true
		}
	}
	return false
}

// TransformRoutine implements pipeline.RoutinePass. The stack height at
// every folded site is unchanged and the literal has the callee's return
// type, so frames stay valid and the result is Changed.
func (p *Pass) TransformRoutine(r *unit.Routine, g *flow.Graph) (pipeline.Change, error) {
	if g.Err() != nil {
		return pipeline.None, nil
	}
	change := pipeline.None
	for insn := r.First(); insn != nil; {
		next := insn.Next()
		if g.Unreachable(insn) {
			insn = next
			continue
		}
		folded, err := p.fold(r, g, insn)
		if err != nil {
			return pipeline.None, err
		}
		if folded != nil {
			change = pipeline.Changed
			// Revisit the literal's consumer: folds cascade.
			next = folded.Next()
		}
		insn = next
	}
	return change, nil
}

// fold replaces insn and its operand producers with a literal and returns
// the literal, or returns nil when insn cannot be folded.
func (p *Pass) fold(r *unit.Routine, g *flow.Graph, insn *unit.Instruction) (*unit.Instruction, error) {
	var (
		arity  int
		want   unit.VType
		result func([]unit.Constant) (unit.Constant, bool)
	)
	switch {
	case insn.Op == unit.OpInvokeStatic:
		ref, sig, err := r.Pool.Method(insn.Index)
		if err != nil {
			return nil, err
		}
		f, ok := p.funcs[ref]
		if !ok || sig.Void {
			return nil, nil
		}
		arity, want, result = sig.Arity(), sig.Return, f.Eval
	case p.arithmetic && isArithmetic(insn.Op):
		arity, want = 2, unit.Int
		if insn.Op == unit.OpNeg {
			arity = 1
		}
		op := insn.Op
		result = func(args []unit.Constant) (unit.Constant, bool) { return evalArithmetic(op, args) }
	default:
		return nil, nil
	}

	producers, args, ok := literalOperands(r, g, insn, arity)
	if !ok {
		return nil, nil
	}
	value, ok := result(args)
	if !ok {
		return nil, nil
	}
	if t, ok := value.LiteralType(); !ok || t != want {
		return nil, nil
	}

	lit := push(r.Pool, value)
	err := g.Change(func(b *flow.Batch) error {
		b.InsertBefore(insn, lit)
		for _, prod := range producers {
			b.Remove(prod)
		}
		b.Remove(insn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("folded %s in %s to %s", insn, r, value)
	return lit, nil
}

// literalOperands returns the producers of insn's n operands, deepest first,
// and their literal values. It fails unless each operand has a single
// literal producer and those producers are exactly the n instructions
// before insn.
func literalOperands(r *unit.Routine, g *flow.Graph, insn *unit.Instruction, n int) ([]*unit.Instruction, []unit.Constant, bool) {
	producers := make([]*unit.Instruction, n)
	args := make([]unit.Constant, n)
	prev := insn.Prev()
	for depth := 0; depth < n; depth++ {
		src, ok := g.SingleSource(insn, depth)
		if !ok || src != prev || prev.IsLabel() {
			return nil, nil, false
		}
		c, ok := literal(r.Pool, src)
		if !ok {
			return nil, nil, false
		}
		producers[n-1-depth], args[n-1-depth] = src, c
		prev = prev.Prev()
	}
	return producers, args, true
}

// literal returns the constant a push instruction loads.
func literal(pool *unit.Pool, insn *unit.Instruction) (unit.Constant, bool) {
	switch insn.Op {
	case unit.OpPushInt8, unit.OpPushInt32:
		return unit.IntConst(insn.Value), true
	case unit.OpPushTrue:
		return unit.IntConst(1), true
	case unit.OpPushFalse:
		return unit.IntConst(0), true
	case unit.OpPushFloat:
		return unit.FloatConst(insn.Float), true
	case unit.OpPushLiteral:
		c, err := pool.Get(insn.Index)
		if err != nil || !c.Loadable() || c.Kind == unit.ConstClass {
			return unit.Constant{}, false
		}
		return c, true
	}
	return unit.Constant{}, false
}

// push returns the cheapest instruction loading c, adding it to the pool
// when it cannot be inlined.
func push(pool *unit.Pool, c unit.Constant) *unit.Instruction {
	switch {
	case c.Kind == unit.ConstInt && c.Int >= math.MinInt32 && c.Int <= math.MaxInt32:
		return unit.PushInt(c.Int)
	case c.Kind == unit.ConstFloat:
		return unit.PushFloat(c.Float)
	}
	return unit.Literal(pool.Add(c))
}

func isArithmetic(op unit.Opcode) bool {
	switch op {
	case unit.OpAdd, unit.OpSub, unit.OpMul, unit.OpDiv, unit.OpMod, unit.OpNeg:
		return true
	}
	return false
}

func evalArithmetic(op unit.Opcode, args []unit.Constant) (unit.Constant, bool) {
	v, ok := ints(args)
	if !ok {
		return unit.Constant{}, false
	}
	if op == unit.OpNeg {
		return unit.IntConst(-v[0]), true
	}
	a, b := v[0], v[1]
	switch op {
	case unit.OpAdd:
		return unit.IntConst(a + b), true
	case unit.OpSub:
		return unit.IntConst(a - b), true
	case unit.OpMul:
		return unit.IntConst(a * b), true
	case unit.OpDiv:
		if b == 0 {
			return unit.Constant{}, false
		}
		return unit.IntConst(a / b), true
	case unit.OpMod:
		if b == 0 {
			return unit.Constant{}, false
		}
		return unit.IntConst(a % b), true
	}
	return unit.Constant{}, false
}
