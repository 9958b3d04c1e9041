package unit

import (
	"fmt"
	"math"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Instruction: one slot in a routine's instruction list
// ---------------------------------------------------------------------------

// Instruction is an opcode plus operands. Identity is pointer identity:
// positions shift as edits occur, so analyses key facts by *Instruction.
type Instruction struct {
	Op Opcode

	Value  int64        // immediate for PUSH_INT8 / PUSH_INT32
	Float  float64      // immediate for PUSH_FLOAT
	Slot   int          // local slot for LOAD_LOCAL / STORE_LOCAL
	Index  uint16       // pool index for pool-referencing opcodes
	Target *Instruction // label for jumps

	// Frame is the recorded structural frame at a label. It is nil for
	// labels that are not join points and for all other instructions.
	Frame *Frame

	prev, next *Instruction
	owner      *Routine
	id         uint64
}

// Frame records the verification types live at a join point.
type Frame struct {
	Locals []VType
	Stack  []VType
}

// Equal reports whether two frames describe the same types.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if len(f.Locals) != len(o.Locals) || len(f.Stack) != len(o.Stack) {
		return false
	}
	for i := range f.Locals {
		if f.Locals[i] != o.Locals[i] {
			return false
		}
	}
	for i := range f.Stack {
		if f.Stack[i] != o.Stack[i] {
			return false
		}
	}
	return true
}

// String renders the frame as "[locals | stack]".
func (f *Frame) String() string {
	if f == nil {
		return "[]"
	}
	s := "["
	for i, t := range f.Locals {
		if i > 0 {
			s += " "
		}
		s += t.String()
	}
	s += " |"
	for _, t := range f.Stack {
		s += " " + t.String()
	}
	return s + "]"
}

var instructionIDs atomic.Uint64

func newInstruction(op Opcode) *Instruction {
	return &Instruction{Op: op, id: instructionIDs.Add(1)}
}

// ID returns a process-unique serial number. IDs increase in creation
// order and give analyses a deterministic ordering for instruction sets.
func (i *Instruction) ID() uint64 {
	return i.id
}

// Next returns the following instruction, or nil.
func (i *Instruction) Next() *Instruction {
	return i.next
}

// Prev returns the preceding instruction, or nil.
func (i *Instruction) Prev() *Instruction {
	return i.prev
}

// Routine returns the routine the instruction is linked into, or nil.
func (i *Instruction) Routine() *Routine {
	return i.owner
}

// IsLabel reports whether the instruction is a label pseudo-instruction.
func (i *Instruction) IsLabel() bool {
	return i.Op == OpLabel
}

// Clone returns an unlinked copy of the instruction. Jump targets are shared.
func (i *Instruction) Clone() *Instruction {
	c := newInstruction(i.Op)
	c.Value, c.Float, c.Slot, c.Index, c.Target = i.Value, i.Float, i.Slot, i.Index, i.Target
	return c
}

// StackEffect returns how many values the instruction pops and pushes.
// Invocations consult the pool for the callee's signature.
func (i *Instruction) StackEffect(pool *Pool) (pops, pushes int, err error) {
	info := i.Op.Info()
	switch i.Op {
	case OpInvokeStatic, OpInvokeVirtual:
		_, sig, err := pool.Method(i.Index)
		if err != nil {
			return 0, 0, err
		}
		pops = sig.Arity()
		if i.Op == OpInvokeVirtual {
			pops++
		}
		if !sig.Void {
			pushes = 1
		}
		return pops, pushes, nil
	}
	return info.Pops, info.Pushes, nil
}

// String returns a single-line rendering without position information.
func (i *Instruction) String() string {
	switch {
	case i.Op == OpLabel:
		return fmt.Sprintf("L%d:", i.id)
	case i.Op == OpPushInt8 || i.Op == OpPushInt32:
		return fmt.Sprintf("%s %d", i.Op.Name(), i.Value)
	case i.Op == OpPushFloat:
		return fmt.Sprintf("%s %g", i.Op.Name(), i.Float)
	case i.Op == OpLoadLocal || i.Op == OpStoreLocal:
		return fmt.Sprintf("%s %d", i.Op.Name(), i.Slot)
	case i.Op.IsJump():
		if i.Target == nil {
			return i.Op.Name() + " <nil>"
		}
		return fmt.Sprintf("%s L%d", i.Op.Name(), i.Target.id)
	case i.Op.IsPoolRef():
		return fmt.Sprintf("%s #%d", i.Op.Name(), i.Index)
	}
	return i.Op.Name()
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Op returns an instruction without operands.
func Op(op Opcode) *Instruction {
	if op.OperandBytes() != 0 {
		panic(fmt.Sprintf("unit: %s requires an operand", op))
	}
	return newInstruction(op)
}

// NewLabel returns a fresh label.
func NewLabel() *Instruction {
	return newInstruction(OpLabel)
}

// PushInt returns the narrowest push for v. Values outside the int32
// range must go through the pool.
func PushInt(v int64) *Instruction {
	var i *Instruction
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		i = newInstruction(OpPushInt8)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		i = newInstruction(OpPushInt32)
	default:
		panic(fmt.Sprintf("unit: %d does not fit an inline push", v))
	}
	i.Value = v
	return i
}

// PushFloat returns an inline float push.
func PushFloat(v float64) *Instruction {
	i := newInstruction(OpPushFloat)
	i.Float = v
	return i
}

// Literal returns PUSH_LITERAL for the given pool index.
func Literal(index uint16) *Instruction {
	return Ref(OpPushLiteral, index)
}

// Ref returns a pool-referencing instruction.
func Ref(op Opcode, index uint16) *Instruction {
	if !op.IsPoolRef() {
		panic(fmt.Sprintf("unit: %s does not reference the pool", op))
	}
	i := newInstruction(op)
	i.Index = index
	return i
}

// Load returns LOAD_LOCAL slot.
func Load(slot int) *Instruction {
	return local(OpLoadLocal, slot)
}

// Store returns STORE_LOCAL slot.
func Store(slot int) *Instruction {
	return local(OpStoreLocal, slot)
}

func local(op Opcode, slot int) *Instruction {
	if slot < 0 || slot > math.MaxUint8 {
		panic(fmt.Sprintf("unit: local slot %d out of range", slot))
	}
	i := newInstruction(op)
	i.Slot = slot
	return i
}

// Jump returns a jump to label.
func Jump(op Opcode, label *Instruction) *Instruction {
	if !op.IsJump() {
		panic(fmt.Sprintf("unit: %s is not a jump", op))
	}
	if label == nil || !label.IsLabel() {
		panic("unit: jump target must be a label")
	}
	i := newInstruction(op)
	i.Target = label
	return i
}
