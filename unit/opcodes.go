package unit

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP  Opcode = 0x00 // no operation
	OpPOP  Opcode = 0x01 // discard top of stack
	OpDUP  Opcode = 0x02 // duplicate top of stack
	OpSWAP Opcode = 0x03 // swap top two stack elements
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushInt8    Opcode = 0x13 // push 8-bit signed integer
	OpPushInt32   Opcode = 0x14 // push 32-bit signed integer
	OpPushFloat   Opcode = 0x15 // push inline float64 (8 bytes)
	OpPushLiteral Opcode = 0x16 // push literal from the constant pool (16-bit index)
)

// Variable Operations
const (
	OpLoadLocal  Opcode = 0x20 // push local slot (8-bit index)
	OpStoreLocal Opcode = 0x21 // pop into local slot (8-bit index)
	OpGetField   Opcode = 0x22 // pop object, push field (16-bit field ref)
	OpPutField   Opcode = 0x23 // pop value and object, store field (16-bit field ref)
	OpGetStatic  Opcode = 0x24 // push static field (16-bit field ref)
	OpPutStatic  Opcode = 0x25 // pop into static field (16-bit field ref)
)

// Arithmetic and Comparison
const (
	OpAdd Opcode = 0x40 // pop two, push sum
	OpSub Opcode = 0x41 // pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x42 // pop two, push product
	OpDiv Opcode = 0x43 // pop two, push quotient
	OpMod Opcode = 0x44 // pop two, push remainder
	OpNeg Opcode = 0x45 // negate top of stack
	OpEq  Opcode = 0x48 // pop two, push 1 if equal
	OpLt  Opcode = 0x49 // pop two, push 1 if a < b
)

// Invocation
const (
	OpInvokeStatic  Opcode = 0x50 // call routine (16-bit method ref), pops args
	OpInvokeVirtual Opcode = 0x51 // call routine (16-bit method ref), pops receiver + args
)

// Object Creation
const (
	OpNew       Opcode = 0x58 // push new instance (16-bit class ref)
	OpCheckCast Opcode = 0x59 // narrow top of stack (16-bit class ref)
)

// Control Flow
const (
	OpJump       Opcode = 0x60 // unconditional jump (16-bit offset)
	OpJumpTrue   Opcode = 0x61 // pop, jump if true (16-bit offset)
	OpJumpFalse  Opcode = 0x62 // pop, jump if false (16-bit offset)
	OpJumpNil    Opcode = 0x63 // pop, jump if nil (16-bit offset)
	OpJumpNotNil Opcode = 0x64 // pop, jump if not nil (16-bit offset)
)

// Exits
const (
	OpReturnTop Opcode = 0x70 // return top of stack
	OpReturnNil Opcode = 0x71 // return without a value
	OpThrow     Opcode = 0x72 // pop and raise
)

// OpLabel is a pseudo-instruction marking a jump target, a handler boundary
// or a recorded frame. It occupies no bytes in the encoded form.
const OpLabel Opcode = 0xFE

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Variable marks a stack effect that depends on the instruction's operand.
const Variable = -1

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	Pops         int    // values popped (Variable = depends on operand)
	Pushes       int    // values pushed (Variable = depends on operand)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack operations
	OpNOP:  {"NOP", 0, 0, 0},
	OpPOP:  {"POP", 0, 1, 0},
	OpDUP:  {"DUP", 0, 1, 2},
	OpSWAP: {"SWAP", 0, 2, 2},

	// Push constants
	OpPushNil:     {"PUSH_NIL", 0, 0, 1},
	OpPushTrue:    {"PUSH_TRUE", 0, 0, 1},
	OpPushFalse:   {"PUSH_FALSE", 0, 0, 1},
	OpPushInt8:    {"PUSH_INT8", 1, 0, 1},
	OpPushInt32:   {"PUSH_INT32", 4, 0, 1},
	OpPushFloat:   {"PUSH_FLOAT", 8, 0, 1},
	OpPushLiteral: {"PUSH_LITERAL", 2, 0, 1},

	// Variables
	OpLoadLocal:  {"LOAD_LOCAL", 1, 0, 1},
	OpStoreLocal: {"STORE_LOCAL", 1, 1, 0},
	OpGetField:   {"GET_FIELD", 2, 1, 1},
	OpPutField:   {"PUT_FIELD", 2, 2, 0},
	OpGetStatic:  {"GET_STATIC", 2, 0, 1},
	OpPutStatic:  {"PUT_STATIC", 2, 1, 0},

	// Arithmetic
	OpAdd: {"ADD", 0, 2, 1},
	OpSub: {"SUB", 0, 2, 1},
	OpMul: {"MUL", 0, 2, 1},
	OpDiv: {"DIV", 0, 2, 1},
	OpMod: {"MOD", 0, 2, 1},
	OpNeg: {"NEG", 0, 1, 1},
	OpEq:  {"EQ", 0, 2, 1},
	OpLt:  {"LT", 0, 2, 1},

	// Invocation
	OpInvokeStatic:  {"INVOKE_STATIC", 2, Variable, Variable},
	OpInvokeVirtual: {"INVOKE_VIRTUAL", 2, Variable, Variable},

	// Objects
	OpNew:       {"NEW", 2, 0, 1},
	OpCheckCast: {"CHECKCAST", 2, 1, 1},

	// Control flow
	OpJump:       {"JUMP", 2, 0, 0},
	OpJumpTrue:   {"JUMP_TRUE", 2, 1, 0},
	OpJumpFalse:  {"JUMP_FALSE", 2, 1, 0},
	OpJumpNil:    {"JUMP_NIL", 2, 1, 0},
	OpJumpNotNil: {"JUMP_NOT_NIL", 2, 1, 0},

	// Exits
	OpReturnTop: {"RETURN_TOP", 0, 1, 0},
	OpReturnNil: {"RETURN_NIL", 0, 0, 0},
	OpThrow:     {"THROW", 0, 1, 0},

	OpLabel: {"LABEL", 0, 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is an encodable opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok && op != OpLabel
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether op transfers control to a label.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpNotNil
}

// IsConditional reports whether op is a jump that may fall through.
func (op Opcode) IsConditional() bool {
	return op > OpJump && op <= OpJumpNotNil
}

// IsExit reports whether op leaves the routine.
func (op Opcode) IsExit() bool {
	return op == OpReturnTop || op == OpReturnNil || op == OpThrow
}

// FallsThrough reports whether control may continue to the next instruction.
func (op Opcode) FallsThrough() bool {
	return op != OpJump && !op.IsExit()
}

// IsPoolRef reports whether the instruction's 16-bit operand indexes the
// constant pool.
func (op Opcode) IsPoolRef() bool {
	switch op {
	case OpPushLiteral, OpGetField, OpPutField, OpGetStatic, OpPutStatic,
		OpInvokeStatic, OpInvokeVirtual, OpNew, OpCheckCast:
		return true
	}
	return false
}
