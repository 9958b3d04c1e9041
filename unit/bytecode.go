package unit

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// codeWriter: byte-level encoder for routine code
// ---------------------------------------------------------------------------

// codeWriter appends encoded instructions. All multi-byte operands are
// little-endian.
type codeWriter struct {
	bytes []byte
}

func newCodeWriter(size int) *codeWriter {
	return &codeWriter{bytes: make([]byte, 0, size)}
}

func (w *codeWriter) Len() int {
	return len(w.bytes)
}

func (w *codeWriter) emit(op Opcode) {
	w.bytes = append(w.bytes, byte(op))
}

func (w *codeWriter) emitByte(op Opcode, operand byte) {
	w.bytes = append(w.bytes, byte(op), operand)
}

func (w *codeWriter) emitUint16(op Opcode, operand uint16) {
	w.bytes = append(w.bytes, byte(op), byte(operand), byte(operand>>8))
}

func (w *codeWriter) emitInt32(op Opcode, operand int32) {
	w.bytes = append(w.bytes, byte(op))
	w.bytes = binary.LittleEndian.AppendUint32(w.bytes, uint32(operand))
}

func (w *codeWriter) emitFloat64(op Opcode, operand float64) {
	w.bytes = append(w.bytes, byte(op))
	w.bytes = binary.LittleEndian.AppendUint64(w.bytes, math.Float64bits(operand))
}

// emitJump appends a jump whose 16-bit offset is relative to the end of
// the operand.
func (w *codeWriter) emitJump(op Opcode, target int) error {
	offset := target - (len(w.bytes) + 3)
	if offset < math.MinInt16 || offset > math.MaxInt16 {
		return fmt.Errorf("%w: %d", ErrJumpRange, offset)
	}
	w.emitUint16(op, uint16(int16(offset)))
	return nil
}

// encodedSize returns the number of bytes insn occupies.
func encodedSize(insn *Instruction) int {
	if insn.Op == OpLabel {
		return 0
	}
	return 1 + insn.Op.OperandBytes()
}

// ---------------------------------------------------------------------------
// codeReader: byte-level decoder for routine code
// ---------------------------------------------------------------------------

type codeReader struct {
	bytes []byte
	pos   int
}

func newCodeReader(bc []byte) *codeReader {
	return &codeReader{bytes: bc}
}

func (r *codeReader) hasMore() bool {
	return r.pos < len(r.bytes)
}

// next decodes one instruction. Jump targets are returned as absolute byte
// offsets for the caller to resolve into labels.
func (r *codeReader) next() (insn *Instruction, target int, err error) {
	start := r.pos
	op := Opcode(r.bytes[r.pos])
	if !op.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown opcode 0x%02X at %d", ErrMalformed, byte(op), start)
	}
	n := op.OperandBytes()
	if r.pos+1+n > len(r.bytes) {
		return nil, 0, fmt.Errorf("%w: truncated %s at %d", ErrMalformed, op, start)
	}
	operand := r.bytes[r.pos+1 : r.pos+1+n]
	r.pos += 1 + n

	insn = newInstruction(op)
	switch {
	case op == OpPushInt8:
		insn.Value = int64(int8(operand[0]))
	case op == OpPushInt32:
		insn.Value = int64(int32(binary.LittleEndian.Uint32(operand)))
	case op == OpPushFloat:
		insn.Float = math.Float64frombits(binary.LittleEndian.Uint64(operand))
	case op == OpLoadLocal || op == OpStoreLocal:
		insn.Slot = int(operand[0])
	case op.IsJump():
		target = r.pos + int(int16(binary.LittleEndian.Uint16(operand)))
	case op.IsPoolRef():
		insn.Index = binary.LittleEndian.Uint16(operand)
	}
	return insn, target, nil
}
