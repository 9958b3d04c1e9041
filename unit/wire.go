package unit

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Version is the current unit format version. Increment when making
// incompatible changes to the wire layout or opcode encoding.
const Version uint16 = 1

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type wireUnit struct {
	Version  uint16          `cbor:"1,keyasint"`
	Name     string          `cbor:"2,keyasint"`
	Super    string          `cbor:"3,keyasint,omitempty"`
	Pool     []wireConstant  `cbor:"4,keyasint"`
	Routines cbor.RawMessage `cbor:"5,keyasint"`
}

type wireConstant struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Str   string    `cbor:"2,keyasint,omitempty"`
	Int   int64     `cbor:"3,keyasint,omitempty"`
	Float float64   `cbor:"4,keyasint,omitempty"`
	Owner string    `cbor:"5,keyasint,omitempty"`
	Name  string    `cbor:"6,keyasint,omitempty"`
	Sig   string    `cbor:"7,keyasint,omitempty"`
}

type wireRoutine struct {
	Name      string        `cbor:"1,keyasint"`
	Signature string        `cbor:"2,keyasint"`
	Static    bool          `cbor:"3,keyasint,omitempty"`
	MaxStack  int           `cbor:"4,keyasint"`
	MaxLocals int           `cbor:"5,keyasint"`
	Code      []byte        `cbor:"6,keyasint"`
	Handlers  []wireHandler `cbor:"7,keyasint,omitempty"`
	Frames    []wireFrame   `cbor:"8,keyasint,omitempty"`
}

type wireHandler struct {
	Start  int    `cbor:"1,keyasint"`
	End    int    `cbor:"2,keyasint"`
	Target int    `cbor:"3,keyasint"`
	Catch  string `cbor:"4,keyasint,omitempty"`
}

type wireFrame struct {
	Offset int      `cbor:"1,keyasint"`
	Locals []string `cbor:"2,keyasint,omitempty"`
	Stack  []string `cbor:"3,keyasint,omitempty"`
}

// cborEncMode uses canonical mode so that equal trees encode identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("unit: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func (c Constant) wire() wireConstant {
	return wireConstant{
		Kind: c.Kind, Str: c.Str, Int: c.Int, Float: c.Float,
		Owner: c.Ref.Owner, Name: c.Ref.Name, Sig: c.Ref.Sig,
	}
}

func (w wireConstant) constant() Constant {
	return Constant{
		Kind: w.Kind, Str: w.Str, Int: w.Int, Float: w.Float,
		Ref: MemberRef{Owner: w.Owner, Name: w.Name, Sig: w.Sig},
	}
}

// ---------------------------------------------------------------------------
// Header: the cheap, routine-free view of a unit
// ---------------------------------------------------------------------------

// Header is the part of a unit readable without decoding routines.
// Constants are returned exactly as stored and are not validated.
type Header struct {
	Name      string
	Super     string
	Constants []Constant
}

// ReadHeader decodes the unit's name and constant pool. The routine section
// is skipped without being interpreted.
func ReadHeader(data []byte) (*Header, error) {
	w, err := unmarshalUnit(data)
	if err != nil {
		return nil, err
	}
	h := &Header{Name: w.Name, Super: w.Super, Constants: make([]Constant, len(w.Pool))}
	for i, c := range w.Pool {
		h.Constants[i] = c.constant()
	}
	return h, nil
}

func unmarshalUnit(data []byte) (*wireUnit, error) {
	var w wireUnit
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Version != Version {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, Version, w.Version)
	}
	return &w, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode parses unit bytes into tree form.
func Decode(data []byte) (*Unit, error) {
	w, err := unmarshalUnit(data)
	if err != nil {
		return nil, err
	}
	u := New(w.Name, w.Super)
	for i, wc := range w.Pool {
		c := wc.constant()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: constant %d: %w", w.Name, i, err)
		}
		u.Pool.append(c)
	}

	var routines []wireRoutine
	if len(w.Routines) > 0 {
		if err := cbor.Unmarshal(w.Routines, &routines); err != nil {
			return nil, fmt.Errorf("%w: unit %s: routines: %v", ErrMalformed, w.Name, err)
		}
	}
	for i := range routines {
		r, err := decodeRoutine(&routines[i], u.Pool)
		if err != nil {
			return nil, fmt.Errorf("unit %s: routine %s%s: %w", w.Name, routines[i].Name, routines[i].Signature, err)
		}
		u.Routines = append(u.Routines, r)
	}
	return u, nil
}

func decodeRoutine(w *wireRoutine, pool *Pool) (*Routine, error) {
	if _, err := ParseSignature(w.Signature); err != nil {
		return nil, err
	}
	r := NewRoutine(w.Name, w.Signature, w.Static, pool)
	r.MaxStack, r.MaxLocals = w.MaxStack, w.MaxLocals

	// First pass: decode instructions and remember their offsets.
	type decoded struct {
		offset int
		insn   *Instruction
		target int
	}
	var (
		insns      []decoded
		boundaries = map[int]bool{len(w.Code): true}
		cr         = newCodeReader(w.Code)
	)
	for cr.hasMore() {
		offset := cr.pos
		insn, target, err := cr.next()
		if err != nil {
			return nil, err
		}
		if err := checkOperand(insn, pool); err != nil {
			return nil, fmt.Errorf("at %d: %w", offset, err)
		}
		boundaries[offset] = true
		insns = append(insns, decoded{offset, insn, target})
	}

	// Labels exist at every jump target, handler boundary and frame.
	labels := make(map[int]*Instruction)
	labelAt := func(offset int, allowEnd bool) (*Instruction, error) {
		if !boundaries[offset] || (!allowEnd && offset == len(w.Code)) {
			return nil, fmt.Errorf("%w: offset %d is not an instruction boundary", ErrMalformed, offset)
		}
		l, ok := labels[offset]
		if !ok {
			l = NewLabel()
			labels[offset] = l
		}
		return l, nil
	}
	for _, d := range insns {
		if d.insn.Op.IsJump() {
			l, err := labelAt(d.target, false)
			if err != nil {
				return nil, err
			}
			d.insn.Target = l
		}
	}
	for _, wh := range w.Handlers {
		if wh.Start >= wh.End {
			return nil, fmt.Errorf("%w: empty handler range [%d,%d)", ErrMalformed, wh.Start, wh.End)
		}
		h := &Handler{Catch: wh.Catch}
		var err error
		if h.Start, err = labelAt(wh.Start, false); err != nil {
			return nil, err
		}
		if h.End, err = labelAt(wh.End, true); err != nil {
			return nil, err
		}
		if h.Target, err = labelAt(wh.Target, false); err != nil {
			return nil, err
		}
		r.Handlers = append(r.Handlers, h)
	}
	for _, wf := range w.Frames {
		l, err := labelAt(wf.Offset, false)
		if err != nil {
			return nil, err
		}
		f, err := decodeFrame(wf)
		if err != nil {
			return nil, err
		}
		l.Frame = f
	}

	// Second pass: link labels and instructions in offset order.
	for _, d := range insns {
		if l, ok := labels[d.offset]; ok {
			r.Append(l)
		}
		r.Append(d.insn)
	}
	if l, ok := labels[len(w.Code)]; ok {
		r.Append(l)
	}
	return r, nil
}

func decodeFrame(wf wireFrame) (*Frame, error) {
	f := &Frame{Locals: make([]VType, len(wf.Locals)), Stack: make([]VType, len(wf.Stack))}
	for i, s := range wf.Locals {
		t, err := ParseVType(s)
		if err != nil {
			return nil, err
		}
		f.Locals[i] = t
	}
	for i, s := range wf.Stack {
		t, err := ParseVType(s)
		if err != nil {
			return nil, err
		}
		f.Stack[i] = t
	}
	return f, nil
}

// checkOperand validates that pool-referencing operands name an entry of
// the right kind.
func checkOperand(insn *Instruction, pool *Pool) error {
	if !insn.Op.IsPoolRef() {
		return nil
	}
	c, err := pool.Get(insn.Index)
	if err != nil {
		return err
	}
	var ok bool
	switch insn.Op {
	case OpPushLiteral:
		ok = c.Loadable()
	case OpGetField, OpPutField, OpGetStatic, OpPutStatic:
		ok = c.Kind == ConstField
	case OpInvokeStatic, OpInvokeVirtual:
		ok = c.Kind == ConstMethod
	case OpNew, OpCheckCast:
		ok = c.Kind == ConstClass
	}
	if !ok {
		return fmt.Errorf("%w: %s cannot reference %s constant %d", ErrBadPoolIndex, insn.Op, c.Kind, insn.Index)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode serializes the unit using the metadata currently stored on each
// routine and the frames attached to its labels.
func Encode(u *Unit) ([]byte, error) {
	w := wireUnit{Version: Version, Name: u.Name, Super: u.Super}
	for _, c := range u.Pool.Entries() {
		w.Pool = append(w.Pool, c.wire())
	}
	routines := make([]wireRoutine, 0, len(u.Routines))
	for _, r := range u.Routines {
		wr, err := encodeRoutine(r)
		if err != nil {
			return nil, fmt.Errorf("unit %s: routine %s: %w", u.Name, r, err)
		}
		routines = append(routines, *wr)
	}
	raw, err := cborEncMode.Marshal(routines)
	if err != nil {
		return nil, fmt.Errorf("unit %s: encode routines: %w", u.Name, err)
	}
	w.Routines = raw
	return cborEncMode.Marshal(&w)
}

// Offsets returns the encoded byte offset of every instruction. Labels share
// the offset of the instruction that follows them.
func Offsets(r *Routine) map[*Instruction]int {
	offsets := make(map[*Instruction]int, r.Len())
	pos := 0
	for i := r.First(); i != nil; i = i.Next() {
		offsets[i] = pos
		pos += encodedSize(i)
	}
	return offsets
}

func encodeRoutine(r *Routine) (*wireRoutine, error) {
	offsets := Offsets(r)
	lookup := func(l *Instruction) (int, error) {
		if !r.Contains(l) {
			return 0, fmt.Errorf("%w: %v", ErrDanglingLabel, l)
		}
		return offsets[l], nil
	}

	cw := newCodeWriter(r.Len() * 2)
	for i := r.First(); i != nil; i = i.Next() {
		switch {
		case i.Op == OpLabel:
		case i.Op == OpPushInt8:
			cw.emitByte(i.Op, byte(int8(i.Value)))
		case i.Op == OpPushInt32:
			cw.emitInt32(i.Op, int32(i.Value))
		case i.Op == OpPushFloat:
			cw.emitFloat64(i.Op, i.Float)
		case i.Op == OpLoadLocal || i.Op == OpStoreLocal:
			cw.emitByte(i.Op, byte(i.Slot))
		case i.Op.IsJump():
			target, err := lookup(i.Target)
			if err != nil {
				return nil, err
			}
			if err := cw.emitJump(i.Op, target); err != nil {
				return nil, err
			}
		case i.Op.IsPoolRef():
			cw.emitUint16(i.Op, i.Index)
		default:
			cw.emit(i.Op)
		}
	}

	w := &wireRoutine{
		Name:      r.Name,
		Signature: r.Signature,
		Static:    r.Static,
		MaxStack:  r.MaxStack,
		MaxLocals: r.MaxLocals,
		Code:      cw.bytes,
	}
	for _, h := range r.Handlers {
		start, err := lookup(h.Start)
		if err != nil {
			return nil, err
		}
		end, err := lookup(h.End)
		if err != nil {
			return nil, err
		}
		target, err := lookup(h.Target)
		if err != nil {
			return nil, err
		}
		if start >= end {
			// Every covered instruction was removed.
			continue
		}
		w.Handlers = append(w.Handlers, wireHandler{Start: start, End: end, Target: target, Catch: h.Catch})
	}

	seen := make(map[int]bool)
	for i := r.First(); i != nil; i = i.Next() {
		if i.Op != OpLabel || i.Frame == nil || seen[offsets[i]] || offsets[i] == cw.Len() {
			continue
		}
		seen[offsets[i]] = true
		w.Frames = append(w.Frames, encodeFrame(offsets[i], i.Frame))
	}
	sort.Slice(w.Frames, func(a, b int) bool { return w.Frames[a].Offset < w.Frames[b].Offset })
	return w, nil
}

func encodeFrame(offset int, f *Frame) wireFrame {
	wf := wireFrame{Offset: offset}
	for _, t := range f.Locals {
		wf.Locals = append(wf.Locals, t.String())
	}
	for _, t := range f.Stack {
		wf.Stack = append(wf.Stack, t.String())
	}
	return wf
}
