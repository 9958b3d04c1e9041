package unit

import "fmt"

// ---------------------------------------------------------------------------
// Routine: a named instruction list with exception handlers
// ---------------------------------------------------------------------------

// Handler is an exception-handler range. Start, End and Target are labels
// in the same routine; the range covers instructions from Start up to but
// not including End. An empty Catch catches everything.
type Handler struct {
	Start  *Instruction
	End    *Instruction
	Target *Instruction
	Catch  string
}

// Routine is a named procedure inside a Unit.
//
// The instruction list is intrusive and doubly linked. Passes mutate it only
// through a change batch; the list primitives below exist for the decoder,
// builders and the batch itself.
type Routine struct {
	Name      string
	Signature string
	Static    bool

	// Structural metadata. Valid as decoded; recomputed by the serializer
	// when a pass reports a mandatory change.
	MaxStack  int
	MaxLocals int

	Handlers []*Handler

	// Pool is the owning unit's constant pool.
	Pool *Pool

	first, last *Instruction
	length      int
}

// NewRoutine creates an empty routine bound to pool.
func NewRoutine(name, sig string, static bool, pool *Pool) *Routine {
	return &Routine{Name: name, Signature: sig, Static: static, Pool: pool}
}

// ParamSlots returns the number of local slots initialised on entry: the
// declared parameters plus the receiver for instance routines.
func (r *Routine) ParamSlots() (int, error) {
	sig, err := ParseSignature(r.Signature)
	if err != nil {
		return 0, err
	}
	n := sig.Arity()
	if !r.Static {
		n++
	}
	return n, nil
}

// First returns the first instruction, or nil.
func (r *Routine) First() *Instruction { return r.first }

// Last returns the last instruction, or nil.
func (r *Routine) Last() *Instruction { return r.last }

// Len returns the number of instructions, labels included.
func (r *Routine) Len() int { return r.length }

// Contains reports whether insn is linked into this routine.
func (r *Routine) Contains(insn *Instruction) bool {
	return insn != nil && insn.owner == r
}

// Instructions returns a snapshot of the list in order.
func (r *Routine) Instructions() []*Instruction {
	out := make([]*Instruction, 0, r.length)
	for i := r.first; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

// Append links insns at the end of the list.
func (r *Routine) Append(insns ...*Instruction) {
	for _, insn := range insns {
		r.checkUnlinked(insn)
		insn.owner = r
		insn.prev = r.last
		if r.last != nil {
			r.last.next = insn
		} else {
			r.first = insn
		}
		r.last = insn
		r.length++
	}
}

// InsertBefore links insn immediately before mark.
func (r *Routine) InsertBefore(mark, insn *Instruction) {
	r.checkMember(mark)
	r.checkUnlinked(insn)
	insn.owner = r
	insn.next = mark
	insn.prev = mark.prev
	if mark.prev != nil {
		mark.prev.next = insn
	} else {
		r.first = insn
	}
	mark.prev = insn
	r.length++
}

// InsertAfter links insn immediately after mark.
func (r *Routine) InsertAfter(mark, insn *Instruction) {
	r.checkMember(mark)
	r.checkUnlinked(insn)
	insn.owner = r
	insn.prev = mark
	insn.next = mark.next
	if mark.next != nil {
		mark.next.prev = insn
	} else {
		r.last = insn
	}
	mark.next = insn
	r.length++
}

// Remove unlinks insn from the list.
func (r *Routine) Remove(insn *Instruction) {
	r.checkMember(insn)
	if insn.prev != nil {
		insn.prev.next = insn.next
	} else {
		r.first = insn.next
	}
	if insn.next != nil {
		insn.next.prev = insn.prev
	} else {
		r.last = insn.prev
	}
	insn.prev, insn.next, insn.owner = nil, nil, nil
	r.length--
}

func (r *Routine) checkMember(insn *Instruction) {
	if insn == nil || insn.owner != r {
		panic(fmt.Sprintf("unit: instruction %v is not in routine %s", insn, r.Name))
	}
}

func (r *Routine) checkUnlinked(insn *Instruction) {
	if insn == nil {
		panic("unit: nil instruction")
	}
	if insn.owner != nil {
		panic(fmt.Sprintf("unit: instruction %v is already linked into %s", insn, insn.owner.Name))
	}
}

// String returns "Name Signature".
func (r *Routine) String() string {
	return r.Name + r.Signature
}
