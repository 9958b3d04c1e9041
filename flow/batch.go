package flow

import (
	"fmt"

	"github.com/chazu/rewrite/unit"
)

// ---------------------------------------------------------------------------
// Batch: a transaction over one graph
// ---------------------------------------------------------------------------

type editKind uint8

const (
	insertBefore editKind = iota
	insertAfter
	remove
)

type edit struct {
	kind   editKind
	anchor *unit.Instruction
	insns  []*unit.Instruction
}

// Batch records edits against a graph's routine. Nothing is applied until
// Commit; Discard drops the record. Misuse (removing an instruction twice,
// anchoring on a removed or foreign instruction, inserting an instruction
// that is already linked) is a programmer error and panics at record time,
// before the routine is touched.
type Batch struct {
	g        *Graph
	edits    []edit
	removed  map[*unit.Instruction]bool
	inserted map[*unit.Instruction]bool
	closed   bool
}

// BeginChanges opens the graph's batch. Only one batch may be open at a
// time; opening a second panics.
func (g *Graph) BeginChanges() *Batch {
	if g.batch != nil {
		panic(fmt.Sprintf("flow: a change batch is already open on %s", g.routine))
	}
	g.batch = &Batch{
		g:        g,
		removed:  make(map[*unit.Instruction]bool),
		inserted: make(map[*unit.Instruction]bool),
	}
	return g.batch
}

// Change runs fn inside a batch. The batch commits if fn returns nil and is
// discarded if fn returns an error or panics; the panic is re-raised.
func (g *Graph) Change(fn func(b *Batch) error) (err error) {
	b := g.BeginChanges()
	defer func() {
		if r := recover(); r != nil {
			b.Discard()
			panic(r)
		}
	}()
	if err := fn(b); err != nil {
		b.Discard()
		return err
	}
	b.Commit()
	return nil
}

// Len returns the number of recorded edits.
func (b *Batch) Len() int {
	return len(b.edits)
}

func (b *Batch) checkOpen() {
	if b.closed {
		panic("flow: change batch is closed")
	}
}

// live reports whether insn will be in the routine after the edits recorded
// so far.
func (b *Batch) live(insn *unit.Instruction) bool {
	if insn == nil || b.removed[insn] {
		return false
	}
	return b.g.routine.Contains(insn) || b.inserted[insn]
}

func (b *Batch) checkAnchor(anchor *unit.Instruction) {
	if !b.live(anchor) {
		panic(fmt.Sprintf("flow: anchor %v is not a live instruction of %s", anchor, b.g.routine))
	}
}

func (b *Batch) claim(insns []*unit.Instruction) {
	for _, insn := range insns {
		if insn == nil || insn.Routine() != nil || b.inserted[insn] {
			panic(fmt.Sprintf("flow: instruction %v is already linked", insn))
		}
		b.inserted[insn] = true
	}
}

// InsertBefore records inserting insns, in order, immediately before anchor.
func (b *Batch) InsertBefore(anchor *unit.Instruction, insns ...*unit.Instruction) {
	b.checkOpen()
	b.checkAnchor(anchor)
	b.claim(insns)
	b.edits = append(b.edits, edit{insertBefore, anchor, insns})
}

// InsertAfter records inserting insns, in order, after anchor. Repeated
// insertions after the same anchor keep their record order: a later one
// lands after everything inserted earlier after anchor, including
// instructions inserted after those.
func (b *Batch) InsertAfter(anchor *unit.Instruction, insns ...*unit.Instruction) {
	b.checkOpen()
	b.checkAnchor(anchor)
	b.claim(insns)
	b.edits = append(b.edits, edit{insertAfter, anchor, insns})
}

// Remove records removing insn.
func (b *Batch) Remove(insn *unit.Instruction) {
	b.checkOpen()
	if b.removed[insn] {
		panic(fmt.Sprintf("flow: instruction %v removed twice", insn))
	}
	b.checkAnchor(insn)
	b.removed[insn] = true
	b.edits = append(b.edits, edit{kind: remove, anchor: insn})
}

// Replace records replacing old with insns.
func (b *Batch) Replace(old *unit.Instruction, insns ...*unit.Instruction) {
	b.InsertBefore(old, insns...)
	b.Remove(old)
}

// Commit applies the recorded edits: every insertion in record order, then
// every removal. Anchors are resolved against the list before any removal
// takes effect, so "insert the replacement, then remove the original"
// behaves as if computed up front. A non-empty commit invalidates the
// graph's analysis; an empty one leaves it untouched.
func (b *Batch) Commit() {
	b.checkOpen()
	b.close()
	if len(b.edits) == 0 {
		return
	}

	r := b.g.routine
	tails := make(map[*unit.Instruction]*unit.Instruction)
	for _, e := range b.edits {
		switch e.kind {
		case insertBefore:
			for _, insn := range e.insns {
				r.InsertBefore(e.anchor, insn)
			}
		case insertAfter:
			start := e.anchor
			for t, ok := tails[start]; ok; t, ok = tails[start] {
				start = t
			}
			mark := start
			for _, insn := range e.insns {
				r.InsertAfter(mark, insn)
				mark = insn
			}
			tails[start] = mark
		}
	}
	for _, e := range b.edits {
		if e.kind == remove {
			r.Remove(e.anchor)
		}
	}
	b.g.invalidate()
}

// Discard drops the recorded edits. It is a no-op on a closed batch, so it
// is safe to defer after Commit.
func (b *Batch) Discard() {
	if b.closed {
		return
	}
	b.close()
}

func (b *Batch) close() {
	b.closed = true
	if b.g.batch == b {
		b.g.batch = nil
	}
}
