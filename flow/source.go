package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/rewrite/unit"
)

// ---------------------------------------------------------------------------
// Source: the provenance of one value
// ---------------------------------------------------------------------------

// Source says where a value came from. It has exactly three
// implementations: Single, Argument and Multiple. Use a type switch;
// "unreachable or not computable" is never a Source, it is the ok=false
// result of a query.
type Source interface {
	isSource()
	String() string
}

// Single is a value with exactly one producing instruction.
type Single struct {
	Insn *unit.Instruction
}

// Argument is a value that entered the routine as a parameter (or the
// receiver, slot 0 of an instance routine).
type Argument struct {
	Slot int
}

// Multiple is a value with two or more candidate origins, arising where
// control paths merge. Callers must not pick one.
type Multiple struct {
	Producers []*unit.Instruction // ordered by instruction ID
	Arguments []int               // parameter slots, ascending
}

func (Single) isSource()   {}
func (Argument) isSource() {}
func (Multiple) isSource() {}

func (s Single) String() string   { return "single(" + s.Insn.String() + ")" }
func (a Argument) String() string { return fmt.Sprintf("argument(%d)", a.Slot) }

func (m Multiple) String() string {
	parts := make([]string, 0, len(m.Producers)+len(m.Arguments))
	for _, a := range m.Arguments {
		parts = append(parts, Argument{a}.String())
	}
	for _, p := range m.Producers {
		parts = append(parts, p.String())
	}
	return "multiple(" + strings.Join(parts, ", ") + ")"
}

// Len returns the number of candidate origins.
func (m Multiple) Len() int {
	return len(m.Producers) + len(m.Arguments)
}

// ---------------------------------------------------------------------------
// sourceSet: the analysis-internal representation
// ---------------------------------------------------------------------------

// origin is either an instruction or a parameter slot (insn == nil). The
// slot -1 stands for "never written" on some path into the frame.
type origin struct {
	insn *unit.Instruction
	arg  int
}

var unsetOrigin = origin{arg: -1}

func (o origin) less(p origin) bool {
	switch {
	case o.insn == nil && p.insn == nil:
		return o.arg < p.arg
	case o.insn == nil:
		return true
	case p.insn == nil:
		return false
	}
	return o.insn.ID() < p.insn.ID()
}

// sourceSet is a sorted, duplicate-free set of origins. Sets are never
// modified after creation, so frames may share them.
type sourceSet []origin

func produced(insn *unit.Instruction) sourceSet {
	return sourceSet{{insn: insn}}
}

func argument(slot int) sourceSet {
	return sourceSet{{arg: slot}}
}

// unset is the set of a local no path has written yet.
func unset() sourceSet {
	return sourceSet{unsetOrigin}
}

// local returns slot i of locals, or unset when the frame has no such slot.
func local(locals []sourceSet, i int) sourceSet {
	if i >= len(locals) || len(locals[i]) == 0 {
		return unset()
	}
	return locals[i]
}

func (s sourceSet) equal(o sourceSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// union merges two sorted sets. The result aliases s when o adds nothing.
func (s sourceSet) union(o sourceSet) sourceSet {
	if len(o) == 0 {
		return s
	}
	out := make(sourceSet, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] == o[j]:
			out = append(out, s[i])
			i++
			j++
		case s[i].less(o[j]):
			out = append(out, s[i])
			i++
		default:
			out = append(out, o[j])
			j++
		}
	}
	out = append(out, s[i:]...)
	out = append(out, o[j:]...)
	if len(out) == len(s) {
		return s
	}
	return out
}

// source converts a set into the public variant. A set that is empty or
// contains unsetOrigin (a local uninitialised on at least one path) has
// no source.
func (s sourceSet) source() (Source, bool) {
	if len(s) > 0 && s[0] == unsetOrigin {
		return nil, false
	}
	switch len(s) {
	case 0:
		return nil, false
	case 1:
		if s[0].insn == nil {
			return Argument{Slot: s[0].arg}, true
		}
		return Single{Insn: s[0].insn}, true
	}
	var m Multiple
	for _, o := range s {
		if o.insn == nil {
			m.Arguments = append(m.Arguments, o.arg)
		} else {
			m.Producers = append(m.Producers, o.insn)
		}
	}
	sort.Ints(m.Arguments)
	return m, true
}
