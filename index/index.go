// Package index builds cheap existence facts over a unit's constant pool.
//
// An Index is built from raw unit bytes without decoding any routine, so a
// pass can decline interest in a unit in O(1) before the dispatcher pays for
// the tree form.
package index

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/rewrite/unit"
)

// ErrMalformedConstant is returned when a pool entry cannot be indexed. A
// unit with a corrupt pool cannot be safely rewritten, so this is fatal.
var ErrMalformedConstant = errors.New("index: malformed constant")

// Options controls which facts are collected.
type Options struct {
	// Literals adds integer and float literal facts. Class, member and
	// string facts are always collected.
	Literals bool
}

type member struct {
	owner, name string
}

// Index is the set of symbolic facts mentioned anywhere in one unit.
// An Index is immutable once built and safe for concurrent readers.
type Index struct {
	name    string
	classes map[string]struct{}
	strings map[string]struct{}
	fields  map[unit.MemberRef]struct{}
	methods map[unit.MemberRef]struct{}
	members map[member]struct{}
	ints    map[int64]struct{}
	floats  map[uint64]struct{}
	size    int
}

// Build reads the unit header and indexes every constant in one pass.
func Build(data []byte, opts Options) (*Index, error) {
	h, err := unit.ReadHeader(data)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	return FromHeader(h, opts)
}

// FromHeader indexes an already-read header.
func FromHeader(h *unit.Header, opts Options) (*Index, error) {
	idx := &Index{
		name:    h.Name,
		classes: make(map[string]struct{}),
		strings: make(map[string]struct{}),
		fields:  make(map[unit.MemberRef]struct{}),
		methods: make(map[unit.MemberRef]struct{}),
		members: make(map[member]struct{}),
		size:    len(h.Constants),
	}
	if opts.Literals {
		idx.ints = make(map[int64]struct{})
		idx.floats = make(map[uint64]struct{})
	}
	idx.addClass(h.Name)
	if h.Super != "" {
		idx.addClass(h.Super)
	}

	for i, c := range h.Constants {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: unit %s: entry %d: %w", ErrMalformedConstant, h.Name, i, err)
		}
		switch c.Kind {
		case unit.ConstClass:
			idx.addClass(c.Str)
		case unit.ConstString:
			idx.strings[c.Str] = struct{}{}
		case unit.ConstInt:
			if opts.Literals {
				idx.ints[c.Int] = struct{}{}
			}
		case unit.ConstFloat:
			if opts.Literals {
				idx.floats[math.Float64bits(c.Float)] = struct{}{}
			}
		case unit.ConstField:
			idx.fields[c.Ref] = struct{}{}
			idx.addMember(c.Ref)
		case unit.ConstMethod:
			idx.methods[c.Ref] = struct{}{}
			idx.addMember(c.Ref)
		}
	}
	return idx, nil
}

func (idx *Index) addClass(name string) {
	idx.classes[name] = struct{}{}
}

func (idx *Index) addMember(ref unit.MemberRef) {
	idx.members[member{ref.Owner, ref.Name}] = struct{}{}
	idx.addClass(ref.Owner)
}

// Name returns the indexed unit's name.
func (idx *Index) Name() string { return idx.name }

// Len returns the number of pool entries indexed.
func (idx *Index) Len() int { return idx.size }

// HasClass reports whether the unit mentions class name: as itself, its
// superclass, a class constant, or the owner of a member reference.
func (idx *Index) HasClass(name string) bool {
	_, ok := idx.classes[name]
	return ok
}

// HasString reports whether the pool holds the string literal s.
func (idx *Index) HasString(s string) bool {
	_, ok := idx.strings[s]
	return ok
}

// HasField reports whether the pool references the given field.
func (idx *Index) HasField(owner, name, sig string) bool {
	_, ok := idx.fields[unit.MemberRef{Owner: owner, Name: name, Sig: sig}]
	return ok
}

// HasMethod reports whether the pool references the given routine.
func (idx *Index) HasMethod(owner, name, sig string) bool {
	_, ok := idx.methods[unit.MemberRef{Owner: owner, Name: name, Sig: sig}]
	return ok
}

// HasMember reports whether any field or routine owner.name is referenced,
// regardless of signature.
func (idx *Index) HasMember(owner, name string) bool {
	_, ok := idx.members[member{owner, name}]
	return ok
}

// HasInt reports whether the pool holds integer literal v. It is always
// false unless the index was built with Options.Literals.
func (idx *Index) HasInt(v int64) bool {
	_, ok := idx.ints[v]
	return ok
}

// HasFloat reports whether the pool holds float literal v. It is always
// false unless the index was built with Options.Literals. Values match by
// bit pattern, so -0.0 is not 0.0.
func (idx *Index) HasFloat(v float64) bool {
	_, ok := idx.floats[math.Float64bits(v)]
	return ok
}

// Classes returns the class facts in unspecified order.
func (idx *Index) Classes() []string {
	out := make([]string, 0, len(idx.classes))
	for c := range idx.classes {
		out = append(out, c)
	}
	return out
}

// Methods returns the routine references in unspecified order.
func (idx *Index) Methods() []unit.MemberRef {
	out := make([]unit.MemberRef, 0, len(idx.methods))
	for m := range idx.methods {
		out = append(out, m)
	}
	return out
}
