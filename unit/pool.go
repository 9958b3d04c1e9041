package unit

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

// ConstKind identifies the kind of a constant pool entry.
type ConstKind uint8

const (
	ConstClass  ConstKind = 1
	ConstString ConstKind = 2
	ConstInt    ConstKind = 3
	ConstFloat  ConstKind = 4
	ConstField  ConstKind = 5
	ConstMethod ConstKind = 6
)

// String returns a human-readable name for the kind.
func (k ConstKind) String() string {
	switch k {
	case ConstClass:
		return "class"
	case ConstString:
		return "string"
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstField:
		return "field"
	case ConstMethod:
		return "method"
	default:
		return fmt.Sprintf("ConstKind(%d)", k)
	}
}

// MemberRef identifies a field or routine by owner, name and signature.
type MemberRef struct {
	Owner string
	Name  string
	Sig   string
}

// String returns Owner.Name:Sig.
func (m MemberRef) String() string {
	return m.Owner + "." + m.Name + ":" + m.Sig
}

// Constant is a single pool entry. Which fields are meaningful depends on
// Kind: Str for class and string entries, Int and Float for numeric
// literals, Ref for fields and methods.
type Constant struct {
	Kind  ConstKind
	Str   string
	Int   int64
	Float float64
	Ref   MemberRef
}

// ClassConst returns a class reference constant.
func ClassConst(name string) Constant { return Constant{Kind: ConstClass, Str: name} }

// StringConst returns a string literal constant.
func StringConst(s string) Constant { return Constant{Kind: ConstString, Str: s} }

// IntConst returns an integer literal constant.
func IntConst(v int64) Constant { return Constant{Kind: ConstInt, Int: v} }

// FloatConst returns a float literal constant.
func FloatConst(v float64) Constant { return Constant{Kind: ConstFloat, Float: v} }

// FieldConst returns a field reference constant.
func FieldConst(owner, name, sig string) Constant {
	return Constant{Kind: ConstField, Ref: MemberRef{owner, name, sig}}
}

// MethodConst returns a routine reference constant.
func MethodConst(owner, name, sig string) Constant {
	return Constant{Kind: ConstMethod, Ref: MemberRef{owner, name, sig}}
}

// Loadable reports whether PUSH_LITERAL may reference the constant.
func (c Constant) Loadable() bool {
	switch c.Kind {
	case ConstClass, ConstString, ConstInt, ConstFloat:
		return true
	}
	return false
}

// LiteralType returns the verification type PUSH_LITERAL pushes for c.
func (c Constant) LiteralType() (VType, bool) {
	switch c.Kind {
	case ConstInt:
		return Int, true
	case ConstFloat:
		return Float, true
	case ConstString:
		return Object(StringClass), true
	case ConstClass:
		return Object(ClassClass), true
	}
	return Top, false
}

// Well-known classes for literal types.
const (
	StringClass = "String"
	ClassClass  = "Class"
	ObjectClass = "Object"
)

// Validate checks that the constant is well-formed.
func (c Constant) Validate() error {
	switch c.Kind {
	case ConstClass:
		if c.Str == "" {
			return fmt.Errorf("%w: empty class name", ErrMalformed)
		}
	case ConstString, ConstInt:
	case ConstFloat:
		if math.IsNaN(c.Float) {
			// NaN never compares equal, which would break pool de-duplication.
			return fmt.Errorf("%w: NaN float literal", ErrMalformed)
		}
	case ConstField:
		if c.Ref.Owner == "" || c.Ref.Name == "" {
			return fmt.Errorf("%w: incomplete field ref %s", ErrMalformed, c.Ref)
		}
		if _, err := ParseFieldType(c.Ref.Sig); err != nil {
			return err
		}
	case ConstMethod:
		if c.Ref.Owner == "" || c.Ref.Name == "" {
			return fmt.Errorf("%w: incomplete method ref %s", ErrMalformed, c.Ref)
		}
		if _, err := ParseSignature(c.Ref.Sig); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown constant kind %d", ErrMalformed, c.Kind)
	}
	return nil
}

// String returns a disassembly-friendly rendering.
func (c Constant) String() string {
	switch c.Kind {
	case ConstClass:
		return "class " + c.Str
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstField:
		return "field " + c.Ref.String()
	case ConstMethod:
		return "method " + c.Ref.String()
	default:
		return c.Kind.String()
	}
}

// poolKey identifies a constant for de-duplication. Floats compare by bit
// pattern so -0.0 and +0.0 stay distinct and equal NaNs share an entry.
type poolKey struct {
	kind  ConstKind
	str   string
	num   int64
	bits  uint64
	ref   MemberRef
}

func (c Constant) key() poolKey {
	return poolKey{c.Kind, c.Str, c.Int, math.Float64bits(c.Float), c.Ref}
}

// Pool is a unit's constant pool.
type Pool struct {
	entries []Constant
	lookup  map[poolKey]uint16
}

// NewPool creates a pool holding the given constants in order.
func NewPool(entries ...Constant) *Pool {
	p := &Pool{lookup: make(map[poolKey]uint16, len(entries))}
	for _, c := range entries {
		p.append(c)
	}
	return p
}

func (p *Pool) append(c Constant) uint16 {
	idx := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if _, ok := p.lookup[c.key()]; !ok {
		p.lookup[c.key()] = idx
	}
	return idx
}

// Add adds a constant and returns its index. If an equal constant already
// exists, returns the existing index.
func (p *Pool) Add(c Constant) uint16 {
	if idx, ok := p.lookup[c.key()]; ok {
		return idx
	}
	if len(p.entries) > math.MaxUint16 {
		panic("unit: constant pool overflow")
	}
	return p.append(c)
}

// Get returns the constant at index.
func (p *Pool) Get(index uint16) (Constant, error) {
	if int(index) >= len(p.entries) {
		return Constant{}, fmt.Errorf("%w: %d (pool size %d)", ErrBadPoolIndex, index, len(p.entries))
	}
	return p.entries[index], nil
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Entries returns the entries in index order. The slice must not be modified.
func (p *Pool) Entries() []Constant {
	return p.entries
}

// Method returns the routine reference at index.
func (p *Pool) Method(index uint16) (MemberRef, Signature, error) {
	c, err := p.Get(index)
	if err != nil {
		return MemberRef{}, Signature{}, err
	}
	if c.Kind != ConstMethod {
		return MemberRef{}, Signature{}, fmt.Errorf("%w: constant %d is a %s, not a method", ErrBadPoolIndex, index, c.Kind)
	}
	sig, err := ParseSignature(c.Ref.Sig)
	return c.Ref, sig, err
}

// Field returns the field reference at index and its type.
func (p *Pool) Field(index uint16) (MemberRef, VType, error) {
	c, err := p.Get(index)
	if err != nil {
		return MemberRef{}, Top, err
	}
	if c.Kind != ConstField {
		return MemberRef{}, Top, fmt.Errorf("%w: constant %d is a %s, not a field", ErrBadPoolIndex, index, c.Kind)
	}
	t, err := ParseFieldType(c.Ref.Sig)
	return c.Ref, t, err
}

// Class returns the class name at index.
func (p *Pool) Class(index uint16) (string, error) {
	c, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if c.Kind != ConstClass {
		return "", fmt.Errorf("%w: constant %d is a %s, not a class", ErrBadPoolIndex, index, c.Kind)
	}
	return c.Str, nil
}
