package unit

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Verification types
// ---------------------------------------------------------------------------

// Kind classifies a verification type.
type Kind uint8

const (
	KindTop    Kind = iota // unusable or uninitialized
	KindInt                // integers and booleans
	KindFloat              // 64-bit floats
	KindNull               // the nil reference
	KindObject             // reference to an instance of Class
)

// VType is the type of a single stack or local slot as tracked by frames.
type VType struct {
	Kind  Kind
	Class string // set for KindObject
}

// Common verification types.
var (
	Top   = VType{Kind: KindTop}
	Int   = VType{Kind: KindInt}
	Float = VType{Kind: KindFloat}
	Null  = VType{Kind: KindNull}
)

// Object returns the verification type for instances of class.
func Object(class string) VType {
	return VType{Kind: KindObject, Class: class}
}

// IsReference reports whether t is Null or an object type.
func (t VType) IsReference() bool {
	return t.Kind == KindNull || t.Kind == KindObject
}

// IsNumeric reports whether t is Int or Float.
func (t VType) IsNumeric() bool {
	return t.Kind == KindInt || t.Kind == KindFloat
}

// String returns the textual form used by the wire format.
func (t VType) String() string {
	switch t.Kind {
	case KindInt:
		return "I"
	case KindFloat:
		return "F"
	case KindNull:
		return "N"
	case KindObject:
		return "L" + t.Class + ";"
	default:
		return "T"
	}
}

// ParseVType parses the textual form produced by VType.String.
func ParseVType(s string) (VType, error) {
	switch s {
	case "T":
		return Top, nil
	case "I":
		return Int, nil
	case "F":
		return Float, nil
	case "N":
		return Null, nil
	}
	if len(s) > 2 && s[0] == 'L' && s[len(s)-1] == ';' {
		return Object(s[1 : len(s)-1]), nil
	}
	return Top, fmt.Errorf("%w: bad frame type %q", ErrMalformed, s)
}

// ---------------------------------------------------------------------------
// Signatures
// ---------------------------------------------------------------------------

// Signature is a parsed routine or field descriptor.
//
// Routine descriptors have the form "(" param* ")" ret; field descriptors
// are a single type. Types are I, Z (boolean), F, L<class>; and, for
// returns only, V.
type Signature struct {
	Params []VType
	Return VType
	Void   bool
}

// ParseSignature parses a routine descriptor such as "(ILjava/String;)V".
func ParseSignature(desc string) (Signature, error) {
	var sig Signature
	if !strings.HasPrefix(desc, "(") {
		return sig, fmt.Errorf("%w: signature %q must start with '('", ErrMalformed, desc)
	}
	rest := desc[1:]
	for {
		if rest == "" {
			return sig, fmt.Errorf("%w: unterminated signature %q", ErrMalformed, desc)
		}
		if rest[0] == ')' {
			rest = rest[1:]
			break
		}
		t, n, err := parseFieldType(rest)
		if err != nil {
			return sig, fmt.Errorf("signature %q: %w", desc, err)
		}
		sig.Params = append(sig.Params, t)
		rest = rest[n:]
	}
	if rest == "V" {
		sig.Void = true
		return sig, nil
	}
	t, n, err := parseFieldType(rest)
	if err != nil {
		return sig, fmt.Errorf("signature %q: %w", desc, err)
	}
	if n != len(rest) {
		return sig, fmt.Errorf("%w: trailing data in signature %q", ErrMalformed, desc)
	}
	sig.Return = t
	return sig, nil
}

// ParseFieldType parses a single field descriptor such as "I" or "Lapp/Point;".
func ParseFieldType(desc string) (VType, error) {
	t, n, err := parseFieldType(desc)
	if err != nil {
		return Top, err
	}
	if n != len(desc) {
		return Top, fmt.Errorf("%w: trailing data in field type %q", ErrMalformed, desc)
	}
	return t, nil
}

func parseFieldType(s string) (VType, int, error) {
	if s == "" {
		return Top, 0, fmt.Errorf("%w: empty type", ErrMalformed)
	}
	switch s[0] {
	case 'I', 'Z':
		return Int, 1, nil
	case 'F':
		return Float, 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return Top, 0, fmt.Errorf("%w: bad object type in %q", ErrMalformed, s)
		}
		return Object(s[1:end]), end + 1, nil
	}
	return Top, 0, fmt.Errorf("%w: unknown type %q", ErrMalformed, s[:1])
}

// Arity returns the number of declared parameters.
func (s Signature) Arity() int {
	return len(s.Params)
}
