package emit

import "github.com/chazu/rewrite/unit"

// Hierarchy answers superclass questions for type merging. It is supplied
// by the host, which knows the classes a unit links against.
type Hierarchy interface {
	// Superclass returns the direct superclass of class. The root class
	// returns "", true. Unknown classes return false.
	Superclass(class string) (string, bool)
}

// StaticHierarchy is a Hierarchy backed by a class → superclass map. The
// root class unit.ObjectClass is implicit.
type StaticHierarchy map[string]string

// Superclass implements Hierarchy.
func (h StaticHierarchy) Superclass(class string) (string, bool) {
	if class == unit.ObjectClass {
		return "", true
	}
	super, ok := h[class]
	return super, ok
}

// DefaultHierarchy knows only the classes the unit format itself names.
func DefaultHierarchy() StaticHierarchy {
	return StaticHierarchy{
		unit.StringClass: unit.ObjectClass,
		unit.ClassClass:  unit.ObjectClass,
	}
}

// overlay consults the unit's own declaration before the host hierarchy.
type overlay struct {
	class, super string
	next         Hierarchy
}

func (o overlay) Superclass(class string) (string, bool) {
	if class == o.class {
		return o.super, true
	}
	return o.next.Superclass(class)
}

func forUnit(u *unit.Unit, h Hierarchy) Hierarchy {
	if h == nil {
		h = DefaultHierarchy()
	}
	super := u.Super
	if super == "" && u.Name != unit.ObjectClass {
		super = unit.ObjectClass
	}
	return overlay{class: u.Name, super: super, next: h}
}

// CommonAncestor returns the most specific class both a and b extend.
func CommonAncestor(h Hierarchy, a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	seen := make(map[string]bool)
	for c := a; c != ""; {
		if seen[c] {
			break
		}
		seen[c] = true
		super, ok := h.Superclass(c)
		if !ok {
			return "", &MergeError{Left: a, Right: b}
		}
		c = super
	}
	visited := make(map[string]bool)
	for c := b; c != "" && !visited[c]; {
		visited[c] = true
		if seen[c] {
			return c, nil
		}
		super, ok := h.Superclass(c)
		if !ok {
			break
		}
		c = super
	}
	return "", &MergeError{Left: a, Right: b}
}
