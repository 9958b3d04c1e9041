// Package unit defines the tree form of a compiled unit: a stack-machine
// bytecode container with a constant pool and a set of routines, each an
// intrusive list of instructions with exception-handler ranges.
//
// Units travel as CBOR documents (see wire.go). The routine section is kept
// raw until Decode is called so that cheap pre-screening (package index)
// never pays for instruction decoding.
package unit

// Unit is the tree form of a single compiled artifact.
type Unit struct {
	Name     string
	Super    string
	Pool     *Pool
	Routines []*Routine
}

// New creates an empty unit with an empty pool.
func New(name, super string) *Unit {
	return &Unit{Name: name, Super: super, Pool: NewPool()}
}

// AddRoutine creates a routine bound to the unit's pool and appends it.
func (u *Unit) AddRoutine(name, sig string, static bool) *Routine {
	r := NewRoutine(name, sig, static, u.Pool)
	u.Routines = append(u.Routines, r)
	return r
}

// Routine returns the first routine with the given name and signature.
// An empty signature matches any.
func (u *Unit) Routine(name, sig string) *Routine {
	for _, r := range u.Routines {
		if r.Name == name && (sig == "" || r.Signature == sig) {
			return r
		}
	}
	return nil
}
