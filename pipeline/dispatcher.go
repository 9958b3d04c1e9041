// Package pipeline drives registered rewrite passes over compiled units.
//
// The Dispatcher screens every unit with a constant-pool index first and
// only decodes units some pass is interested in; the common case returns
// the input bytes untouched.
package pipeline

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/rewrite/dump"
	"github.com/chazu/rewrite/emit"
	"github.com/chazu/rewrite/flow"
	"github.com/chazu/rewrite/index"
	"github.com/chazu/rewrite/unit"
)

var log = commonlog.GetLogger("rewrite.pipeline")

// Options configures a Dispatcher.
type Options struct {
	// Index selects the facts collected for unit-level interest checks.
	Index index.Options
	// Hierarchy resolves common ancestors when metadata is recomputed.
	Hierarchy emit.Hierarchy
	// CheckMetadata verifies, for units classified Changed only, that the
	// retained metadata still matches a fresh recomputation.
	CheckMetadata bool
	// Sink, when set, receives the final tree form of every changed unit.
	// Sink errors are logged and never fail a transform.
	Sink dump.Sink
}

// Stats is a snapshot of a Dispatcher's counters.
type Stats struct {
	Transforms uint64 // calls to Transform
	Skipped    uint64 // units no pass was interested in
	Decodes    uint64 // tree forms built
	Changed    uint64 // units re-emitted
	Recomputed uint64 // units re-emitted with recomputed metadata
	Failures   uint64 // transforms that returned an error
}

type counters struct {
	transforms, skipped, decodes, changed, recomputed, failures atomic.Uint64
}

// Dispatcher owns the ordered pass registry and runs transforms. It is safe
// for concurrent use: every Transform works on a snapshot of the registry,
// and Register may race with in-flight transforms.
type Dispatcher struct {
	opts     Options
	mu       sync.Mutex // serializes Register
	registry atomic.Pointer[[]Pass]
	stats    counters
}

// New creates a Dispatcher with an empty registry.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{opts: opts}
	d.registry.Store(&[]Pass{})
	return d
}

// Register appends p to the registry. Registering the same instance twice
// fails with ErrDuplicatePass.
func (d *Dispatcher) Register(p Pass) error {
	_, isRoutine := p.(RoutinePass)
	_, isUnit := p.(UnitPass)
	if !isRoutine && !isUnit {
		return fmt.Errorf("%w: %s", ErrInvalidPass, p.Name())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	current := *d.registry.Load()
	for _, existing := range current {
		if samePass(existing, p) {
			return fmt.Errorf("%w: %s", ErrDuplicatePass, p.Name())
		}
	}
	next := make([]Pass, len(current), len(current)+1)
	copy(next, current)
	next = append(next, p)
	d.registry.Store(&next)
	log.Debugf("registered pass %s (%d total)", p.Name(), len(next))
	return nil
}

// samePass compares pass instances without panicking on uncomparable
// dynamic types.
func samePass(a, b Pass) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}

// Passes returns the current registry snapshot. The slice must not be
// modified.
func (d *Dispatcher) Passes() []Pass {
	return *d.registry.Load()
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Transforms: d.stats.transforms.Load(),
		Skipped:    d.stats.skipped.Load(),
		Decodes:    d.stats.decodes.Load(),
		Changed:    d.stats.changed.Load(),
		Recomputed: d.stats.recomputed.Load(),
		Failures:   d.stats.failures.Load(),
	}
}

// Transform runs every interested pass over the unit and returns its new
// bytes. When no pass is interested, or no pass changed anything, data
// itself is returned. On error no bytes are returned.
func (d *Dispatcher) Transform(name string, data []byte) ([]byte, error) {
	d.stats.transforms.Add(1)
	out, err := d.transform(name, data)
	if err != nil {
		d.stats.failures.Add(1)
		log.Errorf("%s", err)
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) transform(name string, data []byte) ([]byte, error) {
	passes := d.Passes()

	idx, err := index.Build(data, d.opts.Index)
	if err != nil {
		return nil, fmt.Errorf("pipeline: unit %s: %w", name, err)
	}
	var interested []Pass
	for _, p := range passes {
		if f, ok := p.(UnitFilter); ok && !f.InterestedInUnit(name, idx) {
			continue
		}
		interested = append(interested, p)
	}
	if len(interested) == 0 {
		d.stats.skipped.Add(1)
		return data, nil
	}

	u, err := unit.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline: unit %s: %w", name, err)
	}
	d.stats.decodes.Add(1)

	total := None
	for _, p := range interested {
		c, err := d.runPass(name, u, p)
		if err != nil {
			return nil, err
		}
		if c != None {
			log.Debugf("pass %s on %s: %s", p.Name(), name, c)
		}
		total = total.Merge(c)
	}
	if total == None {
		return data, nil
	}

	if !total.Mandatory() && d.opts.CheckMetadata {
		if err := emit.Verify(u, d.opts.Hierarchy); err != nil {
			return nil, fmt.Errorf("pipeline: unit %s classified %s: %w", name, total, err)
		}
	}
	out, err := emit.Write(u, emit.Options{Recompute: total.Mandatory(), Hierarchy: d.opts.Hierarchy})
	if err != nil {
		return nil, fmt.Errorf("pipeline: unit %s: %w", name, err)
	}
	d.stats.changed.Add(1)
	if total.Mandatory() {
		d.stats.recomputed.Add(1)
	}

	if d.opts.Sink != nil {
		if err := d.opts.Sink.Dump(name, u); err != nil {
			log.Warningf("dump of %s failed: %s", name, err)
		}
	}
	return out, nil
}

// runPass invokes p on the unit and on each routine it is interested in.
// Errors and panics become a *PassError naming the unit, routine and pass.
func (d *Dispatcher) runPass(name string, u *unit.Unit, p Pass) (change Change, err error) {
	var current *unit.Routine
	fail := func(cause error) error {
		pe := &PassError{Unit: name, Pass: p.Name(), Err: cause}
		if current != nil {
			pe.Routine = current.String()
		}
		return pe
	}
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			change, err = None, fail(fmt.Errorf("panic: %w", cause))
		}
	}()

	if up, ok := p.(UnitPass); ok {
		c, err := up.TransformUnit(u)
		if err != nil {
			return None, fail(err)
		}
		change = change.Merge(c)
	}

	rp, ok := p.(RoutinePass)
	if !ok {
		return change, nil
	}
	filter, _ := p.(RoutineFilter)
	for _, r := range append([]*unit.Routine(nil), u.Routines...) {
		if filter != nil && !filter.InterestedInRoutine(r.Name, r.Signature) {
			continue
		}
		current = r
		c, err := rp.TransformRoutine(r, flow.NewGraph(r))
		if err != nil {
			return None, fail(err)
		}
		change = change.Merge(c)
	}
	return change, nil
}
