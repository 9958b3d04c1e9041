// Package emit serializes tree-form units back to bytes, recomputing
// structural metadata (maximum stack and locals, frames at join labels)
// when edits invalidated it.
package emit

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/rewrite/unit"
)

var log = commonlog.GetLogger("rewrite.emit")

// Options controls serialization.
type Options struct {
	// Recompute discards stored metadata and derives it from the current
	// instruction lists.
	Recompute bool
	// Hierarchy resolves common ancestors while merging object types. Nil
	// means DefaultHierarchy.
	Hierarchy Hierarchy
}

// Write serializes u. With Recompute unset, the metadata already stored on
// each routine and its labels is emitted unchanged.
func Write(u *unit.Unit, opts Options) ([]byte, error) {
	if opts.Recompute {
		if err := Recompute(u, opts.Hierarchy); err != nil {
			return nil, err
		}
	}
	data, err := unit.Encode(u)
	if err != nil {
		return nil, fmt.Errorf("emit: %w", err)
	}
	return data, nil
}

// Recompute replaces every routine's metadata with freshly derived values.
// Frames are attached to join labels and cleared everywhere else.
func Recompute(u *unit.Unit, h Hierarchy) error {
	h = forUnit(u, h)
	for _, r := range u.Routines {
		md, err := Compute(r, u.Name, h)
		if err != nil {
			return fmt.Errorf("emit: unit %s: routine %s: %w", u.Name, r, err)
		}
		r.MaxStack, r.MaxLocals = md.MaxStack, md.MaxLocals
		for i := r.First(); i != nil; i = i.Next() {
			if i.IsLabel() {
				i.Frame = md.Frames[i]
			}
		}
		log.Debugf("recomputed %s.%s: stack=%d locals=%d frames=%d", u.Name, r, md.MaxStack, md.MaxLocals, len(md.Frames))
	}
	return nil
}

// Verify checks that the stored metadata of every routine still holds for
// its current instruction list: the stored maxima must cover the derived
// ones, and every reachable join label must carry the derived frame.
func Verify(u *unit.Unit, h Hierarchy) error {
	h = forUnit(u, h)
	for _, r := range u.Routines {
		md, err := Compute(r, u.Name, h)
		if err != nil {
			return fmt.Errorf("emit: unit %s: routine %s: %w", u.Name, r, err)
		}
		if r.MaxStack < md.MaxStack {
			return fmt.Errorf("%w: unit %s: routine %s: max stack %d, need %d", ErrStaleMetadata, u.Name, r, r.MaxStack, md.MaxStack)
		}
		if r.MaxLocals < md.MaxLocals {
			return fmt.Errorf("%w: unit %s: routine %s: max locals %d, need %d", ErrStaleMetadata, u.Name, r, r.MaxLocals, md.MaxLocals)
		}
		for l, want := range md.Frames {
			if !l.Frame.Equal(want) {
				return fmt.Errorf("%w: unit %s: routine %s: frame at %v is %s, need %s", ErrStaleMetadata, u.Name, r, l, l.Frame, want)
			}
		}
	}
	return nil
}
