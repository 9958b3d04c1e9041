package pipeline

// Change classifies what a pass did to a unit. Values OR together and only
// ever grow: once any pass reports ChangedMandatory, the unit's metadata is
// recomputed on emission whatever later passes report.
type Change uint8

const (
	// None means the pass left the unit untouched.
	None Change = 0
	// Changed means content changed but stored structural metadata is
	// still valid.
	Changed Change = 1
	// ChangedMandatory means structural metadata must be recomputed.
	ChangedMandatory Change = Changed | 2
)

// Mandatory reports whether metadata must be recomputed. Any bit beyond
// Changed counts, so a stray value errs on the side of recomputing.
func (c Change) Mandatory() bool {
	return c&^Changed != 0
}

// Merge accumulates o into c. The result is always one of the three
// classifications.
func (c Change) Merge(o Change) Change {
	switch m := c | o; {
	case m == None:
		return None
	case m.Mandatory():
		return ChangedMandatory
	default:
		return Changed
	}
}

func (c Change) String() string {
	switch {
	case c == None:
		return "none"
	case c.Mandatory():
		return "changed-mandatory"
	default:
		return "changed"
	}
}
