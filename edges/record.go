// Package edges stores the per-node adjacency bitfield of the navigation
// graph.
package edges

import (
	"fmt"

	"github.com/hupe1980/navgraph/handle"
)

// Record is the packed metadata of one node.
//
//	bits  0-29  adjacency, one bit per neighbor offset
//	bit   30    grown
//	bit   31    cover
//	bits 32-35  clearance
type Record uint64

const (
	// Empty is the record of an unknown node.
	Empty Record = 0
	// EdgeMask selects the adjacency bits.
	EdgeMask Record = 1<<handle.EdgeCount - 1
	// GrownFlag marks a node whose neighborhood has been probed.
	GrownFlag Record = 1 << 30
	// CoverFlag marks a node next to a vertical obstruction.
	CoverFlag Record = 1 << 31
	// ClearanceMask selects the clearance bits.
	ClearanceMask Record = 15 << clearanceShift

	clearanceShift = 32
)

// MaxClearance is the clearance of a maximally open node.
const MaxClearance = 15

// Has reports whether edge bit i is set.
func (r Record) Has(i int) bool {
	return r&(1<<i) != 0
}

// With returns r with edge bit i set to v.
func (r Record) With(i int, v bool) Record {
	if v {
		return r | 1<<i
	}
	return r &^ (1 << i)
}

// Edges returns only the adjacency bits.
func (r Record) Edges() Record {
	return r & EdgeMask
}

// HasEdges reports whether any adjacency bit is set.
func (r Record) HasEdges() bool {
	return r&EdgeMask != 0
}

// Grown reports whether the grown flag is set.
func (r Record) Grown() bool {
	return r&GrownFlag != 0
}

// Cover reports whether the cover flag is set.
func (r Record) Cover() bool {
	return r&CoverFlag != 0
}

// WithFlag returns r with flag f set to v.
func (r Record) WithFlag(f Record, v bool) Record {
	if v {
		return r | f
	}
	return r &^ f
}

// Clearance returns the clearance value in [0,15].
func (r Record) Clearance() int {
	return int((r & ClearanceMask) >> clearanceShift)
}

// WithClearance returns r with clearance c, clamped to [0,15].
func (r Record) WithClearance(c int) Record {
	c = min(max(c, 0), MaxClearance)
	return r&^ClearanceMask | Record(c)<<clearanceShift
}

func (r Record) String() string {
	return fmt.Sprintf("edges=%030b grown=%t cover=%t clearance=%d", uint64(r.Edges()), r.Grown(), r.Cover(), r.Clearance())
}
