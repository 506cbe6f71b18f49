package handle

import "iter"

// EdgeCount is the number of legal neighbor offsets.
const EdgeCount = 30

// Raw handle deltas of a single grid step per axis.
const (
	XStep int64 = 1 << xShift
	YStep int64 = 1 << yShift
	ZStep int64 = 1
)

// offsets maps an edge bit to its grid offset. Bits 0-3 are the step-up
// variants that climb two z cells.
var offsets = [EdgeCount]Grid{
	// dz = +2
	{0, 1, 2}, {1, 0, 2}, {-1, 0, 2}, {0, -1, 2},
	// dz = +1
	{1, 1, 1}, {0, 1, 1}, {-1, 1, 1},
	{1, 0, 1}, {0, 0, 1}, {-1, 0, 1},
	{1, -1, 1}, {0, -1, 1}, {-1, -1, 1},
	// dz = 0
	{1, 1, 0}, {0, 1, 0}, {-1, 1, 0},
	{1, 0, 0}, {-1, 0, 0},
	{1, -1, 0}, {0, -1, 0}, {-1, -1, 0},
	// dz = -1
	{1, 1, -1}, {0, 1, -1}, {-1, 1, -1},
	{1, 0, -1}, {0, 0, -1}, {-1, 0, -1},
	{1, -1, -1}, {0, -1, -1}, {-1, -1, -1},
}

// rawOffsets maps an edge bit to its raw handle delta.
var rawOffsets [EdgeCount]int64

// bitByDelta maps a raw handle delta to its edge bit.
var bitByDelta = make(map[int64]int, EdgeCount)

// opposite maps an edge bit to the bit of the negated offset, or -1.
var opposite [EdgeCount]int

func init() {
	for i, o := range offsets {
		d := int64(o.X)*XStep + int64(o.Y)*YStep + int64(o.Z)*ZStep
		rawOffsets[i] = d
		bitByDelta[d] = i
	}
	for i := range offsets {
		opposite[i] = -1
		if j, ok := bitByDelta[-rawOffsets[i]]; ok {
			opposite[i] = j
		}
	}
}

// Offset returns the grid offset of edge bit i.
func Offset(i int) Grid {
	return offsets[i]
}

// RawOffset returns the raw handle delta of edge bit i.
func RawOffset(i int) int64 {
	return rawOffsets[i]
}

// Opposite returns the edge bit that undoes edge bit i. The four step-up bits
// have no opposite.
func Opposite(i int) (int, bool) {
	j := opposite[i]
	return j, j >= 0
}

// EdgeBit returns the edge bit connecting a to b.
func EdgeBit(a, b NodeHandle) (int, bool) {
	if a == Invalid || b == Invalid {
		return 0, false
	}
	d := Cell(b).Sub(Cell(a))
	if d.X < -1 || d.X > 1 || d.Y < -1 || d.Y > 1 || d.Z < -1 || d.Z > 2 {
		return 0, false
	}
	i, ok := bitByDelta[int64(d.X)*XStep+int64(d.Y)*YStep+int64(d.Z)*ZStep]
	return i, ok
}

// IsPossibleEdge reports whether b is one of the 30 neighbors of a.
func IsPossibleEdge(a, b NodeHandle) bool {
	_, ok := EdgeBit(a, b)
	return ok
}

// AddOffset returns the neighbor of h along edge bit i. The offset is applied
// to the grid coordinates and re-packed so the region bits stay consistent.
func AddOffset(h NodeHandle, i int) NodeHandle {
	if h == Invalid {
		return Invalid
	}
	return FromCell(Cell(h).Add(offsets[i]))
}

// PossibleEdges yields every valid neighbor of h together with its edge bit.
func PossibleEdges(h NodeHandle) iter.Seq2[int, NodeHandle] {
	return func(yield func(int, NodeHandle) bool) {
		for i := range EdgeCount {
			n := AddOffset(h, i)
			if n == Invalid {
				continue
			}
			if !yield(i, n) {
				return
			}
		}
	}
}
