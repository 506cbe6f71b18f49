// Package handle maps world-space positions to packed 64-bit node handles and
// coarser 32-bit region handles.
//
// A node handle packs a region identifier and three biased grid coordinates:
//
//	msb [rx:8][ry:8][rz:5][nx:15][ny:15][nz:13] lsb
//
// Horizontal axes are quantized to 0.5 world units and the vertical axis to
// 0.25. The zero vector maps to Invalid, so a node located exactly at the
// world origin cannot be represented; callers treat it as absent.
//
// All functions in this package are pure and safe for concurrent use.
package handle

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 is a world-space position.
type Vec3 = mgl32.Vec3

// Mat4 is a world-space pose.
type Mat4 = mgl32.Mat4

// NodeHandle identifies one grid cell of the navigation graph.
type NodeHandle uint64

// RegionHandle identifies a 128x128x128-cell partition used for persistence.
type RegionHandle uint32

const (
	// Invalid is the reserved handle of the zero vector.
	Invalid NodeHandle = 0
)

const (
	// MapRadius biases x and y so that they are non-negative.
	MapRadius = 8192
	// GridScale is the horizontal cell size in world units.
	GridScale = 0.5
	// ZScale is the vertical cell size in world units.
	ZScale = 0.25
	// ZDepth biases z so that it is non-negative.
	ZDepth = 200

	xBits = 15
	yBits = 15
	zBits = 13

	// RegionShift is the number of low coordinate bits dropped per axis to
	// form region coordinates.
	RegionShift = 7

	// WorldBits is the number of low bits holding grid coordinates.
	WorldBits = xBits + yBits + zBits

	handleMask = uint64(1)<<WorldBits - 1

	xMask = uint64(1)<<xBits - 1
	yMask = uint64(1)<<yBits - 1
	zMask = uint64(1)<<zBits - 1

	xShift = yBits + zBits
	yShift = zBits

	// rz has five bits, so nz stays below 32<<RegionShift.
	maxNX = int32(xMask)
	maxNY = int32(yMask)
	maxNZ = int32(32<<RegionShift) - 1

	minX = -MapRadius
	maxX = float64(maxNX)*GridScale - MapRadius
	minZ = -ZDepth
	maxZ = float64(maxNZ)*ZScale - ZDepth
)

// originCell is the grid cell of the zero vector.
var originCell = Grid{X: MapRadius / GridScale, Y: MapRadius / GridScale, Z: ZDepth / ZScale}

// Grid holds the biased integer coordinates of a cell.
type Grid struct {
	X, Y, Z int32
}

// Add returns g translated by o.
func (g Grid) Add(o Grid) Grid {
	return Grid{X: g.X + o.X, Y: g.Y + o.Y, Z: g.Z + o.Z}
}

// Sub returns g - o.
func (g Grid) Sub(o Grid) Grid {
	return Grid{X: g.X - o.X, Y: g.Y - o.Y, Z: g.Z - o.Z}
}

// Neg returns -g.
func (g Grid) Neg() Grid {
	return Grid{X: -g.X, Y: -g.Y, Z: -g.Z}
}

func (g Grid) String() string {
	return fmt.Sprintf("(%d,%d,%d)", g.X, g.Y, g.Z)
}

func (h NodeHandle) String() string {
	if h == Invalid {
		return "invalid"
	}
	p := Position(h)
	return fmt.Sprintf("%#x@(%.2f,%.2f,%.2f)", uint64(h), p[0], p[1], p[2])
}

// Handle returns the node handle of the cell containing v.
// Components outside the representable world are clamped.
func Handle(v Vec3) NodeHandle {
	if v == (Vec3{}) {
		return Invalid
	}
	return pack(cellOf(v))
}

func cellOf(v Vec3) Grid {
	x := clamp(float64(v[0]), minX, maxX)
	y := clamp(float64(v[1]), minX, maxX)
	z := clamp(float64(v[2]), minZ, maxZ)
	return Grid{
		X: int32(math.Round((x + MapRadius) / GridScale)),
		Y: int32(math.Round((y + MapRadius) / GridScale)),
		Z: int32(math.Round((z + ZDepth) / ZScale)),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pack(g Grid) NodeHandle {
	nx, ny, nz := uint64(g.X), uint64(g.Y), uint64(g.Z)
	rx, ry, rz := nx>>RegionShift, ny>>RegionShift, nz>>RegionShift
	return NodeHandle(rx<<56 | ry<<48 | rz<<WorldBits | nx<<xShift | ny<<yShift | nz)
}

// Position returns the world position of the cell center.
// Invalid maps to the zero vector.
func Position(h NodeHandle) Vec3 {
	if h == Invalid {
		return Vec3{}
	}
	g := Cell(h)
	return Vec3{
		float32(float64(g.X)*GridScale - MapRadius),
		float32(float64(g.Y)*GridScale - MapRadius),
		float32(float64(g.Z)*ZScale - ZDepth),
	}
}

// Cell returns the integer grid coordinates of h.
func Cell(h NodeHandle) Grid {
	u := uint64(h)
	return Grid{
		X: int32((u >> xShift) & xMask),
		Y: int32((u >> yShift) & yMask),
		Z: int32(u & zMask),
	}
}

// FromCell returns the handle of grid cell g, or Invalid if g lies outside
// the world or is the origin cell.
func FromCell(g Grid) NodeHandle {
	if g.X < 0 || g.X > maxNX || g.Y < 0 || g.Y > maxNY || g.Z < 0 || g.Z > maxNZ {
		return Invalid
	}
	if g == originCell {
		return Invalid
	}
	return pack(g)
}

// Region returns the region containing h.
func Region(h NodeHandle) RegionHandle {
	return RegionHandle(uint64(h) >> WorldBits)
}

// RegionOf returns the region containing v.
func RegionOf(v Vec3) RegionHandle {
	return Region(Handle(v))
}

// Shard returns the directory bucket of a region.
func (r RegionHandle) Shard() uint32 {
	return uint32(r) >> RegionShift
}

// Chebyshev returns the maximum per-axis grid distance between a and b.
func Chebyshev(a, b NodeHandle) int32 {
	d := Cell(a).Sub(Cell(b))
	return max(abs(d.X), abs(d.Y), abs(d.Z))
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Distance returns the Euclidean distance between the cell centers of a and b.
func Distance(a, b NodeHandle) float32 {
	return Position(a).Sub(Position(b)).Len()
}

// DistanceSq returns the squared Euclidean distance between the cell centers
// of a and b.
func DistanceSq(a, b NodeHandle) float32 {
	d := Position(a).Sub(Position(b))
	return d.Dot(d)
}
