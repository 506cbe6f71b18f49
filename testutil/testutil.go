package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Vec3 returns a position uniformly distributed in the box [lo, hi).
func (r *RNG) Vec3(lo, hi handle.Vec3) handle.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var v handle.Vec3
	for i := range v {
		v[i] = lo[i] + r.rand.Float32()*(hi[i]-lo[i])
	}
	return v
}

// Record returns a random edge record with every defined bit populated at
// random and clearance in [0,15].
func (r *RNG) Record() edges.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := edges.Record(r.rand.Uint64()) & (edges.EdgeMask | edges.GrownFlag | edges.CoverFlag)
	return rec.WithClearance(r.rand.Intn(edges.MaxClearance + 1))
}

// Handles returns n distinct random handles inside the cell box [lo, hi).
func (r *RNG) Handles(n int, lo, hi handle.Grid) []handle.NodeHandle {
	seen := make(map[handle.NodeHandle]struct{}, n)
	out := make([]handle.NodeHandle, 0, n)

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(out) < n {
		g := handle.Grid{
			X: lo.X + int32(r.rand.Intn(int(hi.X-lo.X))),
			Y: lo.Y + int32(r.rand.Intn(int(hi.Y-lo.Y))),
			Z: lo.Z + int32(r.rand.Intn(int(hi.Z-lo.Z))),
		}
		h := handle.FromCell(g)
		if h == handle.Invalid {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// RandomTable fills a table with n random records inside the cell box
// [lo, hi) and returns the expected contents.
func (r *RNG) RandomTable(n int, lo, hi handle.Grid) (*edges.Table, map[handle.NodeHandle]edges.Record) {
	tbl := edges.New()
	want := make(map[handle.NodeHandle]edges.Record, n)
	for _, h := range r.Handles(n, lo, hi) {
		rec := r.Record()
		tbl.Update(h, func(edges.Record) edges.Record { return rec })
		want[h] = rec
	}
	return tbl, want
}

// Lattice connects every cell in the box [lo, hi] to each of its in-box
// neighbors that does not climb two levels, giving an open walkable grid.
// Every node gets clearance 15. It returns the nodes in x, y, z order.
func Lattice(tbl *edges.Table, lo, hi handle.Grid) []handle.NodeHandle {
	inside := func(g handle.Grid) bool {
		return g.X >= lo.X && g.X <= hi.X && g.Y >= lo.Y && g.Y <= hi.Y && g.Z >= lo.Z && g.Z <= hi.Z
	}
	var nodes []handle.NodeHandle
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				g := handle.Grid{X: x, Y: y, Z: z}
				h := handle.FromCell(g)
				if h == handle.Invalid {
					continue
				}
				nodes = append(nodes, h)
				for i := 4; i < handle.EdgeCount; i++ {
					if n := g.Add(handle.Offset(i)); inside(n) {
						tbl.AddEdge(h, handle.FromCell(n))
					}
				}
				tbl.Update(h, func(rec edges.Record) edges.Record {
					return rec.WithFlag(edges.GrownFlag, true).WithClearance(edges.MaxClearance)
				})
			}
		}
	}
	return nodes
}
