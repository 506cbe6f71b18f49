// Package sim is a synthetic voxel world: a height field plus solid boxes
// and dynamic obstacles. It stands in for a game host in tests and in the
// simulate command.
package sim

import (
	"context"
	"iter"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/world"
)

// Box is an axis-aligned solid in a synthetic world.
type Box struct {
	Min, Max handle.Vec3
	Material world.Material
	Entity   world.EntityRef
}

// World is a synthetic voxel world: a height field plus solid boxes. It
// implements world.Prober, world.GroundSnapper, world.ObstacleFeed and
// world.DoorFeed.
type World struct {
	mu        sync.RWMutex
	height    func(x, y float32) float32
	boxes     []Box
	obstacles []world.Obstacle
	doors     []world.EntityRef

	// ProbeDelay slows every probe down, for budget tests.
	ProbeDelay time.Duration
	probes     atomic.Int64
}

var (
	_ world.Prober        = (*World)(nil)
	_ world.GroundSnapper = (*World)(nil)
	_ world.ObstacleFeed  = (*World)(nil)
	_ world.DoorFeed      = (*World)(nil)
)

// NewFlatWorld creates a world whose ground is the plane z = ground.
func NewFlatWorld(ground float32) *World {
	return &World{height: func(float32, float32) float32 { return ground }}
}

// NewWorld creates a world with the given height field.
func NewWorld(height func(x, y float32) float32) *World {
	return &World{height: height}
}

// AddBox adds a solid.
func (w *World) AddBox(b Box) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.boxes = append(w.boxes, b)
}

// AddWall adds a vertical concrete wall spanning [min, max].
func (w *World) AddWall(min, max handle.Vec3) {
	w.AddBox(Box{Min: min, Max: max, Material: world.MaterialConcrete})
}

// AddDoor adds a solid door entity that growth may pass through.
func (w *World) AddDoor(min, max handle.Vec3, ref world.EntityRef) {
	w.AddBox(Box{Min: min, Max: max, Material: world.MaterialWood, Entity: ref})
	w.mu.Lock()
	w.doors = append(w.doors, ref)
	w.mu.Unlock()
}

// AddObstacle adds a dynamic obstacle to the feed.
func (w *World) AddObstacle(o world.Obstacle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.obstacles = append(w.obstacles, o)
}

// ClearObstacles empties the obstacle feed.
func (w *World) ClearObstacles() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.obstacles = nil
}

// Probes returns the number of probes answered.
func (w *World) Probes() int64 { return w.probes.Load() }

// Ground returns the ground height at x, y.
func (w *World) Ground(x, y float32) float32 {
	return w.height(x, y)
}

// SnapToGround implements world.GroundSnapper. Ground higher than
// pos.z+offset is out of reach and pos is returned unchanged.
func (w *World) SnapToGround(pos handle.Vec3, offset float32) handle.Vec3 {
	z := w.height(pos[0], pos[1])
	if z > pos[2]+offset {
		return pos
	}
	return handle.Vec3{pos[0], pos[1], z}
}

// Probe implements world.Prober by sweeping a capsule, approximated as the
// segment against every box inflated by the radius.
func (w *World) Probe(ctx context.Context, req world.ProbeRequest) world.ProbeResult {
	w.probes.Add(1)
	if w.ProbeDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(w.ProbeDelay):
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	best := world.ProbeResult{}
	bestT := float32(math.MaxFloat32)
	for _, b := range w.boxes {
		if b.Entity != world.NoEntity && b.Entity == req.Ignore {
			continue
		}
		r := handle.Vec3{req.Radius, req.Radius, req.Radius}
		t, n, ok := segmentBox(req.From, req.To, b.Min.Sub(r), b.Max.Add(r))
		if !ok || t >= bestT {
			continue
		}
		bestT = t
		best = world.ProbeResult{
			Hit:      true,
			Position: req.From.Add(req.To.Sub(req.From).Mul(t)),
			Normal:   n,
			Material: b.Material,
			Entity:   b.Entity,
		}
	}
	return best
}

// segmentBox intersects the segment a->b with an AABB using the slab
// method. It returns the entry parameter in [0,1] and the entry normal.
func segmentBox(a, b, lo, hi handle.Vec3) (float32, handle.Vec3, bool) {
	d := b.Sub(a)
	tmin, tmax := float32(0), float32(1)
	axis, sign := -1, float32(0)

	for i := range 3 {
		if d[i] == 0 {
			if a[i] < lo[i] || a[i] > hi[i] {
				return 0, handle.Vec3{}, false
			}
			continue
		}
		inv := 1 / d[i]
		t1 := (lo[i] - a[i]) * inv
		t2 := (hi[i] - a[i]) * inv
		s := float32(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			s = 1
		}
		if t1 > tmin {
			tmin = t1
			axis, sign = i, s
		}
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, handle.Vec3{}, false
		}
	}

	var n handle.Vec3
	if axis < 0 {
		// Starts inside: report the dominant horizontal axis against the
		// direction of travel.
		axis = 0
		if abs32(d[1]) > abs32(d[0]) {
			axis = 1
		}
		sign = -1
		if d[axis] < 0 {
			sign = 1
		}
	}
	n[axis] = sign
	return tmin, n, true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Obstacles implements world.ObstacleFeed.
func (w *World) Obstacles(_ context.Context, center handle.Vec3, radius float32) iter.Seq[world.Obstacle] {
	w.mu.RLock()
	obs := make([]world.Obstacle, 0, len(w.obstacles))
	for _, o := range w.obstacles {
		d := o.Center().Sub(center)
		if d.Dot(d) <= radius*radius {
			obs = append(obs, o)
		}
	}
	w.mu.RUnlock()

	return func(yield func(world.Obstacle) bool) {
		for _, o := range obs {
			if !yield(o) {
				return
			}
		}
	}
}

// Doors implements world.DoorFeed.
func (w *World) Doors(context.Context, handle.Vec3) []world.EntityRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]world.EntityRef(nil), w.doors...)
}
