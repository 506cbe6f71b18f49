package growth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/world"
	"github.com/hupe1980/navgraph/world/sim"
)

const ground = 10

func newEngine(w *sim.World, opts ...Option) (*Engine, *edges.Table) {
	tbl := edges.New()
	return New(tbl, w, w, nil, opts...), tbl
}

func at(x, y float32) handle.NodeHandle {
	return handle.Handle(handle.Vec3{x, y, ground})
}

func TestGrowOneFlatGround(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	eng, tbl := newEngine(w)

	node := at(20, 20)
	found := eng.GrowOne(t.Context(), node, handle.Position(node), nil)

	assert.Len(t, found, 8)
	assert.True(t, tbl.IsGrown(node))
	assert.False(t, tbl.IsCover(node))
	assert.Equal(t, edges.MaxClearance, tbl.Clearance(node))

	// Eight horizontal neighbors, each connected both ways.
	rec := tbl.Get(node)
	for i := 13; i <= 20; i++ {
		assert.True(t, rec.Has(i), "bit %d", i)
		n := handle.AddOffset(node, i)
		assert.True(t, tbl.HasEdge(n, node))
		assert.Equal(t, edges.MaxClearance, tbl.Clearance(n))
	}
	assert.Equal(t, int64(8), w.Probes())

	// Growing again is a no-op.
	assert.Empty(t, eng.GrowOne(t.Context(), node, handle.Position(node), nil))
	assert.Equal(t, int64(8), w.Probes())
}

func TestGrowOneOutOfRange(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	eng, tbl := newEngine(w, WithMaxRange(5))

	node := at(20, 20)
	assert.Empty(t, eng.GrowOne(t.Context(), node, handle.Vec3{40, 20, ground}, nil))
	assert.False(t, tbl.IsGrown(node))
	assert.Zero(t, w.Probes())
	assert.Empty(t, eng.GrowOne(t.Context(), handle.Invalid, handle.Vec3{}, nil))
}

func TestGrowStopsAtWall(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	w.AddWall(handle.Vec3{22.4, -50, ground - 1}, handle.Vec3{22.6, 50, ground + 5})
	eng, tbl := newEngine(w, WithMaxRange(4))

	start := at(20, 20)
	stats := eng.Grow(t.Context(), start, handle.Position(start), 5*time.Second)
	require.Positive(t, stats.Grown)

	wallSide := at(22, 20)
	assert.True(t, tbl.IsGrown(wallSide))
	assert.True(t, tbl.IsCover(wallSide))
	assert.Equal(t, 1, tbl.Clearance(wallSide))
	assert.Equal(t, 2, tbl.Clearance(at(21.5, 20)))
	assert.Equal(t, 3, tbl.Clearance(at(21, 20)))

	for y := float32(17); y <= 23; y += 0.5 {
		a := at(22, y)
		for n := range tbl.Edges(a) {
			assert.LessOrEqual(t, handle.Position(n)[0], float32(22), "edge crosses wall at y=%v", y)
		}
	}
	assert.False(t, tbl.Has(at(23, 20)), "far side is never reached")
	assert.Positive(t, eng.Covers())
}

func TestGrowPassesDoors(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	w.AddDoor(handle.Vec3{22.4, 18, ground - 1}, handle.Vec3{22.6, 22, ground + 3}, 7)
	eng, tbl := newEngine(w, WithDoors(w))

	node := at(22, 20)
	eng.GrowOne(t.Context(), node, handle.Position(node), eng.Doors(t.Context(), handle.Position(node)))
	assert.True(t, tbl.HasEdge(node, at(22.5, 20)))
	assert.False(t, tbl.IsCover(node))

	// Without the door set the same probe marks cover.
	eng2, tbl2 := newEngine(w)
	eng2.GrowOne(t.Context(), node, handle.Position(node), nil)
	assert.False(t, tbl2.HasEdge(node, at(22.5, 20)))
	assert.True(t, tbl2.IsCover(node))
}

func TestGrowPermeableMaterialSkipsWithoutCover(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	w.AddBox(sim.Box{
		Min:      handle.Vec3{22.4, 18, ground - 1},
		Max:      handle.Vec3{22.6, 22, ground + 3},
		Material: world.MaterialBushes,
	})
	eng, tbl := newEngine(w)

	node := at(22, 20)
	eng.GrowOne(t.Context(), node, handle.Position(node), nil)
	assert.False(t, tbl.HasEdge(node, at(22.5, 20)))
	assert.False(t, tbl.IsCover(node))
	assert.Equal(t, edges.MaxClearance, tbl.Clearance(node))
}

func TestGrowCeilingHitIsNotCover(t *testing.T) {
	w := sim.NewWorld(func(x, _ float32) float32 {
		if x > 25.25 {
			return ground + 0.5
		}
		return ground
	})
	// A low overhang above the step: the climbing probe meets its underside.
	w.AddBox(sim.Box{
		Min:      handle.Vec3{25.2, 18, ground + 0.35},
		Max:      handle.Vec3{26, 22, ground + 1},
		Material: world.MaterialConcrete,
	})
	eng, tbl := newEngine(w)

	node := at(25, 20)
	eng.GrowOne(t.Context(), node, handle.Position(node), nil)

	upper := handle.Handle(handle.Vec3{25.5, 20, ground + 0.5})
	assert.False(t, tbl.HasEdge(node, upper))
	assert.False(t, tbl.IsCover(node))
	assert.True(t, tbl.HasEdges(node))
}

func TestGrowStepUp(t *testing.T) {
	w := sim.NewWorld(func(x, _ float32) float32 {
		if x > 25.25 {
			return ground + 0.5
		}
		return ground
	})
	eng, tbl := newEngine(w)

	node := at(25, 20)
	eng.GrowOne(t.Context(), node, handle.Position(node), nil)

	upper := handle.Handle(handle.Vec3{25.5, 20, ground + 0.5})
	assert.True(t, tbl.HasEdge(node, upper))
	bit, _ := handle.EdgeBit(node, upper)
	assert.Less(t, bit, 4, "step-up offsets are bits 0-3")
	assert.False(t, tbl.HasEdge(upper, node), "a two-level drop has no edge bit")
}

func TestGrowRespectsBudget(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	w.ProbeDelay = 2 * time.Millisecond
	eng, _ := newEngine(w)

	start := at(20, 20)
	stats := eng.Grow(t.Context(), start, handle.Position(start), 20*time.Millisecond)

	assert.Positive(t, stats.Grown)
	assert.Less(t, stats.Elapsed, 500*time.Millisecond)
	assert.Positive(t, stats.Requeued)
	assert.Equal(t, eng.Frontier().Len(), stats.Frontier)
	assert.Positive(t, eng.GrowthRate())
	assert.NotEqual(t, handle.Invalid, eng.LastGrown())
}

func TestGrowFallsBackToFrontier(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	eng, tbl := newEngine(w, WithMaxRange(2))

	a := at(20, 20)
	eng.Frontier().Push(a)
	stats := eng.Grow(t.Context(), handle.Invalid, handle.Position(a), 5*time.Second)

	assert.Positive(t, stats.Grown)
	assert.True(t, tbl.IsGrown(a))
	ref := handle.Position(a)
	for _, h := range eng.Frontier().Snapshot() {
		assert.False(t, eng.InRange(h, ref), "in-range node %s left ungrown", h)
		assert.False(t, tbl.IsGrown(h))
	}
}

func TestGrowKeepsOutOfRangeFrontier(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	eng, tbl := newEngine(w, WithMaxRange(2))

	near, far := at(20, 20), at(40, 40)
	eng.Frontier().Push(far)
	eng.Frontier().Push(near)

	stats := eng.Grow(t.Context(), handle.Invalid, handle.Position(near), 5*time.Second)
	assert.Positive(t, stats.Grown)
	assert.False(t, tbl.IsGrown(far))
	assert.Contains(t, eng.Frontier().Snapshot(), far)

	// Once the reference moves close, the kept node is grown.
	eng.Grow(t.Context(), handle.Invalid, handle.Position(far), 5*time.Second)
	assert.True(t, tbl.IsGrown(far))
}

func TestGrowCanceled(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	eng, tbl := newEngine(w)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	start := at(20, 20)
	stats := eng.Grow(ctx, start, handle.Position(start), time.Second)
	assert.Zero(t, stats.Grown)
	assert.False(t, tbl.IsGrown(start))
	assert.Equal(t, 1, eng.Frontier().Len(), "start is kept for later")
}

func TestTrackAgent(t *testing.T) {
	w := sim.NewFlatWorld(ground)
	eng, tbl := newEngine(w)

	a, b := at(20, 20), at(20.5, 20)
	assert.True(t, eng.TrackAgent(a, b))
	assert.True(t, tbl.HasEdge(a, b))
	assert.False(t, tbl.HasEdge(b, a))

	assert.False(t, eng.TrackAgent(a, a))
	assert.False(t, eng.TrackAgent(handle.Invalid, a))
	assert.False(t, eng.TrackAgent(a, at(30, 20)))
}

func TestFrontier(t *testing.T) {
	f := NewFrontier()
	a, b := at(1, 1), at(2, 2)

	assert.True(t, f.Push(a))
	assert.False(t, f.Push(a), "deduplicated")
	assert.True(t, f.Push(b))
	assert.False(t, f.Push(handle.Invalid))
	assert.Equal(t, []handle.NodeHandle{a, b}, f.Snapshot())

	h, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, a, h)
	assert.True(t, f.Push(a), "requeue after pop")

	g := NewFrontier()
	assert.Equal(t, 2, g.Restore(f.Snapshot()))
	assert.Equal(t, 2, g.Len())
}

func TestMovingAverage(t *testing.T) {
	m := NewMovingAverage(3)
	assert.Zero(t, m.Value())
	m.Add(3)
	m.Add(6)
	assert.InDelta(t, 4.5, m.Value(), 1e-9)
	m.Add(9)
	m.Add(12)
	assert.InDelta(t, 9, m.Value(), 1e-9)
}
