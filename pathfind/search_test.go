package pathfind

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/testutil"
)

// base is a cell well away from the origin sentinel.
var base = handle.Cell(handle.Handle(handle.Vec3{100, 100, 10}))

func cell(dx, dy int32) handle.NodeHandle {
	return handle.FromCell(base.Add(handle.Grid{X: dx, Y: dy}))
}

func flatLattice(t *testing.T, lo, hi int32) *edges.Table {
	t.Helper()
	tbl := edges.New()
	testutil.Lattice(tbl, base.Add(handle.Grid{X: lo, Y: lo}), base.Add(handle.Grid{X: hi, Y: hi}))
	return tbl
}

func assertWalkable(t *testing.T, tbl *edges.Table, p *Path) {
	t.Helper()
	nodes := p.Nodes()
	seen := make(map[handle.NodeHandle]bool, len(nodes))
	for i, n := range nodes {
		assert.False(t, seen[n], "node %s revisited", n)
		seen[n] = true
		if i > 0 {
			assert.True(t, tbl.HasEdge(nodes[i-1], n), "no edge %s->%s", nodes[i-1], n)
		}
	}
}

func TestFindPathOpenGridMatchesChebyshev(t *testing.T) {
	tbl := flatLattice(t, 0, 15)
	rng := testutil.NewRNG(7)

	for range 25 {
		start := cell(int32(rng.Intn(16)), int32(rng.Intn(16)))
		target := cell(int32(rng.Intn(16)), int32(rng.Intn(16)))
		if start == target {
			continue
		}
		p, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, Budget: 5 * time.Second})
		require.NoError(t, err)

		nodes := p.Nodes()
		assert.Equal(t, start, nodes[0])
		assert.LessOrEqual(t, handle.DistanceSq(nodes[len(nodes)-1], target), float32(ArriveDistSq))
		assert.InDelta(t, handle.Chebyshev(start, target), p.Steps(), 1)
		assertWalkable(t, tbl, p)
	}
}

func TestFindPathStraightAlongX(t *testing.T) {
	tbl := flatLattice(t, -3, 14)
	start := cell(0, 0)
	target := handle.Handle(handle.Position(start).Add(handle.Vec3{5, 0, 0}))

	p, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, Budget: 5 * time.Second})
	require.NoError(t, err)
	require.Equal(t, 10, p.Steps())

	pos := p.Positions()
	for i := 1; i < len(pos); i++ {
		step := pos[i].Sub(pos[i-1])
		assert.InDelta(t, 0.5, step[0], 1e-4)
		assert.InDelta(t, 0, step[1], 1e-4)
		assert.InDelta(t, 0, step[2], 1e-4)
	}
	assert.Equal(t, target, p.Nodes()[10])
}

func TestFindPathWall(t *testing.T) {
	tbl := flatLattice(t, -3, 14)
	start := cell(0, 0)
	target := cell(10, 0)

	wall := NewBlockedSet()
	for y := int32(-3); y <= 14; y++ {
		wall.Add(cell(5, y))
	}

	_, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, Blocked: wall, Budget: 5 * time.Second})
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Positive(t, ex.Expanded)

	// A gap at the edge of the wall forces a detour in Y.
	gapped := NewBlockedSet()
	for y := int32(-3); y <= 11; y++ {
		gapped.Add(cell(5, y))
	}
	p, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, Blocked: gapped, Budget: 5 * time.Second})
	require.NoError(t, err)
	assert.Greater(t, p.Steps(), 10)
	for _, n := range p.Nodes() {
		assert.False(t, gapped.Contains(n))
	}
	assertWalkable(t, tbl, p)
}

func TestFindPathNeverEntersBlocked(t *testing.T) {
	tbl := flatLattice(t, 0, 19)
	rng := testutil.NewRNG(42)
	start, target := cell(0, 0), cell(19, 19)

	for range 20 {
		blocked := NewBlockedSet()
		for range 60 {
			h := cell(int32(rng.Intn(20)), int32(rng.Intn(20)))
			if h != start && h != target {
				blocked.Add(h)
			}
		}
		p, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, Blocked: blocked, Budget: 5 * time.Second})
		if err != nil {
			require.ErrorIs(t, err, ErrExhausted)
			continue
		}
		for _, n := range p.Nodes() {
			assert.False(t, blocked.Contains(n), "path enters blocked node %s", n)
		}
		assertWalkable(t, tbl, p)
	}
}

func TestFindPathClearanceFloor(t *testing.T) {
	tbl := flatLattice(t, -3, 14)
	// A low-clearance band across x=5 with one open cell at y=8.
	for y := int32(-3); y <= 14; y++ {
		if y != 8 {
			tbl.SetClearance(cell(5, y), 2)
		}
	}
	start, target := cell(0, 0), cell(10, 0)

	p, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, ClearanceFloor: 5, Budget: 5 * time.Second})
	require.NoError(t, err)
	assert.Contains(t, p.Nodes(), cell(5, 8))

	// Without a floor the band is crossed, but not for free.
	p, err = FindPath(t.Context(), tbl, Query{Start: start, Target: target, Budget: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 10, p.Steps())
}

func TestFindPathFailures(t *testing.T) {
	tbl := flatLattice(t, 0, 5)
	start, target := cell(0, 0), cell(5, 5)

	t.Run("InvalidStart", func(t *testing.T) {
		_, err := FindPath(t.Context(), tbl, Query{Target: target})
		assert.ErrorIs(t, err, ErrInvalidStart)
	})
	t.Run("InvalidTarget", func(t *testing.T) {
		_, err := FindPath(t.Context(), tbl, Query{Start: start})
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})
	t.Run("TargetBlocked", func(t *testing.T) {
		_, err := FindPath(t.Context(), tbl, Query{Start: start, Target: target, Blocked: NewBlockedSet(target)})
		assert.ErrorIs(t, err, ErrTargetBlocked)
	})
	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := FindPath(ctx, tbl, Query{Start: start, Target: target})
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("Isolated", func(t *testing.T) {
		_, err := FindPath(t.Context(), edges.New(), Query{Start: start, Target: target})
		var ex *ExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, 1, ex.Expanded)
	})
	t.Run("Budget", func(t *testing.T) {
		big := flatLattice(t, 0, 60)
		_, err := FindPath(t.Context(), big, Query{Start: cell(0, 0), Target: cell(60, 60), Budget: time.Nanosecond})
		var be *BudgetExceededError
		require.ErrorAs(t, err, &be)
		assert.ErrorIs(t, err, ErrBudgetExceeded)
		assert.Equal(t, cell(60, 60), be.Target)
	})
}

func TestFindPathReportsProgress(t *testing.T) {
	tbl := flatLattice(t, 0, 10)
	var prog Progress
	_, err := FindPath(t.Context(), tbl, Query{Start: cell(0, 0), Target: cell(10, 0), Progress: &prog, Budget: 5 * time.Second})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, prog.Expanded(), 10)
	assert.LessOrEqual(t, prog.BestDistance(), float32(0.71))
	assert.NotEqual(t, handle.Invalid, prog.Best())
}

func BenchmarkFindPath(b *testing.B) {
	tbl := edges.New()
	testutil.Lattice(tbl, base, base.Add(handle.Grid{X: 40, Y: 40}))
	q := Query{Start: cell(0, 0), Target: cell(40, 33), Budget: time.Minute}

	b.ResetTimer()
	for b.Loop() {
		if _, err := FindPath(context.Background(), tbl, q); err != nil {
			b.Fatal(err)
		}
	}
}
