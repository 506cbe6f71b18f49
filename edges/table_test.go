package edges

import (
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/handle"
)

func TestRecordBits(t *testing.T) {
	var r Record
	r = r.With(0, true).With(29, true)
	assert.True(t, r.Has(0))
	assert.True(t, r.Has(29))
	assert.False(t, r.Has(1))
	assert.True(t, r.HasEdges())

	r = r.WithFlag(GrownFlag, true).WithFlag(CoverFlag, true).WithClearance(7)
	assert.True(t, r.Grown())
	assert.True(t, r.Cover())
	assert.Equal(t, 7, r.Clearance())
	assert.Equal(t, Record(1|1<<29), r.Edges())

	assert.Equal(t, MaxClearance, r.WithClearance(99).Clearance())
	assert.Equal(t, 0, r.WithClearance(-3).Clearance())

	r = r.With(0, false).With(29, false)
	assert.False(t, r.HasEdges())
	assert.True(t, r.Grown(), "edge changes never touch flags")
	assert.Equal(t, 7, r.Clearance())
}

func TestSetEdgeToggle(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tbl := New()

	for range 500 {
		a := handle.Handle(handle.Vec3{
			float32(rng.Float64()*500 + 1),
			float32(rng.Float64()*500 + 1),
			float32(rng.Float64()*50 + 1),
		})
		bit := rng.IntN(handle.EdgeCount)
		b := handle.AddOffset(a, bit)

		// Random pre-state.
		pre := Record(rng.Uint64()) & (EdgeMask | GrownFlag | CoverFlag | ClearanceMask)
		tbl.Update(a, func(Record) Record { return pre })

		require.True(t, tbl.SetEdge(a, b, true))
		after := tbl.Get(a)
		assert.True(t, after.Has(bit))
		assert.True(t, tbl.HasEdge(a, b))
		assert.Equal(t, pre&^(1<<bit), after&^(1<<bit), "unrelated bits changed")

		require.True(t, tbl.SetEdge(a, b, false))
		assert.Equal(t, pre&^(1<<bit), tbl.Get(a))

		if pre.Has(bit) {
			tbl.SetEdge(a, b, true)
		}
		assert.Equal(t, pre, tbl.Get(a))
	}
}

func TestSetEdgeRejectsIllegalDelta(t *testing.T) {
	tbl := New()
	a := handle.Handle(handle.Vec3{10, 10, 10})
	b := handle.Handle(handle.Vec3{11, 10, 10})

	assert.False(t, tbl.SetEdge(a, b, true))
	assert.False(t, tbl.Has(a))
	assert.Zero(t, tbl.DirtyCount())
	assert.False(t, tbl.HasEdge(a, b))
}

func TestSetEdgeMarksBothRegionsDirty(t *testing.T) {
	tbl := New()
	a := handle.FromCell(handle.Grid{X: 127, Y: 300, Z: 300})
	b := handle.AddOffset(a, 16)
	require.NotEqual(t, handle.Region(a), handle.Region(b))

	require.True(t, tbl.AddEdge(a, b))
	assert.True(t, tbl.IsDirty(handle.Region(a)))
	assert.True(t, tbl.IsDirty(handle.Region(b)))
	assert.False(t, tbl.HasEdge(b, a), "edges are directed")

	assert.ElementsMatch(t, []handle.RegionHandle{handle.Region(a), handle.Region(b)}, tbl.DirtyRegions())
	assert.True(t, tbl.TakeDirty(handle.Region(a)))
	assert.False(t, tbl.TakeDirty(handle.Region(a)))
	assert.Equal(t, 1, tbl.DirtyCount())
}

func TestFlagsAndClearance(t *testing.T) {
	tbl := New()
	h := handle.Handle(handle.Vec3{5, 5, 5})

	assert.False(t, tbl.IsGrown(h))
	tbl.SetGrown(h, true)
	assert.True(t, tbl.IsGrown(h))

	tbl.SetCover(h, true)
	assert.True(t, tbl.IsCover(h))
	tbl.SetCover(h, false)
	assert.False(t, tbl.IsCover(h))

	tbl.SetClearance(h, 40)
	assert.Equal(t, MaxClearance, tbl.Clearance(h))
	tbl.SetClearance(h, 3)
	assert.Equal(t, 3, tbl.Clearance(h))
	assert.True(t, tbl.IsGrown(h))
}

func TestEdgesIterator(t *testing.T) {
	tbl := New()
	a := handle.Handle(handle.Vec3{20, 20, 5})
	want := []handle.NodeHandle{
		handle.AddOffset(a, 16),
		handle.AddOffset(a, 0),
		handle.AddOffset(a, 29),
	}
	for _, b := range want {
		require.True(t, tbl.AddEdge(a, b))
	}

	got := slices.Collect(tbl.Edges(a))
	assert.ElementsMatch(t, want, got)
	assert.True(t, tbl.HasEdges(a))
	assert.Empty(t, slices.Collect(tbl.Edges(want[0])))
}

func TestBlockAndRemove(t *testing.T) {
	tbl := New()
	a := handle.Handle(handle.Vec3{30, 30, 5})
	tbl.AddEdge(a, handle.AddOffset(a, 14))
	tbl.SetClearance(a, 9)

	tbl.Block(a)
	rec := tbl.Get(a)
	assert.False(t, rec.HasEdges())
	assert.True(t, rec.Grown())

	assert.True(t, tbl.Remove(a))
	assert.False(t, tbl.Has(a))
	assert.False(t, tbl.Remove(a))
}

func TestLoadRecordsDoesNotDirty(t *testing.T) {
	tbl := New()
	a := handle.Handle(handle.Vec3{40, 40, 5})
	b := handle.Handle(handle.Vec3{40, 41, 5})

	tbl.LoadRecords(
		[]handle.NodeHandle{a, b},
		[]Record{GrownFlag.WithClearance(4), CoverFlag | 1},
	)
	assert.Zero(t, tbl.DirtyCount())
	assert.Equal(t, 4, tbl.Clearance(a))
	assert.True(t, tbl.IsCover(b))

	// Merge keeps in-memory edges and clearance.
	tbl.SetClearance(b, 6)
	tbl.LoadRecords([]handle.NodeHandle{b}, []Record{Record(1 << 5).WithClearance(2)})
	rec := tbl.Get(b)
	assert.True(t, rec.Has(0))
	assert.True(t, rec.Has(5))
	assert.True(t, rec.Cover())
	assert.Equal(t, 6, rec.Clearance())
}

func TestRegionRecordsAndDrop(t *testing.T) {
	tbl := New()
	base := handle.FromCell(handle.Grid{X: 200, Y: 200, Z: 200})
	r := handle.Region(base)

	var want []handle.NodeHandle
	for i := range 10 {
		h := handle.FromCell(handle.Grid{X: 200 + int32(i), Y: 200, Z: 200})
		tbl.SetClearance(h, i+1)
		want = append(want, h)
	}

	hs, recs := tbl.RegionRecords(r)
	require.Len(t, hs, 10)
	assert.True(t, slices.IsSorted(hs))
	assert.ElementsMatch(t, want, hs)
	for i, h := range hs {
		assert.Equal(t, tbl.Get(h), recs[i])
	}

	assert.Equal(t, 10, tbl.Len())
	assert.Equal(t, 1, tbl.RegionCount())
	assert.False(t, tbl.DropRegion(r), "dirty regions stay resident")
	assert.Equal(t, 1, tbl.RegionCount())
	require.True(t, tbl.TakeDirty(r))
	assert.True(t, tbl.DropRegion(r))
	assert.Zero(t, tbl.RegionCount())
	assert.False(t, tbl.DropRegion(r))

	hs, _ = tbl.RegionRecords(r)
	assert.Empty(t, hs)
}

func TestRegionsLeastRecentlyUsedFirst(t *testing.T) {
	now := time.Unix(1000, 0)
	tbl := New(WithClock(func() time.Time { return now }))

	a := handle.FromCell(handle.Grid{X: 10, Y: 10, Z: 10})
	b := handle.FromCell(handle.Grid{X: 1000, Y: 10, Z: 10})
	c := handle.FromCell(handle.Grid{X: 2000, Y: 10, Z: 10})

	for _, h := range []handle.NodeHandle{a, b, c} {
		tbl.SetGrown(h, true)
		now = now.Add(time.Second)
	}
	// Touch a again.
	tbl.Get(a)

	infos := tbl.Regions()
	require.Len(t, infos, 3)
	assert.Equal(t, handle.Region(b), infos[0].Region)
	assert.Equal(t, handle.Region(c), infos[1].Region)
	assert.Equal(t, handle.Region(a), infos[2].Region)
	assert.Equal(t, 1, infos[0].Nodes)
}

type countingLoader struct {
	mu     sync.Mutex
	counts map[handle.RegionHandle]int
}

func (l *countingLoader) RegionNeeded(r handle.RegionHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[r]++
}

func TestLoaderCalledOncePerRegion(t *testing.T) {
	l := &countingLoader{counts: make(map[handle.RegionHandle]int)}
	tbl := New(WithLoader(l))

	a := handle.FromCell(handle.Grid{X: 10, Y: 10, Z: 10})
	b := handle.FromCell(handle.Grid{X: 11, Y: 10, Z: 10})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tbl.Get(a)
			tbl.SetGrown(b, true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, l.counts[handle.Region(a)])

	// Loaded records never trigger the loader.
	c := handle.FromCell(handle.Grid{X: 5000, Y: 10, Z: 10})
	tbl.LoadRecords([]handle.NodeHandle{c}, []Record{GrownFlag})
	tbl.Get(c)
	assert.Zero(t, l.counts[handle.Region(c)])
}

func TestConcurrentUpdatesAreAtomic(t *testing.T) {
	tbl := New()
	h := handle.Handle(handle.Vec3{50, 50, 5})

	var wg sync.WaitGroup
	for i := range handle.EdgeCount {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				tbl.Update(h, func(r Record) Record { return r.With(i, true) })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, EdgeMask, tbl.Get(h).Edges())
}

func TestReset(t *testing.T) {
	tbl := New()
	tbl.SetGrown(handle.Handle(handle.Vec3{1, 2, 3}), true)
	tbl.Reset()
	assert.Zero(t, tbl.Len())
	assert.Zero(t, tbl.DirtyCount())
}

func TestWriteAfterDropLandsInFreshRegion(t *testing.T) {
	tbl := New()
	a := handle.FromCell(handle.Grid{X: 16600, Y: 16600, Z: 800})
	b := handle.FromCell(handle.Grid{X: 16601, Y: 16600, Z: 800})
	r := handle.Region(a)

	tbl.SetGrown(a, true)
	require.True(t, tbl.TakeDirty(r))
	require.True(t, tbl.DropRegion(r))

	tbl.SetGrown(b, true)
	assert.True(t, tbl.IsDirty(r))
	assert.False(t, tbl.DropRegion(r))
	hs, _ := tbl.RegionRecords(r)
	assert.Equal(t, []handle.NodeHandle{b}, hs)
}

func TestConcurrentWritesSurviveDrop(t *testing.T) {
	tbl := New()
	base := handle.Grid{X: 16520, Y: 16600, Z: 800}
	r := handle.Region(handle.FromCell(base))

	// saved accumulates region snapshots the way a store merges a reloaded
	// file with new records.
	saved := make(map[handle.NodeHandle]bool)
	save := func() {
		if !tbl.TakeDirty(r) {
			return
		}
		hs, _ := tbl.RegionRecords(r)
		for _, h := range hs {
			saved[h] = true
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 100 {
			tbl.SetGrown(handle.FromCell(base.Add(handle.Grid{X: int32(i)})), true)
		}
	}()
	for range 500 {
		save()
		tbl.DropRegion(r)
	}
	wg.Wait()
	save()

	for i := range 100 {
		h := handle.FromCell(base.Add(handle.Grid{X: int32(i)}))
		assert.True(t, saved[h], "write %d lost", i)
	}
}
