package edges

import (
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/navgraph/handle"
)

// RegionLoader is notified the first time a region is materialized in a
// Table. Implementations must not block; loaded records are handed back
// through Table.LoadRecords.
type RegionLoader interface {
	RegionNeeded(r handle.RegionHandle)
}

// Option configures a Table.
type Option func(*Table)

// WithLoader sets the region loader.
func WithLoader(l RegionLoader) Option {
	return func(t *Table) {
		t.loader = l
	}
}

// WithClock overrides the clock used for region access times.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		t.now = now
	}
}

// region holds the records of one region behind a single mutex.
type region struct {
	mu      sync.Mutex
	nodes   map[handle.NodeHandle]Record
	touched atomic.Int64
	// dropped is set under mu when the region is evicted; writers holding a
	// stale pointer look the region up again.
	dropped bool
}

// Table is a concurrent map from node handle to Record, partitioned by
// region. Every mutation is an atomic read-modify-write under the region
// lock, and every effective change marks the region dirty.
type Table struct {
	mu      sync.RWMutex
	regions map[handle.RegionHandle]*region

	dirtyMu sync.Mutex
	dirty   *roaring.Bitmap

	loader RegionLoader
	now    func() time.Time
}

// New creates an empty Table.
func New(opts ...Option) *Table {
	t := &Table{
		regions: make(map[handle.RegionHandle]*region),
		dirty:   roaring.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetLoader sets the region loader after construction.
func (t *Table) SetLoader(l RegionLoader) {
	t.mu.Lock()
	t.loader = l
	t.mu.Unlock()
}

func (t *Table) region(r handle.RegionHandle) *region {
	t.mu.RLock()
	reg, ok := t.regions[r]
	t.mu.RUnlock()
	if ok {
		reg.touched.Store(t.now().UnixNano())
		return reg
	}

	t.mu.Lock()
	reg, ok = t.regions[r]
	if !ok {
		reg = &region{nodes: make(map[handle.NodeHandle]Record)}
		t.regions[r] = reg
	}
	loader := t.loader
	t.mu.Unlock()

	reg.touched.Store(t.now().UnixNano())
	if !ok && loader != nil {
		loader.RegionNeeded(r)
	}
	return reg
}

// Get returns the record of h, or Empty.
func (t *Table) Get(h handle.NodeHandle) Record {
	if h == handle.Invalid {
		return Empty
	}
	reg := t.region(handle.Region(h))
	reg.mu.Lock()
	rec := reg.nodes[h]
	reg.mu.Unlock()
	return rec
}

// Has reports whether h has a record.
func (t *Table) Has(h handle.NodeHandle) bool {
	if h == handle.Invalid {
		return false
	}
	reg := t.region(handle.Region(h))
	reg.mu.Lock()
	_, ok := reg.nodes[h]
	reg.mu.Unlock()
	return ok
}

// Update atomically replaces the record of h with fn(old). The region is
// marked dirty when the record changes.
func (t *Table) Update(h handle.NodeHandle, fn func(Record) Record) (old, updated Record) {
	if h == handle.Invalid {
		return Empty, Empty
	}
	r := handle.Region(h)
	reg := t.lockRegion(r)

	old, exists := reg.nodes[h]
	updated = fn(old)
	if updated != old || !exists {
		reg.nodes[h] = updated
		t.MarkDirty(r)
	}
	reg.mu.Unlock()
	return old, updated
}

// lockRegion returns the resident region r with its lock held.
func (t *Table) lockRegion(r handle.RegionHandle) *region {
	for {
		reg := t.region(r)
		reg.mu.Lock()
		if !reg.dropped {
			return reg
		}
		reg.mu.Unlock()
	}
}

// Remove deletes the record of h.
func (t *Table) Remove(h handle.NodeHandle) bool {
	if h == handle.Invalid {
		return false
	}
	r := handle.Region(h)
	reg := t.lockRegion(r)
	defer reg.mu.Unlock()

	_, ok := reg.nodes[h]
	if ok {
		delete(reg.nodes, h)
		t.MarkDirty(r)
	}
	return ok
}

// HasEdges reports whether h has at least one neighbor.
func (t *Table) HasEdges(h handle.NodeHandle) bool {
	return t.Get(h).HasEdges()
}

// HasEdge reports whether the directed edge a->b is set.
func (t *Table) HasEdge(a, b handle.NodeHandle) bool {
	i, ok := handle.EdgeBit(a, b)
	if !ok {
		return false
	}
	return t.Get(a).Has(i)
}

// SetEdge sets or clears the directed edge a->b. It returns false if b is
// not one of the 30 neighbors of a. Both regions are marked dirty.
func (t *Table) SetEdge(a, b handle.NodeHandle, v bool) bool {
	i, ok := handle.EdgeBit(a, b)
	if !ok {
		return false
	}
	t.Update(a, func(r Record) Record { return r.With(i, v) })
	t.MarkDirty(handle.Region(b))
	return true
}

// AddEdge sets the directed edge a->b.
func (t *Table) AddEdge(a, b handle.NodeHandle) bool {
	return t.SetEdge(a, b, true)
}

// RemoveEdge clears the directed edge a->b.
func (t *Table) RemoveEdge(a, b handle.NodeHandle) bool {
	return t.SetEdge(a, b, false)
}

// IsGrown reports whether h has been grown.
func (t *Table) IsGrown(h handle.NodeHandle) bool {
	return t.Get(h).Grown()
}

// SetGrown sets the grown flag of h.
func (t *Table) SetGrown(h handle.NodeHandle, v bool) {
	t.Update(h, func(r Record) Record { return r.WithFlag(GrownFlag, v) })
}

// IsCover reports whether h is flagged as cover.
func (t *Table) IsCover(h handle.NodeHandle) bool {
	return t.Get(h).Cover()
}

// SetCover sets the cover flag of h.
func (t *Table) SetCover(h handle.NodeHandle, v bool) {
	t.Update(h, func(r Record) Record { return r.WithFlag(CoverFlag, v) })
}

// Clearance returns the clearance of h, 0 when unknown.
func (t *Table) Clearance(h handle.NodeHandle) int {
	return t.Get(h).Clearance()
}

// SetClearance sets the clearance of h, clamped to [0,15].
func (t *Table) SetClearance(h handle.NodeHandle, c int) {
	t.Update(h, func(r Record) Record { return r.WithClearance(c) })
}

// Block drops every edge of h and marks it grown so growth never revisits
// it. Clearance seeding is left to the caller.
func (t *Table) Block(h handle.NodeHandle) {
	t.Update(h, func(Record) Record { return GrownFlag })
}

// Edges yields the neighbors connected to h.
func (t *Table) Edges(h handle.NodeHandle) iter.Seq[handle.NodeHandle] {
	rec := t.Get(h)
	return func(yield func(handle.NodeHandle) bool) {
		if !rec.HasEdges() {
			return
		}
		for i := range handle.EdgeCount {
			if !rec.Has(i) {
				continue
			}
			n := handle.AddOffset(h, i)
			if n == handle.Invalid {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// MarkDirty flags region r for the next save.
func (t *Table) MarkDirty(r handle.RegionHandle) {
	t.dirtyMu.Lock()
	t.dirty.Add(uint32(r))
	t.dirtyMu.Unlock()
}

// IsDirty reports whether region r has unsaved changes.
func (t *Table) IsDirty(r handle.RegionHandle) bool {
	t.dirtyMu.Lock()
	defer t.dirtyMu.Unlock()
	return t.dirty.Contains(uint32(r))
}

// TakeDirty clears the dirty flag of r and reports whether it was set.
func (t *Table) TakeDirty(r handle.RegionHandle) bool {
	t.dirtyMu.Lock()
	defer t.dirtyMu.Unlock()
	return t.dirty.CheckedRemove(uint32(r))
}

// DirtyRegions returns the dirty regions in ascending order.
func (t *Table) DirtyRegions() []handle.RegionHandle {
	t.dirtyMu.Lock()
	defer t.dirtyMu.Unlock()

	out := make([]handle.RegionHandle, 0, t.dirty.GetCardinality())
	it := t.dirty.Iterator()
	for it.HasNext() {
		out = append(out, handle.RegionHandle(it.Next()))
	}
	return out
}

// DirtyCount returns the number of dirty regions.
func (t *Table) DirtyCount() int {
	t.dirtyMu.Lock()
	defer t.dirtyMu.Unlock()
	return int(t.dirty.GetCardinality())
}

// RegionRecords returns a snapshot of the handles and records of region r,
// sorted by handle.
func (t *Table) RegionRecords(r handle.RegionHandle) ([]handle.NodeHandle, []Record) {
	t.mu.RLock()
	reg, ok := t.regions[r]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	reg.mu.Lock()
	hs := make([]handle.NodeHandle, 0, len(reg.nodes))
	for h := range reg.nodes {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	recs := make([]Record, len(hs))
	for i, h := range hs {
		recs[i] = reg.nodes[h]
	}
	reg.mu.Unlock()

	return hs, recs
}

// LoadRecords inserts persisted records without marking their regions dirty.
// A record already present in memory is merged: flags and adjacency are
// combined and a known in-memory clearance wins.
func (t *Table) LoadRecords(hs []handle.NodeHandle, recs []Record) {
	var cur *region
	curRegion := handle.RegionHandle(0)

	for i, h := range hs {
		if h == handle.Invalid {
			continue
		}
		r := handle.Region(h)
		if cur == nil || r != curRegion {
			if cur != nil {
				cur.mu.Unlock()
			}
			cur = t.regionNoLoad(r)
			curRegion = r
			cur.mu.Lock()
			for cur.dropped {
				cur.mu.Unlock()
				cur = t.regionNoLoad(r)
				cur.mu.Lock()
			}
		}
		rec := recs[i]
		if old, ok := cur.nodes[h]; ok {
			merged := (old | rec) &^ ClearanceMask
			c := old.Clearance()
			if c == 0 {
				c = rec.Clearance()
			}
			rec = merged.WithClearance(c)
		}
		cur.nodes[h] = rec
	}
	if cur != nil {
		cur.mu.Unlock()
	}
}

// regionNoLoad returns region r without notifying the loader.
func (t *Table) regionNoLoad(r handle.RegionHandle) *region {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg, ok := t.regions[r]
	if !ok {
		reg = &region{nodes: make(map[handle.NodeHandle]Record)}
		t.regions[r] = reg
	}
	reg.touched.Store(t.now().UnixNano())
	return reg
}

// RegionInfo describes one resident region.
type RegionInfo struct {
	Region   handle.RegionHandle
	Nodes    int
	LastUsed time.Time
}

// Regions returns the resident regions, least recently used first.
func (t *Table) Regions() []RegionInfo {
	t.mu.RLock()
	out := make([]RegionInfo, 0, len(t.regions))
	for r, reg := range t.regions {
		reg.mu.Lock()
		n := len(reg.nodes)
		reg.mu.Unlock()
		out = append(out, RegionInfo{
			Region:   r,
			Nodes:    n,
			LastUsed: time.Unix(0, reg.touched.Load()),
		})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].Region < out[j].Region
		}
		return out[i].LastUsed.Before(out[j].LastUsed)
	})
	return out
}

// DropRegion evicts region r from memory. A dirty region is kept and
// DropRegion reports false; callers save before dropping. Writes racing the
// drop either land before it, keeping the region, or in a fresh region.
func (t *Table) DropRegion(r handle.RegionHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg, ok := t.regions[r]
	if !ok {
		return false
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if t.IsDirty(r) {
		return false
	}
	reg.dropped = true
	delete(t.regions, r)
	return true
}

// Len returns the number of records in memory.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, reg := range t.regions {
		reg.mu.Lock()
		n += len(reg.nodes)
		reg.mu.Unlock()
	}
	return n
}

// RegionCount returns the number of resident regions.
func (t *Table) RegionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regions)
}

// Reset drops every record and dirty flag.
func (t *Table) Reset() {
	t.mu.Lock()
	t.regions = make(map[handle.RegionHandle]*region)
	t.mu.Unlock()

	t.dirtyMu.Lock()
	t.dirty.Clear()
	t.dirtyMu.Unlock()
}
