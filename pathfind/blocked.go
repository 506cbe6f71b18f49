package pathfind

import (
	"context"
	"iter"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/world"
)

const (
	// minObstacleSpan is the smallest horizontal footprint rasterized for an
	// obstacle; thinner boxes are widened until they reach it.
	minObstacleSpan = 1.0
	widenStep       = 0.1
	sampleSlack     = 0.1
)

// BlockedSet is a concurrent set of node handles a search must not enter.
// A nil *BlockedSet is empty.
type BlockedSet struct {
	mu sync.RWMutex
	bm *roaring64.Bitmap
}

// NewBlockedSet creates a set holding hs.
func NewBlockedSet(hs ...handle.NodeHandle) *BlockedSet {
	s := &BlockedSet{bm: roaring64.New()}
	for _, h := range hs {
		s.bm.Add(uint64(h))
	}
	return s
}

// Add inserts h. The invalid handle is ignored.
func (s *BlockedSet) Add(h handle.NodeHandle) {
	if h == handle.Invalid {
		return
	}
	s.mu.Lock()
	s.bm.Add(uint64(h))
	s.mu.Unlock()
}

// Contains reports whether h is blocked.
func (s *BlockedSet) Contains(h handle.NodeHandle) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.Contains(uint64(h))
}

// Len returns the number of blocked handles.
func (s *BlockedSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.bm.GetCardinality())
}

// Union adds every handle of o to s.
func (s *BlockedSet) Union(o *BlockedSet) {
	if o == nil || o == s {
		return
	}
	o.mu.RLock()
	other := o.bm.Clone()
	o.mu.RUnlock()

	s.mu.Lock()
	s.bm.Or(other)
	s.mu.Unlock()
}

// All iterates the blocked handles in ascending order.
func (s *BlockedSet) All() iter.Seq[handle.NodeHandle] {
	return func(yield func(handle.NodeHandle) bool) {
		if s == nil {
			return
		}
		s.mu.RLock()
		snap := s.bm.Clone()
		s.mu.RUnlock()

		it := snap.Iterator()
		for it.HasNext() {
			if !yield(handle.NodeHandle(it.Next())) {
				return
			}
		}
	}
}

// RasterizeBox samples the local box [lo, hi] on the grid, transforms each
// sample by pose and adds the resulting handles to s. Boxes narrower than
// one unit in x or y are widened first so thin props still block a cell.
func (s *BlockedSet) RasterizeBox(pose handle.Mat4, lo, hi handle.Vec3) {
	minX, maxX := min(lo[0], hi[0]), max(lo[0], hi[0])
	minY, maxY := min(lo[1], hi[1]), max(lo[1], hi[1])
	minZ, maxZ := min(lo[2], hi[2]), max(lo[2], hi[2])
	for maxX-minX < minObstacleSpan {
		minX -= widenStep
		maxX += widenStep
	}
	for maxY-minY < minObstacleSpan {
		minY -= widenStep
		maxY += widenStep
	}

	local := roaring64.New()
	for x := minX; x <= maxX+sampleSlack; x += handle.GridScale {
		for y := minY; y <= maxY+sampleSlack; y += handle.GridScale {
			for z := minZ; z <= maxZ+sampleSlack; z += handle.ZScale {
				p := pose.Mul4x1(handle.Vec3{x, y, z}.Vec4(1)).Vec3()
				if h := handle.Handle(p); h != handle.Invalid {
					local.Add(uint64(h))
				}
			}
		}
	}

	s.mu.Lock()
	s.bm.Or(local)
	s.mu.Unlock()
}

// RasterizeObstacles builds the blocked set of a snapshot of obstacles,
// rasterizing boxes in parallel.
func RasterizeObstacles(ctx context.Context, obstacles iter.Seq[world.Obstacle]) (*BlockedSet, error) {
	s := NewBlockedSet()
	if obstacles == nil {
		return s, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for o := range obstacles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.RasterizeBox(o.Pose, o.Min, o.Max)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}
