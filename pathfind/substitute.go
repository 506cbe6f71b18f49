package pathfind

import (
	"context"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/queue"
)

const (
	// DefaultFloodNodes caps the cells visited looking for a substitute.
	DefaultFloodNodes = 10000
	// DefaultFloodDepth caps the flood radius in steps.
	DefaultFloodDepth = 100
)

// Flood visits the cells around start breadth-first over every possible
// offset, regardless of whether an edge exists, up to maxNodes cells and
// maxDepth steps. visit returning false stops the flood.
func Flood(ctx context.Context, start handle.NodeHandle, maxNodes, maxDepth int, visit func(h handle.NodeHandle, depth int) bool) error {
	if start == handle.Invalid {
		return nil
	}
	type item struct {
		h     handle.NodeHandle
		depth int
	}
	seen := map[handle.NodeHandle]struct{}{start: {}}
	q := queue.NewFIFO[item]()
	q.Push(item{start, 0})

	for count := 0; count < maxNodes; count++ {
		if count%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		it, ok := q.Pop()
		if !ok {
			return nil
		}
		if !visit(it.h, it.depth) {
			return nil
		}
		if it.depth >= maxDepth {
			continue
		}
		for _, n := range handle.PossibleEdges(it.h) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			q.Push(item{n, it.depth + 1})
		}
	}
	return nil
}

// Substitute finds the node nearest to target, by straight-line distance,
// that has edges and is not blocked, searching a bounded flood around
// target. Ties go to the lower handle. It returns ErrUnmappableTarget when
// the flood finds nothing.
func Substitute(ctx context.Context, g Graph, target handle.NodeHandle, blocked *BlockedSet) (handle.NodeHandle, error) {
	if target == handle.Invalid {
		return handle.Invalid, ErrInvalidTarget
	}
	best := handle.Invalid
	var bestDist float32

	err := Flood(ctx, target, DefaultFloodNodes, DefaultFloodDepth, func(h handle.NodeHandle, _ int) bool {
		if !g.Get(h).HasEdges() || blocked.Contains(h) {
			return true
		}
		d := handle.DistanceSq(h, target)
		if best == handle.Invalid || d < bestDist || (d == bestDist && h < best) {
			best, bestDist = h, d
		}
		return true
	})
	if err != nil {
		return handle.Invalid, err
	}
	if best == handle.Invalid {
		return handle.Invalid, ErrUnmappableTarget
	}
	return best, nil
}
