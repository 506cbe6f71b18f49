// Package pathfind searches the navigation graph with a clearance-aware A*
// and runs path requests one search at a time.
package pathfind

import (
	"context"
	"iter"
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/queue"
)

const (
	// DefaultBudget is the wall-clock limit of a search.
	DefaultBudget = 100 * time.Millisecond
	// ClearancePenalty is the cost added per clearance point below the
	// maximum when stepping onto a node.
	ClearancePenalty = 0.25
	// ArriveDistSq is the squared distance at which a popped node counts as
	// reaching the target.
	ArriveDistSq = 0.5
)

// Graph is the read side of the edge table that a search walks. Edges may
// appear or disappear between reads.
type Graph interface {
	Get(h handle.NodeHandle) edges.Record
	Edges(h handle.NodeHandle) iter.Seq[handle.NodeHandle]
}

var _ Graph = (*edges.Table)(nil)

// Query describes one search.
type Query struct {
	Start  handle.NodeHandle
	Target handle.NodeHandle
	// Blocked nodes are never entered.
	Blocked *BlockedSet
	// Budget is the wall-clock limit; zero means DefaultBudget.
	Budget time.Duration
	// ClearanceFloor skips neighbors whose clearance is below it.
	ClearanceFloor int
	// Progress, if set, is updated as the search runs.
	Progress *Progress
}

// Progress reports a running search: the node closest to the target so far
// and the number of nodes expanded. Safe for concurrent use.
type Progress struct {
	best     atomic.Uint64
	bestDist atomic.Uint32
	expanded atomic.Int64
}

// Best returns the expanded node nearest to the target so far.
func (p *Progress) Best() handle.NodeHandle {
	return handle.NodeHandle(p.best.Load())
}

// BestDistance returns the distance from Best to the target.
func (p *Progress) BestDistance() float32 {
	return math.Float32frombits(p.bestDist.Load())
}

// Expanded returns the number of nodes popped so far.
func (p *Progress) Expanded() int {
	return int(p.expanded.Load())
}

func (p *Progress) observe(h handle.NodeHandle, distSq float32) {
	p.expanded.Add(1)
	d := float32(math.Sqrt(float64(distSq)))
	if p.best.Load() == 0 || d < p.BestDistance() {
		p.best.Store(uint64(h))
		p.bestDist.Store(math.Float32bits(d))
	}
}

// FindPath runs A* from q.Start to q.Target. The step cost is the Euclidean
// step length plus |dz| plus ClearancePenalty per clearance point below the
// maximum, and the heuristic is the Euclidean distance. Cancellation and
// budget are checked before every pop.
func FindPath(ctx context.Context, g Graph, q Query) (*Path, error) {
	if q.Start == handle.Invalid {
		return nil, ErrInvalidStart
	}
	if q.Target == handle.Invalid {
		return nil, ErrInvalidTarget
	}
	if q.Blocked.Contains(q.Target) {
		return nil, ErrTargetBlocked
	}
	budget := q.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	progress := q.Progress
	if progress == nil {
		progress = &Progress{}
	}

	begin := time.Now()
	targetPos := handle.Position(q.Target)

	open := queue.NewIndexed[handle.NodeHandle](256)
	closed := make(map[handle.NodeHandle]struct{}, 256)
	gScore := map[handle.NodeHandle]float32{q.Start: 0}
	cameFrom := make(map[handle.NodeHandle]handle.NodeHandle, 256)

	open.AddOrUpdate(q.Start, handle.Position(q.Start).Sub(targetPos).Len())

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if elapsed := time.Since(begin); elapsed > budget {
			return nil, &BudgetExceededError{Target: q.Target, Expanded: len(closed), Elapsed: elapsed}
		}

		best, _, _ := open.Pop()
		closed[best] = struct{}{}

		curPos := handle.Position(best)
		d := curPos.Sub(targetPos)
		distSq := d.Dot(d)
		progress.observe(best, distSq)

		if distSq <= ArriveDistSq {
			nodes := unroll(cameFrom, best)
			if best != q.Target && reachable(g, q, best, q.Target) {
				nodes = append(nodes, q.Target)
			}
			return NewPath(nodes), nil
		}

		for e := range g.Edges(best) {
			if _, ok := closed[e]; ok || q.Blocked.Contains(e) {
				continue
			}
			c := g.Get(e).Clearance()
			if c < q.ClearanceFloor {
				continue
			}
			ePos := handle.Position(e)
			cost := gScore[best] + stepCost(curPos, ePos, c)
			if old, ok := gScore[e]; ok && cost >= old {
				continue
			}
			cameFrom[e] = best
			gScore[e] = cost
			open.AddOrUpdate(e, cost+ePos.Sub(targetPos).Len())
		}
	}
	return nil, &ExhaustedError{Target: q.Target, Expanded: len(closed)}
}

func stepCost(from, to handle.Vec3, clearance int) float32 {
	dz := to[2] - from[2]
	if dz < 0 {
		dz = -dz
	}
	return to.Sub(from).Len() + dz + float32(edges.MaxClearance-clearance)*ClearancePenalty
}

// reachable reports whether the search may take the final edge a->b.
func reachable(g Graph, q Query, a, b handle.NodeHandle) bool {
	if q.Blocked.Contains(b) || g.Get(b).Clearance() < q.ClearanceFloor {
		return false
	}
	bit, ok := handle.EdgeBit(a, b)
	return ok && g.Get(a).Has(bit)
}

func unroll(cameFrom map[handle.NodeHandle]handle.NodeHandle, cur handle.NodeHandle) []handle.NodeHandle {
	nodes := []handle.NodeHandle{cur}
	for {
		prev, ok := cameFrom[cur]
		if !ok {
			break
		}
		nodes = append(nodes, prev)
		cur = prev
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}
