// Package clearance maintains the distance-to-obstruction field stored in
// the edge table.
//
// The field is an approximate discrete relaxation over graph hops, not a
// Euclidean distance transform: a node ends up at most one level above each
// of its neighbors, and cover nodes anchor the field at 1. Hop counts follow
// whatever edges growth has discovered so far, so the value of a node can
// tighten later when new edges reveal a shorter route to an obstruction.
package clearance

import (
	"iter"

	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/queue"
)

// Graph is the subset of the edge table used by propagation.
type Graph interface {
	Clearance(h handle.NodeHandle) int
	SetClearance(h handle.NodeHandle, c int)
	Edges(h handle.NodeHandle) iter.Seq[handle.NodeHandle]
}

var _ Graph = (*edges.Table)(nil)

// Propagate relaxes clearance outward from every node in q until the queue
// drains. For each edge a->e with c = clearance(a), d = clearance(e):
//
//	d == 0 or d > c+1  ->  e = c+1, enqueue e
//	d < c-1            ->  a = d+1, enqueue a
//
// Sources with unknown clearance are skipped. It returns the number of
// updates applied.
func Propagate(g Graph, q *queue.FIFO[handle.NodeHandle]) int {
	updates := 0
	for {
		a, ok := q.Pop()
		if !ok {
			return updates
		}
		c := g.Clearance(a)
		if c == 0 {
			continue
		}
		for e := range g.Edges(a) {
			d := g.Clearance(e)
			switch {
			case d == 0 || d > c+1:
				g.SetClearance(e, c+1)
				q.Push(e)
				updates++
			case d < c-1:
				c = d + 1
				g.SetClearance(a, c)
				q.Push(a)
				updates++
			}
		}
	}
}

// PropagateFrom sets the clearance of node to value and relaxes outward.
func PropagateFrom(g Graph, node handle.NodeHandle, value int) int {
	if node == handle.Invalid {
		return 0
	}
	g.SetClearance(node, value)
	q := queue.NewFIFO[handle.NodeHandle]()
	q.Push(node)
	return Propagate(g, q)
}

// Rebuild re-derives the clearance of every record of region r from its
// cover-flagged nodes. Non-cover nodes are reset to the maximum before the
// cover seeds are relaxed. It is used after loading records that carry no
// clearance.
func Rebuild(t *edges.Table, r handle.RegionHandle) int {
	hs, recs := t.RegionRecords(r)
	q := queue.NewFIFO[handle.NodeHandle]()
	for i, h := range hs {
		if recs[i].Cover() {
			t.SetClearance(h, 1)
			q.Push(h)
			continue
		}
		t.SetClearance(h, edges.MaxClearance)
	}
	return Propagate(t, q)
}
