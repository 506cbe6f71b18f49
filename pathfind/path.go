package pathfind

import (
	"fmt"
	"iter"

	"github.com/hupe1980/navgraph/handle"
)

// Path is the forward node sequence from start to target. It is consumed
// from the front and cannot be rewound.
type Path struct {
	nodes []handle.NodeHandle
	next  int
}

// NewPath wraps nodes, which must be in walking order.
func NewPath(nodes []handle.NodeHandle) *Path {
	return &Path{nodes: nodes}
}

// Len returns the number of nodes not yet consumed.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.nodes) - p.next
}

// Steps returns the number of edges left to walk.
func (p *Path) Steps() int {
	return max(0, p.Len()-1)
}

// Next returns the first unconsumed node without consuming it.
func (p *Path) Next() (handle.NodeHandle, bool) {
	if p.Len() == 0 {
		return handle.Invalid, false
	}
	return p.nodes[p.next], true
}

// Pop consumes and returns the first node.
func (p *Path) Pop() (handle.NodeHandle, bool) {
	h, ok := p.Next()
	if ok {
		p.next++
	}
	return h, ok
}

// Nodes returns a copy of the unconsumed nodes.
func (p *Path) Nodes() []handle.NodeHandle {
	if p.Len() == 0 {
		return nil
	}
	return append([]handle.NodeHandle(nil), p.nodes[p.next:]...)
}

// Positions returns the world positions of the unconsumed nodes.
func (p *Path) Positions() []handle.Vec3 {
	out := make([]handle.Vec3, 0, p.Len())
	for _, h := range p.Nodes() {
		out = append(out, handle.Position(h))
	}
	return out
}

// All consumes the path, yielding each node in order.
func (p *Path) All() iter.Seq[handle.NodeHandle] {
	return func(yield func(handle.NodeHandle) bool) {
		for {
			h, ok := p.Pop()
			if !ok || !yield(h) {
				return
			}
		}
	}
}

// FastForward drops leading nodes while the following node is strictly
// closer to pos. It returns the number of nodes dropped.
func (p *Path) FastForward(pos handle.Vec3) int {
	n := 0
	for p.Len() >= 2 {
		a := handle.Position(p.nodes[p.next]).Sub(pos)
		b := handle.Position(p.nodes[p.next+1]).Sub(pos)
		if b.Dot(b) >= a.Dot(a) {
			break
		}
		p.next++
		n++
	}
	return n
}

func (p *Path) String() string {
	return fmt.Sprintf("(%d steps)", p.Steps())
}
