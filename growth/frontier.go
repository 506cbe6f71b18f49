package growth

import (
	"sync"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/queue"
)

// Frontier is the concurrent FIFO of discovered but ungrown nodes. A node is
// queued at most once at a time.
type Frontier struct {
	mu     sync.Mutex
	q      *queue.FIFO[handle.NodeHandle]
	queued map[handle.NodeHandle]struct{}
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		q:      queue.NewFIFO[handle.NodeHandle](),
		queued: make(map[handle.NodeHandle]struct{}),
	}
}

// Push enqueues h unless it is invalid or already queued.
func (f *Frontier) Push(h handle.NodeHandle) bool {
	if h == handle.Invalid {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queued[h]; ok {
		return false
	}
	f.queued[h] = struct{}{}
	f.q.Push(h)
	return true
}

// Pop dequeues the oldest node.
func (f *Frontier) Pop() (handle.NodeHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.q.Pop()
	if ok {
		delete(f.queued, h)
	}
	return h, ok
}

// Len returns the number of queued nodes.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q.Len()
}

// Snapshot returns the queued nodes oldest first.
func (f *Frontier) Snapshot() []handle.NodeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q.Slice()
}

// Restore appends hs behind the nodes already queued.
func (f *Frontier) Restore(hs []handle.NodeHandle) int {
	n := 0
	for _, h := range hs {
		if f.Push(h) {
			n++
		}
	}
	return n
}
