// Package queue provides the work queues used by graph traversal: a growable
// FIFO ring and an indexed min-heap with decrease-key.
package queue

// FIFO is a growable ring buffer. It is not safe for concurrent use.
type FIFO[T any] struct {
	buf  []T
	head int
	n    int
}

// NewFIFO creates an empty FIFO.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{buf: make([]T, 16)}
}

// Push appends v.
func (q *FIFO[T]) Push(v T) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
}

// Pop removes and returns the oldest element.
func (q *FIFO[T]) Pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// Peek returns the oldest element without removing it.
func (q *FIFO[T]) Peek() (T, bool) {
	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Len returns the number of queued elements.
func (q *FIFO[T]) Len() int { return q.n }

// Slice returns the queued elements oldest first.
func (q *FIFO[T]) Slice() []T {
	out := make([]T, q.n)
	for i := range q.n {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}

// Reset drops every element.
func (q *FIFO[T]) Reset() {
	clear(q.buf)
	q.head, q.n = 0, 0
}

func (q *FIFO[T]) grow() {
	buf := make([]T, max(16, 2*len(q.buf)))
	for i := range q.n {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}

type item[K comparable] struct {
	key   K
	score float32
}

// Indexed is a min-heap keyed by K with O(log n) decrease-key. Each key is
// present at most once. It is not safe for concurrent use.
type Indexed[K comparable] struct {
	items []item[K]
	index map[K]int
}

// NewIndexed creates an empty heap with room for capacity keys.
func NewIndexed[K comparable](capacity int) *Indexed[K] {
	return &Indexed[K]{
		items: make([]item[K], 0, capacity),
		index: make(map[K]int, capacity),
	}
}

// AddOrUpdate inserts key with score, or moves an existing key to the new
// score.
func (h *Indexed[K]) AddOrUpdate(key K, score float32) {
	if i, ok := h.index[key]; ok {
		old := h.items[i].score
		h.items[i].score = score
		if score < old {
			h.siftUp(i)
		} else {
			h.siftDown(i)
		}
		return
	}
	h.items = append(h.items, item[K]{key: key, score: score})
	i := len(h.items) - 1
	h.index[key] = i
	h.siftUp(i)
}

// Pop removes and returns the key with the lowest score.
func (h *Indexed[K]) Pop() (K, float32, bool) {
	n := len(h.items)
	if n == 0 {
		var zero K
		return zero, 0, false
	}
	root := h.items[0]
	last := h.items[n-1]
	h.items = h.items[:n-1]
	delete(h.index, root.key)
	if n-1 > 0 {
		h.items[0] = last
		h.index[last.key] = 0
		h.siftDown(0)
	}
	return root.key, root.score, true
}

// Peek returns the key with the lowest score without removing it.
func (h *Indexed[K]) Peek() (K, float32, bool) {
	if len(h.items) == 0 {
		var zero K
		return zero, 0, false
	}
	return h.items[0].key, h.items[0].score, true
}

// Score returns the current score of key.
func (h *Indexed[K]) Score(key K) (float32, bool) {
	i, ok := h.index[key]
	if !ok {
		return 0, false
	}
	return h.items[i].score, true
}

// Contains reports whether key is queued.
func (h *Indexed[K]) Contains(key K) bool {
	_, ok := h.index[key]
	return ok
}

// Remove deletes key from the heap.
func (h *Indexed[K]) Remove(key K) bool {
	i, ok := h.index[key]
	if !ok {
		return false
	}
	n := len(h.items) - 1
	h.swap(i, n)
	h.items = h.items[:n]
	delete(h.index, key)
	if i < n {
		h.siftDown(i)
		h.siftUp(i)
	}
	return true
}

// Len returns the number of queued keys.
func (h *Indexed[K]) Len() int { return len(h.items) }

// Reset drops every key.
func (h *Indexed[K]) Reset() {
	h.items = h.items[:0]
	clear(h.index)
}

func (h *Indexed[K]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].key] = i
	h.index[h.items[j].key] = j
}

func (h *Indexed[K]) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if h.items[i].score >= h.items[p].score {
			return
		}
		h.swap(i, p)
		i = p
	}
}

func (h *Indexed[K]) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && h.items[r].score < h.items[l].score {
			best = r
		}
		if h.items[best].score >= h.items[i].score {
			return
		}
		h.swap(i, best)
		i = best
	}
}
