package growth

import (
	"sync"
	"time"

	"github.com/hupe1980/navgraph/handle"
)

// Stats describes one Grow call.
type Stats struct {
	Grown    int
	Requeued int
	Frontier int
	Elapsed  time.Duration
	Last     handle.NodeHandle
}

// Rate returns nodes grown per second.
func (s Stats) Rate() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Grown) / secs
}

// MovingAverage is a simple moving average over the last Period samples.
type MovingAverage struct {
	mu     sync.Mutex
	period int
	ring   []float64
	next   int
	sum    float64
}

// NewMovingAverage creates an average over period samples.
func NewMovingAverage(period int) *MovingAverage {
	return &MovingAverage{period: max(1, period)}
}

// Add records a sample.
func (m *MovingAverage) Add(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ring) < m.period {
		m.ring = append(m.ring, v)
		m.sum += v
		return
	}
	m.sum += v - m.ring[m.next]
	m.ring[m.next] = v
	m.next = (m.next + 1) % m.period
}

// Value returns the current average, 0 without samples.
func (m *MovingAverage) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ring) == 0 {
		return 0
	}
	return m.sum / float64(len(m.ring))
}
