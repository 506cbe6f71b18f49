package smooth

import (
	"context"
	"errors"
	"iter"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/world"
)

const (
	// DefaultSteppingRange is how close the agent must come to a waypoint
	// before the cursor moves past it.
	DefaultSteppingRange = 0.25
	// approach is the distance ahead of the agent that Next aims for.
	approach = 0.5
	// lookahead is the number of segments ahead of the cursor that are
	// checked against tracked obstacles.
	lookahead = 4
)

// ErrObstructed is returned when an obstacle sits on the unsmoothed path
// itself, so no waypoint can route around it.
var ErrObstructed = errors.New("smooth: path obstructed")

// SmoothPath is a waypoint list with a cursor that tracks the agent. The
// raw positions are kept so culled points can be restored when an
// obstacle moves into a shortcut.
type SmoothPath struct {
	raw    []handle.Vec3
	keep   []int
	cursor int
	radius float32

	tracked []world.Obstacle
	err     error
}

// New builds a SmoothPath over raw positions, keeping the points at the
// given indices. keep must be increasing and include the endpoints; nil
// keeps every point.
func New(raw []handle.Vec3, keep []int) *SmoothPath {
	if keep == nil {
		keep = make([]int, len(raw))
		for i := range keep {
			keep[i] = i
		}
	}
	return &SmoothPath{raw: raw, keep: keep, radius: DefaultRadius}
}

// FromPositions smooths positions with prober and wraps the result.
func FromPositions(ctx context.Context, prober world.Prober, positions []handle.Vec3, optFns ...Option) *SmoothPath {
	s := New(positions, Smooth(ctx, prober, positions, optFns...))
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	s.radius = opts.Radius
	return s
}

// FromNodes converts nodes to positions and smooths them.
func FromNodes(ctx context.Context, prober world.Prober, nodes iter.Seq[handle.NodeHandle], optFns ...Option) *SmoothPath {
	var pos []handle.Vec3
	for h := range nodes {
		pos = append(pos, handle.Position(h))
	}
	return FromPositions(ctx, prober, pos, optFns...)
}

// Len returns the number of waypoints.
func (s *SmoothPath) Len() int { return len(s.keep) }

// Cursor returns the index of the current waypoint.
func (s *SmoothPath) Cursor() int { return s.cursor }

// Steps returns a copy of the waypoints.
func (s *SmoothPath) Steps() []handle.Vec3 {
	out := make([]handle.Vec3, len(s.keep))
	for i, k := range s.keep {
		out[i] = s.raw[k]
	}
	return out
}

// Complete reports whether the cursor reached the last waypoint.
func (s *SmoothPath) Complete() bool {
	return s.cursor >= len(s.keep)-1
}

func (s *SmoothPath) step(i int) handle.Vec3 { return s.raw[s.keep[i]] }

// Update moves the cursor for an agent at pos. The cursor advances while
// the agent is within steppingRange of the current waypoint or already past
// it along the next segment, and retreats while the agent is behind the
// previous segment. When it advances, the segments ahead are checked
// against tracked obstacles again.
func (s *SmoothPath) Update(pos handle.Vec3, steppingRange float32) {
	start := s.cursor
	for s.cursor < len(s.keep)-1 {
		forward := pos.Sub(s.step(s.cursor))
		seg := s.step(s.cursor + 1).Sub(s.step(s.cursor))
		if forward.Len() < steppingRange || forward.Dot(seg) > 0 {
			s.cursor++
			continue
		}
		break
	}
	for s.cursor > 0 {
		back := pos.Sub(s.step(s.cursor - 1))
		seg := s.step(s.cursor).Sub(s.step(s.cursor - 1))
		if back.Dot(seg) < 0 {
			s.cursor--
			continue
		}
		break
	}
	if s.cursor > start && len(s.tracked) > 0 {
		s.err = s.restore()
	}
}

// Err returns ErrObstructed if the last check found a tracked obstacle on
// the path ahead.
func (s *SmoothPath) Err() error { return s.err }

// Next updates the cursor and returns the steering target: the current
// waypoint, pushed a little further along the approach direction while the
// agent is close to it.
func (s *SmoothPath) Next(pos handle.Vec3, steppingRange float32) handle.Vec3 {
	if len(s.keep) == 0 {
		return pos
	}
	s.Update(pos, steppingRange)
	target := s.step(s.cursor)
	x := target.Sub(pos)
	d := x.Len()
	if d == 0 {
		return target
	}
	return target.Add(x.Mul(max(0, approach-d) / d))
}

// Revalidate replaces the tracked obstacles with those near the remaining
// path and restores any culled points whose shortcut one of them now
// blocks. It returns ErrObstructed when an obstacle blocks the raw path.
func (s *SmoothPath) Revalidate(ctx context.Context, obstacles iter.Seq[world.Obstacle]) error {
	s.tracked = s.tracked[:0]
	if obstacles != nil {
		for o := range obstacles {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.near(o) {
				s.tracked = append(s.tracked, o)
			}
		}
	}
	s.err = s.restore()
	return s.err
}

// Tracked returns the number of obstacles being checked.
func (s *SmoothPath) Tracked() int { return len(s.tracked) }

func (s *SmoothPath) window() (lo, hi int) {
	lo = max(0, s.cursor-1)
	hi = min(len(s.keep)-1, s.cursor+lookahead)
	return lo, hi
}

// near reports whether o touches any raw segment in the window.
func (s *SmoothPath) near(o world.Obstacle) bool {
	lo, hi := s.window()
	if hi <= lo {
		return false
	}
	for i := s.keep[lo]; i < s.keep[hi]; i++ {
		if o.Intersects(s.raw[i], s.raw[i+1], s.radius) {
			return true
		}
	}
	// Shortcuts count too: an obstacle may cover a skip without touching
	// the raw points.
	for k := lo; k < hi; k++ {
		if o.Intersects(s.step(k), s.step(k+1), s.radius) {
			return true
		}
	}
	return false
}

// restore re-inserts raw points under every blocked shortcut in the window.
func (s *SmoothPath) restore() error {
	lo, hi := s.window()
	for k := hi - 1; k >= lo; k-- {
		a, b := s.keep[k], s.keep[k+1]
		if b-a <= 1 || !s.blocked(s.raw[a], s.raw[b]) {
			continue
		}
		expanded := make([]int, 0, len(s.keep)+b-a-1)
		expanded = append(expanded, s.keep[:k+1]...)
		for i := a + 1; i < b; i++ {
			expanded = append(expanded, i)
		}
		s.keep = append(expanded, s.keep[k+1:]...)
	}

	lo, hi = s.window()
	for k := lo; k < hi; k++ {
		if s.keep[k+1]-s.keep[k] == 1 && s.blocked(s.step(k), s.step(k+1)) {
			return ErrObstructed
		}
	}
	return nil
}

func (s *SmoothPath) blocked(a, b handle.Vec3) bool {
	for _, o := range s.tracked {
		if o.Intersects(a, b, s.radius) {
			return true
		}
	}
	return false
}
