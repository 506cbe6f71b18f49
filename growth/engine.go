// Package growth lazily expands the navigation graph by probing the world
// around nodes that have not been explored yet.
package growth

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/navgraph/clearance"
	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/queue"
	"github.com/hupe1980/navgraph/world"
)

// PrimaryBits are the edge bits probed when growing a node: the four step-up
// offsets and the four diagonal climbs. Reverse edges fill in the rest.
var PrimaryBits = [...]int{0, 1, 2, 3, 4, 6, 10, 12}

const (
	// DefaultCapsuleRadius is the probe radius used while growing.
	DefaultCapsuleRadius = 0.30
	// DefaultMaxRange is the distance beyond which host collision data is
	// not trusted.
	DefaultMaxRange = 100
	// DefaultSnapOffset is the height above a candidate cell from which it
	// is snapped to the ground.
	DefaultSnapOffset = 1

	wallTolerance = 0.01
)

var up = handle.Vec3{0, 0, 1}

// Options configures an Engine.
type Options struct {
	CapsuleRadius float32
	MaxRange      float32
	SnapOffset    float32
	Mask          world.CollisionMask
	// Ignore is excluded from every probe, typically the agent itself.
	Ignore world.EntityRef
	// Permeable materials never mark a node as cover.
	Permeable map[world.Material]bool
	Doors     world.DoorFeed
	Logger    *slog.Logger
}

// DefaultOptions returns the stock growth parameters.
func DefaultOptions() Options {
	return Options{
		CapsuleRadius: DefaultCapsuleRadius,
		MaxRange:      DefaultMaxRange,
		SnapOffset:    DefaultSnapOffset,
		Mask:          world.GrowMask,
		Permeable: map[world.Material]bool{
			world.MaterialMetalRailing:    true,
			world.MaterialMetalGarageDoor: true,
			world.MaterialBushes:          true,
			world.MaterialLeaves:          true,
		},
	}
}

// Option mutates Options.
type Option func(*Options)

// WithCapsuleRadius sets the probe radius.
func WithCapsuleRadius(r float32) Option {
	return func(o *Options) { o.CapsuleRadius = r }
}

// WithMaxRange sets the grow range cutoff.
func WithMaxRange(r float32) Option {
	return func(o *Options) { o.MaxRange = r }
}

// WithIgnore excludes an entity from probes.
func WithIgnore(e world.EntityRef) Option {
	return func(o *Options) { o.Ignore = e }
}

// WithDoors sets the door feed consulted once per Grow call.
func WithDoors(d world.DoorFeed) Option {
	return func(o *Options) { o.Doors = d }
}

// WithPermeable replaces the permeable material set.
func WithPermeable(ms ...world.Material) Option {
	return func(o *Options) {
		o.Permeable = make(map[world.Material]bool, len(ms))
		for _, m := range ms {
			o.Permeable[m] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Engine grows the edge table from probe results.
type Engine struct {
	table    *edges.Table
	prober   world.Prober
	snapper  world.GroundSnapper
	frontier *Frontier
	opts     Options
	logger   *slog.Logger

	rate      *MovingAverage
	lastGrown atomic.Uint64
	covers    atomic.Int64
	probes    atomic.Int64
}

// New creates an Engine. A nil frontier gets a fresh one.
func New(table *edges.Table, prober world.Prober, snapper world.GroundSnapper, frontier *Frontier, optFns ...Option) *Engine {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if frontier == nil {
		frontier = NewFrontier()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		table:    table,
		prober:   prober,
		snapper:  snapper,
		frontier: frontier,
		opts:     opts,
		logger:   logger,
		rate:     NewMovingAverage(20),
	}
}

// Frontier returns the shared frontier queue.
func (e *Engine) Frontier() *Frontier { return e.frontier }

// GrowthRate returns the moving average of nodes grown per second.
func (e *Engine) GrowthRate() float64 { return e.rate.Value() }

// LastGrown returns the node most recently grown.
func (e *Engine) LastGrown() handle.NodeHandle {
	return handle.NodeHandle(e.lastGrown.Load())
}

// Probes returns the number of probes issued so far.
func (e *Engine) Probes() int64 { return e.probes.Load() }

// Covers returns the number of cover classifications so far.
func (e *Engine) Covers() int64 { return e.covers.Load() }

// Doors fetches the current door set around center.
func (e *Engine) Doors(ctx context.Context, center handle.Vec3) world.DoorSet {
	if e.opts.Doors == nil {
		return nil
	}
	return world.NewDoorSet(e.opts.Doors.Doors(ctx, center)...)
}

// InRange reports whether node lies within the grow range of reference.
func (e *Engine) InRange(node handle.NodeHandle, reference handle.Vec3) bool {
	d := handle.Position(node).Sub(reference)
	return d.Dot(d) <= e.opts.MaxRange*e.opts.MaxRange
}

// GrowOne probes the primary neighbors of node and records the edges it
// finds. It is a no-op for grown nodes and for nodes out of range of
// reference. It returns the newly connected neighbors that are not grown
// yet.
func (e *Engine) GrowOne(ctx context.Context, node handle.NodeHandle, reference handle.Vec3, doors world.DoorSet) []handle.NodeHandle {
	if node == handle.Invalid || e.table.IsGrown(node) {
		return nil
	}
	if !e.InRange(node, reference) {
		return nil
	}
	e.table.SetGrown(node, true)

	nodePos := handle.Position(node)
	touched := queue.NewFIFO[handle.NodeHandle]()
	touched.Push(node)

	var found []handle.NodeHandle
	for _, i := range PrimaryBits {
		if ctx.Err() != nil {
			break
		}
		cand := handle.AddOffset(node, i)
		if cand == handle.Invalid {
			continue
		}
		g := handle.Handle(e.snapper.SnapToGround(handle.Position(cand), e.opts.SnapOffset))
		if g == handle.Invalid || !handle.IsPossibleEdge(node, g) || e.table.HasEdge(node, g) {
			continue
		}

		delta := handle.Position(g).Sub(nodePos)
		length := delta.Len()
		end := nodePos.Add(delta.Mul((length - e.opts.CapsuleRadius/2) / length))

		e.probes.Add(1)
		res := e.prober.Probe(ctx, world.ProbeRequest{
			From:   nodePos,
			To:     end,
			Radius: e.opts.CapsuleRadius,
			Mask:   e.opts.Mask,
			Ignore: e.opts.Ignore,
		})

		switch {
		case !res.Hit || doors.Contains(res.Entity):
			e.connect(node, g)
			touched.Push(g)
			if !e.table.IsGrown(g) {
				found = append(found, g)
			}
		case !e.opts.Permeable[res.Material] && math.Abs(float64(res.Normal.Dot(up))) < wallTolerance:
			e.table.Update(node, func(r edges.Record) edges.Record {
				return r.WithFlag(edges.CoverFlag, true).WithClearance(1)
			})
			e.covers.Add(1)
		}
	}

	clearance.Propagate(e.table, touched)
	return found
}

// connect adds node<->g and seeds the clearance of g from node.
func (e *Engine) connect(node, g handle.NodeHandle) {
	e.table.AddEdge(node, g)
	e.table.AddEdge(g, node)

	nClear := e.table.Clearance(node)
	if nClear == 0 {
		nClear = edges.MaxClearance
		e.table.SetClearance(node, nClear)
	}
	gClear := e.table.Clearance(g)
	switch {
	case gClear == 0 || gClear > nClear+1:
		e.table.SetClearance(g, nClear+1)
	case gClear < nClear-1:
		e.table.SetClearance(node, gClear+1)
	}
}

// Grow grows nodes breadth-first from start, then from the frontier, until
// budget elapses, ctx is done or there is nothing left to grow. Neighbors it
// discovers but cannot finish, and nodes out of range of reference, are
// pushed onto the frontier when it returns.
func (e *Engine) Grow(ctx context.Context, start handle.NodeHandle, reference handle.Vec3, budget time.Duration) Stats {
	begin := time.Now()
	local := queue.NewFIFO[handle.NodeHandle]()
	if start != handle.Invalid {
		local.Push(start)
	}
	doors := e.Doors(ctx, reference)
	var deferred []handle.NodeHandle

	var stats Stats
	for time.Since(begin) < budget && ctx.Err() == nil {
		next, ok := local.Pop()
		if !ok {
			if next, ok = e.frontier.Pop(); !ok {
				break
			}
		}
		if e.table.IsGrown(next) {
			continue
		}
		for _, n := range e.GrowOne(ctx, next, reference, doors) {
			local.Push(n)
		}
		if !e.table.IsGrown(next) {
			deferred = append(deferred, next)
			continue
		}
		stats.Grown++
		stats.Last = next
		e.lastGrown.Store(uint64(next))
	}

	for {
		n, ok := local.Pop()
		if !ok {
			break
		}
		if e.frontier.Push(n) {
			stats.Requeued++
		}
	}
	for _, n := range deferred {
		if e.frontier.Push(n) {
			stats.Requeued++
		}
	}

	stats.Elapsed = time.Since(begin)
	stats.Frontier = e.frontier.Len()
	e.rate.Add(float64(stats.Grown) / (stats.Elapsed.Seconds() + 1e-7))

	if stats.Grown > 0 {
		e.logger.DebugContext(ctx, "grow completed",
			"grown", stats.Grown,
			"requeued", stats.Requeued,
			"frontier", stats.Frontier,
			"elapsed", stats.Elapsed,
		)
	}
	return stats
}

// TrackAgent records the edge an agent walked between two consecutive
// nodes.
func (e *Engine) TrackAgent(prev, cur handle.NodeHandle) bool {
	if prev == handle.Invalid || cur == handle.Invalid || prev == cur {
		return false
	}
	return e.table.AddEdge(prev, cur)
}
