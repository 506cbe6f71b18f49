// Package smooth turns a node path into steering waypoints.
//
// Smooth drops interior points the agent can walk past in a straight line,
// and SmoothPath keeps a cursor into the result that follows the agent
// forward and backward along it.
package smooth

import (
	"context"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/world"
)

const (
	// DefaultRadius is the capsule radius of a line-of-sight probe.
	DefaultRadius = 0.3
	// DefaultLift raises probes above the ground so the floor never blocks
	// them.
	DefaultLift = 0.5
)

// Options configures Smooth.
type Options struct {
	Radius float32
	Lift   float32
	Mask   world.CollisionMask
	Ignore world.EntityRef
}

// Option mutates Options.
type Option func(*Options)

// WithRadius sets the probe radius.
func WithRadius(r float32) Option { return func(o *Options) { o.Radius = r } }

// WithLift sets the probe height above the path.
func WithLift(h float32) Option { return func(o *Options) { o.Lift = h } }

// WithIgnore excludes an entity, usually the agent, from probes.
func WithIgnore(e world.EntityRef) Option { return func(o *Options) { o.Ignore = e } }

func defaultOptions() Options {
	return Options{Radius: DefaultRadius, Lift: DefaultLift, Mask: world.SmoothMask}
}

// Smooth culls interior points of positions: while the trailing anchor can
// see the point after the next one, the next one is dropped. The first and
// last points are always kept. It returns the indices of the kept points.
func Smooth(ctx context.Context, prober world.Prober, positions []handle.Vec3, optFns ...Option) []int {
	if len(positions) <= 2 {
		keep := make([]int, len(positions))
		for i := range keep {
			keep[i] = i
		}
		return keep
	}
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	keep := []int{0}
	anchor := 0
	for next := 1; next < len(positions)-1; next++ {
		if ctx.Err() == nil && canSee(ctx, prober, opts, positions[anchor], positions[next+1]) {
			continue
		}
		keep = append(keep, next)
		anchor = next
	}
	return append(keep, len(positions)-1)
}

// Points is Smooth returning the kept positions.
func Points(ctx context.Context, prober world.Prober, positions []handle.Vec3, optFns ...Option) []handle.Vec3 {
	keep := Smooth(ctx, prober, positions, optFns...)
	out := make([]handle.Vec3, len(keep))
	for i, k := range keep {
		out[i] = positions[k]
	}
	return out
}

func canSee(ctx context.Context, prober world.Prober, opts Options, a, b handle.Vec3) bool {
	lift := handle.Vec3{0, 0, opts.Lift}
	res := prober.Probe(ctx, world.ProbeRequest{
		From:   a.Add(lift),
		To:     b.Add(lift),
		Radius: opts.Radius,
		Mask:   opts.Mask,
		Ignore: opts.Ignore,
	})
	return !res.Hit
}
