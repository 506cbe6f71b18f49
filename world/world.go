// Package world declares the host services the navigation engine consumes:
// a line-of-sight probe, a ground snap and a feed of nearby dynamic
// obstacles. The engine never implements them; hosts and tests do.
package world

import (
	"context"
	"iter"

	"github.com/hupe1980/navgraph/handle"
)

// Material tags the surface a probe hit.
type Material uint32

// Known materials.
const (
	MaterialDefault Material = iota
	MaterialConcrete
	MaterialWood
	MaterialGlass
	MaterialMetal
	MaterialMetalRailing
	MaterialMetalGarageDoor
	MaterialBushes
	MaterialLeaves
	MaterialWater
)

var materialNames = [...]string{
	MaterialDefault:         "default",
	MaterialConcrete:        "concrete",
	MaterialWood:            "wood",
	MaterialGlass:           "glass",
	MaterialMetal:           "metal",
	MaterialMetalRailing:    "metal_railing",
	MaterialMetalGarageDoor: "metal_garage_door",
	MaterialBushes:          "bushes",
	MaterialLeaves:          "leaves",
	MaterialWater:           "water",
}

func (m Material) String() string {
	if int(m) < len(materialNames) {
		return materialNames[m]
	}
	return "unknown"
}

// EntityRef identifies a host entity. NoEntity means none.
type EntityRef uint64

// NoEntity is the zero entity.
const NoEntity EntityRef = 0

// CollisionMask selects which collision layers a probe tests.
type CollisionMask uint32

// Collision layers.
const (
	CollideMap CollisionMask = 1 << iota
	CollideObjects
	CollideWater
	CollideVehicles
	CollidePeds
	CollideFoliage

	// GrowMask is the layer set used while growing the graph.
	GrowMask = CollideMap | CollideObjects | CollideWater | CollideFoliage
	// SmoothMask is the layer set used while smoothing paths.
	SmoothMask = CollideMap | CollideObjects | CollideVehicles
)

// ProbeRequest is a capsule cast from From to To.
type ProbeRequest struct {
	From, To handle.Vec3
	Radius   float32
	Mask     CollisionMask
	Ignore   EntityRef
}

// ProbeResult is the outcome of a capsule cast.
type ProbeResult struct {
	Hit      bool
	Position handle.Vec3
	Normal   handle.Vec3
	Material Material
	Entity   EntityRef
}

// Prober answers line-of-sight queries.
type Prober interface {
	Probe(ctx context.Context, req ProbeRequest) ProbeResult
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, req ProbeRequest) ProbeResult

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, req ProbeRequest) ProbeResult {
	return f(ctx, req)
}

// GroundSnapper corrects the height of a position onto walkable ground.
type GroundSnapper interface {
	SnapToGround(pos handle.Vec3, offset float32) handle.Vec3
}

// SnapperFunc adapts a function to GroundSnapper.
type SnapperFunc func(pos handle.Vec3, offset float32) handle.Vec3

// SnapToGround implements GroundSnapper.
func (f SnapperFunc) SnapToGround(pos handle.Vec3, offset float32) handle.Vec3 {
	return f(pos, offset)
}

// Obstacle is an oriented bounding box. Min and Max are model-space corners
// transformed into the world by Pose.
type Obstacle struct {
	Pose     handle.Mat4
	Min, Max handle.Vec3
	Entity   EntityRef
}

// ObstacleFeed lists movable entities near a position.
type ObstacleFeed interface {
	Obstacles(ctx context.Context, center handle.Vec3, radius float32) iter.Seq[Obstacle]
}

// DoorFeed lists openable doors near a position. Probes that hit one of
// them do not block growth.
type DoorFeed interface {
	Doors(ctx context.Context, center handle.Vec3) []EntityRef
}

// DoorSet is a set of door entities.
type DoorSet map[EntityRef]struct{}

// NewDoorSet builds a set from refs.
func NewDoorSet(refs ...EntityRef) DoorSet {
	s := make(DoorSet, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

// Contains reports whether ref is a known door.
func (s DoorSet) Contains(ref EntityRef) bool {
	if ref == NoEntity {
		return false
	}
	_, ok := s[ref]
	return ok
}
