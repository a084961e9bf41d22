package ecs

import "github.com/go-gl/mathgl/mgl32"

// Position is the single-precision 3D coordinate component (spec.md §3
// "Position"): authoritative on the server, mutated by ingress/movement
// systems and diffed against Prev[Position] by egress each tick.
type Position struct{ X, Y, Z float32 }

// Vec3 converts Position to an mgl32.Vec3 for use with the spatial and move
// packages.
func (p Position) Vec3() mgl32.Vec3 { return mgl32.Vec3{p.X, p.Y, p.Z} }

// PositionFromVec3 builds a Position from an mgl32.Vec3.
func PositionFromVec3(v mgl32.Vec3) Position { return Position{v[0], v[1], v[2]} }

// Rotation is the yaw/pitch orientation component.
type Rotation struct{ Yaw, Pitch float32 }

// Velocity is the per-tick displacement component consumed by the movement
// kernel and projectile integrator.
type Velocity struct{ X, Y, Z float32 }

func (v Velocity) Vec3() mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }

func VelocityFromVec3(v mgl32.Vec3) Velocity { return Velocity{v[0], v[1], v[2]} }

// EntitySize is the axis-aligned half-width/height component (spec.md §3
// "Entity size"); combined with Position it yields the entity's AABB.
type EntitySize struct{ HalfWidth, Height float32 }

// OwningStream is the proxy stream id a player entity was spawned from
// (spec.md §4.2 "Login"), letting per-player egress systems (inventory
// slot-update diffing, movement correction) unicast back to the right
// connection without a separate entity->stream lookup table.
type OwningStream struct{ Stream uint64 }

// HalfExtents returns the per-axis half-extent vector used by
// spatial.FromCenterHalfExtents.
func (s EntitySize) HalfExtents() mgl32.Vec3 {
	return mgl32.Vec3{s.HalfWidth, s.Height / 2, s.HalfWidth}
}
