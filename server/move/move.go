// Package move implements the collision & movement kernel: swept AABB-vs-
// voxel collision, anti-cheat speed gating, and server-authoritative
// correction (spec.md §4.6).
package move

import (
	"math"

	"github.com/dm-vev/emberhold/server/block"
	"github.com/dm-vev/emberhold/server/spatial"
	"github.com/dm-vev/emberhold/server/world"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxPerTick is the anti-cheat speed gate: a client-reported position update
// farther than this many blocks from the current authoritative position is
// rejected outright (spec.md §4.6 step 1).
const MaxPerTick = 100

// collisionInset shrinks the proposed-position AABB before testing it
// against block collision shapes, matching the source's 0.01 inset
// (spec.md §4.6 step 2).
const collisionInset = 0.01

// Mover evaluates client movement updates against a voxel Store.
type Mover struct {
	World *world.Store
}

// NewMover constructs a Mover bound to the given voxel Store.
func NewMover(w *world.Store) *Mover {
	return &Mover{World: w}
}

// Decision is the outcome of evaluating a client-reported position update.
type Decision struct {
	Accepted bool
	Position mgl32.Vec3 // the position to commit (proposed if accepted, current otherwise)
}

// AcceptMove implements spec.md §4.6's algorithm. halfExtents is the
// entity's axis-aligned half-width/height (spec.md §3 "Entity size").
// suppressSpeedGate disables step 1's distance check; it is set by the
// caller during the grace period right after join, per §9 Open Question 1,
// so that clients falling through not-yet-loaded chunks are not kicked for
// exceeding the speed gate.
func (m *Mover) AcceptMove(current, proposed mgl32.Vec3, halfExtents mgl32.Vec3, suppressSpeedGate bool) Decision {
	if !suppressSpeedGate {
		if current.Sub(proposed).Len() > MaxPerTick {
			return Decision{Accepted: false, Position: current}
		}
	}

	box := spatial.FromCenterHalfExtents(proposed, halfExtents).Expand(-collisionInset)
	if m.collides(box) {
		return Decision{Accepted: false, Position: current}
	}
	return Decision{Accepted: true, Position: proposed}
}

// collides reports whether box intersects any collision shape exposed by a
// block in the enclosing block range (spec.md §4.6 steps 2-3).
func (m *Mover) collides(box spatial.AABB) bool {
	min := block.Pos{X: int(math.Floor(float64(box.Min[0]))), Y: int(math.Floor(float64(box.Min[1]))), Z: int(math.Floor(float64(box.Min[2])))}
	max := block.Pos{X: int(math.Floor(float64(box.Max[0]))), Y: int(math.Floor(float64(box.Max[1]))), Z: int(math.Floor(float64(box.Max[2])))}

	hit := false
	m.World.GetBlocks(min, max, func(p block.Pos, st block.State) bool {
		props := m.World.Registry.Properties(st)
		offset := mgl32.Vec3{float32(p.X), float32(p.Y), float32(p.Z)}
		for _, shape := range props.Collision {
			if shape.Translate(offset).Intersects(box) {
				hit = true
				return false
			}
		}
		return true
	})
	return hit
}
