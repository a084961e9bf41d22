package move

import (
	"math"

	"github.com/dm-vev/emberhold/server/block"
	"github.com/go-gl/mathgl/mgl32"
)

// Projectile drag and gravity constants, matching the source's tuned
// server-side ballistic integration (spec.md §4.6 "Server-side projectile
// integration").
const (
	projectileDrag       = 0.9975
	projectileGravity    = 0.05
	terminalVelocity     = 100
)

// Projectile is a server-simulated ballistic entity (arrows, thrown items).
type Projectile struct {
	Pos mgl32.Vec3
	Vel mgl32.Vec3
}

// Impact describes a projectile striking a block.
type Impact struct {
	Pos   mgl32.Vec3
	Block block.Pos
}

// IntegrateProjectile advances p by one tick: raycasting along the current
// velocity for the first block collision, then on a miss applying gravity
// and drag and clamping to terminal velocity.
func (m *Mover) IntegrateProjectile(p *Projectile) (Impact, bool) {
	dist := p.Vel.Len()
	if dist == 0 {
		return Impact{}, false
	}
	dir := p.Vel.Mul(1 / dist)

	if hit, ok := m.firstCollision(p.Pos, dir, dist); ok {
		p.Pos = hit.Pos
		p.Vel = mgl32.Vec3{}
		return hit, true
	}

	p.Pos = p.Pos.Add(p.Vel)
	p.Vel[1] -= projectileGravity
	p.Vel = p.Vel.Mul(projectileDrag)
	if speed := p.Vel.Len(); speed > terminalVelocity {
		p.Vel = p.Vel.Mul(terminalVelocity / speed)
	}
	return Impact{}, false
}

// firstCollision walks every block whose AABB the segment [origin,
// origin+dir*maxDist] could plausibly strike and returns the nearest hit,
// grounding the voxel store's "first_collision" query named in spec.md §4.5.
func (m *Mover) firstCollision(origin, dir mgl32.Vec3, maxDist float32) (Impact, bool) {
	end := origin.Add(dir.Mul(maxDist))
	min := block.Pos{
		X: int(math.Floor(float64(min32(origin[0], end[0])))) - 1,
		Y: int(math.Floor(float64(min32(origin[1], end[1])))) - 1,
		Z: int(math.Floor(float64(min32(origin[2], end[2])))) - 1,
	}
	max := block.Pos{
		X: int(math.Floor(float64(max32(origin[0], end[0])))) + 1,
		Y: int(math.Floor(float64(max32(origin[1], end[1])))) + 1,
		Z: int(math.Floor(float64(max32(origin[2], end[2])))) + 1,
	}

	inv := mgl32.Vec3{safeInv(dir[0]), safeInv(dir[1]), safeInv(dir[2])}
	best := float32(math.Inf(1))
	var bestImpact Impact
	found := false

	m.World.GetBlocks(min, max, func(bp block.Pos, st block.State) bool {
		props := m.World.Registry.Properties(st)
		offset := mgl32.Vec3{float32(bp.X), float32(bp.Y), float32(bp.Z)}
		for _, shape := range props.Collision {
			world := shape.Translate(offset)
			t, ok := world.IntersectRay(origin, inv)
			if !ok || t < 0 || t > maxDist {
				continue
			}
			if t < best {
				best = t
				bestImpact = Impact{Pos: origin.Add(dir.Mul(t)), Block: bp}
				found = true
			}
		}
		return true
	})
	return bestImpact, found
}

func safeInv(v float32) float32 {
	if v == 0 {
		return float32(math.Inf(1))
	}
	return 1 / v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
