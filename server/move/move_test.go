package move

import (
	"context"
	"testing"
	"time"

	"github.com/dm-vev/emberhold/server/block"
	"github.com/dm-vev/emberhold/server/spatial"
	"github.com/dm-vev/emberhold/server/world"
	"github.com/go-gl/mathgl/mgl32"
)

const testHeight = 64

func testRegistry() *block.Registry {
	const solid block.State = 10
	return block.NewRegistry(map[block.State]block.Properties{
		solid: {
			Kind: block.KindOpaqueSolid,
			Name: "stone",
			Collision: []spatial.AABB{
				spatial.New(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}),
			},
		},
	})
}

func newTestWorld(t *testing.T) *world.Store {
	t.Helper()
	load := func(ctx context.Context, pos world.ChunkPos, height int) (*world.Chunk, error) {
		return world.NewChunk(pos, height), nil
	}
	s := world.NewStore(testRegistry(), 0, testHeight, 8, load, nil)
	s.GetCachedOrLoad(world.ChunkPos{X: 0, Z: 0})
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.DrainLoaded()
		if _, ok := s.ChunkAt(world.ChunkPos{X: 0, Z: 0}); ok {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for chunk load")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAcceptMoveRejectsExcessiveSpeed(t *testing.T) {
	w := newTestWorld(t)
	m := NewMover(w)

	current := mgl32.Vec3{0, 5, 0}
	proposed := mgl32.Vec3{500, 5, 0}
	half := mgl32.Vec3{0.3, 0.9, 0.3}

	d := m.AcceptMove(current, proposed, half, false)
	if d.Accepted {
		t.Fatalf("expected move exceeding MaxPerTick to be rejected")
	}
	if d.Position != current {
		t.Fatalf("expected corrected position to be current position")
	}
}

func TestAcceptMoveSuppressedDuringGrace(t *testing.T) {
	w := newTestWorld(t)
	m := NewMover(w)

	current := mgl32.Vec3{0, 5, 0}
	proposed := mgl32.Vec3{500, 5, 0}
	half := mgl32.Vec3{0.3, 0.9, 0.3}

	d := m.AcceptMove(current, proposed, half, true)
	if !d.Accepted {
		t.Fatalf("expected speed gate suppressed during grace period")
	}
}

func TestAcceptMoveRejectsCollidingPosition(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.SetBlock(block.Pos{X: 5, Y: 5, Z: 5}, 10); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	m := NewMover(w)

	current := mgl32.Vec3{5, 10, 5}
	proposed := mgl32.Vec3{5.5, 5.5, 5.5}
	half := mgl32.Vec3{0.3, 0.9, 0.3}

	d := m.AcceptMove(current, proposed, half, false)
	if d.Accepted {
		t.Fatalf("expected move into solid block to be rejected")
	}
}

func TestAcceptMoveAllowsOpenSpace(t *testing.T) {
	w := newTestWorld(t)
	m := NewMover(w)

	current := mgl32.Vec3{0, 5, 0}
	proposed := mgl32.Vec3{1, 5, 1}
	half := mgl32.Vec3{0.3, 0.9, 0.3}

	d := m.AcceptMove(current, proposed, half, false)
	if !d.Accepted {
		t.Fatalf("expected move through open space to be accepted")
	}
	if d.Position != proposed {
		t.Fatalf("expected accepted position to equal proposed")
	}
}

func TestIntegrateProjectileAppliesGravityAndDrag(t *testing.T) {
	w := newTestWorld(t)
	m := NewMover(w)

	p := &Projectile{Pos: mgl32.Vec3{0, 20, 0}, Vel: mgl32.Vec3{1, 0, 0}}
	_, hit := m.IntegrateProjectile(p)
	if hit {
		t.Fatalf("expected no collision in open air")
	}
	if p.Vel[1] >= 0 {
		t.Fatalf("expected gravity to pull Y velocity negative, got %v", p.Vel[1])
	}
	if p.Vel[0] >= 1 {
		t.Fatalf("expected drag to shrink X velocity, got %v", p.Vel[0])
	}
}

func TestIntegrateProjectileHitsBlock(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.SetBlock(block.Pos{X: 5, Y: 10, Z: 0}, 10); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	m := NewMover(w)

	p := &Projectile{Pos: mgl32.Vec3{0, 10.5, 0}, Vel: mgl32.Vec3{10, 0, 0}}
	impact, hit := m.IntegrateProjectile(p)
	if !hit {
		t.Fatalf("expected projectile to strike placed block")
	}
	if impact.Block.X != 5 {
		t.Fatalf("expected impact at block x=5, got %+v", impact.Block)
	}
}
