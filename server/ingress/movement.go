package ingress

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"

	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

// Mover evaluates a client-reported position update against the world's
// collision state (spec.md §4.6). Satisfied by *server/move.Mover; declared
// here to avoid ingress depending on the world/block packages move pulls in.
type Mover interface {
	AcceptMove(current, proposed, halfExtents mgl32.Vec3, suppressSpeedGate bool) Decision
}

// Decision mirrors move.Decision: whether a proposed position was accepted,
// and the position to commit (proposed if accepted, the prior authoritative
// position otherwise).
type Decision struct {
	Accepted bool
	Position mgl32.Vec3
}

// Corrector emits the unicast correction packet spec.md §4.6 step 4
// requires when a movement update is rejected.
type Corrector interface {
	Correct(stream uint64, entity ecs.EntityID, pos mgl32.Vec3, teleportID uint32)
}

// PacketIDMove is the Play-state packet id carrying a client-reported
// position update (spec.md §4.6).
const PacketIDMove uint32 = 1

// GracePeriodTicks is how long after a connection enters Play its movement
// updates are exempt from the speed gate (spec.md §9 Open Question 1): long
// enough to cover falling through a chunk still being loaded.
const GracePeriodTicks = 20

// decodeMoveBody parses a PlayerMove packet body: three big-endian float32s
// (x, y, z), matching the fixed-field-order binary layout the proxy and
// proxy-facing frames use throughout this package.
func decodeMoveBody(body []byte) (mgl32.Vec3, bool) {
	if len(body) != 12 {
		return mgl32.Vec3{}, false
	}
	r := bytes.NewReader(body)
	var x, y, z float32
	if binary.Read(r, binary.BigEndian, &x) != nil {
		return mgl32.Vec3{}, false
	}
	if binary.Read(r, binary.BigEndian, &y) != nil {
		return mgl32.Vec3{}, false
	}
	if binary.Read(r, binary.BigEndian, &z) != nil {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{x, y, z}, true
}

// NewMovementHandler builds the Play-state PacketHandler for position
// updates: it looks up the entity's current Position/EntitySize, evaluates
// the proposed position through mover, stages the accepted (or corrected)
// position back onto the ECS, and, on rejection, asks corrector to emit the
// PlayerPositionLook-style correction frame with a fresh teleport id
// (spec.md §4.6 step 4).
func NewMovementHandler(w *ecs.World, mover Mover, corrector Corrector) PacketHandler {
	positions := ecs.StoreOf[ecs.Position](w)
	sizes := ecs.StoreOf[ecs.EntitySize](w)
	var teleportCounter uint32 // incremented with atomic.AddUint32: the returned handler is shared across every ingress.Pool worker goroutine

	return func(conn *Connection, cb *ecs.CommandBuffer, body []byte) error {
		proposed, ok := decodeMoveBody(body)
		if !ok {
			return ErrMalformedFrame
		}
		entity := conn.Entity
		if entity == 0 {
			return nil
		}
		current, _ := positions.Get(entity)
		size, _ := sizes.Get(entity)

		suppress := w.CurrentTick()-conn.JoinTick < GracePeriodTicks
		decision := mover.AcceptMove(current.Vec3(), proposed, size.HalfExtents(), suppress)

		cb.Stage(func(w *ecs.World) {
			positions.Set(entity, ecs.PositionFromVec3(decision.Position))
		})

		if !decision.Accepted && corrector != nil {
			id := atomic.AddUint32(&teleportCounter, 1)
			corrector.Correct(conn.StreamID, entity, decision.Position, id)
		}
		return nil
	}
}
