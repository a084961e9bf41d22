package egress

import (
	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/dm-vev/emberhold/server/inventory"
)

// teleportThreshold is the per-tick position delta past which a relative
// move is replaced by a full teleport, avoiding the wire format's limited
// relative-move precision range.
const teleportThreshold = 8.0

// epsilon gates out negligible position/rotation changes so near-stationary
// entities don't produce an update every tick, mirroring the source's
// ApproxEqualThreshold-gated Movement.Send.
const epsilon = 1e-4

// FrameBundle is the opaque wire-encoding collaborator named in spec.md §6
// ("the wire protocol's exact packet encodings... consumed as an opaque
// frame bundle interface"): egress hands it semantic change events and gets
// back encoded bytes, without this package ever constructing packet bytes
// itself.
type FrameBundle interface {
	RelativeMove(id ecs.EntityID, dx, dy, dz float32) []byte
	Teleport(id ecs.EntityID, x, y, z float32, teleportID uint32) []byte
	Rotate(id ecs.EntityID, yaw, pitch float32) []byte
	SlotUpdate(slot int, itemID uint32, count uint8, meta uint16) []byte
	BlockUpdate(x, y, z int32, state uint16) []byte
}

// InventorySource lets RegisterInventoryDiff visit every tracked inventory
// without egress holding a map of its own; *server.Server satisfies this
// over its lazily-created per-entity Inventory map.
type InventorySource interface {
	ForEachInventory(func(id ecs.EntityID, inv *inventory.Inventory))
}

// RegisterPositionDiff installs an OnStore system that diffs every tracked
// entity's Position against Prev[Position] and emits a relative-move or
// teleport broadcast for any change exceeding epsilon (spec.md §4.3
// "Encoding path", §8 invariant "every mutation must be reflected to clients
// within one tick"). Movement updates are optional: the proxy may drop them
// under backpressure.
func RegisterPositionDiff(w *ecs.World, bundle FrameBundle, router *Router) {
	ecs.TrackPrev[ecs.Position](w)
	var teleportCounter uint32

	w.AddSystem(&ecs.System{
		Name:  "egress.diff.position",
		Phase: ecs.OnStore,
		Run: func(w *ecs.World) {
			for id, pair := range ecs.Query2[ecs.Position, ecs.Prev[ecs.Position]](w) {
				cur, prev := pair.A, pair.B.Value
				dx, dy, dz := cur.X-prev.X, cur.Y-prev.Y, cur.Z-prev.Z
				magSq := dx*dx + dy*dy + dz*dz
				if magSq < epsilon*epsilon {
					continue
				}

				var body []byte
				if magSq > teleportThreshold*teleportThreshold {
					teleportCounter++
					body = bundle.Teleport(id, cur.X, cur.Y, cur.Z, teleportCounter)
				} else {
					body = bundle.RelativeMove(id, dx, dy, dz)
				}
				router.BroadcastGlobal(body, true)
			}
		},
	})
}

// RegisterRotationDiff installs an OnStore system that diffs every tracked
// entity's Rotation against Prev[Rotation] and emits a rotate broadcast for
// any change exceeding epsilon.
func RegisterRotationDiff(w *ecs.World, bundle FrameBundle, router *Router) {
	ecs.TrackPrev[ecs.Rotation](w)

	w.AddSystem(&ecs.System{
		Name:  "egress.diff.rotation",
		Phase: ecs.OnStore,
		Run: func(w *ecs.World) {
			for id, pair := range ecs.Query2[ecs.Rotation, ecs.Prev[ecs.Rotation]](w) {
				cur, prev := pair.A, pair.B.Value
				dyaw, dpitch := cur.Yaw-prev.Yaw, cur.Pitch-prev.Pitch
				if dyaw*dyaw+dpitch*dpitch < epsilon*epsilon {
					continue
				}
				router.BroadcastGlobal(bundle.Rotate(id, cur.Yaw, cur.Pitch), true)
			}
		},
	})
}

// RegisterInventoryDiff installs an OnStore system that reads and clears
// every tracked Inventory's dirty bits each tick, unicasting a slot-update
// frame per changed slot to the owning connection (spec.md §3 "the
// egress-sync system reads and clears bits each tick", §4.3 "inventory
// dirty bit set → slot-update"). Slot-update traffic is state-critical, not
// optional (spec.md §5 "Backpressure").
func RegisterInventoryDiff(w *ecs.World, src InventorySource, bundle FrameBundle, router *Router) {
	streams := ecs.StoreOf[ecs.OwningStream](w)

	w.AddSystem(&ecs.System{
		Name:  "egress.diff.inventory",
		Phase: ecs.OnStore,
		Run: func(w *ecs.World) {
			src.ForEachInventory(func(id ecs.EntityID, inv *inventory.Inventory) {
				if !inv.Dirty() {
					return
				}
				owner, ok := streams.Get(id)
				if !ok {
					inv.ClearDirty()
					return
				}
				for _, slot := range inv.DirtySlots() {
					s := inv.Get(slot)
					router.Unicast(owner.Stream, bundle.SlotUpdate(slot, s.ItemID, s.Count, s.Meta), false)
				}
				inv.ClearDirty()
			})
		},
	})
}
