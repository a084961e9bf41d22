package ingress

import (
	"encoding/binary"

	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/dm-vev/emberhold/server/inventory"
)

// BlockPos is a world voxel position, declared independently of
// server/world/block.Pos to keep ingress free of a dependency on the voxel
// world package graph (mirrors movement.go's Mover/Decision pattern).
type BlockPos struct{ X, Y, Z int32 }

// BlockState is a 16-bit block palette id, mirroring block.State.
type BlockState uint16

// AirState is the block state a successful break writes.
const AirState BlockState = 1

// MaxStackSize bounds how many units of an item a single inventory slot can
// hold (spec.md §3 "Inventory").
const MaxStackSize = 64

// BlockWorld mutates and reads the voxel world store, and resolves the
// item<->block-state mapping the server uses to decide what a place packet
// actually places (never the client-supplied block identity, for
// anti-cheat). Satisfied by an adapter over *server/world.Store and
// *server/block.Registry.
type BlockWorld interface {
	SetBlock(pos BlockPos, state BlockState) (BlockState, error)
	StateForItem(itemID uint32) (BlockState, bool)
	ItemForState(state BlockState) (itemID uint32, ok bool)
}

// InventorySource resolves the Inventory tied to an entity, creating one on
// first use. Satisfied by *server.Server.
type InventorySource interface {
	Inventory(id ecs.EntityID) *inventory.Inventory
}

// PacketIDPlaceBlock and PacketIDBreakBlock are the Play-state packet ids
// carrying block place/break requests (spec.md scenario S3).
const (
	PacketIDPlaceBlock uint32 = 2
	PacketIDBreakBlock uint32 = 3
)

// decodeBlockAction parses a place/break packet body: three big-endian
// int32 block coordinates followed by a big-endian uint32 client sequence
// number (echoed back by nothing server-side yet; carried for future
// ack/replay tracking, per spec.md scenario S3's "with sequence 7").
func decodeBlockAction(body []byte) (pos BlockPos, sequence uint32, ok bool) {
	if len(body) != 16 {
		return BlockPos{}, 0, false
	}
	pos = BlockPos{
		X: int32(binary.BigEndian.Uint32(body[0:4])),
		Y: int32(binary.BigEndian.Uint32(body[4:8])),
		Z: int32(binary.BigEndian.Uint32(body[8:12])),
	}
	sequence = binary.BigEndian.Uint32(body[12:16])
	return pos, sequence, true
}

// NewPlaceBlockHandler builds the Play-state handler for a block place
// request: it derives the placed State from the player's held inventory
// slot (ignoring any block identity the client might claim), writes it into
// the world, and decrements the held stack by one (spec.md scenario S3).
// Placing is a no-op if the held slot is empty or holds a non-placeable
// item, or if the target chunk isn't loaded. The whole placement (the held
// slot read, world.SetBlock and the Inventory decrement) is staged through
// cb and runs when the tick flushes it, since Inventory has no internal
// locking of its own and is read by egress.RegisterInventoryDiff's OnStore
// system.
func NewPlaceBlockHandler(world BlockWorld, inv InventorySource) PacketHandler {
	return func(conn *Connection, cb *ecs.CommandBuffer, body []byte) error {
		pos, _, ok := decodeBlockAction(body)
		if !ok {
			return ErrMalformedFrame
		}
		entity := conn.Entity
		if entity == 0 {
			return nil
		}
		cb.Stage(func(*ecs.World) {
			playerInv := inv.Inventory(entity)
			held := playerInv.Held()
			stack := playerInv.Get(held)
			if stack.Empty() {
				return
			}
			state, ok := world.StateForItem(stack.ItemID)
			if !ok {
				return
			}
			if _, err := world.SetBlock(pos, state); err != nil {
				return
			}
			stack.Count--
			if stack.Count == 0 {
				stack = inventory.Stack{}
			}
			playerInv.Set(held, stack)
		})
		return nil
	}
}

// NewBreakBlockHandler builds the Play-state handler for a block break
// request: it writes air over pos and, if the broken block yielded an item,
// adds one stack of it to the breaking player's inventory (spec.md scenario
// S3). Breaking an already-air block or a block with no drop is a no-op
// beyond the (no-op) world write. The world write and the Inventory award
// are staged through cb for the same reason NewPlaceBlockHandler stages its
// placement; a failed world write is dropped as a no-op.
func NewBreakBlockHandler(world BlockWorld, inv InventorySource) PacketHandler {
	return func(conn *Connection, cb *ecs.CommandBuffer, body []byte) error {
		pos, _, ok := decodeBlockAction(body)
		if !ok {
			return ErrMalformedFrame
		}
		entity := conn.Entity
		if entity == 0 {
			return nil
		}
		cb.Stage(func(*ecs.World) {
			prev, err := world.SetBlock(pos, AirState)
			if err != nil {
				return
			}
			itemID, ok := world.ItemForState(prev)
			if !ok {
				return
			}
			inv.Inventory(entity).AddItem(itemID, 0, 1, MaxStackSize)
		})
		return nil
	}
}
