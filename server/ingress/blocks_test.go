package ingress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/dm-vev/emberhold/server/inventory"
)

type fakeBlockWorld struct {
	states      map[BlockPos]BlockState
	byItem      map[uint32]BlockState
	itemByState map[BlockState]uint32
	setErr      error
	lastSet     BlockPos
}

func newFakeBlockWorld() *fakeBlockWorld {
	return &fakeBlockWorld{
		states:      map[BlockPos]BlockState{},
		byItem:      map[uint32]BlockState{},
		itemByState: map[BlockState]uint32{},
	}
}

func (w *fakeBlockWorld) SetBlock(pos BlockPos, state BlockState) (BlockState, error) {
	if w.setErr != nil {
		return 0, w.setErr
	}
	prev := w.states[pos]
	w.states[pos] = state
	w.lastSet = pos
	return prev, nil
}

func (w *fakeBlockWorld) StateForItem(itemID uint32) (BlockState, bool) {
	s, ok := w.byItem[itemID]
	return s, ok
}

func (w *fakeBlockWorld) ItemForState(state BlockState) (uint32, bool) {
	id, ok := w.itemByState[state]
	return id, ok
}

type mapInventorySource map[ecs.EntityID]*inventory.Inventory

func (m mapInventorySource) Inventory(id ecs.EntityID) *inventory.Inventory {
	inv, ok := m[id]
	if !ok {
		inv = inventory.New()
		m[id] = inv
	}
	return inv
}

func encodeBlockAction(x, y, z int32, sequence uint32) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, x)
	_ = binary.Write(&buf, binary.BigEndian, y)
	_ = binary.Write(&buf, binary.BigEndian, z)
	_ = binary.Write(&buf, binary.BigEndian, sequence)
	return buf.Bytes()
}

func TestPlaceBlockDerivesStateFromHeldItemAndDecrementsStack(t *testing.T) {
	w := ecs.NewWorld(nil)
	cb := ecs.NewCommandBuffer(w)
	entity := w.Spawn()

	world := newFakeBlockWorld()
	const dirtItem, dirtState = uint32(5), BlockState(10)
	world.byItem[dirtItem] = dirtState

	invs := mapInventorySource{}
	inv := invs.Inventory(entity)
	inv.Set(0, inventory.Stack{ItemID: dirtItem, Count: 3})

	handler := NewPlaceBlockHandler(world, invs)
	conn := &Connection{Entity: entity}
	pos := BlockPos{X: 1, Y: 2, Z: 3}
	if err := handler(conn, cb, encodeBlockAction(pos.X, pos.Y, pos.Z, 7)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	w.Tick()

	if world.states[pos] != dirtState {
		t.Fatalf("expected state %d placed at %+v, got %d", dirtState, pos, world.states[pos])
	}
	if got := inv.Get(0); got.Count != 2 || got.ItemID != dirtItem {
		t.Fatalf("expected held stack decremented to count 2, got %+v", got)
	}
}

func TestPlaceBlockEmptyHeldSlotIsNoop(t *testing.T) {
	w := ecs.NewWorld(nil)
	cb := ecs.NewCommandBuffer(w)
	entity := w.Spawn()

	world := newFakeBlockWorld()
	invs := mapInventorySource{}

	handler := NewPlaceBlockHandler(world, invs)
	conn := &Connection{Entity: entity}
	if err := handler(conn, cb, encodeBlockAction(0, 0, 0, 1)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	w.Tick()
	if len(world.states) != 0 {
		t.Fatalf("expected no block placed with an empty held slot")
	}
}

func TestPlaceBlockMalformedBodyRejected(t *testing.T) {
	handler := NewPlaceBlockHandler(newFakeBlockWorld(), mapInventorySource{})
	if err := handler(&Connection{}, nil, []byte{1, 2, 3}); err != ErrMalformedFrame {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestBreakBlockWritesAirAndAwardsItem(t *testing.T) {
	w := ecs.NewWorld(nil)
	cb := ecs.NewCommandBuffer(w)
	entity := w.Spawn()

	world := newFakeBlockWorld()
	pos := BlockPos{X: 4, Y: 5, Z: 6}
	const brokenState, itemID = BlockState(20), uint32(9)
	world.states[pos] = brokenState
	world.itemByState[brokenState] = itemID

	invs := mapInventorySource{}
	handler := NewBreakBlockHandler(world, invs)
	conn := &Connection{Entity: entity}
	if err := handler(conn, cb, encodeBlockAction(pos.X, pos.Y, pos.Z, 1)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	w.Tick()

	if world.states[pos] != AirState {
		t.Fatalf("expected broken position set to air, got %d", world.states[pos])
	}
	inv := invs.Inventory(entity)
	if got := inv.Get(0); got.ItemID != itemID || got.Count != 1 {
		t.Fatalf("expected one unit of item %d awarded, got %+v", itemID, got)
	}
}

func TestBreakBlockNoDropIsNoop(t *testing.T) {
	w := ecs.NewWorld(nil)
	cb := ecs.NewCommandBuffer(w)
	entity := w.Spawn()

	world := newFakeBlockWorld()
	pos := BlockPos{X: 0, Y: 0, Z: 0}

	invs := mapInventorySource{}
	handler := NewBreakBlockHandler(world, invs)
	conn := &Connection{Entity: entity}
	if err := handler(conn, cb, encodeBlockAction(pos.X, pos.Y, pos.Z, 1)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	w.Tick()
	inv := invs.Inventory(entity)
	for i := 0; i < inventory.Slots; i++ {
		if !inv.Get(i).Empty() {
			t.Fatalf("expected no item awarded for a block with no drop")
		}
	}
}

func TestBreakBlockWorldErrorIsSwallowed(t *testing.T) {
	w := ecs.NewWorld(nil)
	cb := ecs.NewCommandBuffer(w)
	entity := w.Spawn()

	world := newFakeBlockWorld()
	world.setErr = errors.New("chunk not loaded")

	invs := mapInventorySource{}
	handler := NewBreakBlockHandler(world, invs)
	conn := &Connection{Entity: entity}
	if err := handler(conn, cb, encodeBlockAction(0, 0, 0, 1)); err != nil {
		t.Fatalf("expected break to swallow world errors as a no-op, got %v", err)
	}
	w.Tick()
}
