package egress

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"testing"
	"time"

	"github.com/dm-vev/emberhold/server/block"
	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/dm-vev/emberhold/server/inventory"
	"github.com/dm-vev/emberhold/server/world"
)

func TestOrderKeyPacking(t *testing.T) {
	k := NewOrderKey(7, 42)
	if k.SystemID() != 7 {
		t.Fatalf("expected system id 7, got %d", k.SystemID())
	}
	if k.Counter() != 42 {
		t.Fatalf("expected counter 42, got %d", k.Counter())
	}
}

func TestEncoderRoundTrip(t *testing.T) {
	e := NewEncoder()
	body := []byte("a chunk join payload, compressed once and reused")
	compressed := e.Encode(body)

	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("zlib.NewReader: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestBatcherDrainResetsAndOrdersCounters(t *testing.T) {
	b := NewBatcher()
	r := NewRouter(1, b, nil, nil)

	r.Unicast(10, []byte("a"), false)
	r.Unicast(10, []byte("b"), false)

	pending := b.Drain()
	if len(pending) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(pending))
	}
	if pending[0].Order().Counter() >= pending[1].Order().Counter() {
		t.Fatalf("expected increasing counters: %d then %d",
			pending[0].Order().Counter(), pending[1].Order().Counter())
	}
	if len(b.Drain()) != 0 {
		t.Fatalf("expected batch to be empty after Drain")
	}
}

func TestBatcherDrainSortsOutOfOrderAppends(t *testing.T) {
	b := NewBatcher()
	// Simulate two systems (ids 5 and 2) appending out of system-id order,
	// as could happen when they run on different worker threads.
	b.Append(Unicast{Stream: 1, OrderKey: NewOrderKey(5, 1)})
	b.Append(Unicast{Stream: 1, OrderKey: NewOrderKey(2, 1)})
	b.Append(Unicast{Stream: 1, OrderKey: NewOrderKey(5, 2)})

	pending := b.Drain()
	if len(pending) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].Order() > pending[i].Order() {
			t.Fatalf("expected non-decreasing order keys, got %v then %v", pending[i-1].Order(), pending[i].Order())
		}
	}
	if pending[0].Order().SystemID() != 2 {
		t.Fatalf("expected the lower system id first after sorting, got %d", pending[0].Order().SystemID())
	}
}

func TestJoinCacheBuildsOnce(t *testing.T) {
	calls := 0
	cache := NewJoinCache(func() []byte {
		calls++
		return []byte("join-payload")
	})
	for i := 0; i < 5; i++ {
		cache.JoinPayload()
	}
	if calls != 1 {
		t.Fatalf("expected exactly one build call, got %d", calls)
	}
}

type recordingBundle struct {
	moves        int
	teleports    int
	rotates      int
	slotUpdates  int
	blockUpdates int
}

func (b *recordingBundle) RelativeMove(ecs.EntityID, float32, float32, float32) []byte {
	b.moves++
	return []byte("move")
}
func (b *recordingBundle) Teleport(ecs.EntityID, float32, float32, float32, uint32) []byte {
	b.teleports++
	return []byte("teleport")
}
func (b *recordingBundle) Rotate(ecs.EntityID, float32, float32) []byte {
	b.rotates++
	return []byte("rotate")
}
func (b *recordingBundle) SlotUpdate(int, uint32, uint8, uint16) []byte {
	b.slotUpdates++
	return []byte("slot-update")
}
func (b *recordingBundle) BlockUpdate(int32, int32, int32, uint16) []byte {
	b.blockUpdates++
	return []byte("block-update")
}

type mapInventorySource map[ecs.EntityID]*inventory.Inventory

func (m mapInventorySource) ForEachInventory(fn func(id ecs.EntityID, inv *inventory.Inventory)) {
	for id, inv := range m {
		fn(id, inv)
	}
}

func TestInventoryDiffEmitsSlotUpdateAndClearsDirty(t *testing.T) {
	w := ecs.NewWorld(nil)
	batch := NewBatcher()
	router := NewRouter(3, batch, nil, nil)
	bundle := &recordingBundle{}

	e := w.Spawn()
	ecs.StoreOf[ecs.OwningStream](w).Set(e, ecs.OwningStream{Stream: 42})
	inv := inventory.New()
	src := mapInventorySource{e: inv}
	RegisterInventoryDiff(w, src, bundle, router)

	inv.Set(0, inventory.Stack{ItemID: 7, Count: 1})
	w.Tick()

	if bundle.slotUpdates != 1 {
		t.Fatalf("expected one slot-update, got %d", bundle.slotUpdates)
	}
	if inv.Dirty() {
		t.Fatalf("expected ClearDirty to have run after diffing")
	}
	if batch.Len() != 1 {
		t.Fatalf("expected one queued envelope, got %d", batch.Len())
	}
	batch.Drain()

	w.Tick()
	if bundle.slotUpdates != 1 {
		t.Fatalf("expected no further slot-update once clean, got %d", bundle.slotUpdates)
	}
}

func TestInventoryDiffSkipsEntityWithoutOwningStream(t *testing.T) {
	w := ecs.NewWorld(nil)
	batch := NewBatcher()
	router := NewRouter(3, batch, nil, nil)
	bundle := &recordingBundle{}

	e := w.Spawn()
	inv := inventory.New()
	src := mapInventorySource{e: inv}
	RegisterInventoryDiff(w, src, bundle, router)

	inv.Set(0, inventory.Stack{ItemID: 1, Count: 1})
	w.Tick()

	if bundle.slotUpdates != 0 {
		t.Fatalf("expected no slot-update without an OwningStream, got %d", bundle.slotUpdates)
	}
	if inv.Dirty() {
		t.Fatalf("expected dirty bits cleared even without a stream to notify")
	}
}

func testBlockRegistry() *block.Registry {
	const dirt block.State = 10
	return block.NewRegistry(map[block.State]block.Properties{
		dirt: {Kind: block.KindOpaqueSolid, Name: "dirt", ItemID: 5},
	})
}

func newTestChunkStore(t *testing.T) *world.Store {
	t.Helper()
	s := world.NewStore(testBlockRegistry(), 0, 64, 8, func(_ context.Context, pos world.ChunkPos, height int) (*world.Chunk, error) {
		return world.NewChunk(pos, height), nil
	}, nil)
	s.GetCachedOrLoad(world.ChunkPos{X: 0, Z: 0})
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.DrainLoaded()
		if _, ok := s.ChunkAt(world.ChunkPos{X: 0, Z: 0}); ok {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for test chunk to load")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBlockUpdatesBroadcastsAppliedDelta(t *testing.T) {
	w := ecs.NewWorld(nil)
	batch := NewBatcher()
	router := NewRouter(4, batch, nil, nil)
	bundle := &recordingBundle{}
	chunks := newTestChunkStore(t)

	RegisterBlockUpdates(w, chunks, bundle, router)

	if _, err := chunks.SetBlock(world.Pos{X: 1, Y: 2, Z: 3}, 10); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	w.Tick()

	if bundle.blockUpdates != 1 {
		t.Fatalf("expected one block-update, got %d", bundle.blockUpdates)
	}
	if batch.Len() != 1 {
		t.Fatalf("expected one queued envelope, got %d", batch.Len())
	}
}

func TestPositionDiffEmitsMoveThenTeleport(t *testing.T) {
	w := ecs.NewWorld(nil)
	batch := NewBatcher()
	router := NewRouter(2, batch, nil, nil)
	bundle := &recordingBundle{}
	RegisterPositionDiff(w, bundle, router)

	e := w.Spawn()
	ecs.StoreOf[ecs.Position](w).Set(e, ecs.Position{X: 0, Y: 0, Z: 0})
	w.Tick() // PostStore syncs Prev to the initial value.
	batch.Drain()

	ecs.StoreOf[ecs.Position](w).Set(e, ecs.Position{X: 1, Y: 0, Z: 0})
	w.Tick()
	if bundle.moves != 1 || bundle.teleports != 0 {
		t.Fatalf("expected one relative move, got moves=%d teleports=%d", bundle.moves, bundle.teleports)
	}
	if batch.Len() != 1 {
		t.Fatalf("expected one queued envelope, got %d", batch.Len())
	}
	batch.Drain()

	ecs.StoreOf[ecs.Position](w).Set(e, ecs.Position{X: 500, Y: 0, Z: 0})
	w.Tick()
	if bundle.teleports != 1 {
		t.Fatalf("expected a teleport for a large displacement, got %d", bundle.teleports)
	}
}

func TestPositionDiffIgnoresNegligibleChange(t *testing.T) {
	w := ecs.NewWorld(nil)
	batch := NewBatcher()
	router := NewRouter(2, batch, nil, nil)
	bundle := &recordingBundle{}
	RegisterPositionDiff(w, bundle, router)

	e := w.Spawn()
	ecs.StoreOf[ecs.Position](w).Set(e, ecs.Position{X: 0, Y: 0, Z: 0})
	w.Tick()
	batch.Drain()

	ecs.StoreOf[ecs.Position](w).Set(e, ecs.Position{X: 0.0000001, Y: 0, Z: 0})
	w.Tick()
	if bundle.moves != 0 {
		t.Fatalf("expected negligible change to be suppressed, got %d moves", bundle.moves)
	}
}

func TestResolveLocalCollectsViewersWithinRadius(t *testing.T) {
	load := func(ctx context.Context, pos world.ChunkPos, height int) (*world.Chunk, error) {
		return world.NewChunk(pos, height), nil
	}
	store := world.NewStore(nil, 0, 64, 8, load, nil)

	for _, p := range []world.ChunkPos{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 5, Z: 5}} {
		store.GetCachedOrLoad(p)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.DrainLoaded()
		_, a := store.ChunkAt(world.ChunkPos{X: 0, Z: 0})
		_, b := store.ChunkAt(world.ChunkPos{X: 1, Z: 0})
		_, c := store.ChunkAt(world.ChunkPos{X: 5, Z: 5})
		if a && b && c {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for chunks to load")
		}
		time.Sleep(time.Millisecond)
	}

	near, _ := store.ChunkAt(world.ChunkPos{X: 0, Z: 0})
	near.AddViewer(world.ViewerID(1))
	adjacent, _ := store.ChunkAt(world.ChunkPos{X: 1, Z: 0})
	adjacent.AddViewer(world.ViewerID(2))
	far, _ := store.ChunkAt(world.ChunkPos{X: 5, Z: 5})
	far.AddViewer(world.ViewerID(3))

	envelope := BroadcastLocal{CenterX: 0, CenterZ: 0, Radius: 1, Body: []byte("x")}
	streams := ResolveLocal(store, envelope)

	if len(streams) != 2 {
		t.Fatalf("expected 2 viewers within radius 1, got %d (%v)", len(streams), streams)
	}
	for _, id := range streams {
		if id == 3 {
			t.Fatalf("expected far viewer to be excluded by radius")
		}
	}
}
