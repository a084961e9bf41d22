package world

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dm-vev/emberhold/server/block"
)

const testHeight = 64

func testRegistry() *block.Registry {
	const (
		dirt        block.State = 10
		doorLowerOpen block.State = 20
		doorLowerShut block.State = 21
		doorUpperOpen block.State = 22
		doorUpperShut block.State = 23
	)
	return block.NewRegistry(map[block.State]block.Properties{
		dirt: {Kind: block.KindOpaqueSolid, Name: "dirt"},
		doorLowerShut: {Kind: block.KindDoorLower, Name: "door_lower", Open: false, PairState: doorLowerOpen},
		doorLowerOpen: {Kind: block.KindDoorLower, Name: "door_lower", Open: true, PairState: doorLowerShut},
		doorUpperShut: {Kind: block.KindDoorUpper, Name: "door_upper", Open: false, PairState: doorUpperOpen},
		doorUpperOpen: {Kind: block.KindDoorUpper, Name: "door_upper", Open: true, PairState: doorUpperShut},
	})
}

func syncLoad(ctx context.Context, pos ChunkPos, height int) (*Chunk, error) {
	return NewChunk(pos, height), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(testRegistry(), 0, testHeight, 8, syncLoad, nil)
	// Force-load the chunks the tests need, draining the async loader.
	for _, p := range []ChunkPos{{0, 0}, {-1, 0}} {
		s.GetCachedOrLoad(p)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.DrainLoaded()
		if _, ok := s.ChunkAt(ChunkPos{0, 0}); ok {
			if _, ok := s.ChunkAt(ChunkPos{-1, 0}); ok {
				return s
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for test chunks to load")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestSetBlockImmediateReadback covers spec.md §8 invariant 2.
func TestSetBlockImmediateReadback(t *testing.T) {
	s := newTestStore(t)
	pos := Pos{X: 10, Y: 5, Z: 10}

	prev, err := s.SetBlock(pos, 10)
	if err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if prev != block.Air {
		t.Fatalf("expected previous state air, got %v", prev)
	}
	if got := s.Block(pos); got != 10 {
		t.Fatalf("expected immediate readback of new state, got %v", got)
	}
}

func TestSetBlockUnloadedChunkErrors(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetBlock(Pos{X: 1000, Y: 5, Z: 1000}, 10)
	if err != ErrChunkNotLoaded {
		t.Fatalf("expected ErrChunkNotLoaded, got %v", err)
	}
}

func TestSetBlockOutOfBounds(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetBlock(Pos{X: 0, Y: -5, Z: 0}, 10)
	if err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

type countingSink struct{ n atomic.Int64 }

func (c *countingSink) BlockUpdate(Pos, block.State, int32) { c.n.Add(1) }

// TestDoorNeighborPropagation covers spec.md §4.4 scenario S4: interacting
// with the lower half flips both halves' Open flag within two RunOnUpdate
// passes (one to apply, one for neighbor notify to sync the upper half).
func TestDoorNeighborPropagation(t *testing.T) {
	s := newTestStore(t)
	lower := Pos{X: 0, Y: 10, Z: 0}
	upper := Pos{X: 0, Y: 11, Z: 0}

	if _, err := s.SetBlock(lower, 21); err != nil { // door_lower, shut
		t.Fatalf("place lower: %v", err)
	}
	if _, err := s.SetBlock(upper, 23); err != nil { // door_upper, shut
		t.Fatalf("place upper: %v", err)
	}

	sink := &countingSink{}
	s.RunOnUpdate(sink) // drains the placement deltas, queuing their neighbor notifies.
	s.RunOnUpdate(sink) // runs those notifies; both halves are shut, so nothing changes.

	if err := s.Interact(lower); err != nil {
		t.Fatalf("Interact: %v", err)
	}

	s.RunOnUpdate(sink) // tick N: applies the toggle, queues neighbor notify for upper.
	if !s.Registry.Properties(s.Block(lower)).Open {
		t.Fatalf("expected lower half open after interact")
	}
	if s.Registry.Properties(s.Block(upper)).Open {
		t.Fatalf("expected upper half still shut after only one RunOnUpdate")
	}

	s.RunOnUpdate(sink) // tick N+1: neighbor notify fires, syncs upper half.
	if !s.Registry.Properties(s.Block(upper)).Open {
		t.Fatalf("expected upper half open after neighbor notify propagation")
	}
}

// TestDoorMissingPartnerConvertsToAir covers spec.md §9 Open Question 3: a
// door half whose partner has been removed converts to air on the next
// neighbor-notify pass rather than crashing.
func TestDoorMissingPartnerConvertsToAir(t *testing.T) {
	s := newTestStore(t)
	lower := Pos{X: 2, Y: 10, Z: 2}
	upper := Pos{X: 2, Y: 11, Z: 2}

	if _, err := s.SetBlock(lower, 21); err != nil {
		t.Fatalf("place lower: %v", err)
	}
	if _, err := s.SetBlock(upper, 23); err != nil {
		t.Fatalf("place upper: %v", err)
	}
	sink := &countingSink{}
	s.RunOnUpdate(sink) // let the placement deltas drain before breaking anything,
	s.RunOnUpdate(sink) // and the neighbor notifies they queued.

	// Break the upper half directly (e.g. an explosion), orphaning the lower
	// half. This is itself a Delta on upper's position, which queues a
	// neighbor notify reaching lower.
	if _, err := s.SetBlock(upper, block.Air); err != nil {
		t.Fatalf("break upper: %v", err)
	}
	s.RunOnUpdate(sink) // drains the break delta, queues the neighbor notify for lower.
	s.RunOnUpdate(sink) // the neighbor notify for `lower` fires here.

	if s.Block(lower) != block.Air {
		t.Fatalf("expected orphaned lower half to convert to air, got %v", s.Block(lower))
	}
}

func TestGetBlocksIteratesRangeAndShortCircuits(t *testing.T) {
	s := newTestStore(t)
	for x := 0; x < 3; x++ {
		if _, err := s.SetBlock(Pos{X: x, Y: 5, Z: 0}, 10); err != nil {
			t.Fatalf("SetBlock: %v", err)
		}
	}
	count := 0
	s.GetBlocks(Pos{X: 0, Y: 0, Z: 0}, Pos{X: 15, Y: 63, Z: 15}, func(p Pos, st block.State) bool {
		if st == 10 {
			count++
		}
		return count < 2
	})
	if count != 2 {
		t.Fatalf("expected short-circuit after 2 matches, got %d", count)
	}
}

func TestLoaderDedupesConcurrentRequests(t *testing.T) {
	var calls atomic.Int64
	slowLoad := func(ctx context.Context, pos ChunkPos, height int) (*Chunk, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return NewChunk(pos, height), nil
	}
	s := NewStore(testRegistry(), 0, testHeight, 8, slowLoad, nil)
	for i := 0; i < 8; i++ {
		s.GetCachedOrLoad(ChunkPos{5, 5})
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.DrainLoaded()
		if _, ok := s.ChunkAt(ChunkPos{5, 5}); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for chunk load")
		}
		time.Sleep(time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 load call due to dedup, got %d", calls.Load())
	}
}
