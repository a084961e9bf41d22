// Package world implements the voxel world store: a chunked block grid with
// lazy load, pending-delta queues, and neighbor-notification propagation
// (spec.md §3, §4.4).
package world

import (
	"sync"

	"github.com/dm-vev/emberhold/server/block"
)

// ChunkPos addresses a chunk column by its pair of 16-bit chunk coordinates.
type ChunkPos struct {
	X, Z int16
}

// Pos is a block position in world voxel coordinates.
type Pos = block.Pos

// ChunkState is the lifecycle state of a Chunk.
type ChunkState uint8

const (
	Unloaded ChunkState = iota
	Loading
	Loaded
)

// Delta is a pending block mutation queued per chunk and drained at the
// OnUpdate phase to emit broadcasts and neighbor notifications (spec.md §3).
// X/Z are local chunk coordinates (0..15); Y is the absolute world height.
type Delta struct {
	X, Z uint8
	Y    int
	New  block.State
}

// NeighborNotify is a pending neighbor-change notification queued for
// reactive blocks, processed one tick after it is queued (spec.md §3, §4.4).
type NeighborNotify struct {
	X, Z uint8
	Y    int
}

// Chunk is a 16×H×16 column of voxels. A loaded Chunk carries a pre-encoded
// base packet (for fast client join), the uncompressed block grid, and
// lighting data (spec.md §3 "Chunk").
type Chunk struct {
	Pos    ChunkPos
	Height int

	mu sync.Mutex

	state ChunkState

	blocks    []block.State
	lighting  []byte
	basePacket []byte

	deltas         []Delta
	notifyIncoming []NeighborNotify

	viewers map[ViewerID]struct{}
}

// NewChunk allocates an empty, all-air Chunk of the given height.
func NewChunk(pos ChunkPos, height int) *Chunk {
	blocks := make([]block.State, 16*height*16)
	for i := range blocks {
		blocks[i] = block.Air
	}
	return &Chunk{
		Pos:     pos,
		Height:  height,
		state:   Loaded,
		blocks:  blocks,
		viewers: make(map[ViewerID]struct{}),
	}
}

// ViewerID identifies a connection tracking a chunk, for locality-filtered
// broadcast (spec.md §4.3 "broadcast_local").
type ViewerID uint64

func (c *Chunk) index(x, y, z int) int {
	return (y*16+z)*16 + x
}

// block returns the local block state at chunk-local (x,y,z). Callers must
// hold c.mu or otherwise guarantee exclusivity; exported accessors wrap this
// with the chunk's own lock.
func (c *Chunk) block(x, y, z int) block.State {
	return c.blocks[c.index(x, y, z)]
}

func (c *Chunk) setBlock(x, y, z int, s block.State) block.State {
	idx := c.index(x, y, z)
	prev := c.blocks[idx]
	c.blocks[idx] = s
	return prev
}

// BasePacket returns the cached pre-encoded join packet for this chunk.
func (c *Chunk) BasePacket() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.basePacket
}

// SetBasePacket installs the cached pre-encoded join packet, computed once
// when the chunk finishes loading.
func (c *Chunk) SetBasePacket(b []byte) {
	c.mu.Lock()
	c.basePacket = b
	c.mu.Unlock()
}

// AddViewer registers a connection as tracking this chunk.
func (c *Chunk) AddViewer(id ViewerID) {
	c.mu.Lock()
	c.viewers[id] = struct{}{}
	c.mu.Unlock()
}

// RemoveViewer unregisters a connection from this chunk.
func (c *Chunk) RemoveViewer(id ViewerID) {
	c.mu.Lock()
	delete(c.viewers, id)
	c.mu.Unlock()
}

// Viewers returns a snapshot of connections currently tracking this chunk.
func (c *Chunk) Viewers() []ViewerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ViewerID, 0, len(c.viewers))
	for id := range c.viewers {
		out = append(out, id)
	}
	return out
}
