package world

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dm-vev/emberhold/server/block"
)

// Errors returned by Store operations, matching the error taxonomy of
// spec.md §7: chunk-local recoverable errors propagated as typed results.
var (
	ErrChunkNotLoaded = errors.New("world: chunk not loaded")
	ErrOutOfBounds    = errors.New("world: position out of bounds")
)

// LoadResult describes the outcome of Store.GetCachedOrLoad.
type LoadResult struct {
	// Bytes holds the cached base packet when Loaded is true.
	Bytes  []byte
	Loaded bool
}

// Store maps (chunk_x, chunk_z) -> Chunk and implements the block
// read/write/iterate/load operations of spec.md §4.4.
type Store struct {
	Registry *block.Registry

	floor, height int
	viewDistance  int32

	log *slog.Logger

	mu     sync.RWMutex
	chunks map[ChunkPos]*Chunk

	loader *Loader
}

// NewStore creates a Store. floor is the lowest valid world Y (inclusive);
// height is the number of voxels above it. viewDistance is the default
// broadcast-local Chebyshev radius, measured in chunks.
func NewStore(reg *block.Registry, floor, height int, viewDistance int32, load LoadFunc, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		Registry:     reg,
		floor:        floor,
		height:       height,
		viewDistance: viewDistance,
		log:          log,
		chunks:       make(map[ChunkPos]*Chunk),
	}
	s.loader = NewLoader(load, height, log)
	return s
}

// ChunkPosOf returns the chunk containing block position p.
func ChunkPosOf(p Pos) ChunkPos {
	return chunkPosOf(p)
}

func chunkPosOf(p Pos) ChunkPos {
	return ChunkPos{X: int16(floorDiv(p.X, 16)), Z: int16(floorDiv(p.Z, 16))}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func localCoords(p Pos) (x, z int) {
	x = p.X - 16*floorDiv(p.X, 16)
	z = p.Z - 16*floorDiv(p.Z, 16)
	return
}

// Block returns the block state at pos, or block.VoidAir if pos is below the
// world floor or its chunk is not loaded (spec.md §4.4 "get_block").
func (s *Store) Block(pos Pos) block.State {
	if pos.Y < s.floor {
		return block.VoidAir
	}
	cpos := chunkPosOf(pos)
	s.mu.RLock()
	c, ok := s.chunks[cpos]
	s.mu.RUnlock()
	if !ok {
		return block.VoidAir
	}
	lx, lz := localCoords(pos)
	ly := pos.Y - s.floor
	if ly < 0 || ly >= c.Height {
		return block.VoidAir
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block(lx, ly, lz)
}

// SetBlock writes state immediately into the palette grid (so a subsequent
// Block call observes it right away, per spec.md §8 invariant 2) and queues
// a Delta so the OnUpdate phase can broadcast the change and schedule
// neighbor notifications. It returns the previous state, or
// ErrChunkNotLoaded / ErrOutOfBounds.
func (s *Store) SetBlock(pos Pos, state block.State) (block.State, error) {
	if pos.Y < s.floor || pos.Y >= s.floor+s.height {
		return 0, ErrOutOfBounds
	}
	cpos := chunkPosOf(pos)
	s.mu.RLock()
	c, ok := s.chunks[cpos]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrChunkNotLoaded
	}
	lx, lz := localCoords(pos)
	ly := pos.Y - s.floor

	c.mu.Lock()
	prev := c.setBlock(lx, ly, lz, state)
	c.deltas = append(c.deltas, Delta{X: uint8(lx), Z: uint8(lz), Y: pos.Y, New: state})
	c.mu.Unlock()

	return prev, nil
}

// GetBlocks iterates every loaded block position within [min, max]
// (inclusive), calling f for each. Iteration stops early if f returns false
// (spec.md §4.4 "get_blocks").
func (s *Store) GetBlocks(min, max Pos, f func(Pos, block.State) bool) {
	minC, maxC := chunkPosOf(min), chunkPosOf(max)
	for cx := minC.X; cx <= maxC.X; cx++ {
		for cz := minC.Z; cz <= maxC.Z; cz++ {
			cpos := ChunkPos{X: cx, Z: cz}
			s.mu.RLock()
			c, ok := s.chunks[cpos]
			s.mu.RUnlock()
			if !ok {
				continue
			}
			if !s.iterateChunk(c, min, max, f) {
				return
			}
		}
	}
}

func (s *Store) iterateChunk(c *Chunk, min, max Pos, f func(Pos, block.State) bool) bool {
	baseX, baseZ := int(c.Pos.X)*16, int(c.Pos.Z)*16
	loX, hiX := clamp(min.X-baseX, 0, 15), clamp(max.X-baseX, 0, 15)
	loZ, hiZ := clamp(min.Z-baseZ, 0, 15), clamp(max.Z-baseZ, 0, 15)
	loY, hiY := clamp(min.Y-s.floor, 0, c.Height-1), clamp(max.Y-s.floor, 0, c.Height-1)

	c.mu.Lock()
	defer c.mu.Unlock()
	for y := loY; y <= hiY; y++ {
		for z := loZ; z <= hiZ; z++ {
			for x := loX; x <= hiX; x++ {
				pos := Pos{X: baseX + x, Y: s.floor + y, Z: baseZ + z}
				if !f(pos, c.block(x, y, z)) {
					return false
				}
			}
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetCachedOrLoad returns the cached base packet for a chunk if it is
// already loaded, or kicks off an asynchronous load and reports Loading
// (spec.md §4.4 "get_cached_or_load").
func (s *Store) GetCachedOrLoad(pos ChunkPos) LoadResult {
	s.mu.RLock()
	c, ok := s.chunks[pos]
	s.mu.RUnlock()
	if ok {
		return LoadResult{Bytes: c.BasePacket(), Loaded: true}
	}
	s.loader.Request(pos)
	return LoadResult{Loaded: false}
}

// DrainLoaded installs every chunk finished loading since the last call.
// Called once at the start of the OnLoad phase (spec.md §4.4 "Load
// protocol").
func (s *Store) DrainLoaded() {
	for _, r := range s.loader.drain() {
		if r.err != nil {
			s.log.Warn("chunk load failed", "pos", r.pos, "error", r.err)
			continue
		}
		s.mu.Lock()
		s.chunks[r.pos] = r.chunk
		s.mu.Unlock()
	}
}

// ViewDistance returns the configured broadcast-local Chebyshev radius.
func (s *Store) ViewDistance() int32 { return s.viewDistance }

// ChunkAt returns the loaded Chunk at pos, if any.
func (s *Store) ChunkAt(pos ChunkPos) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[pos]
	return c, ok
}
