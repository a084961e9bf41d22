// Package server wires the simulation core's subsystems together: the ECS
// world and tick scheduler, the voxel chunk store, the entity spatial
// index, the movement/collision kernel, the ingress decode pool, and the
// egress fan-out pipeline onto the proxy channel. It plays the role of the
// teacher's server.Config/Server pair in server/conf.go and server/server.go,
// generalized from a Minecraft-specific server to this spec's core runtime.
package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dm-vev/emberhold/server/block"
	"github.com/dm-vev/emberhold/server/config"
	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/dm-vev/emberhold/server/egress"
	"github.com/dm-vev/emberhold/server/ingress"
	"github.com/dm-vev/emberhold/server/inventory"
	"github.com/dm-vev/emberhold/server/move"
	"github.com/dm-vev/emberhold/server/proxy"
	"github.com/dm-vev/emberhold/server/spatial"
	"github.com/dm-vev/emberhold/server/world"
	"github.com/go-gl/mathgl/mgl32"
)

// TickRate is the fixed simulation rate (spec.md §2 "tick-synchronous").
const TickRate = 20

// Config collects every field needed to build a Server, following the
// teacher's Config struct in server/conf.go: a flat bag of optional fields,
// defaulted in New rather than requiring every caller to fill them all in.
type Config struct {
	Log *slog.Logger

	File config.File

	Registry    *block.Registry
	ChunkHeight int
	ChunkFloor  int
	LoadChunk   world.LoadFunc

	IngressWorkers  int
	IngressInboxCap int

	Dispatcher ingress.Dispatcher

	JoinBuilder egress.JoinBuilder
	FrameBundle egress.FrameBundle
}

// Server is the assembled runtime: one ECS world, one chunk store, one
// movement kernel, one ingress pool, one egress router, and the proxy
// channel wiring connecting them to the network front-end.
type Server struct {
	log *slog.Logger

	Config config.File

	World  *ecs.World
	Chunks *world.Store
	Mover  *move.Mover

	Batch  *egress.Batcher
	Router *egress.Router
	Join   *egress.JoinCache

	Ingress *ingress.Pool
	Proxy   *proxy.Channel
	Reg     *proxy.Registry

	invMu       sync.Mutex
	inventories map[ecs.EntityID]*inventory.Inventory

	entityIndex atomic.Pointer[spatial.BVH[entityElem]]
}

// entityElem is one element of the per-tick entity spatial index: an
// entity id paired with the world-space AABB its Position/EntitySize
// components describe.
type entityElem struct {
	ID  ecs.EntityID
	Box spatial.AABB
}

// New builds a Server from cfg, filling unset fields with documented
// defaults, mirroring the teacher's Config.New default-filling chain in
// server/conf.go.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ChunkHeight == 0 {
		cfg.ChunkHeight = 256
	}
	if cfg.IngressWorkers <= 0 {
		cfg.IngressWorkers = 8
	}
	if cfg.IngressInboxCap <= 0 {
		cfg.IngressInboxCap = 256
	}
	if cfg.Registry == nil {
		cfg.Registry = block.NewRegistry(nil)
	}
	if cfg.File.MaxPlayers == 0 {
		cfg.File = config.Default()
	}
	if cfg.File.CompressionThreshold == 0 {
		cfg.File.CompressionThreshold = config.DefaultCompressionThreshold
	}
	if cfg.LoadChunk == nil {
		cfg.LoadChunk = func(_ context.Context, pos world.ChunkPos, height int) (*world.Chunk, error) {
			return world.NewChunk(pos, height), nil
		}
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = ingress.Dispatcher{}
	}

	w := ecs.NewWorld(cfg.Log)
	chunks := world.NewStore(cfg.Registry, cfg.ChunkFloor, cfg.ChunkHeight, int32(cfg.File.ViewDistance), cfg.LoadChunk, cfg.Log)
	w.AddSystem(&ecs.System{
		Name:  "world.drain_loaded",
		Phase: ecs.OnLoad,
		Run:   func(*ecs.World) { chunks.DrainLoaded() },
	})
	mover := move.NewMover(chunks)

	batch := egress.NewBatcher()
	reg := proxy.NewRegistry()
	router := egress.NewRouter(1, batch, chunks, reg)

	var join *egress.JoinCache
	if cfg.JoinBuilder != nil {
		join = egress.NewJoinCache(cfg.JoinBuilder)
	} else {
		join = egress.NewJoinCache(func() []byte { return nil })
	}

	if cfg.FrameBundle != nil {
		cfg.Dispatcher[ingress.PacketIDMove] = ingress.NewMovementHandler(w, moverAdapter{mover}, &moveCorrector{bundle: cfg.FrameBundle, router: router})
	}

	pool := ingress.NewPool(w, cfg.Dispatcher, cfg.IngressWorkers, cfg.IngressInboxCap, cfg.Log, cfg.File.CompressionThreshold)

	srv := &Server{
		log:         cfg.Log,
		Config:      cfg.File,
		World:       w,
		Chunks:      chunks,
		Mover:       mover,
		Batch:       batch,
		Router:      router,
		Join:        join,
		Ingress:     pool,
		Reg:         reg,
		inventories: make(map[ecs.EntityID]*inventory.Inventory),
	}

	if cfg.FrameBundle != nil {
		egress.RegisterPositionDiff(w, cfg.FrameBundle, router)
		egress.RegisterRotationDiff(w, cfg.FrameBundle, router)
		egress.RegisterInventoryDiff(w, srv, cfg.FrameBundle, router)
		egress.RegisterBlockUpdates(w, chunks, cfg.FrameBundle, router)
	}

	blockWorld := blockWorldAdapter{chunks: chunks, reg: cfg.Registry}
	cfg.Dispatcher[ingress.PacketIDPlaceBlock] = ingress.NewPlaceBlockHandler(blockWorld, srv)
	cfg.Dispatcher[ingress.PacketIDBreakBlock] = ingress.NewBreakBlockHandler(blockWorld, srv)

	srv.registerEntityIndexSystem()
	return srv
}

// blockWorldAdapter bridges *world.Store and *block.Registry to
// ingress.BlockWorld, translating between world/block's int-keyed Pos/State
// types and ingress's transport-layer BlockPos/BlockState, and between
// block.Properties' int32 ItemID and inventory.Stack's uint32 ItemID.
type blockWorldAdapter struct {
	chunks *world.Store
	reg    *block.Registry
}

func (a blockWorldAdapter) SetBlock(pos ingress.BlockPos, state ingress.BlockState) (ingress.BlockState, error) {
	prev, err := a.chunks.SetBlock(world.Pos{X: int(pos.X), Y: int(pos.Y), Z: int(pos.Z)}, block.State(state))
	return ingress.BlockState(prev), err
}

func (a blockWorldAdapter) StateForItem(itemID uint32) (ingress.BlockState, bool) {
	s, ok := a.reg.StateForItem(int32(itemID))
	return ingress.BlockState(s), ok
}

func (a blockWorldAdapter) ItemForState(state ingress.BlockState) (uint32, bool) {
	id, ok := a.reg.ItemForState(block.State(state))
	if !ok || id < 0 {
		return 0, false
	}
	return uint32(id), ok
}

// registerEntityIndexSystem installs an OnUpdate system that rebuilds the
// entity spatial index every tick from the current Position/EntitySize
// components (spec.md §4.5): the BVH is generic infrastructure with no
// fixed element type, and per-tick entity AABBs are the natural candidate
// set for proximity queries (area-of-effect, visibility culling) the way
// the teacher tracks entities per-chunk instead.
func (s *Server) registerEntityIndexSystem() {
	s.World.AddSystem(&ecs.System{
		Name:  "server.spatial.entity_index",
		Phase: ecs.OnUpdate,
		Run: func(w *ecs.World) {
			var elems []entityElem
			for id, pair := range ecs.Query2[ecs.Position, ecs.EntitySize](w) {
				half := pair.B.HalfExtents()
				elems = append(elems, entityElem{
					ID:  id,
					Box: spatial.FromCenterHalfExtents(pair.A.Vec3(), half),
				})
			}
			bvh := spatial.Build(elems, func(e entityElem) spatial.AABB { return e.Box }, 4)
			s.entityIndex.Store(bvh)
		},
	})
}

// NearbyEntities returns every entity whose AABB intersects target, using
// the most recently built spatial index. Safe to call concurrently with
// World.Tick; it never blocks on the tick thread.
func (s *Server) NearbyEntities(target spatial.AABB) []ecs.EntityID {
	bvh := s.entityIndex.Load()
	if bvh == nil {
		return nil
	}
	var out []ecs.EntityID
	bvh.Overlap(target, func(e entityElem) bool {
		out = append(out, e.ID)
		return true
	})
	return out
}

// Inventory returns (creating if necessary) the Inventory for id.
func (s *Server) Inventory(id ecs.EntityID) *inventory.Inventory {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	inv, ok := s.inventories[id]
	if !ok {
		inv = inventory.New()
		s.inventories[id] = inv
	}
	return inv
}

// DropInventory removes id's inventory, called once its entity is
// destroyed.
func (s *Server) DropInventory(id ecs.EntityID) {
	s.invMu.Lock()
	delete(s.inventories, id)
	s.invMu.Unlock()
}

// ForEachInventory visits every currently tracked inventory, satisfying
// egress.InventorySource for RegisterInventoryDiff.
func (s *Server) ForEachInventory(fn func(id ecs.EntityID, inv *inventory.Inventory)) {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	for id, inv := range s.inventories {
		fn(id, inv)
	}
}

// Run drives the fixed-rate tick loop until ctx is cancelled: each tick
// advances the ECS scheduler, then drains the egress batch and hands every
// envelope to the proxy channel. It also starts and stops the ingress pool.
func (s *Server) Run(ctx context.Context) error {
	s.Ingress.Start(ctx)
	defer s.Ingress.Wait()

	ticker := time.NewTicker(time.Second / TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := s.World.Tick()
			s.log.Debug("tick", "tick", stats.Tick, "duration", stats.Duration)
			s.drainEgress()
		}
	}
}

// drainEgress flushes the per-tick envelope batch to the proxy channel, if
// one is attached. A Server built without a Proxy (e.g. under test) simply
// discards drained envelopes.
func (s *Server) drainEgress() {
	pending := s.Batch.Drain()
	if s.Proxy == nil {
		return
	}
	for _, env := range pending {
		wire := proxy.FromEgress(env)
		if wire == nil {
			continue
		}
		if err := s.Proxy.Send(wire); err != nil {
			s.log.Warn("proxy send failed", "err", err)
		}
	}
}

// AttachProxy wires ch as the Server's outbound channel, used once a
// front-end connection to the network process is established.
func (s *Server) AttachProxy(ch *proxy.Channel) {
	s.Proxy = ch
}

// moverAdapter satisfies ingress.Mover by converting move.Mover's
// move.Decision into ingress.Decision, keeping the ingress package free of
// a dependency on server/move (and, transitively, server/world/server/block).
type moverAdapter struct {
	m *move.Mover
}

func (a moverAdapter) AcceptMove(current, proposed, halfExtents mgl32.Vec3, suppressSpeedGate bool) ingress.Decision {
	d := a.m.AcceptMove(current, proposed, halfExtents, suppressSpeedGate)
	return ingress.Decision{Accepted: d.Accepted, Position: d.Position}
}

// moveCorrector implements ingress.Corrector: it turns a rejected movement
// update into the PlayerPositionLook-style correction packet spec.md §4.6
// step 4 calls for, unicast straight back to the offending connection.
type moveCorrector struct {
	bundle egress.FrameBundle
	router *egress.Router
}

func (c *moveCorrector) Correct(stream uint64, entity ecs.EntityID, pos mgl32.Vec3, teleportID uint32) {
	body := c.bundle.Teleport(entity, pos[0], pos[1], pos[2], teleportID)
	c.router.Unicast(stream, body, false)
}
