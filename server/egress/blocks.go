package egress

import (
	"github.com/dm-vev/emberhold/server/block"
	"github.com/dm-vev/emberhold/server/ecs"
	"github.com/dm-vev/emberhold/server/world"
)

// blockUpdateSink adapts a FrameBundle+Router pair to world.BlockUpdateSink,
// turning each applied Delta into a broadcast_local frame (spec.md §4.4
// "Mutation propagation" step 2, §8 "every mutation must be reflected to
// clients within one tick").
type blockUpdateSink struct {
	bundle FrameBundle
	router *Router
}

func (s blockUpdateSink) BlockUpdate(pos world.Pos, state block.State, radius int32) {
	cpos := world.ChunkPosOf(pos)
	body := s.bundle.BlockUpdate(int32(pos.X), int32(pos.Y), int32(pos.Z), uint16(state))
	s.router.BroadcastLocal(cpos.X, cpos.Z, radius, body, false)
}

// RegisterBlockUpdates installs an OnUpdate system that drains chunks'
// pending deltas and neighbor-notify queue each tick, broadcasting a
// BlockUpdate frame per changed block (spec.md §4.4). Block updates are
// state-critical, never optional (spec.md §5 "Backpressure").
func RegisterBlockUpdates(w *ecs.World, chunks *world.Store, bundle FrameBundle, router *Router) {
	sink := blockUpdateSink{bundle: bundle, router: router}
	w.AddSystem(&ecs.System{
		Name:  "egress.block_updates",
		Phase: ecs.OnUpdate,
		Run: func(*ecs.World) {
			chunks.RunOnUpdate(sink)
		},
	})
}
