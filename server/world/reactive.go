package world

import "github.com/dm-vev/emberhold/server/block"

// BlockUpdateSink receives one notification per applied Delta, drained at
// the OnUpdate phase (spec.md §4.4 "Mutation propagation", step 2). radius
// is the store's configured view distance, for a broadcast_local fan-out.
type BlockUpdateSink interface {
	BlockUpdate(pos Pos, state block.State, radius int32)
}

// RunOnUpdate drains every chunk's pending deltas and neighbor-notify queue.
// For each delta it notifies sink and schedules neighbor-notify entries in
// the six adjacent cells (crossing chunk borders routes to the neighbor
// chunk's queue); entries queued this call are processed on the *next* call,
// matching "Next tick, neighbor-notify entries invoke per-block-kind
// reactive logic" (spec.md §4.4).
func (s *Store) RunOnUpdate(sink BlockUpdateSink) {
	s.mu.RLock()
	chunks := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c)
	}
	s.mu.RUnlock()

	// Take every chunk's queues before processing any of them, so entries
	// queued while this call runs (into any chunk) wait for the next call.
	type pending struct {
		pos    ChunkPos
		deltas []Delta
		ready  []NeighborNotify
	}
	work := make([]pending, 0, len(chunks))
	for _, c := range chunks {
		c.mu.Lock()
		work = append(work, pending{pos: c.Pos, deltas: c.deltas, ready: c.notifyIncoming})
		c.deltas = nil
		c.notifyIncoming = nil
		c.mu.Unlock()
	}

	for _, p := range work {
		pos := p.pos
		for _, d := range p.deltas {
			wp := Pos{X: int(pos.X)*16 + int(d.X), Y: d.Y, Z: int(pos.Z)*16 + int(d.Z)}
			sink.BlockUpdate(wp, d.New, s.viewDistance)
			s.queueNeighbors(wp)
		}
		for _, n := range p.ready {
			wp := Pos{X: int(pos.X)*16 + int(n.X), Y: n.Y, Z: int(pos.Z)*16 + int(n.Z)}
			s.applyReactive(wp)
		}
	}
}

// queueNeighbors enqueues a NeighborNotify in each of the six cells adjacent
// to pos, routing to the owning chunk's queue (which may be pos's own chunk,
// for vertical neighbors, or an adjacent chunk for horizontal ones).
func (s *Store) queueNeighbors(pos Pos) {
	for dir := 0; dir < 6; dir++ {
		np := pos.Side(dir)
		ncpos := chunkPosOf(np)
		s.mu.RLock()
		nc, ok := s.chunks[ncpos]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		lx, lz := localCoords(np)
		nc.mu.Lock()
		nc.notifyIncoming = append(nc.notifyIncoming, NeighborNotify{X: uint8(lx), Z: uint8(lz), Y: np.Y})
		nc.mu.Unlock()
	}
}

// applyReactive runs the per-block-kind reactive logic for a
// neighbor-change notification at pos, dispatched entirely through
// block.Registry.BehaviourFor's tagged-union switch (spec.md §9).
func (s *Store) applyReactive(pos Pos) {
	state := s.Block(pos)
	behaviour := s.Registry.BehaviourFor(state)
	behaviour.OnNeighborChange(storeNeighborAdapter{s}, pos)
}

// Interact applies the per-block-kind interaction at pos (e.g. toggling a
// door's Open flag), dispatched through block.Registry.BehaviourFor.
func (s *Store) Interact(pos Pos) error {
	state := s.Block(pos)
	behaviour := s.Registry.BehaviourFor(state)
	return behaviour.OnInteract(storeNeighborAdapter{s}, pos)
}

// storeNeighborAdapter adapts *Store to block.NeighborWorld for generic
// Behaviour dispatch.
type storeNeighborAdapter struct{ s *Store }

func (a storeNeighborAdapter) Block(pos Pos) block.State { return a.s.Block(pos) }
func (a storeNeighborAdapter) SetBlock(pos Pos, s block.State) error {
	_, err := a.s.SetBlock(pos, s)
	return err
}
func (a storeNeighborAdapter) ScheduleNeighborNotify(pos Pos) { a.s.queueNeighbors(pos) }
