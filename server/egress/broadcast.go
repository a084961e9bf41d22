package egress

import (
	"github.com/dm-vev/emberhold/server/world"
)

// ViewerSource resolves which connections are tracking a chunk, letting
// Router.BroadcastLocal avoid a global connection scan. *world.Store
// satisfies this via its per-chunk viewer set (spec.md §3.1 "Column
// metadata").
type ViewerSource interface {
	ChunkAt(pos world.ChunkPos) (*world.Chunk, bool)
}

// ConnectionRegistry lists every connected stream id, for
// broadcast_global's "every connected stream" fan-out.
type ConnectionRegistry interface {
	AllStreams() []uint64
}

// Router implements the four egress primitives of spec.md §4.3, appending
// produced Envelopes to a Batcher rather than writing to the wire directly.
type Router struct {
	Batch    *Batcher
	Viewers  ViewerSource
	Conns    ConnectionRegistry
	systemID uint16
}

// NewRouter constructs a Router for systemID, appending into batch.
func NewRouter(systemID uint16, batch *Batcher, viewers ViewerSource, conns ConnectionRegistry) *Router {
	return &Router{Batch: batch, Viewers: viewers, Conns: conns, systemID: systemID}
}

func (r *Router) order() OrderKey {
	return NewOrderKey(r.systemID, r.Batch.NextCounter())
}

// Unicast sends body to exactly one connection.
func (r *Router) Unicast(stream uint64, body []byte, optional bool) {
	r.Batch.Append(Unicast{Stream: stream, Body: body, OrderKey: r.order(), IsOptional: optional})
}

// Multicast sends body to an explicit set of connections.
func (r *Router) Multicast(streams []uint64, body []byte, optional bool) {
	r.Batch.Append(Multicast{Streams: streams, Body: body, OrderKey: r.order(), IsOptional: optional})
}

// BroadcastLocal sends body to every connection tracking a chunk within
// Chebyshev radius of (centerX, centerZ), excluding the given stream ids.
func (r *Router) BroadcastLocal(centerX, centerZ int16, radius int32, body []byte, optional bool, exclude ...uint64) {
	r.Batch.Append(BroadcastLocal{
		CenterX:    centerX,
		CenterZ:    centerZ,
		Radius:     radius,
		Exclude:    exclude,
		Body:       body,
		OrderKey:   r.order(),
		IsOptional: optional,
	})
}

// BroadcastGlobal sends body to every connected stream, excluding the given
// stream ids.
func (r *Router) BroadcastGlobal(body []byte, optional bool, exclude ...uint64) {
	r.Batch.Append(BroadcastGlobal{Exclude: exclude, Body: body, OrderKey: r.order(), IsOptional: optional})
}

// ResolveLocal expands a BroadcastLocal envelope into the concrete stream ids
// it targets, using the viewer sets of every chunk within its radius. Called
// by the proxy-facing drain step rather than at envelope-construction time,
// so the viewer sets reflect the most current tracked state.
func ResolveLocal(viewers ViewerSource, e BroadcastLocal) []uint64 {
	excluded := make(map[uint64]struct{}, len(e.Exclude))
	for _, s := range e.Exclude {
		excluded[s] = struct{}{}
	}
	seen := make(map[uint64]struct{})
	var out []uint64
	for dx := -e.Radius; dx <= e.Radius; dx++ {
		for dz := -e.Radius; dz <= e.Radius; dz++ {
			pos := world.ChunkPos{X: e.CenterX + int16(dx), Z: e.CenterZ + int16(dz)}
			c, ok := viewers.ChunkAt(pos)
			if !ok {
				continue
			}
			for _, v := range c.Viewers() {
				id := uint64(v)
				if _, skip := excluded[id]; skip {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// ResolveGlobal expands a BroadcastGlobal envelope into every connected
// stream id not excluded.
func ResolveGlobal(conns ConnectionRegistry, e BroadcastGlobal) []uint64 {
	excluded := make(map[uint64]struct{}, len(e.Exclude))
	for _, s := range e.Exclude {
		excluded[s] = struct{}{}
	}
	var out []uint64
	for _, id := range conns.AllStreams() {
		if _, skip := excluded[id]; skip {
			continue
		}
		out = append(out, id)
	}
	return out
}
