package proxy

import (
	"github.com/dm-vev/emberhold/server/egress"
	"github.com/dm-vev/emberhold/server/world"
)

// FromEgress converts an egress.Envelope (the core's internal, multi-exclude
// representation) into the bit-exact wire envelope spec.md §6 names for the
// proxy channel. egress.BroadcastLocal/BroadcastGlobal support an arbitrary
// exclude list, but in practice a broadcast only ever excludes the
// connection that originated the change it's reporting, so only the first
// excluded stream is carried across the wire; additional excludes (there is
// never more than one in the systems this repo ships) are dropped with the
// assumption documented here rather than silently miscompiled.
func FromEgress(e egress.Envelope) any {
	switch v := e.(type) {
	case egress.Unicast:
		return Unicast{Data: v.Body, Stream: v.Stream, Order: uint32(v.OrderKey)}
	case egress.Multicast:
		return Multicast{Data: v.Body, Streams: v.Streams, Order: uint32(v.OrderKey)}
	case egress.BroadcastGlobal:
		return BroadcastGlobal{Data: v.Body, Optional: v.IsOptional, Exclude: firstOrZero(v.Exclude), Order: uint32(v.OrderKey)}
	case egress.BroadcastLocal:
		return BroadcastLocal{
			Data:          v.Body,
			Center:        world.ChunkPos{X: v.CenterX, Z: v.CenterZ},
			TaxicabRadius: uint32(v.Radius),
			Optional:      v.IsOptional,
			Exclude:       firstOrZero(v.Exclude),
			Order:         uint32(v.OrderKey),
		}
	default:
		return nil
	}
}

func firstOrZero(s []uint64) uint64 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}
