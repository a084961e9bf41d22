// Package proxy implements the connection<->stream channel between the
// simulation core and the network front-end (spec.md §4.7, §6): a typed,
// length-delimited message channel carrying inbound connection lifecycle
// events and outbound routing envelopes.
//
// Framing is grounded on the teacher's server/query/conn.go hand-rolled
// binary layout (fixed-order field writes via a scratch bytes.Buffer,
// binary.BigEndian for fixed-width fields) adapted from a UDP query
// responder to a length-delimited stream transport.
package proxy

import "github.com/dm-vev/emberhold/server/world"

// Kind tags an outbound envelope's wire type.
type Kind uint8

const (
	KindUnicast Kind = iota
	KindMulticast
	KindBroadcastGlobal
	KindBroadcastLocal
	KindSetReceiveBroadcasts
)

// Unicast delivers data to exactly one stream. Field layout is bit-exact
// with spec.md §6.
type Unicast struct {
	Data   []byte
	Stream uint64
	Order  uint32
}

// Multicast delivers data to an explicit set of streams.
type Multicast struct {
	Data    []byte
	Streams []uint64
	Order   uint32
}

// BroadcastGlobal delivers data to every connected stream except Exclude
// (0 means no exclusion, since stream ids are assigned starting at 1).
type BroadcastGlobal struct {
	Data     []byte
	Optional bool
	Exclude  uint64
	Order    uint32
}

// BroadcastLocal delivers data to every stream whose tracked chunk is
// within TaxicabRadius of Center. Resolution of Center+TaxicabRadius into
// concrete stream ids happens on the proxy side of the channel, using its
// own per-chunk viewer tracking — the core never needs to know which
// streams are subscribed to which chunk.
type BroadcastLocal struct {
	Data          []byte
	Center        world.ChunkPos
	TaxicabRadius uint32
	Optional      bool
	Exclude       uint64
	Order         uint32
}

// SetReceiveBroadcasts (re-)enables broadcast_local / broadcast_global
// delivery for a stream (spec.md §6: `SetReceiveBroadcasts{stream: u64}`).
// There is no wire opcode for disabling receipt again; a stream is silenced
// by Registry.Disconnect removing it outright, not by toggling a flag off.
type SetReceiveBroadcasts struct {
	Stream uint64
}

// InboundKind tags an inbound message's wire type.
type InboundKind uint8

const (
	InboundPlayerConnect InboundKind = iota
	InboundPlayerDisconnect
	InboundPacketBytes
)

// PlayerConnect announces a newly accepted front-end connection.
type PlayerConnect struct {
	Stream uint64
}

// PlayerDisconnect announces a front-end connection has closed.
type PlayerDisconnect struct {
	Stream uint64
}

// PacketBytes carries raw decoded packet bytes from a stream up to the core.
type PacketBytes struct {
	Stream uint64
	Bytes  []byte
}

// Inbound is the channel's single inbound message type; exactly one of its
// fields is populated, selected by Kind.
type Inbound struct {
	Kind       InboundKind
	Connect    PlayerConnect
	Disconnect PlayerDisconnect
	Packet     PacketBytes
}
