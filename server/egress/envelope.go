// Package egress implements the encode/fan-out pipeline of spec.md §4.3:
// unicast/multicast/broadcast_local/broadcast_global primitives, ordered
// envelopes, and Prev⟨T⟩-based dirty-bit diffing of per-entity state.
package egress

// OrderKey is the 32-bit ordering key attached to every envelope: the
// system id in the upper 16 bits and a per-thread counter in the lower 16,
// letting the proxy stably interleave envelopes produced by systems running
// in parallel across threads without a central lock (spec.md §4.3
// "Ordering").
type OrderKey uint32

// NewOrderKey packs a system id and per-thread counter into an OrderKey.
func NewOrderKey(systemID uint16, counter uint16) OrderKey {
	return OrderKey(uint32(systemID)<<16 | uint32(counter))
}

// SystemID extracts the system id half of the key.
func (k OrderKey) SystemID() uint16 { return uint16(k >> 16) }

// Counter extracts the per-thread counter half of the key.
func (k OrderKey) Counter() uint16 { return uint16(k) }

// Envelope is a routed, encoded frame destined for the proxy channel. Every
// concrete envelope type carries an immutable encoded Body and an OrderKey;
// Kind lets a proxy-side switch route without a type assertion.
type Envelope interface {
	Kind() EnvelopeKind
	Order() OrderKey
	Optional() bool
}

// EnvelopeKind identifies which of the four fan-out primitives produced an
// Envelope.
type EnvelopeKind uint8

const (
	KindUnicast EnvelopeKind = iota
	KindMulticast
	KindBroadcastLocal
	KindBroadcastGlobal
)

// Unicast targets exactly one connection (spec.md §4.3 primitive 1).
type Unicast struct {
	Stream     uint64
	Body       []byte
	OrderKey   OrderKey
	IsOptional bool
}

func (e Unicast) Kind() EnvelopeKind { return KindUnicast }
func (e Unicast) Order() OrderKey    { return e.OrderKey }
func (e Unicast) Optional() bool     { return e.IsOptional }

// Multicast targets an explicit set of connections (spec.md §4.3 primitive 2).
type Multicast struct {
	Streams    []uint64
	Body       []byte
	OrderKey   OrderKey
	IsOptional bool
}

func (e Multicast) Kind() EnvelopeKind { return KindMulticast }
func (e Multicast) Order() OrderKey    { return e.OrderKey }
func (e Multicast) Optional() bool     { return e.IsOptional }

// BroadcastLocal targets every connection tracking a chunk within Chebyshev
// radius of CenterChunk (spec.md §4.3 primitive 3).
type BroadcastLocal struct {
	CenterX, CenterZ int16
	Radius           int32
	Exclude          []uint64
	Body             []byte
	OrderKey         OrderKey
	IsOptional       bool
}

func (e BroadcastLocal) Kind() EnvelopeKind { return KindBroadcastLocal }
func (e BroadcastLocal) Order() OrderKey    { return e.OrderKey }
func (e BroadcastLocal) Optional() bool     { return e.IsOptional }

// BroadcastGlobal targets every connected stream (spec.md §4.3 primitive 4).
type BroadcastGlobal struct {
	Exclude    []uint64
	Body       []byte
	OrderKey   OrderKey
	IsOptional bool
}

func (e BroadcastGlobal) Kind() EnvelopeKind { return KindBroadcastGlobal }
func (e BroadcastGlobal) Order() OrderKey    { return e.OrderKey }
func (e BroadcastGlobal) Optional() bool     { return e.IsOptional }
