package proxy

import (
	"bytes"
	"io"
	"testing"

	"github.com/dm-vev/emberhold/server/egress"
	"github.com/dm-vev/emberhold/server/world"
)

func TestOutboundRoundTrip(t *testing.T) {
	cases := []any{
		Unicast{Data: []byte("hello"), Stream: 7, Order: 1},
		Multicast{Data: []byte("hi"), Streams: []uint64{1, 2, 3}, Order: 2},
		BroadcastGlobal{Data: []byte("world"), Optional: true, Exclude: 9, Order: 3},
		BroadcastLocal{Data: []byte("chunk"), Center: world.ChunkPos{X: 4, Z: -4}, TaxicabRadius: 2, Optional: false, Exclude: 0, Order: 4},
		SetReceiveBroadcasts{Stream: 5},
	}
	for _, c := range cases {
		framed, err := EncodeOutbound(c)
		if err != nil {
			t.Fatalf("EncodeOutbound(%#v): %v", c, err)
		}
		r := NewFrameReader(bytes.NewReader(framed))
		body, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		got, err := DecodeOutbound(body)
		if err != nil {
			t.Fatalf("DecodeOutbound: %v", err)
		}
		assertEqualEnvelope(t, c, got)
	}
}

func assertEqualEnvelope(t *testing.T, want, got any) {
	t.Helper()
	switch w := want.(type) {
	case Unicast:
		g := got.(Unicast)
		if !bytes.Equal(w.Data, g.Data) || w.Stream != g.Stream || w.Order != g.Order {
			t.Fatalf("Unicast mismatch: want %+v got %+v", w, g)
		}
	case Multicast:
		g := got.(Multicast)
		if !bytes.Equal(w.Data, g.Data) || w.Order != g.Order || len(w.Streams) != len(g.Streams) {
			t.Fatalf("Multicast mismatch: want %+v got %+v", w, g)
		}
	case BroadcastGlobal:
		g := got.(BroadcastGlobal)
		if !bytes.Equal(w.Data, g.Data) || w.Optional != g.Optional || w.Exclude != g.Exclude || w.Order != g.Order {
			t.Fatalf("BroadcastGlobal mismatch: want %+v got %+v", w, g)
		}
	case BroadcastLocal:
		g := got.(BroadcastLocal)
		if !bytes.Equal(w.Data, g.Data) || w.Center != g.Center || w.TaxicabRadius != g.TaxicabRadius || w.Order != g.Order {
			t.Fatalf("BroadcastLocal mismatch: want %+v got %+v", w, g)
		}
	case SetReceiveBroadcasts:
		g := got.(SetReceiveBroadcasts)
		if w.Stream != g.Stream {
			t.Fatalf("SetReceiveBroadcasts mismatch: want %+v got %+v", w, g)
		}
	default:
		t.Fatalf("unhandled case %T", want)
	}
}

func TestLargePayloadIsSnappyCompressedAndRestored(t *testing.T) {
	big := bytes.Repeat([]byte("world-join-payload"), 100) // well past SnappyThreshold
	framed, err := EncodeOutbound(Unicast{Data: big, Stream: 1, Order: 1})
	if err != nil {
		t.Fatalf("EncodeOutbound: %v", err)
	}
	r := NewFrameReader(bytes.NewReader(framed))
	body, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	got, err := DecodeOutbound(body)
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	u := got.(Unicast)
	if !bytes.Equal(u.Data, big) {
		t.Fatalf("decompressed payload mismatch, got %d bytes want %d", len(u.Data), len(big))
	}
}

func TestInboundRoundTrip(t *testing.T) {
	cases := []Inbound{
		{Kind: InboundPlayerConnect, Connect: PlayerConnect{Stream: 11}},
		{Kind: InboundPlayerDisconnect, Disconnect: PlayerDisconnect{Stream: 12}},
		{Kind: InboundPacketBytes, Packet: PacketBytes{Stream: 13, Bytes: []byte{0x01, 0x02, 0x03}}},
	}
	for _, c := range cases {
		framed := EncodeInbound(c)
		r := NewFrameReader(bytes.NewReader(framed))
		body, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		got, err := DecodeInbound(body)
		if err != nil {
			t.Fatalf("DecodeInbound: %v", err)
		}
		if got.Kind != c.Kind {
			t.Fatalf("kind mismatch: want %v got %v", c.Kind, got.Kind)
		}
	}
}

func TestRegistryConnectDisconnectAndReceiveGate(t *testing.T) {
	reg := NewRegistry()
	reg.Connect(1)
	reg.Connect(2)
	if len(reg.AllStreams()) != 2 {
		t.Fatalf("expected 2 connected streams")
	}
	reg.SetReceive(1, false)
	streams := reg.AllStreams()
	if len(streams) != 1 || streams[0] != 2 {
		t.Fatalf("expected only stream 2 to receive broadcasts, got %v", streams)
	}
	reg.Disconnect(2)
	if len(reg.AllStreams()) != 0 {
		t.Fatalf("expected no connected streams after disconnect")
	}
}

func TestChannelSendAndRunInbound(t *testing.T) {
	outBuf := &bytes.Buffer{}
	inR, inW := io.Pipe()
	reg := NewRegistry()
	ch := NewChannel(NewFrameWriter(outBuf), NewFrameReader(inR), reg)

	go func() {
		inW.Write(EncodeInbound(Inbound{Kind: InboundPlayerConnect, Connect: PlayerConnect{Stream: 42}}))
		inW.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- ch.RunInbound() }()

	msg, ok := <-ch.Inbound()
	if !ok {
		t.Fatalf("expected one inbound message")
	}
	if msg.Kind != InboundPlayerConnect || msg.Connect.Stream != 42 {
		t.Fatalf("unexpected inbound message: %+v", msg)
	}
	if err := <-done; err != nil {
		t.Fatalf("RunInbound returned error: %v", err)
	}
	if len(reg.AllStreams()) != 1 {
		t.Fatalf("expected RunInbound to register the connect")
	}

	if err := ch.Send(Unicast{Data: []byte("hi"), Stream: 42, Order: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if outBuf.Len() == 0 {
		t.Fatalf("expected bytes written to the outbound buffer")
	}
}

func TestFromEgressConvertsEnvelopeKinds(t *testing.T) {
	cases := []struct {
		name string
		in   egress.Envelope
	}{
		{"unicast", egress.Unicast{Stream: 3, Body: []byte("a"), OrderKey: egress.NewOrderKey(1, 1)}},
		{"multicast", egress.Multicast{Streams: []uint64{1, 2}, Body: []byte("b"), OrderKey: egress.NewOrderKey(1, 2)}},
		{"broadcast_global", egress.BroadcastGlobal{Exclude: []uint64{9}, Body: []byte("c"), OrderKey: egress.NewOrderKey(1, 3)}},
		{"broadcast_local", egress.BroadcastLocal{CenterX: 1, CenterZ: 2, Radius: 3, Body: []byte("d"), OrderKey: egress.NewOrderKey(1, 4)}},
	}
	for _, c := range cases {
		out := FromEgress(c.in)
		if out == nil {
			t.Fatalf("%s: FromEgress returned nil", c.name)
		}
	}

	bg := FromEgress(egress.BroadcastGlobal{Exclude: []uint64{9}, Body: []byte("c"), OrderKey: egress.NewOrderKey(1, 3)}).(BroadcastGlobal)
	if bg.Exclude != 9 {
		t.Fatalf("expected excluded stream 9, got %d", bg.Exclude)
	}
	bl := FromEgress(egress.BroadcastLocal{CenterX: 1, CenterZ: 2, Radius: 3, Body: []byte("d"), OrderKey: egress.NewOrderKey(1, 4)}).(BroadcastLocal)
	if bl.Center.X != 1 || bl.Center.Z != 2 || bl.TaxicabRadius != 3 {
		t.Fatalf("unexpected BroadcastLocal conversion: %+v", bl)
	}
}
