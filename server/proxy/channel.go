package proxy

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
)

// FrameWriter writes length-delimited frames (this package's outer varint
// length prefix) to an underlying stream, one at a time, guarding against
// interleaved writes from concurrent senders.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter { return &FrameWriter{w: w} }

// WriteFrame writes a pre-framed buffer (as produced by EncodeOutbound /
// EncodeInbound) atomically with respect to other WriteFrame calls.
func (f *FrameWriter) WriteFrame(framed []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.w.Write(framed)
	return err
}

// FrameReader reads length-delimited frames off an underlying stream,
// returning each frame's body with the outer length prefix stripped.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until a full frame body is available, or returns the
// underlying read error (including io.EOF on clean close).
func (f *FrameReader) ReadFrame() ([]byte, error) {
	n, err := binary.ReadUvarint(f.r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Registry tracks live stream ids and their broadcast-receive gate. Channel
// updates it on PlayerConnect/PlayerDisconnect and SetReceiveBroadcasts, and
// AllStreams lists the streams a global broadcast reaches.
type Registry struct {
	mu      sync.RWMutex
	streams map[uint64]bool // stream -> receivesBroadcasts
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[uint64]bool)}
}

// Connect registers a stream, defaulting it to receiving broadcasts.
func (r *Registry) Connect(stream uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[stream] = true
}

// Disconnect removes a stream.
func (r *Registry) Disconnect(stream uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, stream)
}

// SetReceive toggles whether a stream receives broadcast traffic.
func (r *Registry) SetReceive(stream uint64, receive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[stream]; ok {
		r.streams[stream] = receive
	}
}

// AllStreams returns every connected stream that currently receives
// broadcasts.
func (r *Registry) AllStreams() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, 0, len(r.streams))
	for s, recv := range r.streams {
		if recv {
			out = append(out, s)
		}
	}
	return out
}

// Channel is one side of the connection<->stream channel: it serializes
// outbound envelopes onto a FrameWriter, and exposes inbound frames decoded
// off a FrameReader.
type Channel struct {
	out      *FrameWriter
	in       *FrameReader
	reg      *Registry
	inboundQ chan Inbound
}

// NewChannel builds a Channel over out/in, using reg to track which streams
// are currently connected and receiving broadcasts. Resolution of
// BroadcastLocal's center+radius into concrete streams happens on the far
// (network front-end) side of the channel — this package only frames and
// transmits the envelope, per spec.md §6's opaque-boundary contract.
func NewChannel(out *FrameWriter, in *FrameReader, reg *Registry) *Channel {
	return &Channel{out: out, in: in, reg: reg, inboundQ: make(chan Inbound, 256)}
}

// Send frames env and writes it to the channel. SetReceiveBroadcasts also
// updates the local Registry so AllStreams reflects the gate immediately,
// without waiting for a round trip.
func (c *Channel) Send(env any) error {
	switch e := env.(type) {
	case Unicast:
		framed, err := EncodeOutbound(e)
		if err != nil {
			return err
		}
		return c.out.WriteFrame(framed)
	case Multicast:
		framed, err := EncodeOutbound(e)
		if err != nil {
			return err
		}
		return c.out.WriteFrame(framed)
	case SetReceiveBroadcasts:
		c.reg.SetReceive(e.Stream, true)
		framed, err := EncodeOutbound(e)
		if err != nil {
			return err
		}
		return c.out.WriteFrame(framed)
	case BroadcastGlobal:
		framed, err := EncodeOutbound(e)
		if err != nil {
			return err
		}
		return c.out.WriteFrame(framed)
	case BroadcastLocal:
		framed, err := EncodeOutbound(e)
		if err != nil {
			return err
		}
		return c.out.WriteFrame(framed)
	default:
		return ErrUnknownKind
	}
}

// RunInbound pumps frames off in, decodes them, and delivers PlayerConnect /
// PlayerDisconnect to reg and everything to the Inbound() channel, until a
// read error (including clean EOF) occurs.
func (c *Channel) RunInbound() error {
	for {
		body, err := c.in.ReadFrame()
		if err != nil {
			close(c.inboundQ)
			if err == io.EOF {
				return nil
			}
			return err
		}
		msg, err := DecodeInbound(body)
		if err != nil {
			continue
		}
		switch msg.Kind {
		case InboundPlayerConnect:
			c.reg.Connect(msg.Connect.Stream)
		case InboundPlayerDisconnect:
			c.reg.Disconnect(msg.Disconnect.Stream)
		}
		c.inboundQ <- msg
	}
}

// Inbound returns the channel of decoded inbound messages.
func (c *Channel) Inbound() <-chan Inbound { return c.inboundQ }
