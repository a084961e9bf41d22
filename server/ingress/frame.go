// Package ingress implements the length-prefixed decode pipeline and
// per-connection state machine described in spec.md §4.2: handshake →
// status → login → play, with optional zlib frame compression negotiated
// during login.
package ingress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MaxFrameSize is the fixed ceiling on a single frame's declared length.
// Frames whose length prefix exceeds this are fatal (spec.md §4.2 "Framing").
const MaxFrameSize = 2 * 1024 * 1024

// ErrOversize is returned when a frame's declared length exceeds MaxFrameSize.
var ErrOversize = errors.New("ingress: frame exceeds maximum size")

// ErrMalformedFrame is returned when a frame's inner structure cannot be
// parsed (missing data-length varint, truncated zlib stream, etc).
var ErrMalformedFrame = errors.New("ingress: malformed frame")

// Decoder incrementally extracts frames from a byte stream fed by a single
// connection. It is not safe for concurrent use.
type Decoder struct {
	buf               bytes.Buffer
	compressionActive bool
}

// NewDecoder returns a Decoder with compression inactive, matching the
// pre-Login wire format (no inner data-length varint).
func NewDecoder() *Decoder {
	return &Decoder{}
}

// EnableCompression switches the decoder into the post-negotiation frame
// format, where every frame body carries a leading data-length varint
// (spec.md §4.2 "Compression threshold").
func (d *Decoder) EnableCompression() {
	d.compressionActive = true
}

// Feed appends newly received bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf.Write(b)
}

// Next extracts the next complete frame, if one is buffered. ok is false
// (with a nil error) when more bytes are needed before a frame can be
// decoded.
func (d *Decoder) Next() (body []byte, ok bool, err error) {
	data := d.buf.Bytes()

	length, n := binary.Uvarint(data)
	if n == 0 {
		return nil, false, nil // not enough bytes for the length varint yet
	}
	if n < 0 {
		return nil, false, ErrMalformedFrame
	}
	if length > MaxFrameSize {
		return nil, false, ErrOversize
	}
	if uint64(len(data)-n) < length {
		return nil, false, nil // frame body not fully buffered yet
	}

	frame := data[n : n+int(length)]
	d.buf.Next(n + int(length))

	if !d.compressionActive {
		out := make([]byte, len(frame))
		copy(out, frame)
		return out, true, nil
	}

	dataLen, m := binary.Uvarint(frame)
	if m <= 0 {
		return nil, false, ErrMalformedFrame
	}
	payload := frame[m:]
	if dataLen == 0 {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, true, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, false, ErrMalformedFrame
	}
	defer r.Close()
	out := make([]byte, dataLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, false, ErrMalformedFrame
	}
	return out, true, nil
}

// EncodeFrame wraps body in the wire framing described by spec.md §4.2.
// threshold < 0 means compression has not yet been negotiated (no inner
// data-length varint at all); otherwise bodies shorter than threshold use
// the data-length-0 inline form and bodies at or above it are zlib-compressed.
func EncodeFrame(body []byte, threshold int32) []byte {
	var inner bytes.Buffer
	switch {
	case threshold < 0:
		inner.Write(body)
	case int32(len(body)) < threshold:
		writeUvarint(&inner, 0)
		inner.Write(body)
	default:
		writeUvarint(&inner, uint64(len(body)))
		w := zlib.NewWriter(&inner)
		_, _ = w.Write(body)
		_ = w.Close()
	}

	var out bytes.Buffer
	writeUvarint(&out, uint64(inner.Len()))
	out.Write(inner.Bytes())
	return out.Bytes()
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
