package egress

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// Encoder owns the per-thread scratch buffer and zlib compressor, both reused
// from frame to frame; each Encode allocates only the returned copy
// (spec.md §4.3 "Encoding path": "A
// per-thread scratch buffer + per-thread zlib compressor encode a frame
// once"). An Encoder is not safe for concurrent use; egress systems obtain
// one per worker/goroutine.
type Encoder struct {
	scratch bytes.Buffer
	zw      *zlib.Writer
}

// NewEncoder constructs a per-thread Encoder.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.zw = zlib.NewWriter(&e.scratch)
	return e
}

// Encode compresses body and returns an immutable copy of the result. The
// returned slice is safe to share across goroutines (e.g. attached to
// multiple envelopes) because it is never the scratch buffer itself.
func (e *Encoder) Encode(body []byte) []byte {
	e.scratch.Reset()
	e.zw.Reset(&e.scratch)
	_, _ = e.zw.Write(body)
	_ = e.zw.Close()

	out := make([]byte, e.scratch.Len())
	copy(out, e.scratch.Bytes())
	return out
}

// encoderPool recycles Encoders across goroutines that don't want to own one
// permanently (e.g. one-off join-payload construction).
var encoderPool = sync.Pool{
	New: func() any { return NewEncoder() },
}

// EncodeOnce compresses body using a pooled Encoder, for callers that don't
// run a persistent per-thread loop.
func EncodeOnce(body []byte) []byte {
	e := encoderPool.Get().(*Encoder)
	defer encoderPool.Put(e)
	return e.Encode(body)
}
