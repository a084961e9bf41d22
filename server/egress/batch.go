package egress

import (
	"sort"
	"sync"
)

// Batcher accumulates envelopes produced during a tick and drains them once,
// at the end of the tick, to the proxy channel (spec.md §4.3 "Encoding
// path": "Envelopes are accumulated in per-thread buffers and drained once
// per tick"). One Batcher is typically shared by a Router and drained by
// Server.Run after each tick completes.
type Batcher struct {
	mu        sync.Mutex
	envelopes []Envelope
	counter   uint16
}

// NewBatcher constructs an empty Batcher.
func NewBatcher() *Batcher {
	return &Batcher{}
}

// Append adds an envelope to the pending batch.
func (b *Batcher) Append(e Envelope) {
	b.mu.Lock()
	b.envelopes = append(b.envelopes, e)
	b.mu.Unlock()
}

// NextCounter returns the next per-thread counter value for OrderKey
// construction, wrapping at 16 bits.
func (b *Batcher) NextCounter() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counter++
	return b.counter
}

// Drain returns every envelope accumulated since the last Drain, sorted by
// OrderKey, and resets the batch. Sorting here (rather than relying on
// append order) is what makes spec.md §8 invariant 6 ("for any stream S and
// envelopes e1, e2 with order(e1) < order(e2), e1 is delivered before e2")
// hold even when multiple systems on different worker threads append to the
// same Batcher out of order relative to their system ids.
func (b *Batcher) Drain() []Envelope {
	b.mu.Lock()
	out := b.envelopes
	b.envelopes = nil
	b.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Order() < out[j].Order() })
	return out
}

// Len reports the number of envelopes currently pending.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.envelopes)
}
