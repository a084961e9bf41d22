package egress

import "sync"

// JoinBuilder produces the full world-join payload (registry codec, spawn
// chunk, tag sync, brand, world border) the first time it is needed.
type JoinBuilder func() []byte

// JoinCache builds the world-join payload exactly once and reuses the
// immutable encoded blob for every subsequent join (spec.md §4.3 "Caching"),
// grounded on the teacher's Config.New building its resource pack once via
// packbuilder.BuildResourcePack and reusing it for the server's lifetime.
type JoinCache struct {
	once    sync.Once
	payload []byte
	build   JoinBuilder
}

// NewJoinCache wraps build so it only runs once.
func NewJoinCache(build JoinBuilder) *JoinCache {
	return &JoinCache{build: build}
}

// JoinPayload returns the cached payload, building it on first call. It
// satisfies ingress.WorldJoin.
func (c *JoinCache) JoinPayload() []byte {
	c.once.Do(func() {
		c.payload = c.build()
	})
	return c.payload
}
