// Package ecs implements the tick-synchronous entity-component store and
// staged system scheduler that drives the simulation core.
package ecs

import "sync/atomic"

// EntityID is an opaque identifier assigned to an entity at spawn. It carries
// no meaning beyond identity; all entity state lives in component stores
// keyed by EntityID.
type EntityID uint64

// entityAllocator hands out monotonically increasing EntityIDs. Zero is
// reserved as the invalid/unset id.
type entityAllocator struct {
	next atomic.Uint64
}

func (a *entityAllocator) alloc() EntityID {
	return EntityID(a.next.Add(1))
}
