package ecs

import (
	"log/slog"
	"reflect"
	"sync"
)

// World is the entity-component store and staged system scheduler described
// in spec.md §4.1. A World owns every Store registered against it, the
// system pipeline, and the per-worker command buffers ingress decoders stage
// mutations into.
//
// World carries no package-level singleton state: every piece of mutable
// global state (tick counter, compression config consumers care about, …)
// is a field here, injected explicitly into systems via the World argument
// they receive.
type World struct {
	Log *slog.Logger

	alloc entityAllocator

	mu    sync.RWMutex
	alive map[EntityID]struct{}

	storesMu sync.RWMutex
	stores   map[reflect.Type]any

	sched *scheduler

	cmdMu sync.Mutex
	cmds  []*CommandBuffer

	schedule *ScheduledQueue[any]
}

// NewWorld constructs an empty World. If log is nil, slog.Default() is used.
func NewWorld(log *slog.Logger) *World {
	if log == nil {
		log = slog.Default()
	}
	return &World{
		Log:      log,
		alive:    make(map[EntityID]struct{}),
		stores:   make(map[reflect.Type]any),
		sched:    newScheduler(log),
		schedule: NewScheduledQueue[any](),
	}
}

// Spawn allocates a new entity and marks it alive. It carries no components
// until attached via StoreOf(w).Set.
func (w *World) Spawn() EntityID {
	id := w.alloc.alloc()
	w.mu.Lock()
	w.alive[id] = struct{}{}
	w.mu.Unlock()
	return id
}

// Destroy removes id from the alive set. Component values are left in their
// stores; callers that need eager cleanup should do so via a PostStore
// system that checks Alive.
func (w *World) Destroy(id EntityID) {
	w.mu.Lock()
	delete(w.alive, id)
	w.mu.Unlock()
}

// Alive reports whether id was spawned and not yet destroyed.
func (w *World) Alive(id EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.alive[id]
	return ok
}

// EntityCount returns the number of currently alive entities.
func (w *World) EntityCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.alive)
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// StoreOf returns the Store for component type T, creating it on first use.
// The same *Store[T] is returned for every call against the same World.
func StoreOf[T any](w *World) *Store[T] {
	key := typeKey[T]()

	w.storesMu.RLock()
	if s, ok := w.stores[key]; ok {
		w.storesMu.RUnlock()
		return s.(*Store[T])
	}
	w.storesMu.RUnlock()

	w.storesMu.Lock()
	defer w.storesMu.Unlock()
	if s, ok := w.stores[key]; ok {
		return s.(*Store[T])
	}
	s := NewStore[T]()
	w.stores[key] = s
	return s
}

// Prev is the shadow copy of component T captured at the end of a tick and
// read during the next tick to diff against the live value. Prev⟨T⟩ is set
// on first insertion of T and updated in the PostStore phase once mutations
// for the tick are final (spec.md §3, invariant 1 in §8).
type Prev[T any] struct {
	Value T
}

// TrackPrev wires up automatic Prev⟨T⟩ maintenance for component type T: an
// OnSet observer initialises Prev⟨T⟩ on first insertion, and a PostStore
// system copies the live value into Prev⟨T⟩ every tick after all mutations
// for the tick have landed. writes should name the Prev[T] type so the
// scheduler can detect conflicts with other PostStore systems touching it.
func TrackPrev[T any](w *World) {
	cur := StoreOf[T](w)
	prev := StoreOf[Prev[T]](w)
	cur.OnSet(func(id EntityID, v T, first bool) {
		if first {
			prev.Set(id, Prev[T]{Value: v})
		}
	})
	w.AddSystem(&System{
		Name:   "sync-prev",
		Phase:  PostStore,
		Writes: []reflect.Type{typeKey[Prev[T]]()},
		Run: func(w *World) {
			for id, v := range cur.All() {
				prev.Set(id, Prev[T]{Value: v})
			}
		},
	})
}
