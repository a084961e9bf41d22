package ecs

import "iter"

// Query2 yields every entity that carries both component A and B, along with
// their current values. It is a simple join over the two stores; with the
// modest per-tick entity counts within a single player's simulation range
// this is cheaper than maintaining archetype tables, and it matches the
// store-per-component layout used throughout this package.
func Query2[A, B any](w *World) iter.Seq2[EntityID, struct {
	A A
	B B
}] {
	sa := StoreOf[A](w)
	sb := StoreOf[B](w)
	type pair = struct {
		A A
		B B
	}
	return func(yield func(EntityID, pair) bool) {
		for id, a := range sa.All() {
			b, ok := sb.Get(id)
			if !ok {
				continue
			}
			if !yield(id, pair{A: a, B: b}) {
				return
			}
		}
	}
}

// Query1 yields every entity that carries component A, along with its value.
func Query1[A any](w *World) iter.Seq2[EntityID, A] {
	return StoreOf[A](w).All()
}
