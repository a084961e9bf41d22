package block

// doorBehaviour implements the two-halves-stay-synchronized reactive logic
// described in spec.md §4.4 scenario S4 and §9 Open Question 3: interacting
// with either half flips Open on both; if a half's partner is missing
// (broken out from under it), the orphaned half converts to air rather than
// crashing, matching the behaviour of the original source.
type doorBehaviour struct{ reg *Registry }

// partnerPos returns the position of the other half of a door: the lower
// half's partner is one block up, the upper half's partner is one block
// down.
func partnerPos(lowerHalf bool, pos Pos) Pos {
	if lowerHalf {
		return pos.Side(3) // +Y
	}
	return pos.Side(2) // -Y
}

// OnInteract flips pos's Open flag to its paired State. SetBlock's own
// delta, drained by the world store's next OnUpdate pass, already schedules
// the neighbor notify that reaches the partner half, so no separate notify
// is queued here.
func (b doorBehaviour) OnInteract(w NeighborWorld, pos Pos) error {
	state := w.Block(pos)
	props := b.reg.Properties(state)
	target := b.reg.MatchingOpenState(state, !props.Open)
	return w.SetBlock(pos, target)
}

// OnNeighborChange mirrors the partner half's Open flag onto pos, or
// converts pos to air if the partner is no longer a door half (it was
// broken out from under this one).
func (b doorBehaviour) OnNeighborChange(w NeighborWorld, pos Pos) {
	state := w.Block(pos)
	props := b.reg.Properties(state)

	partner := partnerPos(props.Kind == KindDoorLower, pos)
	partnerProps := b.reg.Properties(w.Block(partner))

	if partnerProps.Kind != KindDoorLower && partnerProps.Kind != KindDoorUpper {
		_ = w.SetBlock(pos, Air)
		return
	}
	if partnerProps.Open != props.Open {
		_ = w.SetBlock(pos, b.reg.MatchingOpenState(state, partnerProps.Open))
	}
}
