// Package block implements the closed block-kind tagged union described in
// spec.md §3 ("Block state") and §9 ("Dynamic dispatch for per-block
// behaviour"): a 16-bit palette identifier mapped to semantic kind and
// physical properties through a match on kind rather than a per-block
// vtable pointer.
package block

import "github.com/dm-vev/emberhold/server/spatial"

// State is a 16-bit palette identifier for a single voxel's block state.
type State uint16

// VoidAir is returned by world stores for positions below the world floor
// (spec.md §4.4).
const VoidAir State = 0

// Air is the ordinary empty block state.
const Air State = 1

// Kind identifies the behavioural family a State belongs to. Properties for
// a State are looked up by Kind, never by per-instance dynamic dispatch.
type Kind uint8

const (
	KindAir Kind = iota
	KindOpaqueSolid
	KindDoorLower
	KindDoorUpper
	KindDestructible
)

// Properties describes the physical and semantic attributes of a Kind:
// collision shapes (in local voxel-space coordinates, unioned to world
// position by callers), item form, and door/half/open-style flags.
type Properties struct {
	Kind      Kind
	Name      string
	Collision []spatial.AABB
	ItemID    int32
	Open      bool
	UpperHalf bool
	// PairState names the alternate State of the same physical block with
	// Open flipped (e.g. the open variant of a closed door half). Zero
	// (VoidAir) if the Kind has no open/closed pair.
	PairState State
}

// Registry is a closed map from State to Properties, built once at startup
// and read-only thereafter.
type Registry struct {
	props  map[State]Properties
	byItem map[int32]State
}

// NewRegistry builds a Registry from a closed set of state definitions.
func NewRegistry(defs map[State]Properties) *Registry {
	props := make(map[State]Properties, len(defs))
	for k, v := range defs {
		props[k] = v
	}
	if _, ok := props[Air]; !ok {
		props[Air] = Properties{Kind: KindAir, Name: "air"}
	}

	byItem := make(map[int32]State, len(props))
	for s, p := range props {
		if p.ItemID == 0 {
			continue
		}
		if _, ok := byItem[p.ItemID]; !ok {
			byItem[p.ItemID] = s
		}
	}
	return &Registry{props: props, byItem: byItem}
}

// StateForItem returns the State placing itemID produces, and whether
// itemID names a placeable block at all (spec.md scenario S3 "place a dirt
// block"): the server derives what to place from the player's held item,
// never from a client-supplied block state.
func (r *Registry) StateForItem(itemID int32) (State, bool) {
	s, ok := r.byItem[itemID]
	return s, ok
}

// ItemForState returns the item id a broken block of state yields, and
// false if the state has no associated item (e.g. air).
func (r *Registry) ItemForState(s State) (int32, bool) {
	p := r.Properties(s)
	if p.ItemID == 0 {
		return 0, false
	}
	return p.ItemID, true
}

// Properties returns the properties for state, or the air properties if the
// state is unknown.
func (r *Registry) Properties(s State) Properties {
	if p, ok := r.props[s]; ok {
		return p
	}
	return Properties{Kind: KindAir, Name: "air"}
}

// Behaviour is the two-method interface spec.md §9 specifies for per-block
// reactive logic. A Kind's behaviour is selected by a match, never a
// per-block vtable.
type Behaviour interface {
	OnInteract(w NeighborWorld, pos Pos) error
	OnNeighborChange(w NeighborWorld, pos Pos)
}

// NeighborWorld is the minimal surface a Behaviour needs against the voxel
// world store: reading and writing block state and queuing further
// neighbor notifications. Defined here (rather than importing server/world)
// to keep block free of a dependency on world, matching the teacher's own
// layering where block-like definitions do not import world.
type NeighborWorld interface {
	Block(pos Pos) State
	SetBlock(pos Pos, s State) error
	ScheduleNeighborNotify(pos Pos)
}

// Pos is a block position in world voxel coordinates.
type Pos struct {
	X, Y, Z int
}

// Side returns the neighboring position in direction dir (0..5: -X,+X,-Y,+Y,-Z,+Z).
func (p Pos) Side(dir int) Pos {
	switch dir {
	case 0:
		return Pos{p.X - 1, p.Y, p.Z}
	case 1:
		return Pos{p.X + 1, p.Y, p.Z}
	case 2:
		return Pos{p.X, p.Y - 1, p.Z}
	case 3:
		return Pos{p.X, p.Y + 1, p.Z}
	case 4:
		return Pos{p.X, p.Y, p.Z - 1}
	default:
		return Pos{p.X, p.Y, p.Z + 1}
	}
}

// BehaviourFor returns the reactive Behaviour registered for state's Kind,
// via a closed switch per spec.md §9 ("a match on block kind selects the
// variant"). Behaviours that need to resolve other states (doors reading
// their partner half) close over r rather than taking it as a parameter, so
// the Behaviour interface itself stays free of a Registry dependency.
func (r *Registry) BehaviourFor(s State) Behaviour {
	switch r.Properties(s).Kind {
	case KindDoorLower, KindDoorUpper:
		return doorBehaviour{reg: r}
	default:
		return nopBehaviour{}
	}
}

// MatchingOpenState returns the State representing the same physical block
// as current with its Open flag set to open, using the closed PairState
// mapping. If current already has the requested Open value, it is returned
// unchanged.
func (r *Registry) MatchingOpenState(current State, open bool) State {
	props := r.Properties(current)
	if props.Open == open {
		return current
	}
	return props.PairState
}

type nopBehaviour struct{}

func (nopBehaviour) OnInteract(NeighborWorld, Pos) error  { return nil }
func (nopBehaviour) OnNeighborChange(NeighborWorld, Pos) {}
