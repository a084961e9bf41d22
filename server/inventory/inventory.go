// Package inventory implements per-entity item storage: a fixed 46-slot
// array (the Bedrock player inventory layout: 36 main + 9 hotbar... in this
// server's case 46 general-purpose slots, spec.md §3 "Inventory"), a dirty
// bitset for egress slot-update diffing, and a held-slot cursor.
//
// The handler-wrap mechanism is carried over verbatim in spirit from the
// teacher's server/item/inventory/handler_wrap.go: a package-level
// atomic.Value holds a wrapper function so a host process can globally
// instrument every Inventory's Handler without each call site threading a
// wrapper through by hand.
package inventory

import "sync/atomic"

// Slots is the fixed inventory size (spec.md §3).
const Slots = 46

// Stack is a single inventory slot's contents. An empty Stack (Count == 0)
// represents an empty slot.
type Stack struct {
	ItemID uint32
	Count  uint8
	Meta   uint16
}

// Empty reports whether the stack represents an empty slot.
func (s Stack) Empty() bool { return s.Count == 0 }

// Handler receives inventory-changed notifications. NopHandler is used when
// no handler has been assigned.
type Handler interface {
	HandleSlotChange(inv *Inventory, slot int, before, after Stack)
}

// NopHandler implements Handler with no-ops.
type NopHandler struct{}

func (NopHandler) HandleSlotChange(*Inventory, int, Stack, Stack) {}

type handlerWrapper func(*Inventory, Handler) Handler

var inventoryHandlerWrap atomic.Value

func init() {
	inventoryHandlerWrap.Store(handlerWrapper(func(_ *Inventory, h Handler) Handler { return h }))
}

// SetHandlerWrap installs a function that wraps every Handler assigned
// through Inventory.Handle, across all Inventory instances in the process.
// Wrappers run after nil handlers are substituted with NopHandler.
func SetHandlerWrap(w func(*Inventory, Handler) Handler) {
	if w == nil {
		inventoryHandlerWrap.Store(handlerWrapper(func(_ *Inventory, h Handler) Handler { return h }))
		return
	}
	inventoryHandlerWrap.Store(handlerWrapper(w))
}

func wrapInventoryHandler(inv *Inventory, h Handler) Handler {
	return inventoryHandlerWrap.Load().(handlerWrapper)(inv, h)
}

// Inventory is a fixed-size, dirty-bit-tracked slot array. The zero value is
// not usable; construct with New.
type Inventory struct {
	slots    [Slots]Stack
	dirty    [Slots]bool
	anyDirty bool
	held     int
	h        atomic.Value // handlerBox
}

// handlerBox gives every value stored in Inventory.h the same concrete type,
// whatever Handler implementation it carries.
type handlerBox struct{ h Handler }

// New constructs an empty Inventory.
func New() *Inventory {
	inv := &Inventory{}
	inv.h.Store(handlerBox{NopHandler{}})
	return inv
}

// Handle installs h (wrapped via SetHandlerWrap) as the Inventory's handler.
// A nil h installs NopHandler.
func (inv *Inventory) Handle(h Handler) {
	if h == nil {
		h = NopHandler{}
	}
	inv.h.Store(handlerBox{wrapInventoryHandler(inv, h)})
}

func (inv *Inventory) handler() Handler {
	return inv.h.Load().(handlerBox).h
}

// Get returns the stack at slot. Out-of-range slots return the zero Stack.
func (inv *Inventory) Get(slot int) Stack {
	if slot < 0 || slot >= Slots {
		return Stack{}
	}
	return inv.slots[slot]
}

// Set overwrites slot, marks it dirty if the stack actually changed, and
// notifies the handler.
func (inv *Inventory) Set(slot int, s Stack) {
	if slot < 0 || slot >= Slots {
		return
	}
	before := inv.slots[slot]
	if before == s {
		return
	}
	inv.slots[slot] = s
	inv.dirty[slot] = true
	inv.anyDirty = true
	inv.handler().HandleSlotChange(inv, slot, before, s)
}

// Held returns the currently selected hotbar slot index.
func (inv *Inventory) Held() int { return inv.held }

// SetHeld updates the held-slot cursor. Values outside [0, Slots) are
// ignored.
func (inv *Inventory) SetHeld(slot int) {
	if slot < 0 || slot >= Slots {
		return
	}
	inv.held = slot
}

// Dirty reports whether any slot has changed since the last ClearDirty.
func (inv *Inventory) Dirty() bool { return inv.anyDirty }

// DirtySlots returns the indices of every slot changed since the last
// ClearDirty call, for egress's slot-update diffing (spec.md §4.3
// "Dirty-bit diffing").
func (inv *Inventory) DirtySlots() []int {
	if !inv.anyDirty {
		return nil
	}
	out := make([]int, 0, Slots)
	for i, d := range inv.dirty {
		if d {
			out = append(out, i)
		}
	}
	return out
}

// ClearDirty resets every slot's dirty bit, called once the diffed slots
// have been emitted (mirrors Prev⟨T⟩'s PostStore-only update timing).
func (inv *Inventory) ClearDirty() {
	for i := range inv.dirty {
		inv.dirty[i] = false
	}
	inv.anyDirty = false
}

// AddItem merges count units of itemID/meta into existing matching stacks
// first, then empty slots, each capped at maxStack. It returns the number
// of units that didn't fit anywhere (0 if everything fit).
func (inv *Inventory) AddItem(itemID uint32, meta uint16, count uint8, maxStack uint8) uint8 {
	for i := 0; i < Slots && count > 0; i++ {
		s := inv.slots[i]
		if s.Empty() || s.ItemID != itemID || s.Meta != meta || s.Count >= maxStack {
			continue
		}
		room := maxStack - s.Count
		take := count
		if take > room {
			take = room
		}
		inv.Set(i, Stack{ItemID: itemID, Meta: meta, Count: s.Count + take})
		count -= take
	}
	for i := 0; i < Slots && count > 0; i++ {
		if !inv.slots[i].Empty() {
			continue
		}
		take := count
		if take > maxStack {
			take = maxStack
		}
		inv.Set(i, Stack{ItemID: itemID, Meta: meta, Count: take})
		count -= take
	}
	return count
}
