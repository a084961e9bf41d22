package inventory

import "testing"

func TestSetMarksSlotDirtyAndNotifiesHandler(t *testing.T) {
	inv := New()
	var gotSlot int
	var gotBefore, gotAfter Stack
	calls := 0
	inv.Handle(handlerFunc(func(_ *Inventory, slot int, before, after Stack) {
		calls++
		gotSlot, gotBefore, gotAfter = slot, before, after
	}))

	inv.Set(3, Stack{ItemID: 5, Count: 1})
	if calls != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls)
	}
	if gotSlot != 3 || gotBefore.Count != 0 || gotAfter.ItemID != 5 {
		t.Fatalf("unexpected callback args: slot=%d before=%+v after=%+v", gotSlot, gotBefore, gotAfter)
	}
	if !inv.Dirty() {
		t.Fatalf("expected inventory to be dirty")
	}
	dirty := inv.DirtySlots()
	if len(dirty) != 1 || dirty[0] != 3 {
		t.Fatalf("expected only slot 3 dirty, got %v", dirty)
	}
}

func TestSetSameStackIsNotDirty(t *testing.T) {
	inv := New()
	inv.Set(0, Stack{ItemID: 1, Count: 1})
	inv.ClearDirty()

	inv.Set(0, Stack{ItemID: 1, Count: 1})
	if inv.Dirty() {
		t.Fatalf("expected no-op Set to leave inventory clean")
	}
}

func TestClearDirtyResetsAllBits(t *testing.T) {
	inv := New()
	inv.Set(0, Stack{ItemID: 1, Count: 1})
	inv.Set(10, Stack{ItemID: 2, Count: 1})
	if len(inv.DirtySlots()) != 2 {
		t.Fatalf("expected 2 dirty slots")
	}
	inv.ClearDirty()
	if inv.Dirty() || len(inv.DirtySlots()) != 0 {
		t.Fatalf("expected no dirty slots after ClearDirty")
	}
}

func TestHeldSlotCursorIgnoresOutOfRange(t *testing.T) {
	inv := New()
	inv.SetHeld(5)
	if inv.Held() != 5 {
		t.Fatalf("expected held slot 5, got %d", inv.Held())
	}
	inv.SetHeld(-1)
	inv.SetHeld(Slots)
	if inv.Held() != 5 {
		t.Fatalf("expected out-of-range SetHeld to be ignored, got %d", inv.Held())
	}
}

func TestHandlerWrapAppliesToEveryInventory(t *testing.T) {
	var wrapped int
	SetHandlerWrap(func(_ *Inventory, h Handler) Handler {
		wrapped++
		return h
	})
	defer SetHandlerWrap(nil)

	a, b := New(), New()
	a.Handle(NopHandler{})
	b.Handle(NopHandler{})
	if wrapped != 2 {
		t.Fatalf("expected wrap to run for both inventories, got %d", wrapped)
	}
}

type handlerFunc func(inv *Inventory, slot int, before, after Stack)

func (f handlerFunc) HandleSlotChange(inv *Inventory, slot int, before, after Stack) {
	f(inv, slot, before, after)
}
