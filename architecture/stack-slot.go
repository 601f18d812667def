package architecture

import (
	"fmt"
)

type SlotCategory string

const (
	// Lives in the caller's frame.  Stored offset is relative to the caller's
	// stack pointer at the call.
	IncomingArgumentSlot = SlotCategory("incoming-argument")

	// Lives in the reserved call frame at the bottom of the current frame.
	// Stored offset is relative to the stack pointer.
	OutgoingArgumentSlot = SlotCategory("outgoing-argument")

	CalleeSavedSlot = SlotCategory("callee-saved")

	// Holds the global base register across calls.  Placed right above the
	// reserved call frame.
	GlobalBaseRestoreSlot = SlotCategory("global-base-restore")

	// Marks where dynamically sized allocations begin.  Placed right above the
	// reserved call frame.
	DynamicAllocaSlot = SlotCategory("dynamic-alloca-anchor")

	LocalSlot = SlotCategory("local")
)

// An abstract stack location.  Instructions reference slots by pointer until
// the frame is finalized and the slot is resolved into register + offset.
type StackSlot struct {
	Index int
	Name  string

	Size      int
	Alignment int

	// Fixed slots have a predetermined (caller or ABI defined) offset.
	// Non-fixed slots are laid out by the frame.
	IsFixed bool

	// Interpretation depends on the category (see category comments above).
	// Local and callee-saved slots have negative offsets relative to the
	// incoming stack pointer once the frame layout is computed.
	offset int

	category SlotCategory
}

func (slot *StackSlot) Category() SlotCategory {
	return slot.category
}

func (slot *StackSlot) Offset() int {
	return slot.offset
}

func (slot *StackSlot) String() string {
	name := slot.Name
	if name == "" {
		name = fmt.Sprintf("%%slot.%d", slot.Index)
	}
	return fmt.Sprintf(
		"%s (%s) Size: %d Align: %d Fixed: %v Offset: %d",
		name,
		slot.category,
		slot.Size,
		slot.Alignment,
		slot.IsFixed,
		slot.offset)
}
