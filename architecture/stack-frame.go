package architecture

import (
	"fmt"
)

type FramePhase int

const (
	// Slots may be created and fixed offsets may still move.
	CollectingRequests = FramePhase(iota)

	// Total frame size is computed.  No more slots may be created.
	SizeKnown

	// Every stack slot reference has been rewritten into register + offset.
	SlotsResolved
)

func (phase FramePhase) String() string {
	switch phase {
	case CollectingRequests:
		return "collecting-requests"
	case SizeKnown:
		return "size-known"
	case SlotsResolved:
		return "slots-resolved"
	default:
		return fmt.Sprintf("phase(%d)", int(phase))
	}
}

type CalleeSavedEntry struct {
	Register *Register
	Slot     *StackSlot
}

// Stack frame layout from top to bottom:
//
// |                    | (high address)
// |incoming arg n      |
// |--------------------|
// |...                 |
// |--------------------|
// |incoming arg 1      | first argument that goes on the stack (offset 0)
// |--------------------| <- caller's stack pointer (start of current frame)
// |callee saved 1      |
// |--------------------|
// |...                 |
// |--------------------|
// |callee saved n      |
// |--------------------|
// |local 1             |
// |--------------------|
// |...                 |
// |--------------------|
// |local m             |
// |--------------------|
// |padding             | object area rounded up to frame alignment
// |--------------------|
// |padding             | outgoing area rounded up to frame alignment
// |--------------------|
// |dynamic alloca /    |
// |global base restore | both anchored right above the reserved call frame
// |--------------------|
// |padding             | call frame rounded up to frame alignment
// |--------------------|
// |outgoing arg n      |
// |--------------------|
// |...                 |
// |--------------------|
// |outgoing arg 1      | (offset 0)
// |--------------------| <- stack pointer after the prologue
// |                    | (low address)
//
// Total frame size = round_up(outgoing area, 8) + round_up(object area, 8),
// where the outgoing area ends after the global base restore slot if the
// function has one, and at the maximum call frame size otherwise.
//
// The frame is a one way state machine:
// collecting-requests -> size-known -> slots-resolved.  Every slot's category
// is set at creation and never changes; final offsets are only available
// once the size is known.
type StackFrame struct {
	// All slots in creation order (Slots[i].Index == i).
	Slots []*StackSlot

	// Named slot lookup (unnamed slots are excluded).
	Names map[string]*StackSlot

	phase FramePhase

	// Largest outgoing argument area required by any call in the function.
	MaxCallFrameSize int

	HasCalls           bool
	HasVarSizedObjects bool
	FrameAddressTaken  bool

	// Callee saved registers in save order.
	CalleeSaved []CalleeSavedEntry

	GlobalBaseRestore   *StackSlot
	DynamicAllocaAnchor *StackSlot
	VarArgsAnchor       *StackSlot

	// Computed by Finalize()
	ObjectAreaSize   int
	OutgoingAreaSize int
	TotalFrameSize   int          // This respects stack frame alignment
	Layout           []*StackSlot // non-fixed slots, from top to bottom
}

func NewStackFrame() *StackFrame {
	return &StackFrame{
		Names: map[string]*StackSlot{},
	}
}

func (frame *StackFrame) Phase() FramePhase {
	return frame.phase
}

func (frame *StackFrame) checkPhase(expected FramePhase, operation string) {
	if frame.phase != expected {
		panic(fmt.Sprintf(
			"cannot %s in %s phase (expected %s)",
			operation,
			frame.phase,
			expected))
	}
}

func (frame *StackFrame) add(
	category SlotCategory,
	name string,
	size int,
	alignment int,
	isFixed bool,
	offset int,
) *StackSlot {
	frame.checkPhase(CollectingRequests, "create stack slot")

	if size < 0 {
		panic("negative stack slot size")
	}

	if alignment <= 0 ||
		alignment&(alignment-1) != 0 ||
		alignment > StackFrameAlignment {
		panic(fmt.Sprintf("unsupported stack slot alignment: %d", alignment))
	}

	if name != "" {
		_, ok := frame.Names[name]
		if ok {
			panic("duplicate stack slot: " + name)
		}
	}

	slot := &StackSlot{
		Index:     len(frame.Slots),
		Name:      name,
		Size:      size,
		Alignment: alignment,
		IsFixed:   isFixed,
		offset:    offset,
		category:  category,
	}

	frame.Slots = append(frame.Slots, slot)
	if name != "" {
		frame.Names[name] = slot
	}
	return slot
}

// Creates a slot at a predetermined offset.  Local and callee saved slots
// are always laid out by the frame and cannot be fixed.
func (frame *StackFrame) NewFixedSlot(
	category SlotCategory,
	name string,
	size int,
	offset int,
) *StackSlot {
	switch category {
	case IncomingArgumentSlot, OutgoingArgumentSlot:
	case GlobalBaseRestoreSlot:
		if frame.GlobalBaseRestore != nil {
			panic("multiple global base restore slots")
		}
	case DynamicAllocaSlot:
		if frame.DynamicAllocaAnchor != nil {
			panic("multiple dynamic alloca anchors")
		}
	default:
		panic("cannot create fixed " + string(category) + " slot")
	}

	slot := frame.add(category, name, size, RegisterByteSize, true, offset)

	switch category {
	case GlobalBaseRestoreSlot:
		frame.GlobalBaseRestore = slot
	case DynamicAllocaSlot:
		frame.DynamicAllocaAnchor = slot
	}

	return slot
}

func (frame *StackFrame) NewLocalSlot(
	name string,
	size int,
	alignment int,
) *StackSlot {
	return frame.add(LocalSlot, name, size, alignment, false, 0)
}

func (frame *StackFrame) AddCalleeSaved(register *Register) *StackSlot {
	for _, entry := range frame.CalleeSaved {
		if entry.Register == register {
			panic("duplicate callee saved register: " + register.Name)
		}
	}

	slot := frame.add(
		CalleeSavedSlot,
		"%callee-saved."+register.Name,
		RegisterByteSize,
		RegisterByteSize,
		false,
		0)
	frame.CalleeSaved = append(
		frame.CalleeSaved,
		CalleeSavedEntry{
			Register: register,
			Slot:     slot,
		})
	return slot
}

// Moves a fixed slot.  Only valid while requests are still being collected.
func (frame *StackFrame) SetFixedSlotOffset(slot *StackSlot, offset int) {
	frame.checkPhase(CollectingRequests, "move stack slot")
	if !slot.IsFixed {
		panic("cannot move non-fixed stack slot: " + slot.String())
	}
	slot.offset = offset
}

// Returns true if the reserved call frame grew.
func (frame *StackFrame) UpdateMaxCallFrameSize(size int) bool {
	frame.checkPhase(CollectingRequests, "update call frame size")
	if size <= frame.MaxCallFrameSize {
		return false
	}
	frame.MaxCallFrameSize = size
	return true
}

func (frame *StackFrame) LookupSlot(name string) (*StackSlot, bool) {
	slot, ok := frame.Names[name]
	return slot, ok
}

// Lays out the non-fixed slots and computes the total frame size.
func (frame *StackFrame) Finalize() {
	frame.checkPhase(CollectingRequests, "finalize frame")

	layout := make([]*StackSlot, 0, len(frame.Slots))
	for _, entry := range frame.CalleeSaved {
		layout = append(layout, entry.Slot)
	}
	for _, slot := range frame.Slots {
		if slot.category == LocalSlot {
			layout = append(layout, slot)
		}
	}

	objectSize := 0
	for _, slot := range layout {
		objectSize = AlignTo(objectSize+slot.Size, slot.Alignment)
		slot.offset = -objectSize
	}

	outgoingSize := frame.MaxCallFrameSize
	if frame.GlobalBaseRestore != nil {
		outgoingSize = frame.GlobalBaseRestore.offset + RegisterByteSize
	}

	frame.Layout = layout
	frame.ObjectAreaSize = objectSize
	frame.OutgoingAreaSize = outgoingSize
	frame.TotalFrameSize = AlignTo(outgoingSize, StackFrameAlignment) +
		AlignTo(objectSize, StackFrameAlignment)
	frame.phase = SizeKnown
}

// Outgoing arguments, the dynamic alloca anchor and callee saved slots are
// always addressed relative to the stack pointer.  Everything else is
// addressed relative to the frame register.
func (frame *StackFrame) IsStackPointerRelative(slot *StackSlot) bool {
	switch slot.category {
	case OutgoingArgumentSlot, DynamicAllocaSlot, CalleeSavedSlot:
		return true
	default:
		return false
	}
}

// The slot's offset relative to the (post-prologue) stack pointer.  Pure
// given the frame size.
func (frame *StackFrame) ResolvedOffset(slot *StackSlot) int {
	if frame.phase == CollectingRequests {
		panic("cannot resolve stack slot before the frame size is known")
	}

	switch slot.category {
	case OutgoingArgumentSlot, GlobalBaseRestoreSlot, DynamicAllocaSlot:
		return slot.offset
	default:
		return slot.offset + frame.TotalFrameSize
	}
}

func (frame *StackFrame) MarkResolved() {
	frame.checkPhase(SizeKnown, "mark slots resolved")
	frame.phase = SlotsResolved
}
