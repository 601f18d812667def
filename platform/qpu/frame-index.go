package qpu

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
)

// Returns the base register and byte offset addressing the slot (plus
// extra bytes).  Pure given the frame size.
func (lowering FrameLowering) ResolveSlot(
	function *arch.Function,
	stackSlot *arch.StackSlot,
	extra int64,
) (
	*arch.Register,
	int64,
) {
	frame := function.Frame

	base := lowering.FrameRegister(function)
	if frame.IsStackPointerRelative(stackSlot) {
		base = sp
	}

	return base, int64(frame.ResolvedOffset(stackSlot)) + extra
}

func (lowering FrameLowering) ResolveStackSlots(
	function *arch.Function,
	emitter *parseutil.Emitter,
) {
	for _, block := range function.Blocks {
		for _, inst := range block.Instructions {
			for idx, operand := range inst.Operands {
				slotOperand, ok := operand.(arch.StackSlotOperand)
				if !ok {
					continue
				}

				if idx+1 >= len(inst.Operands) {
					panic("stack slot operand without offset: " + inst.String())
				}

				extra, ok := inst.Operands[idx+1].(arch.ImmediateOperand)
				if !ok {
					panic("stack slot operand without offset: " + inst.String())
				}

				base, offset := lowering.ResolveSlot(
					function,
					slotOperand.Slot,
					extra.Value)

				if !arch.FitsSigned(offset, arch.ImmediateBitSize) {
					emitter.Emit(
						inst.Loc(),
						"stack offset %d of %s does not fit in %d-bit offset field (%s)",
						offset,
						slotOperand,
						arch.ImmediateBitSize,
						function.Name())
					continue
				}

				inst.Operands[idx] = reg(base)
				inst.Operands[idx+1] = arch.ImmediateOperand{Value: offset}
			}
		}
	}

	function.Frame.MarkResolved()
}
