package qpu

import (
	"fmt"

	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
)

type FrameLowering struct {
	target config.Target
}

func NewFrameLowering(target config.Target) *FrameLowering {
	return &FrameLowering{
		target: target,
	}
}

// A frame pointer is required when the stack pointer may move at runtime
// (dynamic allocations), when the frame address escapes, or when frame
// pointer elimination is disabled.
func (lowering FrameLowering) HasFramePointer(function *arch.Function) bool {
	frame := function.Frame
	return lowering.target.DisableFramePointerElimination ||
		frame.HasVarSizedObjects ||
		frame.FrameAddressTaken
}

func (lowering FrameLowering) FrameRegister(
	function *arch.Function,
) *arch.Register {
	if lowering.HasFramePointer(function) {
		return fp
	}
	return sp
}

// Decides the callee saved set and lays out the frame.  The link register
// is saved iff the function makes calls; the frame pointer is saved iff the
// function uses one.
func (lowering FrameLowering) FinalizeFrame(function *arch.Function) {
	frame := function.Frame

	used := map[*arch.Register]struct{}{}
	for _, register := range function.UsedCalleeSaved {
		if !isCalleeSaved(register) {
			panic(fmt.Sprintf(
				"%s is not callee saved (%s)",
				register.Name,
				function.Name()))
		}
		used[register] = struct{}{}
	}

	if lowering.HasFramePointer(function) {
		used[fp] = struct{}{}
	}

	if frame.HasCalls {
		used[lr] = struct{}{}
	} else {
		delete(used, lr)
	}

	for _, register := range CalleeSavedRegisters {
		_, ok := used[register]
		if ok {
			frame.AddCalleeSaved(register)
		}
	}

	frame.Finalize()
}

// Prologue:
//
//  1. allocate the frame (sp -= frame size)
//  2. save callee saved registers
//  3. fp := sp (frame pointer only)
//  4. store the global base register into its restore slot (PIC only)
func (lowering FrameLowering) EmitPrologue(function *arch.Function) {
	frame := function.Frame
	if frame.Phase() != arch.SizeKnown {
		panic("frame size unknown: " + function.Name())
	}

	stackSize := frame.TotalFrameSize
	if stackSize == 0 {
		return
	}

	pos := function.StartEndPos

	insts := adjustStackPointer(pos, -stackSize)

	for _, entry := range frame.CalleeSaved {
		insts = append(
			insts,
			newInst(pos, St, reg(entry.Register), slot(entry.Slot), imm(0)))
	}

	if lowering.HasFramePointer(function) {
		insts = append(insts, newInst(pos, Ori, reg(fp), reg(sp), imm(0)))
	}

	if frame.GlobalBaseRestore != nil {
		insts = append(
			insts,
			storeGlobalBase(pos, frame.ResolvedOffset(frame.GlobalBaseRestore))...)
	}

	function.EntryBlock().Insert(0, insts...)
}

// Epilogue (before every return):
//
//  1. sp := fp (frame pointer only)
//  2. restore callee saved registers
//  3. deallocate the frame (sp += frame size)
func (lowering FrameLowering) EmitEpilogue(function *arch.Function) {
	frame := function.Frame
	if frame.Phase() != arch.SizeKnown {
		panic("frame size unknown: " + function.Name())
	}

	stackSize := frame.TotalFrameSize
	if stackSize == 0 {
		return
	}

	hasFramePointer := lowering.HasFramePointer(function)
	for _, block := range function.Blocks {
		for idx := len(block.Instructions) - 1; idx >= 0; idx-- {
			ret := block.Instructions[idx]
			if ret.Opcode != Ret {
				continue
			}

			pos := ret.StartEndPos
			insts := []*arch.Instruction{}
			if hasFramePointer {
				insts = append(insts, newInst(pos, Ori, reg(sp), reg(fp), imm(0)))
			}

			for i := len(frame.CalleeSaved) - 1; i >= 0; i-- {
				entry := frame.CalleeSaved[i]
				insts = append(
					insts,
					newInst(pos, Ld, reg(entry.Register), slot(entry.Slot), imm(0)))
			}

			insts = append(insts, adjustStackPointer(pos, stackSize)...)
			block.Insert(idx, insts...)
		}
	}
}

// sp += amount.  Amounts outside the small immediate range are
// materialized into the assembler temporary first.
func adjustStackPointer(
	pos parseutil.StartEndPos,
	amount int,
) []*arch.Instruction {
	if isSmallImmediate(amount) {
		return []*arch.Instruction{
			newInst(pos, Addiu, reg(sp), reg(sp), imm(amount)),
		}
	}

	insts := loadImmediate(pos, at, int64(amount))
	return append(insts, newInst(pos, Addu, reg(sp), reg(sp), reg(at)))
}

// st $gp, offset($sp).  Offsets that do not fit the memory offset field
// are split into a high part added to sp through the assembler temporary.
func storeGlobalBase(
	pos parseutil.StartEndPos,
	offset int,
) []*arch.Instruction {
	if arch.FitsSigned(int64(offset), arch.ImmediateBitSize) {
		return []*arch.Instruction{
			newInst(pos, St, reg(gp), reg(sp), imm(offset)),
		}
	}

	high := ((offset + 0x8000) >> 16) & immediateMask
	low := int(int16(offset & immediateMask))
	return []*arch.Instruction{
		newInst(pos, Lui, reg(at), imm(high)),
		newInst(pos, Addu, reg(at), reg(at), reg(sp)),
		newInst(pos, St, reg(gp), reg(at), imm(low)),
	}
}
