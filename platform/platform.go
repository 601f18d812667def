package platform

import (
	"encoding/binary"

	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
)

type ArchitectureName string

const (
	Qpu = ArchitectureName("qpu")
)

// Assigns argument / return value locations and rewrites abstract call and
// return instructions into concrete sequences.
type CallConvention interface {
	CallTypeSpec() CallTypeSpec

	// Assigns locations for the given argument descriptors.  Returns the
	// assignments (in argument order) and the stack area size they require.
	AnalyzeArguments(args []arch.ValueDescriptor) ([]arch.Assignment, int)

	AnalyzeReturns(values []arch.ValueDescriptor) []arch.Assignment

	// Populates the entry block with the formal argument copies.
	LowerFormalArguments(function *arch.Function)

	// Replaces the abstract call instruction (which must belong to block).
	LowerCall(block *arch.Block, call *arch.Instruction)

	// Replaces the abstract return instruction (which must belong to block).
	LowerReturn(block *arch.Block, ret *arch.Instruction)
}

// Decides the frame shape and materializes it.
type FrameLowering interface {
	HasFramePointer(function *arch.Function) bool

	// Frame register used to address non stack pointer relative slots.
	FrameRegister(function *arch.Function) *arch.Register

	// Adds callee saved spill slots and computes the frame size.
	FinalizeFrame(function *arch.Function)

	EmitPrologue(function *arch.Function)
	EmitEpilogue(function *arch.Function)

	// Rewrites every stack slot operand into register + offset.
	ResolveStackSlots(function *arch.Function, emitter *parseutil.Emitter)
}

// Translates a fully resolved instruction into its binary form.
type InstructionEncoder interface {
	ByteOrder() binary.ByteOrder

	// Returns the encoded instruction word, along with fixups whose offsets
	// are relative to the start of the instruction.
	Encode(inst *arch.Instruction) (uint32, []Fixup, error)

	// Encodes a data word referencing a symbol.
	EncodeData(value arch.SymbolOperand) (uint32, []Fixup)
}

// Classifies fixups and orders relocations for the object file writer.
type RelocationWriter interface {
	RelocationType(fixup Fixup) (RelocationType, error)

	// Reorders relocations (expected in descending offset order) such that
	// split high/low pairs are adjacent.  Entries that cannot be paired are
	// returned separately (they remain in the result list).
	SortRelocations(relocations []Relocation) ([]Relocation, []Relocation)
}

type Platform interface {
	ArchitectureName() ArchitectureName

	ArchitectureRegisters() *arch.RegisterSet

	CallConvention() CallConvention
	FrameLowering() FrameLowering
	InstructionEncoder() InstructionEncoder
	RelocationWriter() RelocationWriter

	// Target specific function level passes, run in order after frame
	// lowering and before stack slot resolution.
	MachinePasses() []MachinePass
}

type MachinePass interface {
	Process(*arch.Function)
}
