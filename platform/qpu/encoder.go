package qpu

import (
	"encoding/binary"

	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/platform"
)

type Encoder struct {
	byteOrder binary.ByteOrder
}

func NewEncoder(target config.Target) *Encoder {
	return &Encoder{
		byteOrder: target.ByteOrder(),
	}
}

func (encoder Encoder) ByteOrder() binary.ByteOrder {
	return encoder.byteOrder
}

func (encoder Encoder) EncodeData(
	value arch.SymbolOperand,
) (
	uint32,
	[]platform.Fixup,
) {
	return 0, []platform.Fixup{
		{
			Kind:   Data4Fixup,
			Symbol: value.Symbol,
			Addend: value.Offset,
		},
	}
}

func (encoder Encoder) Encode(
	inst *arch.Instruction,
) (
	uint32,
	[]platform.Fixup,
	error,
) {
	desc, ok := instructionSet[inst.Opcode]
	if !ok {
		return 0, nil, parseutil.NewLocationError(
			inst.Loc(),
			"unknown instruction (%s)",
			inst.Opcode)
	}

	if desc.Format == PseudoFormat {
		return 0, nil, parseutil.NewLocationError(
			inst.Loc(),
			"pseudo instruction %s cannot be encoded",
			inst.Opcode)
	}

	// Register masks only inform the register allocator.
	operands := make([]arch.Operand, 0, len(inst.Operands))
	for _, operand := range inst.Operands {
		_, ok := operand.(arch.RegisterMaskOperand)
		if !ok {
			operands = append(operands, operand)
		}
	}

	state := &encodeState{
		inst:     inst,
		desc:     desc,
		operands: operands,
		word:     desc.Code << opcodeShift,
	}

	state.encode()
	if state.err != nil {
		return 0, nil, state.err
	}

	if state.word == 0 && desc.Opcode != Nop {
		panic("should never happen")
	}

	return state.word, state.fixups, nil
}

type encodeState struct {
	inst     *arch.Instruction
	desc     *InstructionDesc
	operands []arch.Operand

	word   uint32
	fixups []platform.Fixup
	err    error
}

func (state *encodeState) fail(format string, args ...interface{}) {
	if state.err == nil {
		state.err = parseutil.NewLocationError(state.inst.Loc(), format, args...)
	}
}

func (state *encodeState) encode() {
	expected := 0
	switch state.desc.Shape {
	case NoOperands:
		expected = 0
	case OneRegister, JumpTarget:
		expected = 1
	case TwoRegisters, RegisterImmediate:
		expected = 2
	default:
		expected = 3
	}

	if len(state.operands) != expected {
		state.fail(
			"%s expects %d operands, found %d",
			state.desc.Opcode,
			expected,
			len(state.operands))
		return
	}

	switch state.desc.Shape {
	case NoOperands:
	case OneRegister:
		state.register(0, raShift)
	case TwoRegisters:
		state.register(0, raShift)
		state.register(1, rbShift)
	case ThreeRegisters:
		state.register(0, raShift)
		state.register(1, rbShift)
		state.register(2, rcShift)
	case RegisterRegisterImmediate:
		state.register(0, raShift)
		state.register(1, rbShift)
		state.immediate(2, false)
	case RegisterImmediate:
		state.register(0, raShift)
		state.immediate(1, false)
	case Memory:
		state.register(0, raShift)
		state.register(1, rbShift)
		state.immediate(2, true)
	case ConditionalBranch:
		state.register(0, raShift)
		state.register(1, rbShift)
		state.target(2, immediateMask)
	case JumpTarget:
		state.target(0, targetMask)
	default:
		panic("should never happen")
	}
}

func (state *encodeState) register(idx int, shift uint) {
	switch operand := state.operands[idx].(type) {
	case arch.RegisterOperand:
		state.word |= uint32(operand.Register.Encoding&registerMask) << shift
	case arch.StackSlotOperand:
		state.fail(
			"unresolved stack slot %s in %s",
			operand,
			state.desc.Opcode)
	default:
		state.fail(
			"%s operand %d: expected register, found %s",
			state.desc.Opcode,
			idx,
			operand)
	}
}

func (state *encodeState) immediate(idx int, isMemoryOffset bool) {
	switch operand := state.operands[idx].(type) {
	case arch.ImmediateOperand:
		value := operand.Value
		// Tagged offsets are a zero extended 16-bit field plus the tag bit.
		// Any other value is a plain signed offset.
		if isMemoryOffset && value&^immediateMask == VPMAddressSpaceTag {
			state.word |= 1 << vpmBitShift
			value &= immediateMask
		}
		state.word |= uint32(value) & immediateMask
	case arch.SymbolOperand:
		kind, ok := state.symbolFixupKind(operand.Variant)
		if !ok {
			state.fail(
				"unsupported relocation variant %q in %s",
				operand.Variant,
				state.desc.Opcode)
			return
		}
		state.addFixup(kind, operand.Symbol, operand.Offset)
	default:
		state.fail(
			"%s operand %d: expected immediate, found %s",
			state.desc.Opcode,
			idx,
			operand)
	}
}

func (state *encodeState) target(idx int, mask uint32) {
	switch operand := state.operands[idx].(type) {
	case arch.ImmediateOperand:
		state.word |= uint32(operand.Value) & mask
	case arch.BlockOperand:
		state.addFixup(state.desc.TargetFixup, operand.Block.Symbol, 0)
	case arch.SymbolOperand:
		if operand.Variant != arch.NoVariant {
			state.fail(
				"unexpected relocation variant %q on %s target",
				operand.Variant,
				state.desc.Opcode)
			return
		}
		state.addFixup(state.desc.TargetFixup, operand.Symbol, operand.Offset)
	default:
		state.fail(
			"%s operand %d: expected jump target, found %s",
			state.desc.Opcode,
			idx,
			operand)
	}
}

func (state *encodeState) symbolFixupKind(
	variant arch.SymbolVariant,
) (
	FixupKind,
	bool,
) {
	switch variant {
	case arch.NoVariant:
		return Abs32Fixup, true
	case arch.GotVariant:
		return Got16Fixup, true
	case arch.GotCallVariant:
		return Call16Fixup, true
	case arch.GPRelVariant:
		return GPRel16Fixup, true
	case arch.HiLoVariant:
		if state.desc.Opcode == Lui {
			return Hi16Fixup, true
		}
		return Lo16Fixup, true
	case arch.AbsHiVariant:
		return Hi16Fixup, true
	case arch.AbsLoVariant:
		return Lo16Fixup, true
	case arch.GotHiVariant:
		return GotHi16Fixup, true
	case arch.GotLoVariant:
		return GotLo16Fixup, true
	default:
		return 0, false
	}
}

// The symbolic field is left as zero.
func (state *encodeState) addFixup(
	kind FixupKind,
	symbol *arch.Symbol,
	addend int64,
) {
	if symbol == nil {
		panic("should never happen")
	}

	state.fixups = append(
		state.fixups,
		platform.Fixup{
			Kind:   kind,
			Offset: 0,
			Symbol: symbol,
			Addend: addend,
		})
}
