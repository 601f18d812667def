package qpu

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
)

// Instruction word layout (32 bits):
//
//	R form: | op (5) | 0 (1) | ra (5) | rb (5) | rc (5) | 0 (11)       |
//	I form: | op (5) | v (1) | ra (5) | rb (5) | immediate (16)        |
//	J form: | op (5) | 0 (3)          | target (24)                    |
//
// bits:     31    27   26     25   21   20  16   15                  0
//
// v is the alternate (VPM) address space bit of memory operands.
const (
	opcodeShift = 27
	vpmBitShift = 26
	raShift     = 21
	rbShift     = 16
	rcShift     = 11

	registerMask  = 0x1f
	immediateMask = 0xffff
	targetMask    = 0xffffff

	// Memory offset operands carry the alternate address space tag in this
	// out-of-band bit.  The encoder strips it from the offset.
	VPMAddressSpaceTag = 0x100000
)

type Format int

const (
	PseudoFormat = Format(iota)
	OtherFormat
	RegisterFormat
	ImmediateFormat
	JumpFormat
)

type OperandShape int

const (
	NoOperands = OperandShape(iota)

	OneRegister    // ra
	TwoRegisters   // ra, rb
	ThreeRegisters // ra, rb, rc

	// ra, rb, immediate|symbol
	RegisterRegisterImmediate

	// ra, immediate|symbol
	RegisterImmediate

	// ra, base, offset (immediate|symbol)
	Memory

	// ra, rb, block|symbol|immediate
	ConditionalBranch

	// block|symbol|immediate
	JumpTarget
)

type InstructionDesc struct {
	Opcode arch.Opcode
	Code   uint32
	Format
	Shape OperandShape

	// Fixup kind for block / symbol jump targets.
	TargetFixup FixupKind
}

const (
	Nop   = arch.Opcode("nop")
	Addu  = arch.Opcode("addu")
	Subu  = arch.Opcode("subu")
	And   = arch.Opcode("and")
	Or    = arch.Opcode("or")
	Xor   = arch.Opcode("xor")
	Shl   = arch.Opcode("shl")
	Shr   = arch.Opcode("shr")
	Mul   = arch.Opcode("mul")
	Move  = arch.Opcode("move")
	Addiu = arch.Opcode("addiu")
	Ori   = arch.Opcode("ori")
	Andi  = arch.Opcode("andi")
	Lui   = arch.Opcode("lui")
	Ld    = arch.Opcode("ld")
	St    = arch.Opcode("st")
	Beq   = arch.Opcode("beq")
	Bne   = arch.Opcode("bne")
	Blt   = arch.Opcode("blt")
	Jmp   = arch.Opcode("jmp")
	Jsub  = arch.Opcode("jsub")
	Swi   = arch.Opcode("swi")
	Jalr  = arch.Opcode("jalr")
	Ret   = arch.Opcode("ret")

	// Materializes a global symbol's address into a register.  Expanded by
	// the global address expander.
	LoadAddress = arch.Opcode("%la")
)

var (
	instructionSet = map[arch.Opcode]*InstructionDesc{}
)

func init() {
	for _, desc := range []*InstructionDesc{
		{Opcode: Nop, Code: 0, Format: OtherFormat, Shape: NoOperands},
		{Opcode: Addu, Code: 1, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Subu, Code: 2, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: And, Code: 3, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Or, Code: 4, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Xor, Code: 5, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Shl, Code: 6, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Shr, Code: 7, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Mul, Code: 8, Format: RegisterFormat, Shape: ThreeRegisters},
		{Opcode: Move, Code: 9, Format: RegisterFormat, Shape: TwoRegisters},
		{
			Opcode: Addiu,
			Code:   10,
			Format: ImmediateFormat,
			Shape:  RegisterRegisterImmediate,
		},
		{
			Opcode: Ori,
			Code:   11,
			Format: ImmediateFormat,
			Shape:  RegisterRegisterImmediate,
		},
		{
			Opcode: Andi,
			Code:   12,
			Format: ImmediateFormat,
			Shape:  RegisterRegisterImmediate,
		},
		{Opcode: Lui, Code: 13, Format: ImmediateFormat, Shape: RegisterImmediate},
		{Opcode: Ld, Code: 14, Format: ImmediateFormat, Shape: Memory},
		{Opcode: St, Code: 15, Format: ImmediateFormat, Shape: Memory},
		{
			Opcode:      Beq,
			Code:        16,
			Format:      ImmediateFormat,
			Shape:       ConditionalBranch,
			TargetFixup: PC16Fixup,
		},
		{
			Opcode:      Bne,
			Code:        17,
			Format:      ImmediateFormat,
			Shape:       ConditionalBranch,
			TargetFixup: PC16Fixup,
		},
		{
			Opcode:      Blt,
			Code:        18,
			Format:      ImmediateFormat,
			Shape:       ConditionalBranch,
			TargetFixup: PC16Fixup,
		},
		{
			Opcode:      Jmp,
			Code:        19,
			Format:      JumpFormat,
			Shape:       JumpTarget,
			TargetFixup: PC24Fixup,
		},
		{
			Opcode:      Jsub,
			Code:        20,
			Format:      JumpFormat,
			Shape:       JumpTarget,
			TargetFixup: PC24Fixup,
		},
		{
			Opcode:      Swi,
			Code:        21,
			Format:      JumpFormat,
			Shape:       JumpTarget,
			TargetFixup: Direct24Fixup,
		},
		{Opcode: Jalr, Code: 22, Format: RegisterFormat, Shape: OneRegister},
		{Opcode: Ret, Code: 23, Format: RegisterFormat, Shape: OneRegister},
		{Opcode: LoadAddress, Format: PseudoFormat, Shape: RegisterImmediate},
		{Opcode: arch.CallPseudo, Format: PseudoFormat},
		{Opcode: arch.ReturnPseudo, Format: PseudoFormat},
	} {
		_, ok := instructionSet[desc.Opcode]
		if ok {
			panic("duplicate instruction: " + string(desc.Opcode))
		}
		instructionSet[desc.Opcode] = desc
	}
}

func newInst(
	pos parseutil.StartEndPos,
	opcode arch.Opcode,
	operands ...arch.Operand,
) *arch.Instruction {
	_, ok := instructionSet[opcode]
	if !ok {
		panic("unknown opcode: " + string(opcode))
	}
	return arch.NewInstruction(pos, opcode, operands...)
}

func reg(register *arch.Register) arch.Operand {
	return arch.RegisterOperand{Register: register}
}

func imm(value int) arch.Operand {
	return arch.ImmediateOperand{Value: int64(value)}
}

func slot(s *arch.StackSlot) arch.Operand {
	return arch.StackSlotOperand{Slot: s}
}

// Register to register copy.
func move(
	pos parseutil.StartEndPos,
	dest *arch.Register,
	src *arch.Register,
) *arch.Instruction {
	return newInst(pos, Move, reg(dest), reg(src))
}

// dest := value, using the shortest sequence.
func loadImmediate(
	pos parseutil.StartEndPos,
	dest *arch.Register,
	value int64,
) []*arch.Instruction {
	if arch.FitsSigned(value, arch.ImmediateBitSize) {
		return []*arch.Instruction{
			newInst(pos, Addiu, reg(dest), reg(zero), imm(int(value))),
		}
	}

	high := int((uint32(value) >> 16) & immediateMask)
	low := int(uint32(value) & immediateMask)

	result := []*arch.Instruction{newInst(pos, Lui, reg(dest), imm(high))}
	if low != 0 {
		result = append(result, newInst(pos, Ori, reg(dest), reg(dest), imm(low)))
	}
	return result
}
