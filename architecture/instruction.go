package architecture

import (
	"fmt"
	"strings"

	"github.com/pattyshack/gt/parseutil"
)

type Opcode string

const (
	// Abstract instructions produced by instruction selection.  They are
	// replaced by concrete sequences during call convention lowering and must
	// never reach the encoder.
	CallPseudo   = Opcode("%call")
	ReturnPseudo = Opcode("%return")
)

type Operand interface {
	isOperand()
	String() string
}

type RegisterOperand struct {
	Register *Register
}

func (RegisterOperand) isOperand() {}

func (operand RegisterOperand) String() string {
	return operand.Register.String()
}

type ImmediateOperand struct {
	Value int64
}

func (ImmediateOperand) isOperand() {}

func (operand ImmediateOperand) String() string {
	return fmt.Sprintf("%d", operand.Value)
}

// An abstract stack location.  In memory / address forms, the slot operand
// takes the base register position and the following immediate operand is
// the extra byte offset into the slot.
type StackSlotOperand struct {
	Slot *StackSlot
}

func (StackSlotOperand) isOperand() {}

func (operand StackSlotOperand) String() string {
	if operand.Slot.Name != "" {
		return "%" + strings.TrimPrefix(operand.Slot.Name, "%")
	}
	return fmt.Sprintf("%%slot.%d", operand.Slot.Index)
}

type SymbolVariant string

const (
	NoVariant      = SymbolVariant("")
	GotVariant     = SymbolVariant("got")
	GotCallVariant = SymbolVariant("call16")
	GPRelVariant   = SymbolVariant("gprel")

	// Selects the high or the low half depending on the instruction using the
	// operand (the high half for lui, the low half elsewhere).
	HiLoVariant = SymbolVariant("hilo")

	AbsHiVariant = SymbolVariant("hi")
	AbsLoVariant = SymbolVariant("lo")
	GotHiVariant = SymbolVariant("got_hi")
	GotLoVariant = SymbolVariant("got_lo")
)

// symbol + offset, optionally wrapped by a relocation variant.
type SymbolOperand struct {
	Symbol  *Symbol
	Offset  int64
	Variant SymbolVariant
}

func (SymbolOperand) isOperand() {}

func (operand SymbolOperand) String() string {
	expr := operand.Symbol.Name
	if operand.Offset > 0 {
		expr = fmt.Sprintf("%s+%d", expr, operand.Offset)
	} else if operand.Offset < 0 {
		expr = fmt.Sprintf("%s%d", expr, operand.Offset)
	}

	if operand.Variant == NoVariant {
		return expr
	}
	return fmt.Sprintf("%%%s(%s)", operand.Variant, expr)
}

type BlockOperand struct {
	Block *Block
}

func (BlockOperand) isOperand() {}

func (operand BlockOperand) String() string {
	return operand.Block.Symbol.Name
}

// The set of registers preserved across a call.  The mask is informational
// for the register allocator and emits no bits.
type RegisterMaskOperand struct {
	Preserved []*Register
}

func (RegisterMaskOperand) isOperand() {}

func (operand RegisterMaskOperand) String() string {
	names := make([]string, 0, len(operand.Preserved))
	for _, reg := range operand.Preserved {
		names = append(names, reg.Name)
	}
	return "<preserved: " + strings.Join(names, ",") + ">"
}

type Instruction struct {
	parseutil.StartEndPos

	Opcode Opcode

	Operands []Operand

	// Registers read / written by the instruction that are not explicit
	// operands (e.g., argument registers read by a call).
	ImplicitUses []*Register
	ImplicitDefs []*Register

	// Used by CallPseudo
	Call *CallSite

	// Used by ReturnPseudo
	Return *ReturnSite

	Parent *Block
}

func NewInstruction(
	pos parseutil.StartEndPos,
	opcode Opcode,
	operands ...Operand,
) *Instruction {
	return &Instruction{
		StartEndPos: pos,
		Opcode:      opcode,
		Operands:    operands,
	}
}

func (inst *Instruction) IsPseudo() bool {
	return strings.HasPrefix(string(inst.Opcode), "%")
}

// Returns the first register mask operand, if any.
func (inst *Instruction) PreservedRegisters() (*RegisterMaskOperand, bool) {
	for _, operand := range inst.Operands {
		mask, ok := operand.(RegisterMaskOperand)
		if ok {
			return &mask, true
		}
	}
	return nil, false
}

func (inst *Instruction) String() string {
	operands := make([]string, 0, len(inst.Operands))
	for _, operand := range inst.Operands {
		operands = append(operands, operand.String())
	}

	result := string(inst.Opcode)
	if len(operands) > 0 {
		result += " " + strings.Join(operands, ", ")
	}
	return result
}

type Block struct {
	parseutil.StartEndPos

	Label string

	// Local (internal linkage) symbol used by branch fixups.
	Symbol *Symbol

	Instructions []*Instruction

	// Physical registers live on entry (argument registers for the entry
	// block).
	LiveIns []*Register

	Parent *Function
}

func (block *Block) Append(instructions ...*Instruction) {
	for _, inst := range instructions {
		inst.Parent = block
	}
	block.Instructions = append(block.Instructions, instructions...)
}

// Inserts the instructions before position idx (idx == len(Instructions)
// appends).
func (block *Block) Insert(idx int, instructions ...*Instruction) {
	for _, inst := range instructions {
		inst.Parent = block
	}

	result := make(
		[]*Instruction,
		0,
		len(block.Instructions)+len(instructions))
	result = append(result, block.Instructions[:idx]...)
	result = append(result, instructions...)
	result = append(result, block.Instructions[idx:]...)
	block.Instructions = result
}

func (block *Block) IndexOf(inst *Instruction) int {
	for idx, other := range block.Instructions {
		if other == inst {
			return idx
		}
	}
	return -1
}

// Replaces inst with the replacement sequence (which may be empty).
func (block *Block) Replace(inst *Instruction, replacement ...*Instruction) {
	idx := block.IndexOf(inst)
	if idx < 0 {
		panic("instruction not in block " + block.Label + ": " + inst.String())
	}

	for _, other := range replacement {
		other.Parent = block
	}

	result := make(
		[]*Instruction,
		0,
		len(block.Instructions)+len(replacement)-1)
	result = append(result, block.Instructions[:idx]...)
	result = append(result, replacement...)
	result = append(result, block.Instructions[idx+1:]...)
	block.Instructions = result
	inst.Parent = nil
}

func (block *Block) AddLiveIn(register *Register) {
	for _, reg := range block.LiveIns {
		if reg == register {
			return
		}
	}
	block.LiveIns = append(block.LiveIns, register)
}

type Function struct {
	parseutil.StartEndPos

	Symbol *Symbol

	Parameters []*FormalParameter
	IsVarArg   bool

	Blocks []*Block

	Frame *StackFrame

	// Callee saved registers clobbered by the function body, as reported by
	// the register allocator.
	UsedCalleeSaved []*Register

	// Register holding the structure return pointer for the duration of the
	// function.  Set during formal argument lowering.
	StructReturnValue *Register
}

func NewFunction(pos parseutil.StartEndPos, symbol *Symbol) *Function {
	return &Function{
		StartEndPos: pos,
		Symbol:      symbol,
		Frame:       NewStackFrame(),
	}
}

func (function *Function) Name() string {
	return function.Symbol.Name
}

func (function *Function) AddBlock(block *Block) {
	block.Parent = function
	function.Blocks = append(function.Blocks, block)
}

func (function *Function) EntryBlock() *Block {
	if len(function.Blocks) == 0 {
		panic("function has no blocks: " + function.Name())
	}
	return function.Blocks[0]
}
