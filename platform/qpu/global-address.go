package qpu

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/platform"
)

// Materializes a global symbol's address:
//
//	small data:        addiu dest, $gp, %gprel(sym)
//	static:            lui dest, %hi(sym); addiu dest, dest, %lo(sym)
//	pic (external):    ld dest, %got(sym)($gp); addiu / addu of any offset
//	pic (internal):    ld dest, %got(sym)($gp); addiu dest, dest, %lo(sym)
func LowerGlobalAddress(
	target config.Target,
	pos parseutil.StartEndPos,
	dest *arch.Register,
	symbol arch.SymbolOperand,
) []*arch.Instruction {
	if symbol.Symbol.IsSmallData {
		symbol.Variant = arch.GPRelVariant
		return []*arch.Instruction{
			newInst(pos, Addiu, reg(dest), reg(gp), symbol),
		}
	}

	low := symbol
	low.Variant = arch.HiLoVariant

	if !target.IsPIC() {
		high := symbol
		high.Variant = arch.HiLoVariant
		return []*arch.Instruction{
			newInst(pos, Lui, reg(dest), high),
			newInst(pos, Addiu, reg(dest), reg(dest), low),
		}
	}

	got := symbol
	got.Variant = arch.GotVariant
	if symbol.Symbol.IsExternal() {
		got.Offset = 0
		insts := []*arch.Instruction{
			newInst(pos, Ld, reg(dest), reg(gp), got),
		}
		if symbol.Offset == 0 {
			return insts
		}

		if arch.FitsSigned(symbol.Offset, arch.ImmediateBitSize) {
			return append(
				insts,
				newInst(pos, Addiu, reg(dest), reg(dest), imm(int(symbol.Offset))))
		}

		insts = append(insts, loadImmediate(pos, at, symbol.Offset)...)
		return append(insts, newInst(pos, Addu, reg(dest), reg(dest), reg(at)))
	}

	return []*arch.Instruction{
		newInst(pos, Ld, reg(dest), reg(gp), got),
		newInst(pos, Addiu, reg(dest), reg(dest), low),
	}
}

// Expands every %la pseudo instruction.
type globalAddressExpander struct {
	target config.Target
}

func ExpandGlobalAddresses(target config.Target) platform.MachinePass {
	return &globalAddressExpander{
		target: target,
	}
}

func (expander *globalAddressExpander) Process(function *arch.Function) {
	for _, block := range function.Blocks {
		original := block.Instructions
		for _, inst := range original {
			if inst.Opcode != LoadAddress {
				continue
			}

			if len(inst.Operands) != 2 {
				panic("malformed address load: " + inst.String())
			}

			dest, ok := inst.Operands[0].(arch.RegisterOperand)
			if !ok {
				panic("malformed address load: " + inst.String())
			}

			symbol, ok := inst.Operands[1].(arch.SymbolOperand)
			if !ok {
				panic("malformed address load: " + inst.String())
			}

			block.Replace(
				inst,
				LowerGlobalAddress(
					expander.target,
					inst.StartEndPos,
					dest.Register,
					symbol)...)
		}
	}
}
