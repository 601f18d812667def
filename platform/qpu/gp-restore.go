package qpu

import (
	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/platform"
)

// Reloads the global base register from its restore slot after every
// indirect call, since position independent callees may clobber it.
type globalBaseRestorer struct {
	target config.Target
}

func RestoreGlobalBase(target config.Target) platform.MachinePass {
	return &globalBaseRestorer{
		target: target,
	}
}

func (restorer *globalBaseRestorer) Process(function *arch.Function) {
	if !restorer.target.UsesGlobalBaseRestore() {
		return
	}

	restoreSlot := function.Frame.GlobalBaseRestore
	if restoreSlot == nil {
		return
	}

	for _, block := range function.Blocks {
		result := make([]*arch.Instruction, 0, len(block.Instructions))
		for _, inst := range block.Instructions {
			result = append(result, inst)
			if inst.Opcode != Jalr {
				continue
			}

			reload := newInst(inst.StartEndPos, Ld, reg(gp), slot(restoreSlot), imm(0))
			reload.Parent = block
			result = append(result, reload)
		}
		block.Instructions = result
	}
}
