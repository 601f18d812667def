package qpu

import (
	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/platform"
)

// Deletes unconditional jumps to the immediately following block.
type uselessJumpEliminator struct {
	target config.Target

	// Number of deleted jumps (for debugging / testing).
	Deleted int
}

func DeleteUselessJumps(target config.Target) platform.MachinePass {
	return &uselessJumpEliminator{
		target: target,
	}
}

func (eliminator *uselessJumpEliminator) Process(function *arch.Function) {
	if !eliminator.target.DeleteUselessJumps {
		return
	}

	for idx := 0; idx+1 < len(function.Blocks); idx++ {
		block := function.Blocks[idx]
		if len(block.Instructions) == 0 {
			continue
		}

		last := block.Instructions[len(block.Instructions)-1]
		if last.Opcode != Jmp || len(last.Operands) != 1 {
			continue
		}

		target, ok := last.Operands[0].(arch.BlockOperand)
		if !ok || target.Block != function.Blocks[idx+1] {
			continue
		}

		block.Replace(last)
		eliminator.Deleted++
	}
}
