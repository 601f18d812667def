package backend

import (
	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/backend/util"
	"github.com/simonjhall/llvm-qpu/platform"
)

// Replaces the formal parameter list, %call and %return with the call
// convention's concrete sequences.
type callConventionLowerer struct {
	platform.CallConvention
}

func LowerCallConvention(
	targetPlatform platform.Platform,
) util.Pass[*arch.Function] {
	return &callConventionLowerer{
		CallConvention: targetPlatform.CallConvention(),
	}
}

func (lowerer *callConventionLowerer) Process(function *arch.Function) {
	lowerer.LowerFormalArguments(function)

	for _, block := range function.Blocks {
		// Lowering rewrites block.Instructions.
		original := block.Instructions
		for _, inst := range original {
			switch inst.Opcode {
			case arch.CallPseudo:
				lowerer.LowerCall(block, inst)
			case arch.ReturnPseudo:
				lowerer.LowerReturn(block, inst)
			}
		}
	}
}
