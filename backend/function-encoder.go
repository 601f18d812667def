package backend

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/backend/util"
	"github.com/simonjhall/llvm-qpu/platform"
)

// A function's machine code.  Label and fixup offsets are relative to the
// start of the function.
type FunctionCode struct {
	Function *arch.Function

	Bytes  []byte
	Labels map[*arch.Symbol]int
	Fixups []platform.Fixup
}

type functionEncoder struct {
	*parseutil.Emitter
	platform.InstructionEncoder

	code *FunctionCode
}

func EncodeFunction(
	emitter *parseutil.Emitter,
	targetPlatform platform.Platform,
	code *FunctionCode,
) util.Pass[*arch.Function] {
	return &functionEncoder{
		Emitter:            emitter,
		InstructionEncoder: targetPlatform.InstructionEncoder(),
		code:               code,
	}
}

func (encoder *functionEncoder) Process(function *arch.Function) {
	code := encoder.code
	code.Function = function
	code.Labels = map[*arch.Symbol]int{
		function.Symbol: 0,
	}

	byteOrder := encoder.ByteOrder()
	word := make([]byte, arch.InstructionByteSize)
	for _, block := range function.Blocks {
		if block.Symbol != nil {
			code.Labels[block.Symbol] = len(code.Bytes)
		}

		for _, inst := range block.Instructions {
			value, fixups, err := encoder.Encode(inst)
			if err != nil {
				encoder.EmitErrors(err)
				continue
			}

			offset := len(code.Bytes)
			for _, fixup := range fixups {
				fixup.Offset += offset
				code.Fixups = append(code.Fixups, fixup)
			}

			byteOrder.PutUint32(word, value)
			code.Bytes = append(code.Bytes, word...)
		}
	}
}
