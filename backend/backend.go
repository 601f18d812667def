package backend

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/backend/util"
	"github.com/simonjhall/llvm-qpu/platform"
)

// The unit's encoded segment.  Unpaired lists the high half relocations
// left without a low half partner (non-fatal).
type Output struct {
	*platform.Segment

	Unpaired []platform.Relocation
}

func machinePasses(
	targetPlatform platform.Platform,
) [][]util.Pass[*arch.Function] {
	passes := [][]util.Pass[*arch.Function]{}
	for _, pass := range targetPlatform.MachinePasses() {
		passes = append(passes, []util.Pass[*arch.Function]{pass})
	}
	return passes
}

// Lowers the function up to (and including) stack slot resolution.
func LowerFunction(
	function *arch.Function,
	targetPlatform platform.Platform,
	emitter *parseutil.Emitter,
) {
	passes := [][]util.Pass[*arch.Function]{
		{ValidateSignatures(emitter, targetPlatform)},
		{LowerCallConvention(targetPlatform)},
		{FinalizeFrame(targetPlatform)},
	}
	passes = append(passes, machinePasses(targetPlatform)...)
	passes = append(
		passes,
		[]util.Pass[*arch.Function]{ResolveStackSlots(emitter, targetPlatform)})

	util.Process(function, passes, emitter.HasErrors)
}

// Lowers and encodes every function (in parallel), lays the functions and
// data entries out in unit order, and converts the fixups into paired /
// ordered relocations.  Returns nil if any function failed.
func Compile(
	unit *arch.CompilationUnit,
	targetPlatform platform.Platform,
	emitter *parseutil.Emitter,
) *Output {
	validateUnit(unit, emitter)
	if emitter.HasErrors() {
		return nil
	}

	functionEmitters := make([]*parseutil.Emitter, len(unit.Functions))
	codes := make([]*FunctionCode, len(unit.Functions))
	for idx := range unit.Functions {
		functionEmitters[idx] = &parseutil.Emitter{}
		codes[idx] = &FunctionCode{}
	}

	util.ParallelProcess(
		unit.Functions,
		func(idx int, function *arch.Function) {
			functionEmitter := functionEmitters[idx]

			LowerFunction(function, targetPlatform, functionEmitter)
			if functionEmitter.HasErrors() {
				return
			}

			EncodeFunction(
				functionEmitter,
				targetPlatform,
				codes[idx]).Process(function)
		})

	for _, functionEmitter := range functionEmitters {
		emitter.EmitErrors(functionEmitter.Errors()...)
	}

	if emitter.HasErrors() {
		return nil
	}

	segment := platform.NewSegment()
	for _, code := range codes {
		base := segment.Append(code.Bytes, code.Fixups)
		for symbol, offset := range code.Labels {
			segment.Labels[symbol] = base + offset
		}
	}

	encodeData(unit, targetPlatform.InstructionEncoder(), segment)

	return relocate(segment, targetPlatform.RelocationWriter(), emitter)
}

func validateUnit(unit *arch.CompilationUnit, emitter *parseutil.Emitter) {
	defined := map[*arch.Symbol]parseutil.Location{}
	define := func(symbol *arch.Symbol, loc parseutil.Location) {
		prev, ok := defined[symbol]
		if ok {
			emitter.Emit(
				loc,
				"(%s) previously defined at (%s)",
				symbol.Name,
				prev)
			return
		}
		defined[symbol] = loc
	}

	for _, function := range unit.Functions {
		define(function.Symbol, function.Loc())
	}

	for _, entry := range unit.Data {
		define(entry.Symbol, entry.Loc())
	}
}

func encodeData(
	unit *arch.CompilationUnit,
	encoder platform.InstructionEncoder,
	segment *platform.Segment,
) {
	byteOrder := encoder.ByteOrder()
	for _, entry := range unit.Data {
		segment.Labels[entry.Symbol] = len(segment.Bytes)

		word := make([]byte, arch.RegisterByteSize)
		for _, operand := range entry.Words {
			var value uint32
			var fixups []platform.Fixup
			switch data := operand.(type) {
			case arch.ImmediateOperand:
				value = uint32(data.Value)
			case arch.SymbolOperand:
				value, fixups = encoder.EncodeData(data)
			default:
				panic("should never happen")
			}

			byteOrder.PutUint32(word, value)
			segment.Append(word, fixups)
		}
	}
}

func relocate(
	segment *platform.Segment,
	writer platform.RelocationWriter,
	emitter *parseutil.Emitter,
) *Output {
	relocations := make([]platform.Relocation, 0, len(segment.Fixups))
	for _, fixup := range segment.Fixups {
		relocationType, err := writer.RelocationType(fixup)
		if err != nil {
			emitter.EmitErrors(err)
			continue
		}

		relocations = append(
			relocations,
			platform.Relocation{
				Offset: fixup.Offset,
				Type:   relocationType,
				Symbol: fixup.Symbol,
				Addend: fixup.Addend,
			})
	}

	if emitter.HasErrors() {
		return nil
	}

	// The writer expects descending offset order.
	descending := make([]platform.Relocation, 0, len(relocations))
	for idx := len(relocations) - 1; idx >= 0; idx-- {
		descending = append(descending, relocations[idx])
	}

	sorted, unpaired := writer.SortRelocations(descending)
	segment.Relocations = sorted

	return &Output{
		Segment:  segment,
		Unpaired: unpaired,
	}
}
