package qpu

import (
	"fmt"

	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/platform"
)

const (
	// Stack space reserved for register passed arguments.  The QPU ABI
	// reserves none; the first stack argument lives at offset 0.
	ArgumentShadowSize = 0

	varArgsAnchorName     = "%varargs"
	globalBaseRestoreName = "%global-base"
	dynamicAllocaName     = "%dynamic-alloca"
)

type callTypeSpec struct{}

func (callTypeSpec) IsValidArgType(desc arch.ValueDescriptor) bool {
	if platform.IsRegisterSizedScalar(desc) {
		return true
	}
	return platform.IsByValueAggregate(desc) &&
		desc.ByteSize%arch.RegisterByteSize == 0 &&
		desc.Alignment <= arch.StackFrameAlignment
}

func (callTypeSpec) IsValidReturnType(desc arch.ValueDescriptor) bool {
	return platform.IsRegisterSizedScalar(desc) && !desc.StructReturn
}

func (callTypeSpec) MaxReturnValues() int {
	return len(ReturnRegisters)
}

// Calling convention:
//
//   - The first two register sized (or smaller, promoted) scalar arguments
//     are passed in $ra2 and $ra3, in order.
//   - Every other argument is passed on the stack, in argument order, at
//     word aligned, strictly increasing offsets starting at offset 0 of the
//     caller's reserved call frame.
//   - Aggregates passed by value always go on the stack; the caller copies
//     them into the outgoing argument area word by word, so their size must
//     be a multiple of the word size.
//   - Up to two scalars are returned in $ra0 and $ra1.  Structures are
//     returned through a hidden pointer parameter, which is handed back in
//     $ra0.
//   - $lr, $fp, $s1 and $s0 are callee saved.  $t9 holds the callee address
//     for indirect and position independent calls.
type CallConvention struct {
	target config.Target
}

func NewCallConvention(target config.Target) *CallConvention {
	return &CallConvention{
		target: target,
	}
}

func (CallConvention) CallTypeSpec() platform.CallTypeSpec {
	return callTypeSpec{}
}

func (CallConvention) AnalyzeArguments(
	args []arch.ValueDescriptor,
) (
	[]arch.Assignment,
	int,
) {
	assignments := make([]arch.Assignment, 0, len(args))
	nextRegister := 0
	stackOffset := ArgumentShadowSize

	for _, desc := range args {
		assignment := arch.Assignment{
			ValueDescriptor: desc,
		}

		if platform.IsRegisterSizedScalar(desc) {
			assignment.Promoted = desc.ByteSize < arch.RegisterByteSize

			if nextRegister < len(ArgumentRegisters) {
				assignment.Register = ArgumentRegisters[nextRegister]
				nextRegister++
			} else {
				assignment.OnStack = true
				assignment.StackOffset = stackOffset
				assignment.StackSize = arch.RegisterByteSize
				stackOffset += arch.RegisterByteSize
			}
		} else if platform.IsByValueAggregate(desc) {
			alignment := desc.Alignment
			if alignment < arch.RegisterByteSize {
				alignment = arch.RegisterByteSize
			}
			if alignment > arch.StackFrameAlignment {
				panic(fmt.Sprintf("unsupported argument alignment: %s", desc))
			}
			if desc.ByteSize%arch.RegisterByteSize != 0 {
				panic(fmt.Sprintf("unsupported argument size: %s", desc))
			}

			stackOffset = arch.AlignTo(stackOffset, alignment)
			assignment.OnStack = true
			assignment.StackOffset = stackOffset
			assignment.StackSize = arch.AlignedSize(desc.ByteSize)
			stackOffset += assignment.StackSize
		} else {
			panic(fmt.Sprintf("unsupported argument: %s", desc))
		}

		assignments = append(assignments, assignment)
	}

	return assignments, stackOffset
}

func (CallConvention) AnalyzeReturns(
	values []arch.ValueDescriptor,
) []arch.Assignment {
	if len(values) > len(ReturnRegisters) {
		panic(fmt.Sprintf(
			"cannot return %d values (at most %d)",
			len(values),
			len(ReturnRegisters)))
	}

	assignments := make([]arch.Assignment, 0, len(values))
	for idx, desc := range values {
		if !platform.IsRegisterSizedScalar(desc) {
			panic(fmt.Sprintf("unsupported return value: %s", desc))
		}

		assignments = append(
			assignments,
			arch.Assignment{
				ValueDescriptor: desc,
				Register:        ReturnRegisters[idx],
				Promoted:        desc.ByteSize < arch.RegisterByteSize,
			})
	}

	return assignments
}

func (cc CallConvention) LowerFormalArguments(function *arch.Function) {
	descs := make([]arch.ValueDescriptor, 0, len(function.Parameters))
	for _, param := range function.Parameters {
		descs = append(descs, param.ValueDescriptor)
	}

	assignments, stackSize := cc.AnalyzeArguments(descs)

	frame := function.Frame
	entry := function.EntryBlock()

	moves := []registerMove{}
	loads := []*arch.Instruction{}
	for idx, param := range function.Parameters {
		assignment := assignments[idx]
		pos := param.StartEndPos

		if param.StructReturn {
			if idx != 0 {
				panic("structure return pointer must be the first parameter")
			}
			if param.Destination == nil {
				panic("structure return pointer must be retained")
			}
			function.StructReturnValue = param.Destination
		}

		if !assignment.OnStack {
			entry.AddLiveIn(assignment.Register)
			if param.Destination != nil {
				moves = append(
					moves,
					registerMove{
						dest: param.Destination,
						src:  assignment.Register,
					})
			}
			continue
		}

		name := ""
		if param.Name != "" {
			name = "%arg." + param.Name
		}
		argSlot := frame.NewFixedSlot(
			arch.IncomingArgumentSlot,
			name,
			assignment.StackSize,
			assignment.StackOffset)

		if param.Destination == nil {
			continue
		}

		if param.ByValue {
			// The callee accesses the caller's copy in place.
			loads = append(
				loads,
				newInst(pos, Addiu, reg(param.Destination), slot(argSlot), imm(0)))
		} else {
			loads = append(
				loads,
				newInst(pos, Ld, reg(param.Destination), slot(argSlot), imm(0)))
		}
	}

	if function.IsVarArg {
		frame.VarArgsAnchor = frame.NewFixedSlot(
			arch.IncomingArgumentSlot,
			varArgsAnchorName,
			arch.RegisterByteSize,
			stackSize)
	}

	if frame.HasVarSizedObjects && frame.DynamicAllocaAnchor == nil {
		frame.NewFixedSlot(
			arch.DynamicAllocaSlot,
			dynamicAllocaName,
			arch.RegisterByteSize,
			0)
	}

	// Argument registers must be copied out before any stack argument load
	// could clobber them.
	insts := sequenceMoves(function.StartEndPos, moves)
	insts = append(insts, loads...)
	entry.Insert(0, insts...)
}

func (cc CallConvention) LowerCall(block *arch.Block, call *arch.Instruction) {
	site := call.Call
	if call.Opcode != arch.CallPseudo || site == nil {
		panic("not an abstract call: " + call.String())
	}

	pos := call.StartEndPos
	function := block.Parent
	frame := function.Frame

	descs := make([]arch.ValueDescriptor, 0, len(site.Arguments))
	for _, arg := range site.Arguments {
		descs = append(descs, arg.ValueDescriptor)
	}

	assignments, nextStackOffset := cc.AnalyzeArguments(descs)

	if cc.target.UsesGlobalBaseRestore() && frame.GlobalBaseRestore == nil {
		frame.NewFixedSlot(
			arch.GlobalBaseRestoreSlot,
			globalBaseRestoreName,
			arch.RegisterByteSize,
			0)
	}

	// The global base restore slot and the dynamic alloca anchor sit right
	// above the (aligned) reserved call frame.
	if frame.UpdateMaxCallFrameSize(nextStackOffset) {
		anchorOffset := arch.AlignTo(nextStackOffset, arch.StackFrameAlignment)
		if frame.GlobalBaseRestore != nil {
			frame.SetFixedSlotOffset(frame.GlobalBaseRestore, anchorOffset)
		}
		if frame.DynamicAllocaAnchor != nil {
			frame.SetFixedSlotOffset(frame.DynamicAllocaAnchor, anchorOffset)
		}
	}

	frame.HasCalls = true

	stores := []*arch.Instruction{}
	moves := []registerMove{}
	immediates := []*arch.Instruction{}
	usedRegisters := []*arch.Register{}
	for idx, arg := range site.Arguments {
		assignment := assignments[idx]

		if !assignment.OnStack {
			usedRegisters = append(usedRegisters, assignment.Register)
			switch value := arg.Value.(type) {
			case arch.RegisterOperand:
				moves = append(
					moves,
					registerMove{
						dest: assignment.Register,
						src:  value.Register,
					})
			case arch.ImmediateOperand:
				immediates = append(
					immediates,
					loadImmediate(pos, assignment.Register, value.Value)...)
			default:
				panic("unsupported argument value: " + arg.Value.String())
			}
			continue
		}

		argSlot := frame.NewFixedSlot(
			arch.OutgoingArgumentSlot,
			"",
			assignment.StackSize,
			assignment.StackOffset)

		if arg.ByValue {
			src, ok := arg.Value.(arch.RegisterOperand)
			if !ok {
				panic("by value argument must be passed by address register")
			}
			stores = append(
				stores,
				copyAggregate(pos, src.Register, argSlot, assignment.StackSize)...)
			continue
		}

		switch value := arg.Value.(type) {
		case arch.RegisterOperand:
			stores = append(
				stores,
				newInst(pos, St, value, slot(argSlot), imm(0)))
		case arch.ImmediateOperand:
			stores = append(stores, loadImmediate(pos, at, value.Value)...)
			stores = append(stores, newInst(pos, St, reg(at), slot(argSlot), imm(0)))
		default:
			panic("unsupported argument value: " + arg.Value.String())
		}
	}

	preserved := arch.RegisterMaskOperand{Preserved: CalleeSavedRegisters}

	var jump *arch.Instruction
	var loadCallee *arch.Instruction
	switch callee := site.Callee.(type) {
	case arch.SymbolOperand:
		if cc.target.IsPIC() {
			callee.Variant = arch.GotCallVariant
			loadCallee = newInst(pos, Ld, reg(t9), reg(gp), callee)
			jump = newInst(pos, Jalr, reg(t9), preserved)
			usedRegisters = append(usedRegisters, t9, gp)
		} else {
			jump = newInst(pos, Jsub, callee, preserved)
		}
	case arch.RegisterOperand:
		moves = append(
			moves,
			registerMove{
				dest: t9,
				src:  callee.Register,
			})
		jump = newInst(pos, Jalr, reg(t9), preserved)
		usedRegisters = append(usedRegisters, t9)
	default:
		panic("unsupported callee: " + site.Callee.String())
	}

	jump.ImplicitUses = usedRegisters
	jump.ImplicitDefs = append([]*arch.Register{lr}, ReturnRegisters...)

	// Stack arguments are stored before the argument registers are
	// overwritten.
	insts := stores
	insts = append(insts, sequenceMoves(pos, moves)...)
	insts = append(insts, immediates...)
	if loadCallee != nil {
		insts = append(insts, loadCallee)
	}
	insts = append(insts, jump)

	resultDescs := make([]arch.ValueDescriptor, 0, len(site.Results))
	for _, result := range site.Results {
		resultDescs = append(resultDescs, result.ValueDescriptor)
	}

	resultMoves := []registerMove{}
	for idx, assignment := range cc.AnalyzeReturns(resultDescs) {
		dest := site.Results[idx].Destination
		if dest == nil {
			continue
		}
		resultMoves = append(
			resultMoves,
			registerMove{
				dest: dest,
				src:  assignment.Register,
			})
	}
	insts = append(insts, sequenceMoves(pos, resultMoves)...)

	block.Replace(call, insts...)
}

func (cc CallConvention) LowerReturn(block *arch.Block, ret *arch.Instruction) {
	site := ret.Return
	if ret.Opcode != arch.ReturnPseudo || site == nil {
		panic("not an abstract return: " + ret.String())
	}

	pos := ret.StartEndPos
	function := block.Parent

	descs := make([]arch.ValueDescriptor, 0, len(site.Values))
	for _, value := range site.Values {
		descs = append(descs, value.ValueDescriptor)
	}

	moves := []registerMove{}
	immediates := []*arch.Instruction{}
	usedRegisters := []*arch.Register{}
	for idx, assignment := range cc.AnalyzeReturns(descs) {
		usedRegisters = append(usedRegisters, assignment.Register)
		switch value := site.Values[idx].Value.(type) {
		case arch.RegisterOperand:
			moves = append(
				moves,
				registerMove{
					dest: assignment.Register,
					src:  value.Register,
				})
		case arch.ImmediateOperand:
			immediates = append(
				immediates,
				loadImmediate(pos, assignment.Register, value.Value)...)
		default:
			panic("unsupported return value: " + site.Values[idx].Value.String())
		}
	}

	if function.StructReturnValue != nil {
		if len(site.Values) > 0 {
			panic("structure returning function cannot return values")
		}
		moves = append(
			moves,
			registerMove{
				dest: StructReturnRegister,
				src:  function.StructReturnValue,
			})
		usedRegisters = append(usedRegisters, StructReturnRegister)
	}

	retInst := newInst(pos, Ret, reg(lr))
	retInst.ImplicitUses = usedRegisters

	insts := sequenceMoves(pos, moves)
	insts = append(insts, immediates...)
	insts = append(insts, retInst)

	block.Replace(ret, insts...)
}

// Word by word copy of a by-value aggregate into its outgoing argument
// slot, through the assembler temporary.
func copyAggregate(
	pos parseutil.StartEndPos,
	src *arch.Register,
	dest *arch.StackSlot,
	size int,
) []*arch.Instruction {
	insts := make([]*arch.Instruction, 0, 2*arch.NumRegisters(size))
	for offset := 0; offset < size; offset += arch.RegisterByteSize {
		insts = append(
			insts,
			newInst(pos, Ld, reg(at), reg(src), imm(offset)),
			newInst(pos, St, reg(at), slot(dest), imm(offset)))
	}
	return insts
}

type registerMove struct {
	dest *arch.Register
	src  *arch.Register
}

// Sequences a set of parallel register copies.  Cycles are broken through
// the assembler temporary.
func sequenceMoves(
	pos parseutil.StartEndPos,
	moves []registerMove,
) []*arch.Instruction {
	pending := make([]registerMove, 0, len(moves))
	dests := map[*arch.Register]struct{}{}
	for _, m := range moves {
		_, ok := dests[m.dest]
		if ok {
			panic("multiple copies into " + m.dest.Name)
		}
		dests[m.dest] = struct{}{}

		if m.dest != m.src {
			pending = append(pending, m)
		}
	}

	result := make([]*arch.Instruction, 0, len(pending)+1)
	for len(pending) > 0 {
		ready := -1
		for idx, m := range pending {
			isSource := false
			for otherIdx, other := range pending {
				if otherIdx != idx && other.src == m.dest {
					isSource = true
					break
				}
			}

			if !isSource {
				ready = idx
				break
			}
		}

		if ready < 0 {
			// Every destination is still needed as a source.  Park the first
			// destination's current value in the assembler temporary.
			saved := pending[0].dest
			result = append(result, move(pos, at, saved))
			for idx := range pending {
				if pending[idx].src == saved {
					pending[idx].src = at
				}
			}
			continue
		}

		m := pending[ready]
		result = append(result, move(pos, m.dest, m.src))
		pending = append(pending[:ready], pending[ready+1:]...)
	}

	return result
}
