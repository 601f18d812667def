package qpu

import (
	"fmt"
	"testing"

	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
)

var noPos = parseutil.StartEndPos{}

func newTestFunction(name string) (*arch.Function, *arch.Block) {
	table := arch.NewSymbolTable()
	function := arch.NewFunction(noPos, table.Define(name, arch.ExternalLinkage))
	block := &arch.Block{
		Label:  "entry",
		Symbol: table.BlockSymbol(name, "entry"),
	}
	function.AddBlock(block)
	return function, block
}

func intArg(size int) arch.ValueDescriptor {
	return arch.ValueDescriptor{
		Kind:      arch.ScalarValue,
		ByteSize:  size,
		Alignment: size,
		IsSigned:  true,
	}
}

func byValArg(size int, alignment int) arch.ValueDescriptor {
	return arch.ValueDescriptor{
		Kind:      arch.AggregateValue,
		ByteSize:  size,
		Alignment: alignment,
		ByValue:   true,
	}
}

func opcodes(insts []*arch.Instruction) []string {
	result := make([]string, 0, len(insts))
	for _, inst := range insts {
		result = append(result, inst.String())
	}
	return result
}

func expectInstructions(t *testing.T, name string, got []*arch.Instruction, want []string) {
	gotStrs := opcodes(got)
	if len(gotStrs) != len(want) {
		t.Errorf("%s: got %d instructions %v, want %v", name, len(gotStrs), gotStrs, want)
		return
	}

	for idx := range want {
		if gotStrs[idx] != want[idx] {
			t.Errorf("%s: instruction %d: got %q, want %q", name, idx, gotStrs[idx], want[idx])
		}
	}
}

func expectPanic(t *testing.T, name string, f func()) {
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestAnalyzeArgumentsThreeInts(t *testing.T) {
	cc := NewCallConvention(config.Default())

	assignments, stackSize := cc.AnalyzeArguments(
		[]arch.ValueDescriptor{intArg(4), intArg(4), intArg(4)})

	if assignments[0].Register != ra2 || assignments[1].Register != ra3 {
		t.Errorf("got %s and %s, want ra2 and ra3", assignments[0], assignments[1])
	}

	if !assignments[2].OnStack || assignments[2].StackOffset != 0 {
		t.Errorf("got %s, want stack offset 0", assignments[2])
	}

	if stackSize != 4 {
		t.Errorf("got stack size %d, want 4", stackSize)
	}
}

func TestAnalyzeArgumentsMixed(t *testing.T) {
	cc := NewCallConvention(config.Default())

	assignments, stackSize := cc.AnalyzeArguments(
		[]arch.ValueDescriptor{
			byValArg(12, 4),
			intArg(4),
			intArg(1),
			intArg(2),
			byValArg(8, 8),
			intArg(4),
		})

	want := []string{
		"aggregate(12) byval -> stack[0:12]",
		"scalar(4) -> $ra2",
		"scalar(1) -> $ra3",
		"scalar(2) -> stack[12:16]",
		"aggregate(8) byval -> stack[16:24]",
		"scalar(4) -> stack[24:28]",
	}

	for idx, assignment := range assignments {
		if assignment.String() != want[idx] {
			t.Errorf("argument %d: got %q, want %q", idx, assignment, want[idx])
		}
	}

	if !assignments[2].Promoted || assignments[1].Promoted {
		t.Errorf("only sub-word scalars are promoted")
	}

	if stackSize != 28 {
		t.Errorf("got stack size %d, want 28", stackSize)
	}
}

// Every argument list of up to 6 arguments drawn from scalars and
// aggregates.
func TestAnalyzeArgumentsProperties(t *testing.T) {
	cc := NewCallConvention(config.Default())
	kinds := []arch.ValueDescriptor{intArg(4), intArg(1), byValArg(12, 4)}

	var check func(args []arch.ValueDescriptor)
	check = func(args []arch.ValueDescriptor) {
		assignments, stackSize := cc.AnalyzeArguments(args)
		name := fmt.Sprintf("%v", args)

		if len(assignments) != len(args) {
			t.Fatalf("%s: got %d assignments", name, len(assignments))
		}

		scalars := 0
		end := 0
		for idx, assignment := range assignments {
			isScalar := args[idx].Kind == arch.ScalarValue
			if isScalar && scalars < len(ArgumentRegisters) {
				if assignment.OnStack ||
					assignment.Register != ArgumentRegisters[scalars] {
					t.Errorf("%s: argument %d: got %s", name, idx, assignment)
				}
				scalars++
				continue
			}

			if isScalar {
				scalars++
			}

			if !assignment.OnStack {
				t.Errorf("%s: argument %d: expected stack, got %s", name, idx, assignment)
				continue
			}

			if assignment.StackOffset%arch.RegisterByteSize != 0 {
				t.Errorf("%s: argument %d: unaligned offset %d", name, idx, assignment.StackOffset)
			}
			if assignment.StackOffset < end {
				t.Errorf("%s: argument %d: offset %d overlaps previous argument", name, idx, assignment.StackOffset)
			}
			end = assignment.StackOffset + assignment.StackSize
		}

		if stackSize != end {
			t.Errorf("%s: got stack size %d, want %d", name, stackSize, end)
		}

		if len(args) == 6 {
			return
		}
		for _, kind := range kinds {
			check(append(append([]arch.ValueDescriptor{}, args...), kind))
		}
	}

	check(nil)
}

func TestAnalyzeArgumentsUnsupported(t *testing.T) {
	cc := NewCallConvention(config.Default())

	expectPanic(t, "64-bit scalar", func() {
		cc.AnalyzeArguments([]arch.ValueDescriptor{intArg(8)})
	})
	expectPanic(t, "3-byte scalar", func() {
		cc.AnalyzeArguments([]arch.ValueDescriptor{intArg(3)})
	})
	expectPanic(t, "empty aggregate", func() {
		cc.AnalyzeArguments([]arch.ValueDescriptor{byValArg(0, 4)})
	})
	expectPanic(t, "partial word aggregate", func() {
		cc.AnalyzeArguments([]arch.ValueDescriptor{byValArg(6, 2)})
	})
	expectPanic(t, "aggregate by reference", func() {
		cc.AnalyzeArguments(
			[]arch.ValueDescriptor{{Kind: arch.AggregateValue, ByteSize: 8}})
	})
	expectPanic(t, "too many return values", func() {
		cc.AnalyzeReturns(
			[]arch.ValueDescriptor{intArg(4), intArg(4), intArg(4)})
	})
}

func TestCallTypeSpecArgTypes(t *testing.T) {
	spec := NewCallConvention(config.Default()).CallTypeSpec()

	tests := []struct {
		name  string
		desc  arch.ValueDescriptor
		valid bool
	}{
		{"word", intArg(4), true},
		{"byte", intArg(1), true},
		{"double word", intArg(8), false},
		{"word multiple aggregate", byValArg(12, 4), true},
		{"partial word aggregate", byValArg(6, 2), false},
		{"single byte aggregate", byValArg(1, 1), false},
		{"over aligned aggregate", byValArg(16, 16), false},
	}

	for _, tt := range tests {
		if spec.IsValidArgType(tt.desc) != tt.valid {
			t.Errorf("%s: expected valid = %v", tt.name, tt.valid)
		}
	}
}

func TestLowerFormalArguments(t *testing.T) {
	function, entry := newTestFunction("f")
	function.IsVarArg = true
	function.Parameters = []*arch.FormalParameter{
		{Name: "a", ValueDescriptor: intArg(4), Destination: s0},
		{Name: "b", ValueDescriptor: intArg(4), Destination: s1},
		{Name: "c", ValueDescriptor: intArg(4), Destination: t0},
		{Name: "d", ValueDescriptor: byValArg(8, 4), Destination: t9},
	}
	entry.Append(newInst(noPos, Ret, reg(lr)))

	NewCallConvention(config.Default()).LowerFormalArguments(function)

	expectInstructions(
		t,
		"formal arguments",
		entry.Instructions,
		[]string{
			"move $s0, $ra2",
			"move $s1, $ra3",
			"ld $t0, %arg.c, 0",
			"addiu $t9, %arg.d, 0",
			"ret $lr",
		})

	if !contains(entry.LiveIns, ra2) || !contains(entry.LiveIns, ra3) {
		t.Errorf("argument registers must be live in: %v", entry.LiveIns)
	}

	anchor := function.Frame.VarArgsAnchor
	if anchor == nil || anchor.Offset() != 12 {
		t.Errorf("got vararg anchor %v, want offset 12", anchor)
	}
}

func TestLowerFormalArgumentsSwappedRegisters(t *testing.T) {
	function, entry := newTestFunction("swap")
	function.Parameters = []*arch.FormalParameter{
		{Name: "a", ValueDescriptor: intArg(4), Destination: ra3},
		{Name: "b", ValueDescriptor: intArg(4), Destination: ra2},
	}

	NewCallConvention(config.Default()).LowerFormalArguments(function)

	expectInstructions(
		t,
		"swap",
		entry.Instructions,
		[]string{
			"move $at, $ra3",
			"move $ra3, $ra2",
			"move $ra2, $at",
		})
}

func TestLowerCallStatic(t *testing.T) {
	function, entry := newTestFunction("caller")
	callee := arch.SymbolOperand{Symbol: &arch.Symbol{Name: "callee"}}
	call := arch.NewInstruction(noPos, arch.CallPseudo)
	call.Call = &arch.CallSite{
		Callee: callee,
		Arguments: []arch.CallArgument{
			{ValueDescriptor: intArg(4), Value: reg(s0)},
			{ValueDescriptor: intArg(4), Value: imm(7)},
			{ValueDescriptor: intArg(4), Value: reg(s1)},
		},
		Results: []arch.CallResult{
			{ValueDescriptor: intArg(4), Destination: s0},
		},
	}
	entry.Append(call)

	cc := NewCallConvention(config.Default())
	cc.LowerCall(entry, call)

	expectInstructions(
		t,
		"static call",
		entry.Instructions,
		[]string{
			"st $s1, %slot.0, 0",
			"move $ra2, $s0",
			"addiu $ra3, $zero, 7",
			"jsub callee, <preserved: lr,fp,s1,s0>",
			"move $s0, $ra0",
		})

	frame := function.Frame
	if !frame.HasCalls || frame.MaxCallFrameSize != 4 {
		t.Errorf("got has calls %v, call frame %d", frame.HasCalls, frame.MaxCallFrameSize)
	}
	if frame.GlobalBaseRestore != nil {
		t.Errorf("static code needs no global base restore slot")
	}
	if frame.Slots[0].Category() != arch.OutgoingArgumentSlot {
		t.Errorf("got %s, want outgoing argument", frame.Slots[0].Category())
	}

	jump := entry.Instructions[3]
	if !contains(jump.ImplicitUses, ra2) || !contains(jump.ImplicitUses, ra3) {
		t.Errorf("call must read the argument registers: %v", jump.ImplicitUses)
	}
}

func TestLowerCallPIC(t *testing.T) {
	target := config.Default()
	target.RelocationModel = config.PICRelocation

	function, entry := newTestFunction("caller")
	frame := function.Frame
	frame.HasVarSizedObjects = true
	NewCallConvention(target).LowerFormalArguments(function)

	callee := arch.SymbolOperand{Symbol: &arch.Symbol{Name: "callee"}}
	call := arch.NewInstruction(noPos, arch.CallPseudo)
	call.Call = &arch.CallSite{
		Callee: callee,
		Arguments: []arch.CallArgument{
			{ValueDescriptor: byValArg(8, 4), Value: reg(s0)},
		},
	}
	entry.Append(call)

	NewCallConvention(target).LowerCall(entry, call)

	expectInstructions(
		t,
		"pic call",
		entry.Instructions,
		[]string{
			"ld $at, $s0, 0",
			"st $at, %slot.2, 0",
			"ld $at, $s0, 4",
			"st $at, %slot.2, 4",
			"ld $t9, $gp, %call16(callee)",
			"jalr $t9, <preserved: lr,fp,s1,s0>",
		})

	if frame.GlobalBaseRestore == nil || frame.GlobalBaseRestore.Offset() != 8 {
		t.Errorf("got global base restore slot %v, want offset 8", frame.GlobalBaseRestore)
	}
	if frame.DynamicAllocaAnchor == nil || frame.DynamicAllocaAnchor.Offset() != 8 {
		t.Errorf("got dynamic alloca anchor %v, want offset 8", frame.DynamicAllocaAnchor)
	}
}

func TestLowerCallIndirect(t *testing.T) {
	function, entry := newTestFunction("caller")
	call := arch.NewInstruction(noPos, arch.CallPseudo)
	call.Call = &arch.CallSite{
		// The callee address lives in an argument register.
		Callee: reg(ra2),
		Arguments: []arch.CallArgument{
			{ValueDescriptor: intArg(4), Value: reg(s0)},
		},
	}
	entry.Append(call)

	NewCallConvention(config.Default()).LowerCall(entry, call)

	expectInstructions(
		t,
		"indirect call",
		entry.Instructions,
		[]string{
			"move $t9, $ra2",
			"move $ra2, $s0",
			"jalr $t9, <preserved: lr,fp,s1,s0>",
		})

	if function.Frame.MaxCallFrameSize != 0 {
		t.Errorf("got call frame %d, want 0", function.Frame.MaxCallFrameSize)
	}
}

func TestLowerReturn(t *testing.T) {
	function, entry := newTestFunction("sret")
	function.Parameters = []*arch.FormalParameter{
		{
			Name: "result",
			ValueDescriptor: arch.ValueDescriptor{
				Kind:         arch.ScalarValue,
				ByteSize:     4,
				StructReturn: true,
			},
			Destination: s0,
		},
	}

	ret := arch.NewInstruction(noPos, arch.ReturnPseudo)
	ret.Return = &arch.ReturnSite{}
	entry.Append(ret)

	cc := NewCallConvention(config.Default())
	cc.LowerFormalArguments(function)
	cc.LowerReturn(entry, ret)

	expectInstructions(
		t,
		"sret",
		entry.Instructions,
		[]string{
			"move $s0, $ra2",
			"move $ra0, $s0",
			"ret $lr",
		})

	function, entry = newTestFunction("pair")
	ret = arch.NewInstruction(noPos, arch.ReturnPseudo)
	ret.Return = &arch.ReturnSite{
		Values: []arch.CallArgument{
			{ValueDescriptor: intArg(4), Value: reg(ra1)},
			{ValueDescriptor: intArg(2), Value: imm(100000)},
		},
	}
	entry.Append(ret)

	cc.LowerReturn(entry, ret)

	expectInstructions(
		t,
		"pair",
		entry.Instructions,
		[]string{
			"move $ra0, $ra1",
			"lui $ra1, 1",
			"ori $ra1, $ra1, 34464",
			"ret $lr",
		})
}
