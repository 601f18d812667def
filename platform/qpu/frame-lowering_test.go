package qpu

import (
	"testing"

	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
)

// Runs call convention lowering, frame finalization, prologue / epilogue
// insertion and slot resolution.
func lowerFrame(
	t *testing.T,
	target config.Target,
	function *arch.Function,
) *parseutil.Emitter {
	cc := NewCallConvention(target)
	lowering := NewFrameLowering(target)

	cc.LowerFormalArguments(function)
	for _, block := range function.Blocks {
		original := block.Instructions
		for _, inst := range original {
			switch inst.Opcode {
			case arch.CallPseudo:
				cc.LowerCall(block, inst)
			case arch.ReturnPseudo:
				cc.LowerReturn(block, inst)
			}
		}
	}

	lowering.FinalizeFrame(function)
	lowering.EmitPrologue(function)
	lowering.EmitEpilogue(function)

	emitter := &parseutil.Emitter{}
	lowering.ResolveStackSlots(function, emitter)
	return emitter
}

func newReturn() *arch.Instruction {
	ret := arch.NewInstruction(noPos, arch.ReturnPseudo)
	ret.Return = &arch.ReturnSite{}
	return ret
}

func TestIncomingArgumentAtCallerOffset16(t *testing.T) {
	function, entry := newTestFunction("f")
	for idx := 0; idx < 7; idx++ {
		function.Parameters = append(
			function.Parameters,
			&arch.FormalParameter{ValueDescriptor: intArg(4)})
	}
	function.Parameters[6].Destination = s0
	function.UsedCalleeSaved = []*arch.Register{s0}
	function.Frame.NewLocalSlot("buf", 12, 4)
	entry.Append(newReturn())

	emitter := lowerFrame(t, config.Default(), function)
	if emitter.HasErrors() {
		t.Fatalf("unexpected errors: %v", emitter.Errors())
	}

	// callee saved s0 (4) + buf (12) = 16
	if function.Frame.TotalFrameSize != 16 {
		t.Fatalf("got frame size %d, want 16", function.Frame.TotalFrameSize)
	}

	expectInstructions(
		t,
		"incoming argument",
		entry.Instructions,
		[]string{
			"addiu $sp, $sp, -16",
			"st $s0, $sp, 12",
			"ld $s0, $sp, 32",
			"ld $s0, $sp, 12",
			"addiu $at, $zero, 16",
			"addu $sp, $sp, $at",
			"ret $lr",
		})
}

func TestLargeStackAdjustment(t *testing.T) {
	function, entry := newTestFunction("big")
	function.Frame.NewLocalSlot("buf", 48, 8)
	entry.Append(newReturn())

	emitter := lowerFrame(t, config.Default(), function)
	if emitter.HasErrors() {
		t.Fatalf("unexpected errors: %v", emitter.Errors())
	}

	expectInstructions(
		t,
		"large frame",
		entry.Instructions,
		[]string{
			"addiu $at, $zero, -48",
			"addu $sp, $sp, $at",
			"addiu $at, $zero, 48",
			"addu $sp, $sp, $at",
			"ret $lr",
		})
}

func TestSmallStackAdjustment(t *testing.T) {
	function, entry := newTestFunction("small")
	buf := function.Frame.NewLocalSlot("buf", 8, 4)
	entry.Append(
		newInst(noPos, St, reg(ra2), slot(buf), imm(4)),
		newReturn())

	emitter := lowerFrame(t, config.Default(), function)
	if emitter.HasErrors() {
		t.Fatalf("unexpected errors: %v", emitter.Errors())
	}

	expectInstructions(
		t,
		"small frame",
		entry.Instructions,
		[]string{
			"addiu $sp, $sp, -8",
			"st $ra2, $sp, 4",
			"addiu $sp, $sp, 8",
			"ret $lr",
		})

	if function.Frame.Phase() != arch.SlotsResolved {
		t.Errorf("got phase %s", function.Frame.Phase())
	}
}

func TestEmptyFrame(t *testing.T) {
	function, entry := newTestFunction("leaf")
	entry.Append(newReturn())

	lowerFrame(t, config.Default(), function)

	expectInstructions(t, "leaf", entry.Instructions, []string{"ret $lr"})
}

func TestFramePointerAndCalls(t *testing.T) {
	target := config.Default()
	target.DisableFramePointerElimination = true

	function, entry := newTestFunction("caller")
	local := function.Frame.NewLocalSlot("x", 4, 4)
	call := arch.NewInstruction(noPos, arch.CallPseudo)
	call.Call = &arch.CallSite{
		Callee: arch.SymbolOperand{Symbol: &arch.Symbol{Name: "g"}},
	}
	entry.Append(
		newInst(noPos, Ld, reg(s0), slot(local), imm(0)),
		call,
		newReturn())

	emitter := lowerFrame(t, target, function)
	if emitter.HasErrors() {
		t.Fatalf("unexpected errors: %v", emitter.Errors())
	}

	// lr (-4), fp (-8), x (-12) -> 16
	if function.Frame.TotalFrameSize != 16 {
		t.Fatalf("got frame size %d, want 16", function.Frame.TotalFrameSize)
	}

	expectInstructions(
		t,
		"frame pointer",
		entry.Instructions,
		[]string{
			"addiu $sp, $sp, -16",
			"st $lr, $sp, 12",
			"st $fp, $sp, 8",
			"ori $fp, $sp, 0",
			"ld $s0, $fp, 4",
			"jsub g, <preserved: lr,fp,s1,s0>",
			"ori $sp, $fp, 0",
			"ld $fp, $sp, 8",
			"ld $lr, $sp, 12",
			"addiu $at, $zero, 16",
			"addu $sp, $sp, $at",
			"ret $lr",
		})
}

func TestGlobalBaseSaveInPrologue(t *testing.T) {
	target := config.Default()
	target.RelocationModel = config.PICRelocation

	function, entry := newTestFunction("pic")
	call := arch.NewInstruction(noPos, arch.CallPseudo)
	call.Call = &arch.CallSite{
		Callee: arch.SymbolOperand{Symbol: &arch.Symbol{Name: "g"}},
	}
	entry.Append(call, newReturn())

	lowerFrame(t, target, function)

	// gp slot at 0 -> outgoing area 4 -> 8, lr -> 8: total 16
	if function.Frame.TotalFrameSize != 16 {
		t.Fatalf("got frame size %d, want 16", function.Frame.TotalFrameSize)
	}

	want := []string{
		"addiu $sp, $sp, -16",
		"st $lr, $sp, 12",
		"st $gp, $sp, 0",
	}
	expectInstructions(t, "pic prologue", entry.Instructions[:3], want)
}

func TestStoreGlobalBaseLargeOffset(t *testing.T) {
	expectInstructions(
		t,
		"large offset",
		storeGlobalBase(noPos, 0x12345),
		[]string{
			"lui $at, 1",
			"addu $at, $at, $sp",
			"st $gp, $at, 9029",
		})
}

func TestStoreGlobalBaseLargeOffsetEncoding(t *testing.T) {
	tests := []struct {
		offset int
		want   []uint32
	}{
		{
			offset: 0x12345,
			want:   []uint32{0x68200001, 0x08216800, 0x79612345},
		},
		{
			// Low half has bit 15 set, so it is negative.
			offset: 0x18000,
			want:   []uint32{0x68200002, 0x08216800, 0x79618000},
		},
	}

	encoder := NewEncoder(config.Default())
	for _, tt := range tests {
		insts := storeGlobalBase(noPos, tt.offset)
		if len(insts) != len(tt.want) {
			t.Fatalf("%#x: got %d instructions, want %d", tt.offset, len(insts), len(tt.want))
		}

		for idx, inst := range insts {
			word, _, err := encoder.Encode(inst)
			if err != nil {
				t.Errorf("%#x: unexpected error: %v", tt.offset, err)
				continue
			}
			if word != tt.want[idx] {
				t.Errorf("%#x: %s: got %08x, want %08x", tt.offset, inst, word, tt.want[idx])
			}
		}
	}
}

func TestStackOffsetOverflow(t *testing.T) {
	function, entry := newTestFunction("huge")
	for idx := 0; idx < 3; idx++ {
		function.Parameters = append(
			function.Parameters,
			&arch.FormalParameter{ValueDescriptor: intArg(4), Destination: t0})
	}
	function.Parameters[0].Destination = s0
	function.Parameters[1].Destination = s1
	function.Frame.NewLocalSlot("buf", 40000, 4)
	entry.Append(newReturn())

	emitter := lowerFrame(t, config.Default(), function)
	if !emitter.HasErrors() {
		t.Fatalf("expected offset overflow error")
	}
}

func TestResolveSlotIsIdempotent(t *testing.T) {
	target := config.Default()
	target.DisableFramePointerElimination = true

	function, _ := newTestFunction("f")
	frame := function.Frame
	slots := []*arch.StackSlot{
		frame.NewFixedSlot(arch.IncomingArgumentSlot, "", 4, 8),
		frame.NewFixedSlot(arch.OutgoingArgumentSlot, "", 4, 0),
		frame.NewLocalSlot("a", 4, 4),
	}
	frame.UpdateMaxCallFrameSize(4)

	lowering := NewFrameLowering(target)
	lowering.FinalizeFrame(function)

	for _, s := range slots {
		base1, offset1 := lowering.ResolveSlot(function, s, 4)
		base2, offset2 := lowering.ResolveSlot(function, s, 4)
		if base1 != base2 || offset1 != offset2 {
			t.Errorf("%s: resolution not idempotent", s)
		}
	}

	if base, _ := lowering.ResolveSlot(function, slots[0], 0); base != fp {
		t.Errorf("incoming argument: got base %s, want fp", base.Name)
	}
	if base, _ := lowering.ResolveSlot(function, slots[1], 0); base != sp {
		t.Errorf("outgoing argument: got base %s, want sp", base.Name)
	}
}
