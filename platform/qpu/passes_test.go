package qpu

import (
	"testing"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
)

func picTarget() config.Target {
	target := config.Default()
	target.RelocationModel = config.PICRelocation
	return target
}

func TestRestoreGlobalBase(t *testing.T) {
	function, entry := newTestFunction("f")
	function.Frame.NewFixedSlot(
		arch.GlobalBaseRestoreSlot,
		globalBaseRestoreName,
		arch.RegisterByteSize,
		0)

	entry.Append(
		newInst(noPos, Ld, reg(t9), reg(gp), imm(0)),
		newInst(noPos, Jalr, reg(t9)),
		newInst(noPos, Jalr, reg(t9)),
		newInst(noPos, Ret, reg(lr)))

	RestoreGlobalBase(picTarget()).Process(function)

	expectInstructions(
		t,
		"restore",
		entry.Instructions,
		[]string{
			"ld $t9, $gp, 0",
			"jalr $t9",
			"ld $gp, %global-base, 0",
			"jalr $t9",
			"ld $gp, %global-base, 0",
			"ret $lr",
		})

	for _, inst := range entry.Instructions {
		if inst.Parent != entry {
			t.Errorf("%s: wrong parent", inst)
		}
	}
}

func TestRestoreGlobalBaseStatic(t *testing.T) {
	function, entry := newTestFunction("f")
	entry.Append(newInst(noPos, Jalr, reg(t9)))

	RestoreGlobalBase(config.Default()).Process(function)

	expectInstructions(t, "static", entry.Instructions, []string{"jalr $t9"})
}

func TestDeleteUselessJumps(t *testing.T) {
	table := arch.NewSymbolTable()
	function, entry := newTestFunction("f")
	second := &arch.Block{Label: "second", Symbol: table.BlockSymbol("f", "second")}
	third := &arch.Block{Label: "third", Symbol: table.BlockSymbol("f", "third")}
	function.AddBlock(second)
	function.AddBlock(third)

	entry.Append(
		newInst(noPos, Addiu, reg(s0), reg(zero), imm(1)),
		newInst(noPos, Jmp, arch.BlockOperand{Block: second}))
	second.Append(newInst(noPos, Jmp, arch.BlockOperand{Block: entry}))
	third.Append(newInst(noPos, Ret, reg(lr)))

	pass := DeleteUselessJumps(config.Default())
	pass.Process(function)

	expectInstructions(
		t,
		"entry",
		entry.Instructions,
		[]string{"addiu $s0, $zero, 1"})
	if len(second.Instructions) != 1 {
		t.Errorf("backward jump must be kept")
	}

	eliminator := pass.(*uselessJumpEliminator)
	if eliminator.Deleted != 1 {
		t.Errorf("got %d deleted jumps, want 1", eliminator.Deleted)
	}
}

func TestDeleteUselessJumpsDisabled(t *testing.T) {
	table := arch.NewSymbolTable()
	function, entry := newTestFunction("f")
	next := &arch.Block{Label: "next", Symbol: table.BlockSymbol("f", "next")}
	function.AddBlock(next)
	entry.Append(newInst(noPos, Jmp, arch.BlockOperand{Block: next}))

	target := config.Default()
	target.DeleteUselessJumps = false
	DeleteUselessJumps(target).Process(function)

	if len(entry.Instructions) != 1 {
		t.Errorf("jump deleted while disabled")
	}
}

func TestLowerGlobalAddress(t *testing.T) {
	local := &arch.Symbol{Name: "x", Linkage: arch.InternalLinkage}
	external := &arch.Symbol{Name: "z", Linkage: arch.ExternalLinkage}
	small := &arch.Symbol{
		Name:        "s",
		Linkage:     arch.InternalLinkage,
		IsSmallData: true,
	}

	tests := []struct {
		name   string
		target config.Target
		symbol arch.SymbolOperand
		want   []string
	}{
		{
			name:   "small data",
			target: config.Default(),
			symbol: arch.SymbolOperand{Symbol: small},
			want:   []string{"addiu $ra0, $gp, %gprel(s)"},
		},
		{
			name:   "static",
			target: config.Default(),
			symbol: arch.SymbolOperand{Symbol: local, Offset: 4},
			want: []string{
				"lui $ra0, %hilo(x+4)",
				"addiu $ra0, $ra0, %hilo(x+4)",
			},
		},
		{
			name:   "pic external",
			target: picTarget(),
			symbol: arch.SymbolOperand{Symbol: external},
			want:   []string{"ld $ra0, $gp, %got(z)"},
		},
		{
			name:   "pic external with offset",
			target: picTarget(),
			symbol: arch.SymbolOperand{Symbol: external, Offset: 8},
			want: []string{
				"ld $ra0, $gp, %got(z)",
				"addiu $ra0, $ra0, 8",
			},
		},
		{
			name:   "pic external with negative offset",
			target: picTarget(),
			symbol: arch.SymbolOperand{Symbol: external, Offset: -32768},
			want: []string{
				"ld $ra0, $gp, %got(z)",
				"addiu $ra0, $ra0, -32768",
			},
		},
		{
			name:   "pic external with large offset",
			target: picTarget(),
			symbol: arch.SymbolOperand{Symbol: external, Offset: 0x12345},
			want: []string{
				"ld $ra0, $gp, %got(z)",
				"lui $at, 1",
				"ori $at, $at, 9029",
				"addu $ra0, $ra0, $at",
			},
		},
		{
			name:   "pic external with offset just past the field",
			target: picTarget(),
			symbol: arch.SymbolOperand{Symbol: external, Offset: 0x8000},
			want: []string{
				"ld $ra0, $gp, %got(z)",
				"lui $at, 0",
				"ori $at, $at, 32768",
				"addu $ra0, $ra0, $at",
			},
		},
		{
			name:   "pic internal",
			target: picTarget(),
			symbol: arch.SymbolOperand{Symbol: local},
			want: []string{
				"ld $ra0, $gp, %got(x)",
				"addiu $ra0, $ra0, %hilo(x)",
			},
		},
	}

	for _, tt := range tests {
		got := LowerGlobalAddress(tt.target, noPos, ra0, tt.symbol)
		expectInstructions(t, tt.name, got, tt.want)
	}
}

func TestExpandGlobalAddresses(t *testing.T) {
	function, entry := newTestFunction("f")
	local := &arch.Symbol{Name: "x", Linkage: arch.InternalLinkage}

	entry.Append(
		arch.NewInstruction(
			noPos,
			LoadAddress,
			reg(s0),
			arch.SymbolOperand{Symbol: local}),
		newInst(noPos, Ret, reg(lr)))

	ExpandGlobalAddresses(config.Default()).Process(function)

	expectInstructions(
		t,
		"expand",
		entry.Instructions,
		[]string{
			"lui $s0, %hilo(x)",
			"addiu $s0, $s0, %hilo(x)",
			"ret $lr",
		})

	// The expanded sequence encodes into a high / low pair.
	encoder := NewEncoder(config.Default())
	kinds := []FixupKind{}
	for _, inst := range entry.Instructions[:2] {
		_, fixups, err := encoder.Encode(inst)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, fixup := range fixups {
			kinds = append(kinds, fixup.Kind)
		}
	}

	if len(kinds) != 2 || kinds[0] != Hi16Fixup || kinds[1] != Lo16Fixup {
		t.Errorf("got fixup kinds %v", kinds)
	}
}
