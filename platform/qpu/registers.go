package qpu

import (
	arch "github.com/simonjhall/llvm-qpu/architecture"
)

var (
	zero = arch.NewReservedRegister("zero", 0)
	at   = arch.NewReservedRegister("at", 1) // assembler temporary

	ra0 = arch.NewGeneralRegister("ra0", 2)
	ra1 = arch.NewGeneralRegister("ra1", 3)
	ra2 = arch.NewGeneralRegister("ra2", 4)
	ra3 = arch.NewGeneralRegister("ra3", 5)
	t9  = arch.NewGeneralRegister("t9", 6)
	t0  = arch.NewGeneralRegister("t0", 7)
	s0  = arch.NewGeneralRegister("s0", 8)
	s1  = arch.NewGeneralRegister("s1", 9)
	sw  = arch.NewGeneralRegister("sw", 10)
	gp  = arch.NewGeneralRegister("gp", 11)
	fp  = arch.NewGeneralRegister("fp", 12)
	sp  = arch.NewStackPointerRegister("sp", 13)
	lr  = arch.NewReservedRegister("lr", 14)
	pc  = arch.NewReservedRegister("pc", 15)

	vpmLoadAddr   = arch.NewPeripheralRegister("vpm_ld_addr", 16)
	vpmStoreAddr  = arch.NewPeripheralRegister("vpm_st_addr", 17)
	vpmLoadWait   = arch.NewPeripheralRegister("vpm_ld_wait", 18)
	vpmStoreWait  = arch.NewPeripheralRegister("vpm_st_wait", 19)
	vpmReadData   = arch.NewPeripheralRegister("vpm_dat_rda", 20)
	vpmWriteData  = arch.NewPeripheralRegister("vpm_dat_wra", 21)
	vpmLoadSetup  = arch.NewPeripheralRegister("vpm_ld_setup", 22)
	vpmStoreSetup = arch.NewPeripheralRegister("vpm_st_setup", 23)

	acc0 = arch.NewAccumulatorRegister("acc0", 24)
	acc1 = arch.NewAccumulatorRegister("acc1", 25)
	acc2 = arch.NewAccumulatorRegister("acc2", 26)
	acc3 = arch.NewAccumulatorRegister("acc3", 27)
	acc5 = arch.NewAccumulatorRegister("acc5", 28)

	ArchitectureRegisters = arch.NewRegisterSet(
		zero, at,
		ra0, ra1, ra2, ra3, t9, t0, s0, s1, sw, gp, fp, sp, lr, pc,
		vpmLoadAddr, vpmStoreAddr, vpmLoadWait, vpmStoreWait,
		vpmReadData, vpmWriteData, vpmLoadSetup, vpmStoreSetup,
		acc0, acc1, acc2, acc3, acc5)

	// Registers used to pass the first scalar arguments, in order.
	ArgumentRegisters = []*arch.Register{ra2, ra3}

	// Registers holding returned values, in order.
	ReturnRegisters = []*arch.Register{ra0, ra1}

	// Holds the structure return pointer on function exit.
	StructReturnRegister = ra0

	// Holds the callee address for indirect / position independent calls.
	CallTargetRegister = t9

	GlobalBaseRegister = gp
	FramePointer       = fp
	StackPointer       = sp
	LinkRegister       = lr
	AssemblerTemporary = at
	ZeroRegister       = zero

	// Callee saved registers, in save order.  This is also the set of
	// registers preserved across calls.
	CalleeSavedRegisters = []*arch.Register{lr, fp, s1, s0}
)

const (
	// Smallest / largest value accepted by the small immediate field used for
	// stack pointer adjustments.
	minSmallImmediate = -16
	maxSmallImmediate = 15
)

func isSmallImmediate(value int) bool {
	return minSmallImmediate <= value && value <= maxSmallImmediate
}

func isCalleeSaved(register *arch.Register) bool {
	for _, reg := range CalleeSavedRegisters {
		if reg == register {
			return true
		}
	}
	return false
}

// Registers the register allocator may not hand out for the given
// function.
func (p *Platform) ReservedRegisters(function *arch.Function) []*arch.Register {
	reserved := []*arch.Register{}
	for _, reg := range ArchitectureRegisters.All {
		if reg.AlwaysReserved {
			reserved = append(reserved, reg)
		}
	}

	if p.HasFramePointer(function) {
		reserved = append(reserved, fp)
	}

	if p.target.FixGlobalBaseRegister {
		reserved = append(reserved, gp)
	}

	return reserved
}
