package qpu

import (
	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/platform"
)

type Platform struct {
	target config.Target

	callConvention   *CallConvention
	frameLowering    *FrameLowering
	encoder          *Encoder
	relocationWriter *RelocationWriter
}

func NewPlatform(target config.Target) *Platform {
	return &Platform{
		target:           target,
		callConvention:   NewCallConvention(target),
		frameLowering:    NewFrameLowering(target),
		encoder:          NewEncoder(target),
		relocationWriter: NewRelocationWriter(),
	}
}

var _ platform.Platform = &Platform{}

func (*Platform) ArchitectureName() platform.ArchitectureName {
	return platform.Qpu
}

func (p *Platform) Target() config.Target {
	return p.target
}

func (*Platform) ArchitectureRegisters() *arch.RegisterSet {
	return ArchitectureRegisters
}

func (p *Platform) CallConvention() platform.CallConvention {
	return p.callConvention
}

func (p *Platform) FrameLowering() platform.FrameLowering {
	return p.frameLowering
}

func (p *Platform) InstructionEncoder() platform.InstructionEncoder {
	return p.encoder
}

func (p *Platform) RelocationWriter() platform.RelocationWriter {
	return p.relocationWriter
}

func (p *Platform) HasFramePointer(function *arch.Function) bool {
	return p.frameLowering.HasFramePointer(function)
}

func (p *Platform) MachinePasses() []platform.MachinePass {
	return []platform.MachinePass{
		ExpandGlobalAddresses(p.target),
		RestoreGlobalBase(p.target),
		DeleteUselessJumps(p.target),
	}
}
