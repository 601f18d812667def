package qpu

import (
	"fmt"

	"github.com/simonjhall/llvm-qpu/platform"
)

// ELF relocation types (EM_QPU).
const (
	R_QPU_NONE     = platform.RelocationType(0)
	R_QPU_32       = platform.RelocationType(2)
	R_QPU_24       = platform.RelocationType(3)
	R_QPU_HI16     = platform.RelocationType(5)
	R_QPU_LO16     = platform.RelocationType(6)
	R_QPU_GPREL16  = platform.RelocationType(7)
	R_QPU_GOT16    = platform.RelocationType(9)
	R_QPU_PC16     = platform.RelocationType(10)
	R_QPU_CALL16   = platform.RelocationType(11)
	R_QPU_PC24     = platform.RelocationType(13)
	R_QPU_GOT_HI16 = platform.RelocationType(22)
	R_QPU_GOT_LO16 = platform.RelocationType(23)
)

var (
	relocationTypes = [numFixupKinds]platform.RelocationType{
		Data4Fixup:    R_QPU_32,
		Abs32Fixup:    R_QPU_32,
		PC16Fixup:     R_QPU_PC16,
		PC24Fixup:     R_QPU_PC24,
		Direct24Fixup: R_QPU_24,
		Hi16Fixup:     R_QPU_HI16,
		Lo16Fixup:     R_QPU_LO16,
		Got16Fixup:    R_QPU_GOT16,
		Call16Fixup:   R_QPU_CALL16,
		GPRel16Fixup:  R_QPU_GPREL16,
		GotHi16Fixup:  R_QPU_GOT_HI16,
		GotLo16Fixup:  R_QPU_GOT_LO16,
	}

	relocationTypeNames = map[platform.RelocationType]string{
		R_QPU_NONE:     "R_QPU_NONE",
		R_QPU_32:       "R_QPU_32",
		R_QPU_24:       "R_QPU_24",
		R_QPU_HI16:     "R_QPU_HI16",
		R_QPU_LO16:     "R_QPU_LO16",
		R_QPU_GPREL16:  "R_QPU_GPREL16",
		R_QPU_GOT16:    "R_QPU_GOT16",
		R_QPU_PC16:     "R_QPU_PC16",
		R_QPU_CALL16:   "R_QPU_CALL16",
		R_QPU_PC24:     "R_QPU_PC24",
		R_QPU_GOT_HI16: "R_QPU_GOT_HI16",
		R_QPU_GOT_LO16: "R_QPU_GOT_LO16",
	}
)

func RelocationTypeName(relocationType platform.RelocationType) string {
	name, ok := relocationTypeNames[relocationType]
	if !ok {
		return fmt.Sprintf("R_QPU_UNKNOWN(%d)", uint32(relocationType))
	}
	return name
}

type RelocationWriter struct{}

func NewRelocationWriter() *RelocationWriter {
	return &RelocationWriter{}
}

func (RelocationWriter) RelocationType(
	fixup platform.Fixup,
) (
	platform.RelocationType,
	error,
) {
	if fixup.Kind < 0 || fixup.Kind >= numFixupKinds {
		return R_QPU_NONE, fmt.Errorf("invalid fixup kind: %d", int(fixup.Kind))
	}
	return relocationTypes[fixup.Kind], nil
}
