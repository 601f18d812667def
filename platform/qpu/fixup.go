package qpu

import (
	"fmt"

	"github.com/simonjhall/llvm-qpu/platform"
)

type FixupKind = platform.FixupKind

// The order is significant: it matches the relocation writer's
// classification table.
const (
	// A full data word referencing a symbol.
	Data4Fixup = FixupKind(iota)

	Abs32Fixup

	// PC relative 16-bit conditional branch displacement.
	PC16Fixup

	// PC relative 24-bit jump displacement.
	PC24Fixup

	// Absolute 24-bit jump target.
	Direct24Fixup

	// High / low halves of an absolute address.
	Hi16Fixup
	Lo16Fixup

	// Global offset table entry (global symbols) or page (local symbols).
	Got16Fixup

	// Global offset table entry used by position independent calls.
	Call16Fixup

	// Offset from the global base register.
	GPRel16Fixup

	// High / low halves of a large global offset table index.
	GotHi16Fixup
	GotLo16Fixup

	numFixupKinds
)

var fixupKindNames = [numFixupKinds]string{
	Data4Fixup:    "data4",
	Abs32Fixup:    "abs32",
	PC16Fixup:     "pc16",
	PC24Fixup:     "pc24",
	Direct24Fixup: "direct24",
	Hi16Fixup:     "hi16",
	Lo16Fixup:     "lo16",
	Got16Fixup:    "got16",
	Call16Fixup:   "call16",
	GPRel16Fixup:  "gprel16",
	GotHi16Fixup:  "got_hi16",
	GotLo16Fixup:  "got_lo16",
}

func FixupKindName(kind FixupKind) string {
	if kind < 0 || kind >= numFixupKinds {
		return fmt.Sprintf("fixup(%d)", int(kind))
	}
	return fixupKindNames[kind]
}
