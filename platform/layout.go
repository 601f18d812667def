package platform

import (
	"fmt"

	arch "github.com/simonjhall/llvm-qpu/architecture"
)

// Target defined fixup kind.  Generic code only compares kinds for
// equality; the target's RelocationWriter classifies them.
type FixupKind int

// A yet to be resolved address.  The encoded bits at the fixup location are
// zero; the linker patches them according to the relocation derived from
// the fixup.
type Fixup struct {
	Kind FixupKind

	// Byte offset of the patch, relative to the start of the instruction
	// (Encode) or the segment (Segment.Fixups).
	Offset int

	// symbol + offset
	Symbol *arch.Symbol
	Addend int64
}

// ELF relocation type number.
type RelocationType uint32

type Relocation struct {
	// Relative to the beginning of the segment.
	Offset int

	Type RelocationType

	Symbol *arch.Symbol

	// The constant added to the symbol's address.  Entries of a split high /
	// low pair always share the same addend.
	Addend int64
}

func (relocation Relocation) String() string {
	return fmt.Sprintf(
		"%08x %d %s%+d",
		relocation.Offset,
		relocation.Type,
		relocation.Symbol.Name,
		relocation.Addend)
}

// A continuous segment of instruction bytes.
type Segment struct {
	Bytes []byte

	// Function / data entry symbol -> offset within the segment.
	Labels map[*arch.Symbol]int

	Fixups      []Fixup
	Relocations []Relocation
}

func NewSegment() *Segment {
	return &Segment{
		Labels: map[*arch.Symbol]int{},
	}
}

// Appends the encoded bytes, shifting the fixups to segment relative
// offsets.
func (segment *Segment) Append(bytes []byte, fixups []Fixup) int {
	base := len(segment.Bytes)
	segment.Bytes = append(segment.Bytes, bytes...)
	for _, fixup := range fixups {
		fixup.Offset += base
		segment.Fixups = append(segment.Fixups, fixup)
	}
	return base
}
