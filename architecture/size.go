package architecture

const (
	// The QPU is a 32 bit architecture.
	RegisterByteSize    = 4
	AddressByteSize     = RegisterByteSize
	InstructionByteSize = 4

	// The stack pointer must be 8-byte aligned at every call boundary.
	StackFrameAlignment = 8

	// Loads, stores and ALU immediates carry a 16-bit signed field.
	ImmediateBitSize = 16
)

func NumRegisters(byteSize int) int {
	return (byteSize + RegisterByteSize - 1) / RegisterByteSize
}

func AlignedSize(byteSize int) int {
	return NumRegisters(byteSize) * RegisterByteSize
}

// Rounds value up to the next multiple of alignment (alignment must be a
// power of two).
func AlignTo(value int, alignment int) int {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		panic("invalid alignment")
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

func FitsSigned(value int64, bitSize int) bool {
	min := -(int64(1) << (bitSize - 1))
	max := (int64(1) << (bitSize - 1)) - 1
	return min <= value && value <= max
}
