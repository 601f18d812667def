package platform

import (
	arch "github.com/simonjhall/llvm-qpu/architecture"
)

// Call convention specific value specification, used to validate function
// signatures and call sites before lowering.  Lowering assumes every value
// passes these checks.
type CallTypeSpec interface {
	IsValidArgType(arch.ValueDescriptor) bool

	IsValidReturnType(arch.ValueDescriptor) bool

	// Maximum number of values returned in registers.
	MaxReturnValues() int
}

func isPowerOfTwo(value int) bool {
	return value > 0 && value&(value-1) == 0
}

// Word sized (or smaller, promoted) scalars.
func IsRegisterSizedScalar(desc arch.ValueDescriptor) bool {
	if desc.Kind != arch.ScalarValue {
		return false
	}

	return isPowerOfTwo(desc.ByteSize) && desc.ByteSize <= arch.RegisterByteSize
}

// Non-empty aggregates passed by value.
func IsByValueAggregate(desc arch.ValueDescriptor) bool {
	return desc.Kind == arch.AggregateValue &&
		desc.ByValue &&
		desc.ByteSize > 0 &&
		(desc.Alignment == 0 || isPowerOfTwo(desc.Alignment))
}
