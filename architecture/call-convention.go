package architecture

import (
	"fmt"

	"github.com/pattyshack/gt/parseutil"
)

type ValueKind string

const (
	ScalarValue    = ValueKind("scalar") // ints and pointers
	AggregateValue = ValueKind("aggregate")
)

// Describes an argument / return value as seen by the call convention.
type ValueDescriptor struct {
	Kind ValueKind

	ByteSize  int
	Alignment int

	// Sub-word scalars are sign extended (rather than zero extended) when
	// promoted to a full register.
	IsSigned bool

	// Aggregates passed by value are copied into the outgoing argument area.
	ByValue bool

	// The hidden structure return pointer parameter.
	StructReturn bool
}

func (desc ValueDescriptor) String() string {
	result := fmt.Sprintf("%s(%d)", desc.Kind, desc.ByteSize)
	if desc.ByValue {
		result += " byval"
	}
	if desc.StructReturn {
		result += " sret"
	}
	return result
}

// Where an argument / return value lives at the call boundary.  Exactly one
// of Register or OnStack is set.
type Assignment struct {
	ValueDescriptor

	Register *Register

	OnStack bool

	// Relative to the stack pointer at the call boundary.
	StackOffset int

	// Register aligned size of the stack location.
	StackSize int

	// Sub-word scalar widened to a full register.
	Promoted bool
}

func (assignment Assignment) String() string {
	if assignment.OnStack {
		return fmt.Sprintf(
			"%s -> stack[%d:%d]",
			assignment.ValueDescriptor,
			assignment.StackOffset,
			assignment.StackOffset+assignment.StackSize)
	}
	return fmt.Sprintf(
		"%s -> %s",
		assignment.ValueDescriptor,
		assignment.Register)
}

type FormalParameter struct {
	parseutil.StartEndPos

	Name string

	ValueDescriptor

	// The register (or, for by-value aggregates, the address register)
	// receiving the parameter inside the function body.
	Destination *Register
}

type CallArgument struct {
	ValueDescriptor

	// Register or immediate holding the value.  For by-value aggregates, the
	// register holds the aggregate's address.
	Value Operand
}

type CallResult struct {
	ValueDescriptor

	Destination *Register
}

type CallSite struct {
	// Symbol (direct call) or register (indirect call).
	Callee Operand

	Arguments []CallArgument
	Results   []CallResult

	IsVarArg bool
}

type ReturnSite struct {
	Values []CallArgument
}
