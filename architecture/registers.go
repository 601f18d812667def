package architecture

import (
	"fmt"
	"sort"
)

type RegisterClass string

const (
	// Registers usable for signed/unsigned int and pointer operations, as well
	// as general data storage.
	GeneralClass = RegisterClass("general")

	// ALU accumulators.  They hold temporary results and are never used for
	// argument passing.
	AccumulatorClass = RegisterClass("accumulator")

	// Memory mapped peripheral ports (VPM setup/address/data).  Reads and
	// writes have side effects, so they are never allocated.
	PeripheralClass = RegisterClass("peripheral")
)

type Register struct {
	Name string

	Class RegisterClass

	// Numeric id used only during binary emission.
	Encoding int

	// When true, the register is reserved for stack pointer.
	IsStackPointer bool

	// When true, the register is never handed out by the register allocator
	// regardless of function properties (zero, assembler temp, stack pointer,
	// link register, program counter).
	AlwaysReserved bool
}

func NewStackPointerRegister(name string, encoding int) *Register {
	return &Register{
		Name:           name,
		Class:          GeneralClass,
		Encoding:       encoding,
		IsStackPointer: true,
		AlwaysReserved: true,
	}
}

func NewGeneralRegister(name string, encoding int) *Register {
	return &Register{
		Name:     name,
		Class:    GeneralClass,
		Encoding: encoding,
	}
}

func NewReservedRegister(name string, encoding int) *Register {
	return &Register{
		Name:           name,
		Class:          GeneralClass,
		Encoding:       encoding,
		AlwaysReserved: true,
	}
}

func NewAccumulatorRegister(name string, encoding int) *Register {
	return &Register{
		Name:     name,
		Class:    AccumulatorClass,
		Encoding: encoding,
	}
}

func NewPeripheralRegister(name string, encoding int) *Register {
	return &Register{
		Name:           name,
		Class:          PeripheralClass,
		Encoding:       encoding,
		AlwaysReserved: true,
	}
}

func (register *Register) String() string {
	return "$" + register.Name
}

// Assumptions:
//
// 1. Each architecture have exactly one stack pointer register.  The stack
// pointer is always live and hence can't be used as a general register.
//
// 2. Every register belongs to exactly one class.
//
// 3. Register encodings are unique, which makes decoding unambiguous.
type RegisterSet struct {
	StackPointer *Register

	// All registers, ordered by encoding.
	All []*Register

	General     []*Register
	Accumulator []*Register
	Peripheral  []*Register

	byName     map[string]*Register
	byEncoding map[int]*Register
}

func NewRegisterSet(registers ...*Register) *RegisterSet {
	set := &RegisterSet{
		byName:     map[string]*Register{},
		byEncoding: map[int]*Register{},
	}

	for _, register := range registers {
		if register.Name == "" {
			panic("no register name")
		}

		_, ok := set.byName[register.Name]
		if ok {
			panic("added duplicate register: " + register.Name)
		}

		other, ok := set.byEncoding[register.Encoding]
		if ok {
			panic(fmt.Sprintf(
				"register %s reuses encoding %d of %s",
				register.Name,
				register.Encoding,
				other.Name))
		}

		set.byName[register.Name] = register
		set.byEncoding[register.Encoding] = register
		set.add(register)
	}

	if set.StackPointer == nil {
		panic("no stack pointer register specified")
	}

	sort.Slice(
		set.All,
		func(i int, j int) bool {
			return set.All[i].Encoding < set.All[j].Encoding
		})

	return set
}

func (set *RegisterSet) add(register *Register) {
	if register.IsStackPointer {
		if set.StackPointer != nil {
			panic("multiple stack pointer register specified")
		}
		set.StackPointer = register
	}

	set.All = append(set.All, register)

	switch register.Class {
	case GeneralClass:
		set.General = append(set.General, register)
	case AccumulatorClass:
		set.Accumulator = append(set.Accumulator, register)
	case PeripheralClass:
		set.Peripheral = append(set.Peripheral, register)
	default:
		panic("unknown register class: " + string(register.Class))
	}
}

func (set *RegisterSet) Lookup(name string) (*Register, bool) {
	register, ok := set.byName[name]
	return register, ok
}

func (set *RegisterSet) Decode(encoding int) (*Register, bool) {
	register, ok := set.byEncoding[encoding]
	return register, ok
}
