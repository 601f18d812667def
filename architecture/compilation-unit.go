package architecture

import (
	"github.com/pattyshack/gt/parseutil"
)

// A labeled run of 32-bit data words.  Each word is either an immediate or
// a symbol reference (which the encoder turns into a data fixup).
type DataEntry struct {
	parseutil.StartEndPos

	Symbol *Symbol

	Words []Operand
}

type CompilationUnit struct {
	Symbols *SymbolTable

	Functions []*Function

	Data []*DataEntry
}

func NewCompilationUnit() *CompilationUnit {
	return &CompilationUnit{
		Symbols: NewSymbolTable(),
	}
}

func (unit *CompilationUnit) LookupFunction(name string) *Function {
	for _, function := range unit.Functions {
		if function.Name() == name {
			return function
		}
	}
	return nil
}
