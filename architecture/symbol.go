package architecture

import (
	"sync"

	"github.com/pattyshack/gt/stringutil"
)

type Linkage string

const (
	ExternalLinkage = Linkage("external")
	InternalLinkage = Linkage("internal")
)

// Symbols are compared by identity.  The symbol table guarantees each name
// maps to exactly one symbol within a compilation unit.
type Symbol struct {
	Name string

	Linkage Linkage

	IsFunction bool

	// Only meaningful for data symbols.  Small data is addressed relative to
	// the global base register.
	IsSmallData bool
}

func (symbol *Symbol) IsExternal() bool {
	return symbol.Linkage == ExternalLinkage
}

// Shared by all functions of a compilation unit, hence safe for concurrent
// use.  The table also owns the unit's string pool: front ends intern every
// name (symbols, labels, parameters, stack objects) through it so that equal
// names share one backing string.
type SymbolTable struct {
	mutex sync.Mutex

	pool *stringutil.InternPool

	symbols map[string]*Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		pool:    stringutil.NewInternPool(),
		symbols: map[string]*Symbol{},
	}
}

// Returns the pooled copy of name.
func (table *SymbolTable) Intern(name string) string {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	return table.pool.Intern(name)
}

// Returns the named symbol, creating an external reference if the name is
// not yet known.
func (table *SymbolTable) Lookup(name string) *Symbol {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	return table.lookup(name, ExternalLinkage)
}

func (table *SymbolTable) lookup(name string, linkage Linkage) *Symbol {
	symbol, ok := table.symbols[name]
	if ok {
		return symbol
	}

	symbol = &Symbol{
		Name:    name,
		Linkage: linkage,
	}
	table.symbols[name] = symbol
	return symbol
}

// Defines (or redefines the linkage of) the named symbol.
func (table *SymbolTable) Define(name string, linkage Linkage) *Symbol {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	symbol := table.lookup(name, linkage)
	symbol.Linkage = linkage
	return symbol
}

// Block labels are local to their function.
func (table *SymbolTable) BlockSymbol(functionName string, label string) *Symbol {
	return table.Define(
		table.Intern("$"+functionName+"."+label),
		InternalLinkage)
}
