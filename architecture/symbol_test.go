package architecture

import (
	"strings"
	"testing"
	"unsafe"
)

func TestSymbolTableIntern(t *testing.T) {
	table := NewSymbolTable()

	first := table.Intern(strings.Repeat("ab", 2))
	second := table.Intern("ab" + strings.ToLower("AB"))
	if first != "abab" || unsafe.StringData(first) != unsafe.StringData(second) {
		t.Errorf("equal names do not share a pooled string")
	}

	label := table.Intern("exit")
	block := table.BlockSymbol("f", label)
	if unsafe.StringData(block.Name) != unsafe.StringData(table.Intern("$f.exit")) {
		t.Errorf("block symbol name is not pooled")
	}
}

func TestSymbolTableLookupAndDefine(t *testing.T) {
	table := NewSymbolTable()

	ref := table.Lookup("g")
	if !ref.IsExternal() {
		t.Errorf("undefined reference should be external")
	}

	def := table.Define("g", InternalLinkage)
	if def != ref {
		t.Errorf("define created a second symbol")
	}
	if def.IsExternal() {
		t.Errorf("define did not update linkage")
	}

	if table.Lookup("g") != def {
		t.Errorf("lookup after define returned a different symbol")
	}
}
