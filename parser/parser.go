package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pattyshack/gt/parseutil"
	"gopkg.in/yaml.v3"

	arch "github.com/simonjhall/llvm-qpu/architecture"
)

type rawUnit struct {
	Functions []yaml.Node `yaml:"functions"`
	Data      []yaml.Node `yaml:"data"`
}

type rawFunction struct {
	Name        string      `yaml:"name"`
	Linkage     string      `yaml:"linkage"`
	VarArg      bool        `yaml:"vararg"`
	Parameters  []yaml.Node `yaml:"parameters"`
	Frame       rawFrame    `yaml:"frame"`
	CalleeSaved []string    `yaml:"callee-saved"`
	Blocks      []yaml.Node `yaml:"blocks"`
}

type rawParameter struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Register string `yaml:"register"`
}

type rawFrame struct {
	Objects           []yaml.Node `yaml:"objects"`
	DynamicAlloca     bool        `yaml:"dynamic-alloca"`
	FrameAddressTaken bool        `yaml:"frame-address-taken"`
}

type rawObject struct {
	Name  string `yaml:"name"`
	Size  int    `yaml:"size"`
	Align int    `yaml:"align"`
}

type rawBlock struct {
	Label        string      `yaml:"label"`
	Instructions []yaml.Node `yaml:"instructions"`
}

type rawValue struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type rawCall struct {
	Call    string     `yaml:"call"`
	VarArg  bool       `yaml:"vararg"`
	Args    []rawValue `yaml:"args"`
	Results []rawValue `yaml:"results"`
}

type rawReturn struct {
	Return []rawValue `yaml:"return"`
}

type rawData struct {
	Name      string   `yaml:"name"`
	Linkage   string   `yaml:"linkage"`
	SmallData bool     `yaml:"small-data"`
	Words     []string `yaml:"words"`
}

type parser struct {
	*locator
	operandParser

	unit    *arch.CompilationUnit
	emitter *parseutil.Emitter
}

func newParser(
	fileName string,
	content []byte,
	registers *arch.RegisterSet,
	emitter *parseutil.Emitter,
) *parser {
	unit := arch.NewCompilationUnit()
	return &parser{
		locator: newLocator(fileName, content),
		operandParser: operandParser{
			registers: registers,
			symbols:   unit.Symbols,
		},
		unit:    unit,
		emitter: emitter,
	}
}

func (parser *parser) decode(node *yaml.Node, out interface{}) bool {
	err := node.Decode(out)
	if err != nil {
		parser.emitter.Emit(parser.Location(node), "%s", err)
		return false
	}
	return true
}

func (parser *parser) linkage(
	node *yaml.Node,
	text string,
	defaultLinkage arch.Linkage,
) arch.Linkage {
	switch arch.Linkage(text) {
	case "":
		return defaultLinkage
	case arch.ExternalLinkage, arch.InternalLinkage:
		return arch.Linkage(text)
	default:
		parser.emitter.Emit(parser.Location(node), "unknown linkage (%s)", text)
		return defaultLinkage
	}
}

func (parser *parser) parse(content []byte) *arch.CompilationUnit {
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	raw := rawUnit{}
	err := decoder.Decode(&raw)
	if err != nil && !errors.Is(err, io.EOF) {
		parser.emitter.EmitErrors(err)
		return parser.unit
	}

	for idx := range raw.Functions {
		parser.parseFunction(&raw.Functions[idx])
	}

	for idx := range raw.Data {
		parser.parseData(&raw.Data[idx])
	}

	return parser.unit
}

func (parser *parser) parseFunction(node *yaml.Node) {
	raw := rawFunction{}
	if !parser.decode(node, &raw) {
		return
	}

	if !isIdentifier(raw.Name) {
		parser.emitter.Emit(parser.Location(node), "invalid function name (%s)", raw.Name)
		return
	}

	raw.Name = parser.symbols.Intern(raw.Name)
	symbol := parser.symbols.Define(
		raw.Name,
		parser.linkage(node, raw.Linkage, arch.ExternalLinkage))
	symbol.IsFunction = true

	function := arch.NewFunction(parser.Pos(node), symbol)
	function.IsVarArg = raw.VarArg
	function.Frame.HasVarSizedObjects = raw.Frame.DynamicAlloca
	function.Frame.FrameAddressTaken = raw.Frame.FrameAddressTaken

	parser.function = function
	parser.blocks = map[string]*arch.Block{}
	defer func() {
		parser.function = nil
		parser.blocks = nil
	}()

	for idx := range raw.Parameters {
		parser.parseParameter(function, &raw.Parameters[idx])
	}

	for idx := range raw.Frame.Objects {
		parser.parseObject(function, &raw.Frame.Objects[idx])
	}

	for _, name := range raw.CalleeSaved {
		register, err := parser.register(name)
		if err != nil {
			parser.emitter.Emit(function.Loc(), "%s", err)
			continue
		}
		function.UsedCalleeSaved = append(function.UsedCalleeSaved, register)
	}

	// Blocks are created up front so that branches may reference later
	// blocks.
	rawBlocks := make([]rawBlock, len(raw.Blocks))
	for idx := range raw.Blocks {
		blockNode := &raw.Blocks[idx]
		if !parser.decode(blockNode, &rawBlocks[idx]) {
			return
		}

		label := rawBlocks[idx].Label
		if label == "" {
			label = fmt.Sprintf("bb%d", idx)
		}
		label = parser.symbols.Intern(label)

		_, ok := parser.blocks[label]
		if ok {
			parser.emitter.Emit(
				parser.Location(blockNode),
				"block (%s) previously defined",
				label)
			return
		}

		block := &arch.Block{
			StartEndPos: parser.Pos(blockNode),
			Label:       label,
			Symbol:      parser.symbols.BlockSymbol(raw.Name, label),
		}
		parser.blocks[label] = block
		function.AddBlock(block)
	}

	for idx, block := range function.Blocks {
		for instIdx := range rawBlocks[idx].Instructions {
			inst := parser.parseInstruction(&rawBlocks[idx].Instructions[instIdx])
			if inst != nil {
				block.Append(inst)
			}
		}
	}

	parser.unit.Functions = append(parser.unit.Functions, function)
}

func (parser *parser) parseParameter(function *arch.Function, node *yaml.Node) {
	raw := rawParameter{}
	if !parser.decode(node, &raw) {
		return
	}

	desc, err := parseValueType(raw.Type)
	if err != nil {
		parser.emitter.Emit(parser.Location(node), "%s", err)
		return
	}

	param := &arch.FormalParameter{
		StartEndPos:     parser.Pos(node),
		Name:            parser.symbols.Intern(raw.Name),
		ValueDescriptor: desc,
	}

	if raw.Register != "" {
		param.Destination, err = parser.register(raw.Register)
		if err != nil {
			parser.emitter.Emit(parser.Location(node), "%s", err)
			return
		}
	}

	function.Parameters = append(function.Parameters, param)
}

func (parser *parser) parseObject(function *arch.Function, node *yaml.Node) {
	raw := rawObject{}
	if !parser.decode(node, &raw) {
		return
	}

	if raw.Name == "" || strings.HasPrefix(raw.Name, "%") {
		parser.emitter.Emit(parser.Location(node), "invalid stack object name (%s)", raw.Name)
		return
	}

	_, ok := function.Frame.LookupSlot(raw.Name)
	if ok {
		parser.emitter.Emit(parser.Location(node), "stack object (%s) previously defined", raw.Name)
		return
	}

	if raw.Align == 0 {
		raw.Align = arch.RegisterByteSize
	}

	if raw.Size < 0 ||
		raw.Align&(raw.Align-1) != 0 ||
		raw.Align > arch.StackFrameAlignment {
		parser.emitter.Emit(
			parser.Location(node),
			"unsupported stack object (%s) size %d align %d",
			raw.Name,
			raw.Size,
			raw.Align)
		return
	}

	function.Frame.NewLocalSlot(
		parser.symbols.Intern(raw.Name),
		raw.Size,
		raw.Align)
}

func (parser *parser) parseInstruction(node *yaml.Node) *arch.Instruction {
	pos := parser.Pos(node)

	switch node.Kind {
	case yaml.ScalarNode:
		return parser.parseTextInstruction(pos, node.Value)
	case yaml.MappingNode:
	default:
		parser.emitter.Emit(pos.Loc(), "invalid instruction")
		return nil
	}

	for idx := 0; idx < len(node.Content); idx += 2 {
		switch node.Content[idx].Value {
		case "call":
			return parser.parseCall(pos, node)
		case "return":
			return parser.parseReturn(pos, node)
		}
	}

	parser.emitter.Emit(pos.Loc(), "invalid instruction (expected call or return)")
	return nil
}

func (parser *parser) parseTextInstruction(
	pos parseutil.StartEndPos,
	text string,
) *arch.Instruction {
	opcode, operandTexts := splitInstruction(text)
	if opcode == "" {
		parser.emitter.Emit(pos.Loc(), "empty instruction")
		return nil
	}

	switch arch.Opcode(opcode) {
	case arch.ReturnPseudo:
		if len(operandTexts) != 0 {
			parser.emitter.Emit(pos.Loc(), "use the return mapping form for return values")
			return nil
		}
		inst := arch.NewInstruction(pos, arch.ReturnPseudo)
		inst.Return = &arch.ReturnSite{}
		return inst
	case arch.CallPseudo:
		if len(operandTexts) != 1 {
			parser.emitter.Emit(pos.Loc(), "use the call mapping form for call arguments")
			return nil
		}
		callee, err := parser.callee(operandTexts[0])
		if err != nil {
			parser.emitter.Emit(pos.Loc(), "%s", err)
			return nil
		}
		inst := arch.NewInstruction(pos, arch.CallPseudo)
		inst.Call = &arch.CallSite{Callee: callee}
		return inst
	}

	operands := make([]arch.Operand, 0, len(operandTexts))
	for _, operandText := range operandTexts {
		operand, err := parser.operand(operandText)
		if err != nil {
			parser.emitter.Emit(pos.Loc(), "%s", err)
			return nil
		}
		operands = append(operands, operand)
	}

	return arch.NewInstruction(pos, arch.Opcode(opcode), operands...)
}

func (parser *parser) callee(text string) (arch.Operand, error) {
	operand, err := parser.operand(text)
	if err != nil {
		return nil, err
	}

	switch callee := operand.(type) {
	case arch.RegisterOperand:
		return callee, nil
	case arch.SymbolOperand:
		if callee.Variant == arch.NoVariant {
			callee.Symbol.IsFunction = true
			return callee, nil
		}
	}
	return nil, fmt.Errorf("invalid callee (%s)", text)
}

func (parser *parser) parseCall(
	pos parseutil.StartEndPos,
	node *yaml.Node,
) *arch.Instruction {
	raw := rawCall{}
	if !parser.decode(node, &raw) {
		return nil
	}

	callee, err := parser.callee(raw.Call)
	if err != nil {
		parser.emitter.Emit(pos.Loc(), "%s", err)
		return nil
	}

	site := &arch.CallSite{
		Callee:   callee,
		IsVarArg: raw.VarArg,
	}

	for _, arg := range raw.Args {
		desc, value, err := parser.value(arg)
		if err != nil {
			parser.emitter.Emit(pos.Loc(), "%s", err)
			return nil
		}
		site.Arguments = append(
			site.Arguments,
			arch.CallArgument{
				ValueDescriptor: desc,
				Value:           value,
			})
	}

	for _, result := range raw.Results {
		desc, err := parseValueType(result.Type)
		if err != nil {
			parser.emitter.Emit(pos.Loc(), "%s", err)
			return nil
		}

		register, err := parser.register(result.Value)
		if err != nil {
			parser.emitter.Emit(pos.Loc(), "%s", err)
			return nil
		}

		site.Results = append(
			site.Results,
			arch.CallResult{
				ValueDescriptor: desc,
				Destination:     register,
			})
	}

	inst := arch.NewInstruction(pos, arch.CallPseudo)
	inst.Call = site
	return inst
}

func (parser *parser) parseReturn(
	pos parseutil.StartEndPos,
	node *yaml.Node,
) *arch.Instruction {
	raw := rawReturn{}
	if !parser.decode(node, &raw) {
		return nil
	}

	site := &arch.ReturnSite{}
	for _, value := range raw.Return {
		desc, operand, err := parser.value(value)
		if err != nil {
			parser.emitter.Emit(pos.Loc(), "%s", err)
			return nil
		}
		site.Values = append(
			site.Values,
			arch.CallArgument{
				ValueDescriptor: desc,
				Value:           operand,
			})
	}

	inst := arch.NewInstruction(pos, arch.ReturnPseudo)
	inst.Return = site
	return inst
}

func (parser *parser) value(
	raw rawValue,
) (
	arch.ValueDescriptor,
	arch.Operand,
	error,
) {
	desc, err := parseValueType(raw.Type)
	if err != nil {
		return desc, nil, err
	}

	operand, err := parser.operand(raw.Value)
	if err != nil {
		return desc, nil, err
	}
	return desc, operand, nil
}

func (parser *parser) parseData(node *yaml.Node) {
	raw := rawData{}
	if !parser.decode(node, &raw) {
		return
	}

	if !isIdentifier(raw.Name) {
		parser.emitter.Emit(parser.Location(node), "invalid data name (%s)", raw.Name)
		return
	}

	symbol := parser.symbols.Define(
		parser.symbols.Intern(raw.Name),
		parser.linkage(node, raw.Linkage, arch.InternalLinkage))
	symbol.IsSmallData = raw.SmallData

	entry := &arch.DataEntry{
		StartEndPos: parser.Pos(node),
		Symbol:      symbol,
	}

	for _, text := range raw.Words {
		operand, err := parser.operand(text)
		if err != nil {
			parser.emitter.Emit(entry.Loc(), "%s", err)
			return
		}

		switch word := operand.(type) {
		case arch.ImmediateOperand:
		case arch.SymbolOperand:
			if word.Variant != arch.NoVariant {
				parser.emitter.Emit(entry.Loc(), "relocation variant in data word (%s)", text)
				return
			}
		default:
			parser.emitter.Emit(entry.Loc(), "invalid data word (%s)", text)
			return
		}

		entry.Words = append(entry.Words, operand)
	}

	parser.unit.Data = append(parser.unit.Data, entry)
}

// Parses a machine function unit (yaml).  Register names are resolved
// against the target's register set.
func Parse(
	fileName string,
	content []byte,
	registers *arch.RegisterSet,
	emitter *parseutil.Emitter,
) *arch.CompilationUnit {
	return newParser(fileName, content, registers, emitter).parse(content)
}
