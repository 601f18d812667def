package parser

import (
	"fmt"
	"strconv"
	"strings"

	arch "github.com/simonjhall/llvm-qpu/architecture"
)

var (
	symbolVariants = map[string]arch.SymbolVariant{
		string(arch.GotVariant):     arch.GotVariant,
		string(arch.GotCallVariant): arch.GotCallVariant,
		string(arch.GPRelVariant):   arch.GPRelVariant,
		string(arch.HiLoVariant):    arch.HiLoVariant,
		string(arch.AbsHiVariant):   arch.AbsHiVariant,
		string(arch.AbsLoVariant):   arch.AbsLoVariant,
		string(arch.GotHiVariant):   arch.GotHiVariant,
		string(arch.GotLoVariant):   arch.GotLoVariant,
	}
)

// Operand syntax:
//
//	$reg             register
//	123, -4, 0x10    immediate
//	%name            named stack slot
//	%variant(sym+4)  symbol reference with relocation variant
//	@label           block within the current function
//	sym, sym-8       symbol reference
type operandParser struct {
	registers *arch.RegisterSet
	symbols   *arch.SymbolTable

	// Current function context (nil while parsing data).
	function *arch.Function
	blocks   map[string]*arch.Block
}

func (parser *operandParser) register(text string) (*arch.Register, error) {
	if !strings.HasPrefix(text, "$") {
		return nil, fmt.Errorf("expected register, found (%s)", text)
	}

	register, ok := parser.registers.Lookup(text[1:])
	if !ok {
		return nil, fmt.Errorf("unknown register (%s)", text)
	}
	return register, nil
}

func (parser *operandParser) symbol(text string) (arch.SymbolOperand, error) {
	name := text
	offset := int64(0)

	idx := strings.LastIndexAny(text, "+-")
	if idx > 0 {
		value, err := strconv.ParseInt(text[idx:], 0, 64)
		if err != nil {
			return arch.SymbolOperand{}, fmt.Errorf("invalid symbol offset (%s)", text)
		}
		name = text[:idx]
		offset = value
	}

	if !isIdentifier(name) {
		return arch.SymbolOperand{}, fmt.Errorf("invalid symbol (%s)", text)
	}

	return arch.SymbolOperand{
		Symbol: parser.symbols.Lookup(parser.symbols.Intern(name)),
		Offset: offset,
	}, nil
}

func (parser *operandParser) operand(text string) (arch.Operand, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty operand")
	}

	switch {
	case text[0] == '$':
		register, err := parser.register(text)
		if err != nil {
			return nil, err
		}
		return arch.RegisterOperand{Register: register}, nil

	case text[0] == '-' || ('0' <= text[0] && text[0] <= '9'):
		value, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid immediate (%s)", text)
		}
		return arch.ImmediateOperand{Value: value}, nil

	case text[0] == '@':
		if parser.function == nil {
			return nil, fmt.Errorf("block reference outside of function (%s)", text)
		}
		block, ok := parser.blocks[text[1:]]
		if !ok {
			return nil, fmt.Errorf("unknown block (%s)", text)
		}
		return arch.BlockOperand{Block: block}, nil

	case text[0] == '%':
		open := strings.Index(text, "(")
		if open < 0 {
			if parser.function == nil {
				return nil, fmt.Errorf("stack slot outside of function (%s)", text)
			}
			slot, ok := parser.function.Frame.LookupSlot(text[1:])
			if !ok {
				return nil, fmt.Errorf("unknown stack slot (%s)", text)
			}
			return arch.StackSlotOperand{Slot: slot}, nil
		}

		if !strings.HasSuffix(text, ")") {
			return nil, fmt.Errorf("invalid symbol reference (%s)", text)
		}

		variant, ok := symbolVariants[text[1:open]]
		if !ok {
			return nil, fmt.Errorf("unknown relocation variant (%s)", text[1:open])
		}

		symbol, err := parser.symbol(text[open+1 : len(text)-1])
		if err != nil {
			return nil, err
		}
		symbol.Variant = variant
		return symbol, nil

	default:
		return parser.symbol(text)
	}
}

// Splits "opcode a, b, c".
func splitInstruction(text string) (string, []string) {
	text = strings.TrimSpace(text)
	idx := strings.IndexAny(text, " \t")
	if idx < 0 {
		return text, nil
	}

	opcode := text[:idx]
	rest := strings.TrimSpace(text[idx:])
	if rest == "" {
		return opcode, nil
	}

	operands := strings.Split(rest, ",")
	for i, operand := range operands {
		operands[i] = strings.TrimSpace(operand)
	}
	return opcode, operands
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for idx, char := range name {
		switch {
		case char == '_' || char == '.' || char == '$':
		case 'a' <= char && char <= 'z':
		case 'A' <= char && char <= 'Z':
		case '0' <= char && char <= '9':
			if idx == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Value types:
//
//	i8 i16 i32 (signed), u8 u16 u32 / ptr (unsigned), sret,
//	byval(size[, align]), struct(size[, align])
func parseValueType(text string) (arch.ValueDescriptor, error) {
	text = strings.TrimSpace(text)

	switch text {
	case "ptr":
		return scalar(4, false), nil
	case "sret":
		desc := scalar(4, false)
		desc.StructReturn = true
		return desc, nil
	}

	if strings.HasPrefix(text, "i") || strings.HasPrefix(text, "u") {
		bits, err := strconv.Atoi(text[1:])
		if err == nil && bits > 0 && bits%8 == 0 {
			return scalar(bits/8, text[0] == 'i'), nil
		}
	}

	for _, kind := range []string{"byval", "struct"} {
		if !strings.HasPrefix(text, kind+"(") || !strings.HasSuffix(text, ")") {
			continue
		}

		args := strings.Split(text[len(kind)+1:len(text)-1], ",")
		if len(args) > 2 {
			break
		}

		size, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || size < 0 {
			break
		}

		alignment := arch.RegisterByteSize
		if len(args) == 2 {
			alignment, err = strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				break
			}
		}

		return arch.ValueDescriptor{
			Kind:      arch.AggregateValue,
			ByteSize:  size,
			Alignment: alignment,
			ByValue:   kind == "byval",
		}, nil
	}

	return arch.ValueDescriptor{}, fmt.Errorf("invalid value type (%s)", text)
}

func scalar(size int, isSigned bool) arch.ValueDescriptor {
	return arch.ValueDescriptor{
		Kind:      arch.ScalarValue,
		ByteSize:  size,
		Alignment: size,
		IsSigned:  isSigned,
	}
}
