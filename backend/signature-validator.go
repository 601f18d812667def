package backend

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/backend/util"
	"github.com/simonjhall/llvm-qpu/platform"
)

// Rejects signatures, call sites and returns the call convention cannot
// lower.  Lowering panics on these, so this must run (and succeed) first.
type signatureValidator struct {
	*parseutil.Emitter
	spec platform.CallTypeSpec
}

func ValidateSignatures(
	emitter *parseutil.Emitter,
	targetPlatform platform.Platform,
) util.Pass[*arch.Function] {
	return &signatureValidator{
		Emitter: emitter,
		spec:    targetPlatform.CallConvention().CallTypeSpec(),
	}
}

func (validator *signatureValidator) Process(function *arch.Function) {
	if len(function.Blocks) == 0 {
		validator.Emit(function.Loc(), "function (%s) has no blocks", function.Name())
		return
	}

	names := map[string]*arch.FormalParameter{}
	for idx, param := range function.Parameters {
		if param.Name != "" {
			prev, ok := names[param.Name]
			if ok {
				validator.Emit(
					param.Loc(),
					"parameter (%s) previously defined at (%s)",
					param.Name,
					prev.Loc())
			}
			names[param.Name] = param
		}

		if !validator.spec.IsValidArgType(param.ValueDescriptor) {
			validator.Emit(
				param.Loc(),
				"unsupported parameter type %s (%s)",
				param.ValueDescriptor,
				function.Name())
		}

		if param.StructReturn {
			if idx != 0 {
				validator.Emit(
					param.Loc(),
					"structure return pointer must be the first parameter (%s)",
					function.Name())
			}
			if param.Destination == nil {
				validator.Emit(
					param.Loc(),
					"structure return pointer is not retained (%s)",
					function.Name())
			}
		}
	}

	for _, block := range function.Blocks {
		for _, inst := range block.Instructions {
			switch inst.Opcode {
			case arch.CallPseudo:
				validator.validateCall(inst)
			case arch.ReturnPseudo:
				validator.validateReturn(function, inst)
			}
		}
	}
}

func (validator *signatureValidator) validateCall(inst *arch.Instruction) {
	site := inst.Call
	if site == nil {
		validator.Emit(inst.Loc(), "malformed call")
		return
	}

	switch site.Callee.(type) {
	case arch.SymbolOperand, arch.RegisterOperand:
	default:
		validator.Emit(inst.Loc(), "invalid callee (%s)", site.Callee)
	}

	for _, arg := range site.Arguments {
		if !validator.spec.IsValidArgType(arg.ValueDescriptor) {
			validator.Emit(inst.Loc(), "unsupported argument type %s", arg.ValueDescriptor)
			continue
		}

		switch arg.Value.(type) {
		case arch.RegisterOperand:
		case arch.ImmediateOperand:
			if arg.ByValue {
				validator.Emit(
					inst.Loc(),
					"by value aggregate argument must be passed by address")
			}
		default:
			validator.Emit(inst.Loc(), "invalid argument value (%s)", arg.Value)
		}
	}

	if len(site.Results) > validator.spec.MaxReturnValues() {
		validator.Emit(
			inst.Loc(),
			"too many call results (%d > %d)",
			len(site.Results),
			validator.spec.MaxReturnValues())
	}

	for _, result := range site.Results {
		if !validator.spec.IsValidReturnType(result.ValueDescriptor) {
			validator.Emit(
				inst.Loc(),
				"unsupported call result type %s",
				result.ValueDescriptor)
		}
	}
}

func (validator *signatureValidator) validateReturn(
	function *arch.Function,
	inst *arch.Instruction,
) {
	site := inst.Return
	if site == nil {
		validator.Emit(inst.Loc(), "malformed return")
		return
	}

	if len(site.Values) > validator.spec.MaxReturnValues() {
		validator.Emit(
			inst.Loc(),
			"too many return values (%d > %d)",
			len(site.Values),
			validator.spec.MaxReturnValues())
	}

	hasStructReturn := len(function.Parameters) > 0 &&
		function.Parameters[0].StructReturn
	if hasStructReturn && len(site.Values) > 0 {
		validator.Emit(
			inst.Loc(),
			"function (%s) returns through a structure return pointer",
			function.Name())
	}

	for _, value := range site.Values {
		if !validator.spec.IsValidReturnType(value.ValueDescriptor) {
			validator.Emit(
				inst.Loc(),
				"unsupported return type %s",
				value.ValueDescriptor)
			continue
		}

		switch value.Value.(type) {
		case arch.RegisterOperand, arch.ImmediateOperand:
		default:
			validator.Emit(inst.Loc(), "invalid return value (%s)", value.Value)
		}
	}
}
