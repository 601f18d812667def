package backend

import (
	"github.com/pattyshack/gt/parseutil"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/backend/util"
	"github.com/simonjhall/llvm-qpu/platform"
)

type frameFinalizer struct {
	platform.FrameLowering
}

// Computes the frame size (no more slot requests are accepted afterward)
// and inserts the prologue / epilogues.
func FinalizeFrame(targetPlatform platform.Platform) util.Pass[*arch.Function] {
	return &frameFinalizer{
		FrameLowering: targetPlatform.FrameLowering(),
	}
}

func (finalizer *frameFinalizer) Process(function *arch.Function) {
	finalizer.FinalizeFrame(function)
	finalizer.EmitPrologue(function)
	finalizer.EmitEpilogue(function)
}

type stackSlotResolver struct {
	*parseutil.Emitter
	platform.FrameLowering
}

func ResolveStackSlots(
	emitter *parseutil.Emitter,
	targetPlatform platform.Platform,
) util.Pass[*arch.Function] {
	return &stackSlotResolver{
		Emitter:       emitter,
		FrameLowering: targetPlatform.FrameLowering(),
	}
}

func (resolver *stackSlotResolver) Process(function *arch.Function) {
	resolver.ResolveStackSlots(function, resolver.Emitter)
}
