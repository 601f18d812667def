package backend

import (
	"bytes"
	"fmt"
	"io"

	arch "github.com/simonjhall/llvm-qpu/architecture"
	"github.com/simonjhall/llvm-qpu/backend/util"
	"github.com/simonjhall/llvm-qpu/platform"
)

type FrameDebugger struct {
	platform.FrameLowering
	output io.Writer
}

// Prints the function's frame layout and (lowered) instructions.  The frame
// must be finalized.
func DebugFrame(
	targetPlatform platform.Platform,
	output io.Writer,
) util.Pass[*arch.Function] {
	return &FrameDebugger{
		FrameLowering: targetPlatform.FrameLowering(),
		output:        output,
	}
}

func (debugger *FrameDebugger) Process(function *arch.Function) {
	frame := function.Frame

	buffer := &bytes.Buffer{}
	printf := func(template string, args ...interface{}) {
		fmt.Fprintf(buffer, template, args...)
	}

	printf("Definition: %s\n", function.Name())
	printf("------------------------------------------\n")
	printf("Frame (Phase = %s):\n", frame.Phase())
	printf("  Total size: %d\n", frame.TotalFrameSize)
	printf("  Object area: %d\n", frame.ObjectAreaSize)
	printf("  Outgoing area: %d\n", frame.OutgoingAreaSize)
	printf("  Max call frame: %d\n", frame.MaxCallFrameSize)
	printf("  Has calls: %v\n", frame.HasCalls)
	printf(
		"  Frame register: %s\n",
		debugger.FrameRegister(function))

	printf("  Callee saved:\n")
	for _, entry := range frame.CalleeSaved {
		printf("    %s -> %s\n", entry.Register, entry.Slot.Name)
	}

	printf("  Layout (top to bottom):\n")
	for _, slot := range frame.Layout {
		printf("    %s\n", slot)
	}

	printf("  Fixed slots:\n")
	for _, slot := range frame.Slots {
		if !slot.IsFixed {
			continue
		}

		if frame.Phase() == arch.CollectingRequests {
			printf("    %s\n", slot)
			continue
		}

		printf(
			"    %s (resolved: %d)\n",
			slot,
			frame.ResolvedOffset(slot))
	}

	printf("------------------------------------------\n")
	printf("Instructions:\n")
	for idx, block := range function.Blocks {
		printf("  Block %d (%s):\n", idx, block.Label)
		if len(block.LiveIns) > 0 {
			printf("    LiveIn: %v\n", block.LiveIns)
		}
		for _, inst := range block.Instructions {
			printf("    %s\n", inst)
		}
	}
	printf("==========================================\n")

	fmt.Fprintln(debugger.output, buffer.String())
}
