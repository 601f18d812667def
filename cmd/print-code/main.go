package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/pattyshack/gt/parseutil"

	"github.com/simonjhall/llvm-qpu/backend"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/parser"
	"github.com/simonjhall/llvm-qpu/platform/qpu"
)

func main() {
	configFile := flag.String("config", "", "target configuration (yaml)")
	dump := flag.Bool("dump", false, "dump the compiled segment structure")
	flag.Parse()

	target := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		target = loaded
	}

	target, err := target.WithEnvironment()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	targetPlatform := qpu.NewPlatform(target)
	byteOrder := targetPlatform.InstructionEncoder().ByteOrder()

	for _, fileName := range flag.Args() {
		fmt.Println("=====================")
		fmt.Println("File name:", fileName)
		fmt.Println("---------------------")
		content, err := os.ReadFile(fileName)
		if err != nil {
			fmt.Println("ReadFile error:", err)
			continue
		}

		emitter := &parseutil.Emitter{}
		unit := parser.Parse(
			fileName,
			content,
			targetPlatform.ArchitectureRegisters(),
			emitter)

		var output *backend.Output
		if !emitter.HasErrors() {
			output = backend.Compile(unit, targetPlatform, emitter)
		}

		if output != nil {
			labels := map[int][]string{}
			for symbol, offset := range output.Labels {
				labels[offset] = append(labels[offset], symbol.Name)
			}

			for offset := 0; offset+4 <= len(output.Bytes); offset += 4 {
				for _, label := range labels[offset] {
					fmt.Printf("%s:\n", label)
				}
				fmt.Printf(
					"  %08x: %08x\n",
					offset,
					byteOrder.Uint32(output.Bytes[offset:]))
			}

			fmt.Println("---------------------")
			fmt.Println("Relocations:")
			for _, relocation := range output.Relocations {
				fmt.Printf(
					"  %08x %-16s %s%+d\n",
					relocation.Offset,
					qpu.RelocationTypeName(relocation.Type),
					relocation.Symbol.Name,
					relocation.Addend)
			}

			for _, relocation := range output.Unpaired {
				fmt.Printf(
					"warning: %s at %08x (%s) has no matching %s\n",
					qpu.RelocationTypeName(relocation.Type),
					relocation.Offset,
					relocation.Symbol.Name,
					qpu.RelocationTypeName(qpu.R_QPU_LO16))
			}

			if *dump {
				fmt.Println("---------------------")
				spew.Dump(output)
			}
		}

		errs := emitter.Errors()
		if len(errs) > 0 {
			fmt.Println("---------------------------")
			fmt.Println("Found", len(errs), "errors:")
			fmt.Println("---------------------------")
			for idx, err := range errs {
				fmt.Printf("error %d: %s\n", idx, err)
			}
		}
	}
}
