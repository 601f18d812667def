package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pattyshack/gt/parseutil"

	"github.com/simonjhall/llvm-qpu/backend"
	"github.com/simonjhall/llvm-qpu/config"
	"github.com/simonjhall/llvm-qpu/parser"
	"github.com/simonjhall/llvm-qpu/platform/qpu"
)

func main() {
	configFile := flag.String("config", "", "target configuration (yaml)")
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
	debugger := backend.DebugFrame(targetPlatform, os.Stdout)

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

		if !emitter.HasErrors() {
			for _, function := range unit.Functions {
				functionEmitter := &parseutil.Emitter{}
				backend.LowerFunction(function, targetPlatform, functionEmitter)
				if !functionEmitter.HasErrors() {
					debugger.Process(function)
				}
				emitter.EmitErrors(functionEmitter.Errors()...)
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
