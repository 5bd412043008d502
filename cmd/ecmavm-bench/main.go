package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"ecmavm/pkg/config"
	"ecmavm/pkg/driver"
	"ecmavm/pkg/parser"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// installLoad defines load(filename), which runs another benchmark file
// in the same realm, the way the V8 benchmark suite expects.
func installLoad(engine *driver.Engine, baseDir string) {
	engine.DefineGlobalFunc("load", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) < 1 {
			return vm.Undefined, machine.NewTypeError("load: missing filename argument")
		}
		filename, err := machine.ToString(args[0])
		if err != nil {
			return vm.Undefined, err
		}
		fullPath := filepath.Join(baseDir, filename)
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return vm.Undefined, machine.NewTypeError("load: failed to read '%s': %v", filename, err)
		}
		tmpl, errs := engine.Compile(source.FromFile(fullPath, string(content)), driver.Options{})
		if len(errs) > 0 {
			return vm.Undefined, machine.NewSyntaxError("load: %s", errs[0].Error())
		}
		return machine.RunScript(nil, tmpl, engine.Realm())
	})
}

func main() {
	var (
		benchDir   = flag.String("dir", "benchmarks/v8-v7", "Directory containing V8 benchmark files")
		runFile    = flag.String("run", "run.js", "Entry point script to run")
		configPath = flag.String("config", "", "Engine configuration file")
		verbose    = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()
	parser.DumpASTEnabled = false

	absDir, err := filepath.Abs(*benchDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving benchmark directory: %v\n", err)
		os.Exit(1)
	}
	entryPoint := filepath.Join(absDir, *runFile)
	if _, err := os.Stat(entryPoint); err != nil {
		fmt.Fprintf(os.Stderr, "Error: entry point not found at %s\n", entryPoint)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	engine, err := driver.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	installLoad(engine, absDir)

	if *verbose {
		fmt.Printf("Running V8 benchmark from: %s\n", absDir)
		fmt.Printf("Entry point: %s\n", *runFile)
	}
	start := time.Now()
	comp, errs := engine.RunFile(context.Background(), entryPoint, driver.Options{})
	if !engine.FprintResult(io.Discard, os.Stderr, comp, errs) {
		os.Exit(1)
	}
	if *verbose {
		gc := engine.VM().GCStats()
		fmt.Printf("\nBenchmark completed in %v\n", time.Since(start))
		fmt.Printf("GC: %d collections; last swept %d objects, left %d live in %v\n", gc.Collections, gc.Swept, gc.Live, gc.Duration)
	}
}
